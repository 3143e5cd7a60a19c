package domain

import "strings"

// InstrumentKind discriminates the Instrument union. Values match the
// payment type names the host expects.
type InstrumentKind string

const (
	KindCard        InstrumentKind = "card"
	KindBankAccount InstrumentKind = "ach"
	KindCash        InstrumentKind = "cash"
)

// Instrument is one of Card, BankAccount or Cash.
type Instrument interface {
	Kind() InstrumentKind
	// LastFour is safe to log and to echo back in results.
	LastFour() string
	instrument()
}

// Address is a postal address attached to a card or to buyer options.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Card holds payment card data. Number may carry display separators; use
// Digits for the bare PAN.
type Card struct {
	Number          string  `json:"number" validate:"required,luhn"`
	ExpirationMonth string  `json:"expiration_month" validate:"required"`
	ExpirationYear  string  `json:"expiration_year" validate:"required"`
	SecurityCode    string  `json:"security_code" validate:"cvv"`
	Name            string  `json:"name,omitempty"`
	Address         Address `json:"address"`
}

func (Card) Kind() InstrumentKind { return KindCard }
func (Card) instrument()          {}

// Digits returns the PAN with all whitespace removed.
func (c Card) Digits() string { return StripSpaces(c.Number) }

// BIN returns the first six digits of the PAN, or "" when fewer are present.
func (c Card) BIN() string {
	d := c.Digits()
	if len(d) < 6 {
		return ""
	}
	return d[:6]
}

func (c Card) LastFour() string { return lastN(c.Digits(), 4) }

// AccountType is the ACH account type.
type AccountType int

const (
	Checking AccountType = iota
	Savings
)

func (t AccountType) String() string {
	switch t {
	case Checking:
		return "checking"
	case Savings:
		return "savings"
	default:
		return "unknown"
	}
}

// BankAccount holds ACH account data.
type BankAccount struct {
	AccountNumber string      `json:"account_number" validate:"required,digits"`
	RoutingNumber string      `json:"routing_number" validate:"aba"`
	AccountType   AccountType `json:"account_type" validate:"min=0,max=1"`
	Name          string      `json:"name" validate:"required"`
	Country       string      `json:"country,omitempty"`
}

func (BankAccount) Kind() InstrumentKind { return KindBankAccount }
func (BankAccount) instrument()          {}

func (b BankAccount) LastFour() string { return lastN(b.AccountNumber, 4) }

// Cash is an in-person cash payment completed with a barcode.
type Cash struct {
	Name    string `json:"name" validate:"required"`
	Contact string `json:"contact" validate:"required"`
}

func (Cash) Kind() InstrumentKind { return KindCash }
func (Cash) instrument()          {}
func (Cash) LastFour() string     { return "" }

// BuyerOptions are optional contact details attached to a payment.
type BuyerOptions struct {
	FirstName       string  `json:"first_name,omitempty"`
	LastName        string  `json:"last_name,omitempty"`
	Email           string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string  `json:"phone,omitempty"`
	PersonalAddress Address `json:"personal_address"`
}

// FeeMode decides who carries the fee and whether capture is automatic.
type FeeMode string

const (
	Surcharge  FeeMode = "surcharge"
	ServiceFee FeeMode = "service_fee"
)

// StripSpaces removes space, tab and newline characters.
func StripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		default:
			return r
		}
	}, s)
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
