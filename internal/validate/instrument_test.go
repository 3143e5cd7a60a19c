package validate_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"payengine/internal/domain"
	"payengine/internal/validate"
)

func newValidator() *validate.Validator {
	return validate.New(validate.WithClock(func() time.Time {
		return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func validCard() domain.Card {
	return domain.Card{
		Number:          "4111 1111 1111 1111",
		ExpirationMonth: "12",
		ExpirationYear:  "2030",
		SecurityCode:    "123",
		Name:            "Ada Lovelace",
	}
}

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	var de *domain.Error
	require.True(t, errors.As(err, &de), "want *domain.Error, got %T", err)
	require.True(t, errors.Is(err, domain.ErrValidation))
	return de.Fields
}

func TestInstrument_Card(t *testing.T) {
	v := newValidator()
	require.NoError(t, v.Instrument(validCard()))
	c := validCard()
	require.True(t, v.IsValid(&c))

	bad := validCard()
	bad.Number = "4111111111111112"
	bad.SecurityCode = "12"
	fields := fieldsOf(t, v.Instrument(bad))
	require.ElementsMatch(t, []string{"number", "security_code"}, fields)
}

func TestInstrument_CardExpired(t *testing.T) {
	v := newValidator()
	c := validCard()
	c.ExpirationYear = "2024"
	require.Equal(t, []string{"expiration_year"}, fieldsOf(t, v.Instrument(c)))

	c.ExpirationYear = ""
	require.Equal(t, []string{"expiration_year"}, fieldsOf(t, v.Instrument(c)))
}

func TestInstrument_Bank(t *testing.T) {
	v := newValidator()
	ok := domain.BankAccount{
		AccountNumber: "123456789",
		RoutingNumber: "021000021",
		AccountType:   domain.Savings,
		Name:          "Ada Lovelace",
	}
	require.NoError(t, v.Instrument(ok))

	bad := ok
	bad.AccountNumber = "12a"
	bad.RoutingNumber = "021000022"
	bad.AccountType = domain.AccountType(2)
	require.ElementsMatch(t,
		[]string{"account_number", "routing_number", "account_type"},
		fieldsOf(t, v.Instrument(bad)))
}

func TestInstrument_Cash(t *testing.T) {
	v := newValidator()
	require.NoError(t, v.Instrument(domain.Cash{Name: "Ada", Contact: "ada@example.com"}))
	require.Equal(t, []string{"contact"}, fieldsOf(t, v.Instrument(domain.Cash{Name: "Ada"})))
}

func TestInstrument_Nil(t *testing.T) {
	require.False(t, newValidator().IsValid(nil))
}

func TestBuyer(t *testing.T) {
	v := newValidator()
	require.NoError(t, v.Buyer(domain.BuyerOptions{}))
	require.NoError(t, v.Buyer(domain.BuyerOptions{Email: "ada@example.com"}))
	require.Equal(t, []string{"email"}, fieldsOf(t, v.Buyer(domain.BuyerOptions{Email: "nope"})))
}
