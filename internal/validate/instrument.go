package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"payengine/internal/domain"
)

// Validator checks whole instruments against the field predicates.
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used for the expiration check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// New builds a Validator with the luhn, aba, cvv and digits tags registered.
func New(opts ...Option) *Validator {
	val := &Validator{
		v:   validator.New(validator.WithRequiredStructEnabled()),
		now: time.Now,
	}
	for _, o := range opts {
		o(val)
	}

	// Report fields by their wire names.
	val.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	mustRegister(val.v, "luhn", func(fl validator.FieldLevel) bool {
		return CardNumberValid(fl.Field().String())
	})
	mustRegister(val.v, "aba", func(fl validator.FieldLevel) bool {
		return RoutingValid(fl.Field().String())
	})
	mustRegister(val.v, "cvv", func(fl validator.FieldLevel) bool {
		return SecurityCodeValid(fl.Field().String())
	})
	mustRegister(val.v, "digits", func(fl validator.FieldLevel) bool {
		return IsDigits(fl.Field().String())
	})
	val.v.RegisterStructValidation(val.cardExpiry, domain.Card{})
	return val
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Errorf("register %s: %w", tag, err))
	}
}

func (val *Validator) cardExpiry(sl validator.StructLevel) {
	c := sl.Current().Interface().(domain.Card)
	if c.ExpirationMonth == "" || c.ExpirationYear == "" {
		return // reported by required
	}
	if !ExpirationValid(c.ExpirationMonth, c.ExpirationYear, val.now()) {
		sl.ReportError(c.ExpirationYear, "expiration_year", "ExpirationYear", "expiry", "")
	}
}

// Instrument returns nil when every applicable predicate holds, or a
// ValidationError listing the failing fields.
func (val *Validator) Instrument(inst domain.Instrument) error {
	if inst == nil {
		return domain.ValidationError([]string{"instrument"})
	}
	var err error
	switch in := inst.(type) {
	case domain.Card:
		err = val.v.Struct(in)
	case *domain.Card:
		err = val.v.Struct(*in)
	case domain.BankAccount:
		err = val.v.Struct(in)
	case *domain.BankAccount:
		err = val.v.Struct(*in)
	case domain.Cash:
		err = val.v.Struct(in)
	case *domain.Cash:
		err = val.v.Struct(*in)
	default:
		return domain.ValidationError([]string{"instrument"})
	}
	return toValidationError(err)
}

// Buyer checks the optional buyer contact fields.
func (val *Validator) Buyer(b domain.BuyerOptions) error {
	return toValidationError(val.v.Struct(b))
}

// IsValid is Instrument reduced to a bool, for gating UI actions.
func (val *Validator) IsValid(inst domain.Instrument) bool {
	return val.Instrument(inst) == nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return &domain.Error{Kind: domain.KindValidation, Message: "instrument failed validation", Err: err}
	}
	fields := make([]string, 0, len(ves))
	seen := make(map[string]bool, len(ves))
	for _, fe := range ves {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		fields = append(fields, fe.Field())
	}
	return domain.ValidationError(fields)
}
