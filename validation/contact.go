// Package validation checks inbound contact payloads before they reach a store.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxPhoneNumber is the largest phone number accepted, ten digits.
const MaxPhoneNumber = 9999999999

// Contact is a validated contact payload, shared by create and update.
type Contact struct {
	FirstName   string  `json:"first_name"   validate:"required"`
	LastName    string  `json:"last_name"    validate:"required"`
	PhoneNumber int64   `json:"phone_number" validate:"gte=0,lte=9999999999"`
	Address     *string `json:"address"`
}

// Phone returns the canonical text form of the phone number.
func (c *Contact) Phone() string { return strconv.FormatInt(c.PhoneNumber, 10) }

// CanonicalPhone returns phone in the form stored by [Contact.Phone], so that
// "0055" finds the contact created with 55. Anything that is not a phone
// number is returned unchanged.
func CanonicalPhone(phone string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(phone), 10, 64)
	if err != nil || n < 0 || n > MaxPhoneNumber {
		return phone
	}
	return strconv.FormatInt(n, 10)
}

// FieldError describes one failed constraint.
type FieldError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value"`
	Message    string `json:"message"`
}

// ValidationError lists every constraint a payload failed.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed: ")
	for i, fe := range e.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Field)
		sb.WriteString(": ")
		sb.WriteString(fe.Message)
	}
	return sb.String()
}

// fields in the order errors are reported.
var fields = []string{"first_name", "last_name", "phone_number", "address"}

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeContact parses raw JSON and validates it with [ParseContact].
func DecodeContact(raw []byte) (*Contact, error) {
	var payload any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, &ValidationError{Errors: []FieldError{{
			Field: "body", Constraint: "json", Value: string(raw), Message: "invalid JSON: " + err.Error(),
		}}}
	}
	return ParseContact(payload)
}

// ParseContact validates a decoded JSON payload. Numbers may be float64 or
// [json.Number]. The returned error is always a *[ValidationError].
func ParseContact(payload any) (*Contact, error) {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil, &ValidationError{Errors: []FieldError{{
			Field: "body", Constraint: "object", Value: payload, Message: "input should be an object",
		}}}
	}

	var (
		c      Contact
		failed = map[string]FieldError{}
	)
	c.FirstName = requiredString(m, "first_name", failed)
	c.LastName = requiredString(m, "last_name", failed)
	c.PhoneNumber = phoneNumber(m, failed)
	if v, ok := m["address"]; ok && v != nil {
		if s, ok := v.(string); ok {
			c.Address = &s
		} else {
			failed["address"] = typeError("address", "string", v)
		}
	}

	var verrs validator.ValidationErrors
	if err := validate.Struct(&c); errors.As(err, &verrs) {
		for _, ve := range verrs {
			if _, ok := failed[ve.Field()]; ok {
				continue
			}
			failed[ve.Field()] = FieldError{
				Field:      ve.Field(),
				Constraint: ve.Tag(),
				Value:      m[ve.Field()],
				Message:    message(ve),
			}
		}
	}

	if len(failed) == 0 {
		return &c, nil
	}
	verr := &ValidationError{}
	for _, f := range fields {
		if fe, ok := failed[f]; ok {
			verr.Errors = append(verr.Errors, fe)
		}
	}
	return nil, verr
}

func requiredString(m map[string]any, field string, failed map[string]FieldError) string {
	v, ok := m[field]
	if !ok || v == nil {
		failed[field] = FieldError{Field: field, Constraint: "required", Value: v, Message: "field required"}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		failed[field] = typeError(field, "string", v)
	}
	return s
}

func phoneNumber(m map[string]any, failed map[string]FieldError) int64 {
	const field = "phone_number"
	v, ok := m[field]
	if !ok || v == nil {
		failed[field] = FieldError{Field: field, Constraint: "required", Value: v, Message: "field required"}
		return 0
	}

	var text string
	switch v := v.(type) {
	case json.Number:
		text = v.String()
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			failed[field] = typeError(field, "integer", v)
			return 0
		}
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		text = strings.TrimSpace(v)
	default:
		failed[field] = typeError(field, "integer", v)
		return 0
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return n
	}
	if errors.Is(err, strconv.ErrRange) {
		return rangeOverflow(text)
	}
	// integral numbers written with a fraction or exponent, e.g. 55.0 or 5e3
	if _, isString := v.(string); !isString {
		if f, ferr := strconv.ParseFloat(text, 64); ferr == nil && f == math.Trunc(f) {
			if f > MaxPhoneNumber || f < 0 {
				return rangeOverflow(text)
			}
			return int64(f)
		}
	}
	failed[field] = typeError(field, "integer", v)
	return 0
}

// rangeOverflow returns a value that fails the range constraint on the same side as text.
func rangeOverflow(text string) int64 {
	if strings.HasPrefix(text, "-") {
		return math.MinInt64
	}
	return math.MaxInt64
}

func typeError(field, typ string, v any) FieldError {
	return FieldError{Field: field, Constraint: typ, Value: v, Message: "input should be a valid " + typ}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field must not be empty"
	case "gte":
		return "input should be greater than or equal to " + fe.Param()
	case "lte":
		return "input should be less than or equal to " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}
