// This file implements request decoding and validation. Bodies are decoded
// from JSON with a size cap and checked with go-playground/validator using
// the JSON field names in messages.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

const maxBodyBytes = 1 << 20

// RequestError is a client error carrying the status to answer with.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func unprocessable(msg string) error {
	return &RequestError{Status: http.StatusUnprocessableEntity, Message: msg}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON reads r's body into dst and validates it. A malformed body is
// a 400; a body that fails validation is a 422.
func DecodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest("failed to read request body")
	}
	if len(body) > maxBodyBytes {
		return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("request body is empty")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return badRequest("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return unprocessable(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "alpha":
		return field + " must contain letters only"
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, "YYYY-MM-DD")
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Amount accepts a JSON number or string; "12,50" is read as 12.50.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or string")
	}
	*a = Amount(n.String())
	return nil
}

// TransactionRequest is the body of POST and PUT /api/transactions.
type TransactionRequest struct {
	Type     string `json:"type" validate:"required,oneof=income expense"`
	Amount   Amount `json:"amount" validate:"required"`
	Category string `json:"category" validate:"required,max=100"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Currency string `json:"currency" validate:"omitempty,len=3,alpha"`
}

// Input converts the request into a tracker input. Category is sanitized
// before validation so whitespace-only names are rejected.
func (req *TransactionRequest) Input() (services.TransactionInput, error) {
	req.Category = sanitizeInput(req.Category)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validateStruct(req); err != nil {
		return services.TransactionInput{}, err
	}
	amount, err := core.ParseAmount(string(req.Amount))
	if err != nil {
		return services.TransactionInput{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return services.TransactionInput{}, err
	}
	return services.TransactionInput{
		Type:     core.TransactionType(req.Type),
		Amount:   amount,
		Category: req.Category,
		Date:     date,
		Currency: req.Currency,
	}, nil
}

// GoalRequest is the body of PUT /api/goal.
type GoalRequest struct {
	Target   Amount `json:"target" validate:"required"`
	Deadline string `json:"deadline" validate:"required,datetime=2006-01-02"`
}

func (req GoalRequest) Goal() (core.Goal, error) {
	target, err := core.ParseAmount(string(req.Target))
	if err != nil {
		return core.Goal{}, fmt.Errorf("%w: target must be greater than zero", core.ErrInvalidGoal)
	}
	deadline, err := core.ParseDate(req.Deadline)
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{Target: target, Deadline: deadline}, nil
}

// PreferencesRequest is the body of PUT /api/preferences. Absent fields are
// left unchanged.
type PreferencesRequest struct {
	Theme           *string `json:"theme" validate:"omitempty,oneof=dark light"`
	DefaultCurrency *string `json:"defaultCurrency" validate:"omitempty,len=3,alpha"`
	EntryCurrency   *string `json:"entryCurrency" validate:"omitempty,len=3,alpha"`
	FilterCurrency  *string `json:"filterCurrency" validate:"omitempty,max=3"`
	Onboarded       *bool   `json:"onboarded"`
}

func (req PreferencesRequest) Update() services.PreferencesUpdate {
	upper := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.ToUpper(strings.TrimSpace(*s))
		return &v
	}
	filter := upper(req.FilterCurrency)
	if filter != nil && *filter == "ALL" {
		all := "all"
		filter = &all
	}
	return services.PreferencesUpdate{
		Theme:           req.Theme,
		DefaultCurrency: upper(req.DefaultCurrency),
		EntryCurrency:   upper(req.EntryCurrency),
		FilterCurrency:  filter,
		Onboarded:       req.Onboarded,
	}
}

// ParseCurrencyParam reads a three-letter code from the query. An absent
// parameter yields def.
func ParseCurrencyParam(r *http.Request, name, def string) (string, error) {
	v := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get(name)))
	if v == "" {
		return def, nil
	}
	if err := validate.Var(v, "len=3,alpha"); err != nil {
		return "", badRequest("%s must be a 3-letter currency code", name)
	}
	return v, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
