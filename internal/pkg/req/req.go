/*
Package req decodes and validates inbound payloads.

It is the schema layer in front of the core: JSON is decoded strictly (unknown fields and
trailing data are rejected) and then checked against go-playground/validator struct tags.
*/
package req

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
)

// roomNamePattern requires no whitespace and a word character at the end.
var roomNamePattern = regexp.MustCompile(`^\S+\w$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the custom "roomname" tag registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		if err := v.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
			return roomNamePattern.MatchString(fl.Field().String())
		}); err != nil {
			logx.Fatal(err, "Failed to register roomname validation")
		}
		validate = v
	})
	return validate
}

// DecodeJSON strictly decodes data into dst and validates the result.
func DecodeJSON(data []byte, dst any) *errs.CustomError {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return Validate(dst)
}

// Validate checks dst against its struct tags.
func Validate(dst any) *errs.CustomError {
	if err := Validator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			logx.Debug("Payload validation failed", "field", fieldErrs[0].Namespace(), "tag", fieldErrs[0].Tag())
		}
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
