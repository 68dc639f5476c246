package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/wagroups/wagroups/internal/core"
)

// ErrInvalidArgs marks argument decoding and validation failures.
var ErrInvalidArgs = errors.New("invalid arguments")

// Validate is the shared struct validator. Field names in messages are the
// JSON names.
var Validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}()

// FormatValidation renders validator errors as one readable line.
func FormatValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "required_without":
			msgs = append(msgs, fe.Field()+" or "+jsonName(fe.Param())+" is required")
		case "excluded_with":
			msgs = append(msgs, fe.Field()+" cannot be combined with "+jsonName(fe.Param()))
		case "oneof":
			msgs = append(msgs, fe.Field()+" must be one of: "+fe.Param())
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		default:
			msgs = append(msgs, fe.Field()+" is invalid ("+fe.Tag()+")")
		}
	}
	return strings.Join(msgs, "; ")
}

// jsonName turns a Go field name such as CategoryID into category_id.
func jsonName(field string) string {
	var b strings.Builder
	for i, r := range strings.ReplaceAll(field, "ID", "Id") {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func invalid(msg string) error {
	return errors.Wrap(ErrInvalidArgs, msg)
}

// decode unmarshals and validates tool arguments. Empty input is treated as {}.
func decode[T any](raw json.RawMessage) (*T, error) {
	var v T
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, invalid("malformed JSON: " + err.Error())
		}
	}
	if err := Validate.Struct(&v); err != nil {
		return nil, invalid(FormatValidation(err))
	}
	return &v, nil
}

// handle adapts a typed tool function to a HandlerFunc.
func handle[T any](fn func(ctx context.Context, caller core.Caller, args *T) (any, error)) HandlerFunc {
	return func(ctx context.Context, caller core.Caller, raw json.RawMessage) (any, error) {
		args, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, caller, args)
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid("send_at must be an RFC 3339 timestamp, e.g. 2025-01-31T09:00:00-03:00")
}
