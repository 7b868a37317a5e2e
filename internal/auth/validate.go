package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/BuzzLyutic/taskboard/internal/model"
)

const (
	MinPasswordLength = 6
	MinFullNameLength = 2
	// bcrypt ignores everything past 72 bytes
	MaxPasswordBytes = 72
)

// ValidationError lists failed form fields; it matches model.ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range []string{"email", "password", "full_name", "title"} {
		if msg, ok := e.Fields[field]; ok {
			parts = append(parts, field+": "+msg)
		}
	}
	return fmt.Sprintf("%s: %s", model.ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == model.ErrValidation }

type validator struct {
	fields map[string]string
}

func (v *validator) check(ok bool, field, msg string) {
	if ok {
		return
	}
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, seen := v.fields[field]; !seen {
		v.fields[field] = msg
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == strings.TrimSpace(email)
}

func (v *validator) email(email string) {
	v.check(validEmail(email), "email", "Please enter a valid email")
}

func (v *validator) password(password string) {
	v.check(utf8.RuneCountInString(password) >= MinPasswordLength, "password", "Password must be at least 6 characters")
	v.check(len(password) <= MaxPasswordBytes, "password", "Password must be at most 72 bytes")
}

// ValidateSignIn checks the sign-in form.
func ValidateSignIn(email, password string) error {
	var v validator
	v.email(email)
	v.password(password)
	return v.err()
}

// ValidateSignUp checks the sign-up form.
func ValidateSignUp(email, password, fullName string) error {
	var v validator
	v.email(email)
	v.password(password)
	v.check(utf8.RuneCountInString(strings.TrimSpace(fullName)) >= MinFullNameLength, "full_name", "Full name must be at least 2 characters")
	return v.err()
}

// ValidateMagicLink checks the magic-link form.
func ValidateMagicLink(email string) error {
	var v validator
	v.email(email)
	return v.err()
}

// ValidateTaskTitle checks the task form title.
func ValidateTaskTitle(title string) error {
	var v validator
	v.check(strings.TrimSpace(title) != "", "title", "Title is required")
	return v.err()
}

// FieldErrors returns the per-field messages of a ValidationError, or nil.
func FieldErrors(err error) map[string]string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	return nil
}
