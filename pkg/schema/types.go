package schema

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vinculobrasil/flowbot/pkg/vars"
)

// Type defines the contract for validating a user answer.
type Type interface {
	// Name returns the validation name used in flows (e.g., "email", "cpf").
	Name() string
	// Validate checks if a value is an acceptable answer.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// TextType accepts any non-blank answer.
type TextType struct{}

func (t *TextType) Name() string { return "text" }

func (t *TextType) Validate(value any) error {
	if strings.TrimSpace(vars.Stringify(value)) == "" {
		return fmt.Errorf("empty answer")
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailType validates e-mail addresses.
type EmailType struct{}

func (t *EmailType) Name() string { return "email" }

func (t *EmailType) Validate(value any) error {
	if !emailPattern.MatchString(strings.TrimSpace(vars.Stringify(value))) {
		return fmt.Errorf("invalid e-mail address")
	}
	return nil
}

// DigitsType validates answers by their digit count, ignoring punctuation.
// It backs CPF (exactly 11) and phone (10 or 11) validation; check digits
// are not verified.
type DigitsType struct {
	name string
	min  int
	max  int
}

func (t *DigitsType) Name() string { return t.name }

func (t *DigitsType) Validate(value any) error {
	n := len(Digits(vars.Stringify(value)))
	if n < t.min || n > t.max {
		if t.min == t.max {
			return fmt.Errorf("expected %d digits, got %d", t.min, n)
		}
		return fmt.Errorf("expected %d to %d digits, got %d", t.min, t.max, n)
	}
	return nil
}

// NumberType validates numeric answers.
type NumberType struct{}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	if _, ok := vars.Number(value); !ok {
		return fmt.Errorf("expected a number")
	}
	return nil
}

// DateLayouts are the accepted date formats, day-first first.
var DateLayouts = []string{"02/01/2006", "2/1/2006", "2006-01-02"}

// DateType validates calendar dates.
type DateType struct{}

func (t *DateType) Name() string { return "date" }

func (t *DateType) Validate(value any) error {
	if _, ok := ParseDate(vars.Stringify(value)); !ok {
		return fmt.Errorf("expected a date as dd/mm/yyyy")
	}
	return nil
}

// ParseDate parses s with the first matching layout of DateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// FullNameType requires at least two words.
type FullNameType struct{}

func (t *FullNameType) Name() string { return "name" }

func (t *FullNameType) Validate(value any) error {
	s := strings.TrimSpace(vars.Stringify(value))
	if len([]rune(s)) < 2 || !strings.Contains(s, " ") {
		return fmt.Errorf("expected first and last name")
	}
	return nil
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

func Text() Type     { return &TextType{} }
func Email() Type    { return &EmailType{} }
func CPF() Type      { return &DigitsType{name: "cpf", min: 11, max: 11} }
func Phone() Type    { return &DigitsType{name: "phone", min: 10, max: 11} }
func Number() Type   { return &NumberType{} }
func Date() Type     { return &DateType{} }
func FullName() Type { return &FullNameType{} }

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// Names lists the validation names understood by ParseType.
var Names = []string{"text", "email", "cpf", "phone", "number", "date", "name"}

// ParseType converts a validation name to a Type. The empty name means
// "non-empty text".
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "text", "none":
		return Text(), nil
	case "email":
		return Email(), nil
	case "cpf":
		return CPF(), nil
	case "phone", "telefone", "whatsapp":
		return Phone(), nil
	case "number":
		return Number(), nil
	case "date":
		return Date(), nil
	case "name", "nome":
		return FullName(), nil
	}
	return nil, fmt.Errorf("unknown validation %q", name)
}

// Lookup is ParseType with a text fallback for unknown names.
func Lookup(name string) Type {
	t, err := ParseType(name)
	if err != nil {
		return Text()
	}
	return t
}

// Digits keeps only the ASCII digits of s.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
