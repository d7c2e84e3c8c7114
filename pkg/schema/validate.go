package schema

import "sort"

// Schema is a map of field names to their expected types.
// Example: {"nome": FullName(), "cpf": CPF()}
type Schema map[string]Type

// Field describes one expected answer.
type Field struct {
	Name     string
	Label    string
	Type     Type
	Optional bool
}

// Check validates data against fields and returns every rejection as
// FieldErrors, in the order fields are given. Blank answers are rejected
// with ErrRequired unless the field is optional.
func Check(fields []Field, data map[string]string) error {
	var errs FieldErrors
	for _, f := range fields {
		value := data[f.Name]
		if value == "" {
			if !f.Optional {
				errs = append(errs, &FieldError{Field: f.Name, Label: f.Label, Validator: "required", Err: ErrRequired})
			}
			continue
		}
		t := f.Type
		if t == nil {
			t = Text()
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &FieldError{Field: f.Name, Label: f.Label, Validator: t.Name(), Err: err})
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Validate is Check over a Schema, fields sorted by name. Fields listed in
// optional may be absent.
func Validate(schema Schema, data map[string]string, optional ...string) error {
	skip := make(map[string]bool, len(optional))
	for _, k := range optional {
		skip[k] = true
	}
	fields := make([]Field, 0, len(schema))
	for name, t := range schema {
		fields = append(fields, Field{Name: name, Type: t, Optional: skip[name]})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return Check(fields, data)
}
