// Package schema validates free-text answers collected by Input and Lead
// Capture nodes.
//
// Each validation name used in a flow maps to a Type:
//
//	t, err := schema.ParseType("cpf")
//	if err := t.Validate("111.111.111-11"); err != nil {
//	    // re-prompt
//	}
//
// Digit-count validators (cpf, phone) ignore punctuation and do not verify
// check digits, and only ASCII digits count. A completed interview is
// checked in one call; every rejected answer comes back as a FieldError:
//
//	err := schema.Check([]schema.Field{
//	    {Name: "nome", Label: "Nome completo", Type: schema.FullName()},
//	    {Name: "cpf", Type: schema.CPF()},
//	}, answers)
//	for _, fe := range schema.AsFieldErrors(err) {
//	    log.Println(fe.Field, fe.Validator, fe.Err)
//	}
//
// Custom validators can be registered for domain-specific checks with Custom.
package schema
