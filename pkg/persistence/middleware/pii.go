package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/ports"
)

// Mask replaces masked values.
const Mask = "***"

// DefaultPIIPatterns match the variable names flows use for personal data.
var DefaultPIIPatterns = []string{
	`(?i)cpf|cnpj`,
	`(?i)e-?mail`,
	`(?i)senha|password`,
	`(?i)rg$|^rg_`,
}

type piiMiddleware struct {
	next     ports.StateStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks session variables (and
// pending lead answers) whose names match any of the patterns. Masking is
// one-way: a masked session resumes with "***" in place of the value, so it
// suits audit or analytics stores rather than the live one.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.StateStore) ports.StateStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	// Never touch the caller's session.
	masked := sess.Clone()
	maskMap(masked.Variables, m.patterns)
	if masked.Pending != nil {
		for k := range masked.Pending.Answers {
			if m.matches(k) {
				masked.Pending.Answers[k] = Mask
			}
		}
	}
	return m.next.Save(ctx, sessionID, masked)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func maskMap(vars map[string]any, patterns []*regexp.Regexp) {
	for k, v := range vars {
		matched := false
		for _, p := range patterns {
			if p.MatchString(k) {
				vars[k] = Mask
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			maskMap(val, patterns)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}
