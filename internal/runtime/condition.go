package runtime

import (
	"regexp"
	"strings"

	"github.com/vinculobrasil/flowbot/pkg/domain"
	"github.com/vinculobrasil/flowbot/pkg/vars"
)

func (e *Engine) handleCondition(sess *domain.Session, node *domain.Node, cfg *domain.ConditionConfig) domain.StepResult {
	ok := true
	for _, c := range cfg.Conditions {
		if !e.evaluate(sess.Variables, c) {
			ok = false
			break
		}
	}
	e.logger.Debug("condition evaluated", "node_id", node.ID, "result", ok)

	handle := domain.HandleFalse
	if ok {
		handle = domain.HandleTrue
	}
	return domain.StepResult{Success: true, Handle: handle}
}

// evaluate applies one (variable, operator, literal) triple. String
// operators ignore case; ordering operators compare numerically and are
// false when either side is not a number.
func (e *Engine) evaluate(variables map[string]any, c domain.Condition) bool {
	name := strings.Trim(strings.TrimSpace(c.Variable), "{}")
	left, _ := vars.Lookup(variables, name)
	right := vars.Resolve(c.Value, variables)

	ls := strings.ToLower(strings.TrimSpace(vars.Stringify(left)))
	rs := strings.ToLower(strings.TrimSpace(right))

	switch strings.ToLower(c.Operator) {
	case domain.OpEquals, "==", "eq":
		return equal(left, right, ls, rs)
	case domain.OpNotEquals, "!=", "neq":
		return !equal(left, right, ls, rs)
	case domain.OpContains:
		return strings.Contains(ls, rs)
	case domain.OpStartsWith:
		return strings.HasPrefix(ls, rs)
	case domain.OpEndsWith:
		return strings.HasSuffix(ls, rs)
	case domain.OpGreaterThan, ">", "gt":
		l, r, ok := numbers(left, right)
		return ok && l > r
	case domain.OpLessThan, "<", "lt":
		l, r, ok := numbers(left, right)
		return ok && l < r
	case domain.OpIsEmpty:
		return vars.IsEmpty(left)
	case domain.OpIsNotEmpty:
		return !vars.IsEmpty(left)
	case domain.OpMatches:
		re, err := regexp.Compile("(?i)" + right)
		if err != nil {
			e.logger.Warn("invalid condition regex", "pattern", right, "err", err)
			return false
		}
		return re.MatchString(vars.Stringify(left))
	}
	e.logger.Warn("unknown condition operator", "operator", c.Operator, "variable", name)
	return false
}

func equal(left any, right, ls, rs string) bool {
	if l, r, ok := numbers(left, right); ok {
		return l == r
	}
	return ls == rs
}

func numbers(left any, right string) (float64, float64, bool) {
	l, ok := vars.Number(left)
	if !ok {
		return 0, 0, false
	}
	r, ok := vars.Number(right)
	if !ok {
		return 0, 0, false
	}
	return l, r, true
}
