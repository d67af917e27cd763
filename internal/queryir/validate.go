package queryir

import "fmt"

// ValidationResult contains portability analysis of a predicate.
//
// The portable fragment is the subset of the IR that behaves identically on
// every supported SQL dialect. Predicates outside it still execute, but the
// results may differ between SQLite and PostgreSQL.
type ValidationResult struct {
	// IsPortable indicates if the predicate uses only portable features.
	IsPortable bool

	// Warnings lists non-portable features used in the predicate.
	// Empty when IsPortable is true.
	Warnings []string
}

// Validate checks if a predicate stays inside the portable fragment.
//
// Portable fragment rules:
//  1. Case-insensitive matching is ASCII-only on SQLite (LOWER) but
//     Unicode-aware on PostgreSQL (ILIKE), so insensitive Equals and Match
//     on non-ASCII values are flagged
//  2. Ordering comparisons on booleans depend on the dialect's bool encoding
//  3. Every quantifiers over relations are portable, but nested Every under
//     Not is flagged because the double negation is easy to misread
//
// Validate is a pure function with no side effects.
func Validate(p Predicate) ValidationResult {
	v := &validator{
		warnings: []string{},
	}
	v.validatePredicate(p, false)

	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

// addWarning appends a warning message.
func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate, negated bool) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Equals:
		if pred.Insensitive {
			v.checkASCII(pred.Field, pred.Value)
		}
	case Match:
		if pred.Insensitive {
			v.checkASCII(pred.Field, pred.Value)
		}
	case Compare:
		if _, isBool := pred.Value.(bool); isBool {
			v.addWarning("Field '%s' compared with %s on a boolean - ordering of booleans is dialect-specific", pred.Field, pred.Op)
		}
	case In, IsNull:
		// Portable on every dialect.
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, negated)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub, negated)
		}
	case Not:
		v.validatePredicate(pred.Predicate, !negated)
	case Relation:
		if pred.Quantifier == Every && negated {
			v.addWarning("Relation '%s' uses every under NOT - consider some with a negated filter", pred.Name)
		}
		v.validatePredicate(pred.Filter, negated)
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}

// checkASCII warns when a case-insensitive comparison uses non-ASCII text.
func (v *validator) checkASCII(field string, value any) {
	s, ok := value.(string)
	if !ok {
		return
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			v.addWarning("Field '%s' uses case-insensitive comparison with non-ASCII text - folding differs between SQLite and PostgreSQL", field)
			return
		}
	}
}
