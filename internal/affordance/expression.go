package affordance

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
)

// conditionFunctions is the whitelist of functions a rule condition may call.
var conditionFunctions = map[string]govaluate.ExpressionFunction{
	"contains": func(args ...interface{}) (interface{}, error) {
		s, sub, err := twoStrings("contains", args)
		if err != nil {
			return nil, err
		}
		return strings.Contains(s, strings.ToLower(sub)), nil
	},
	"hasPrefix": func(args ...interface{}) (interface{}, error) {
		s, prefix, err := twoStrings("hasPrefix", args)
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, strings.ToLower(prefix)), nil
	},
}

func twoStrings(fn string, args []interface{}) (string, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("%s expects 2 arguments, got %d", fn, len(args))
	}
	a, ok1 := args[0].(string)
	b, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return "", "", fmt.Errorf("%s expects string arguments", fn)
	}
	return a, b, nil
}

// compileCondition parses a rule condition. An empty condition compiles to nil.
func compileCondition(expr string) (*govaluate.EvaluableExpression, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	return govaluate.NewEvaluableExpressionWithFunctions(expr, conditionFunctions)
}

// ValidateCondition checks that a condition expression parses.
func ValidateCondition(expr string) error {
	_, err := compileCondition(expr)
	return err
}

// queryParameters exposes the normalized query to condition expressions:
// query (lowercased), words (list of lowercased words) and length (word count).
func queryParameters(lowered string) map[string]interface{} {
	fields := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make([]interface{}, len(fields))
	for i, w := range fields {
		words[i] = w
	}
	return map[string]interface{}{
		"query":  lowered,
		"words":  words,
		"length": float64(len(fields)),
	}
}
