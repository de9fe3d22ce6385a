package condition

import "fmt"

// ErrorKind classifies a ConditionEvaluationError.
type ErrorKind string

const (
	// KindSandbox means the expression referenced a denied identifier and was
	// never parsed.
	KindSandbox ErrorKind = "sandbox"
	// KindSyntax means the expression could not be compiled.
	KindSyntax ErrorKind = "syntax"
	// KindRuntime means evaluation failed, e.g. reading a member of undefined.
	KindRuntime ErrorKind = "runtime"
	// KindCustom means the installed custom evaluator returned an error.
	KindCustom ErrorKind = "custom"
)

// ConditionEvaluationError reports a condition that could not be evaluated.
// The engine treats it as "condition not met".
type ConditionEvaluationError struct {
	Expression string
	Kind       ErrorKind
	// Identifier is the denied identifier for sandbox violations.
	Identifier string
	// Pos is the byte offset of a syntax error, or -1.
	Pos int
	Err error
}

func (e *ConditionEvaluationError) Error() string {
	switch e.Kind {
	case KindSandbox:
		return fmt.Sprintf("condition %q rejected: identifier %q is not allowed", e.Expression, e.Identifier)
	case KindSyntax:
		return fmt.Sprintf("condition %q: syntax error at %d: %v", e.Expression, e.Pos, e.Err)
	default:
		return fmt.Sprintf("condition %q: %s error: %v", e.Expression, e.Kind, e.Err)
	}
}

func (e *ConditionEvaluationError) Unwrap() error {
	return e.Err
}

type syntaxError struct {
	pos int
	msg string
}

func (e *syntaxError) Error() string {
	return e.msg
}

func errorf(pos int, format string, args ...any) *syntaxError {
	return &syntaxError{pos: pos, msg: fmt.Sprintf(format, args...)}
}
