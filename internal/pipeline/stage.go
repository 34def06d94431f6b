package pipeline

import "fmt"

// Failure tags why a stage did not produce its value.
type Failure int

const (
	FailureNone Failure = iota
	FailureDetect
	FailureTranslateIn
	FailureHistory
	FailureComplete
	FailureAppend
	FailureTranslateOut
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureDetect:
		return "detect"
	case FailureTranslateIn:
		return "translate_in"
	case FailureHistory:
		return "history"
	case FailureComplete:
		return "complete"
	case FailureAppend:
		return "append"
	case FailureTranslateOut:
		return "translate_out"
	default:
		return fmt.Sprintf("failure(%d)", int(f))
	}
}

// Result is the outcome of one stage: a value, or a tagged failure with the
// underlying error.
type Result[T any] struct {
	Value   T
	Failure Failure
	Err     error
}

func (r Result[T]) OK() bool { return r.Failure == FailureNone }

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func failed[T any](f Failure, err error) Result[T] {
	return Result[T]{Failure: f, Err: err}
}
