package space

import "fmt"

// DomainError reports a point that lies outside the parameter space: a value
// out of bounds, an unknown category, an unknown or missing parameter name.
// It always indicates a caller bug and is never retried.
type DomainError struct {
	Param  string
	Value  any
	Reason string
}

func (e *DomainError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("domain error: %s", e.Reason)
	}
	if e.Value == nil {
		return fmt.Sprintf("domain error: parameter %q: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("domain error: parameter %q: %s (value %v)", e.Param, e.Reason, e.Value)
}

func domainErr(param string, value any, format string, args ...any) *DomainError {
	return &DomainError{Param: param, Value: value, Reason: fmt.Sprintf(format, args...)}
}
