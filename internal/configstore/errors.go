package configstore

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an unknown agent id.
var ErrNotFound = errors.New("agent not found")

// InvalidConfigError reports a definition that failed to parse or
// validate. Source names the offending file or identifier.
type InvalidConfigError struct {
	Source  string
	Message string
	Err     error
}

func (e *InvalidConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid config %s: %s: %v", e.Source, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid config %s: %s", e.Source, e.Message)
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Err
}
