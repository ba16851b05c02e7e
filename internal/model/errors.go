package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("meeting not found")
	ErrWrongProvider = errors.New("meeting is not configured for JaaS")
)

// ConfigError reports a stored meeting record that cannot be used.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid meeting %s: %s", e.Field, e.Reason)
}

// ValidationError reports bad client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
