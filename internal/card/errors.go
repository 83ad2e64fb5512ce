package card

import (
	"errors"
	"fmt"
)

// ErrInvalidDesign is wrapped by every ConfigurationError.
var ErrInvalidDesign = errors.New("invalid template design")

// ConfigurationError reports a malformed TemplateDesign. Rendering must not proceed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidDesign, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidDesign, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidDesign
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
