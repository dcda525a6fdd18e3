package core

import (
	"errors"
	"fmt"
)

// ConfigError is a startup configuration problem with a suggested fix.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // What the operator should change
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeInvalidEngineURL  = "INVALID_ENGINE_URL"
	ErrCodeInvalidAuth       = "INVALID_AUTH"
	ErrCodeProfileUnreadable = "PROFILE_UNREADABLE"
	ErrCodeEngineUnreachable = "ENGINE_UNREACHABLE"
	ErrCodeDirectory         = "DIRECTORY_UNWRITABLE"
)

// ErrInvalidValue reports an environment variable holding an out-of-range value.
func ErrInvalidValue(varName string, value interface{}, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s=%v: %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your environment or .env file", varName),
	}
}

// ErrInvalidEngineURL reports an unusable ENGINE_URL.
func ErrInvalidEngineURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidEngineURL,
		Message: fmt.Sprintf("Invalid ENGINE_URL '%s': %s", url, reason),
		Action:  "Set ENGINE_URL to the webui address (e.g., http://127.0.0.1:7860)",
	}
}

// ErrInvalidAuth reports an ENGINE_AUTH value that is not user:password.
func ErrInvalidAuth() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidAuth,
		Message: "ENGINE_AUTH must have the form user:password",
		Action:  "Set ENGINE_AUTH to the --api-auth credentials of the webui, or leave it empty",
	}
}

// ErrProfileUnreadable reports a missing or malformed profile file.
func ErrProfileUnreadable(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeProfileUnreadable,
		Message: fmt.Sprintf("Cannot load profile file %s: %s", path, reason),
		Action:  "Set GATEWAY_CONFIG_FILE to a valid YAML file (see krita_config.example.yaml)",
	}
}

// ErrEngineUnreachable reports an engine that did not answer the startup probe.
func ErrEngineUnreachable(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEngineUnreachable,
		Message: fmt.Sprintf("Cannot reach engine at %s: %s", url, reason),
		Action:  "Start the webui with --api, or check ENGINE_URL",
	}
}

// ErrDirectoryUnwritable reports an output or data directory that cannot be created.
func ErrDirectoryUnwritable(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeDirectory,
		Message: fmt.Sprintf("Cannot create directory %s: %s", path, reason),
		Action:  "Check permissions or point sample_path somewhere writable",
	}
}

// IsConfigError unwraps err to a *ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode returns the ConfigError code of err, or "".
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
