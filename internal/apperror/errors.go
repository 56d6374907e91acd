// Package apperror holds the error types shared by the adapters, the
// checkout orchestrator and the webhook reconciler.
package apperror

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a required secret or identifier that is not set.
type ConfigurationError struct {
	Name string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Name)
}

// VerificationError reports a webhook payload whose signature could not be verified.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "webhook verification failed: " + e.Reason
}

// ProcessorError is a rejected call to the payment processor.
type ProcessorError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProcessorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment processor error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("payment processor error (status %d): %s", e.Status, e.Message)
}

// ProviderError is a non-success response from the mailing-list provider.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: status %d %s", e.Provider, e.Status, e.Message)
}

// StoreError wraps a profile store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("profile store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsVerification reports whether err is or wraps a VerificationError.
func IsVerification(err error) bool {
	var target *VerificationError
	return errors.As(err, &target)
}
