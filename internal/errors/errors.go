// Package errors provides structured error values for Skillscout.
// Every error carries a stable string code so callers can branch on
// kind without string-matching messages.
package errors

import (
	"errors"
	"fmt"
)

// Error codes. These are part of the tool-facing contract: the MCP layer
// maps them to JSON-RPC error codes and the upload endpoint reports them
// verbatim in response payloads.
const (
	// CodeConfigInvalid indicates the configuration file failed to parse
	// or validate. Fatal at startup.
	CodeConfigInvalid = "config-invalid"

	// CodeSourceUnavailable indicates a skill source could not be acquired
	// (network failure, missing ref, missing path).
	CodeSourceUnavailable = "source-unavailable"

	// CodeSourceTimeout indicates a source fetch exceeded its deadline.
	CodeSourceTimeout = "source-timeout"

	// CodeManifestMalformed indicates a SKILL.md is missing its front
	// matter block or required keys. The skill is skipped.
	CodeManifestMalformed = "manifest-malformed"

	// CodeEmbedFailed indicates embedding generation failed; the index
	// batch that triggered it is abandoned without mutation.
	CodeEmbedFailed = "embed-failed"

	// CodeSkillNotFound indicates a tool call named an unindexed skill.
	CodeSkillNotFound = "skill-not-found"

	// CodeDocNotFound indicates a document path or glob matched nothing.
	CodeDocNotFound = "doc-not-found"

	// CodeUploadRejected indicates an upload archive was malformed or
	// contained no loadable skills. No index mutation occurred.
	CodeUploadRejected = "upload-rejected"
)

// SkillError is the structured error type for Skillscout.
type SkillError struct {
	// Code is one of the Code* constants.
	Code string

	// Message is the human-readable error message.
	Message string

	// Source identifies the skill source involved, if any.
	Source string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *SkillError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SkillError) Unwrap() error {
	return e.Cause
}

// Is matches SkillErrors by code so errors.Is works with sentinel values.
func (e *SkillError) Is(target error) bool {
	if t, ok := target.(*SkillError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithSource attaches the originating source identifier.
func (e *SkillError) WithSource(source string) *SkillError {
	e.Source = source
	return e
}

// New creates a SkillError with the given code and message.
func New(code, message string) *SkillError {
	return &SkillError{Code: code, Message: message}
}

// Newf creates a SkillError with a formatted message.
func Newf(code, format string, args ...any) *SkillError {
	return &SkillError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a SkillError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *SkillError {
	if err == nil {
		return nil
	}
	return &SkillError{Code: code, Message: err.Error(), Cause: err}
}

// CodeOf returns the code of err if it is (or wraps) a SkillError,
// or the empty string otherwise.
func CodeOf(err error) string {
	var se *SkillError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
