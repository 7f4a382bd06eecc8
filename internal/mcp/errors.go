// Package mcp implements the Model Context Protocol server for Skillscout.
package mcp

import (
	"context"
	"errors"
	"fmt"

	skerrors "github.com/skillscout/skillscout/internal/errors"
)

// Custom MCP error codes for Skillscout.
const (
	// ErrCodeSkillNotFound indicates the named skill is not indexed.
	ErrCodeSkillNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeDocNotFound indicates a document path or glob matched nothing.
	ErrCodeDocNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors by error code.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var se *skerrors.SkillError
	if errors.As(err, &se) {
		return mapSkillError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapSkillError(se *skerrors.SkillError) *MCPError {
	switch se.Code {
	case skerrors.CodeSkillNotFound:
		return &MCPError{Code: ErrCodeSkillNotFound, Message: se.Message}
	case skerrors.CodeDocNotFound:
		return &MCPError{Code: ErrCodeDocNotFound, Message: se.Message}
	case skerrors.CodeEmbedFailed:
		return &MCPError{
			Code:    ErrCodeEmbeddingFailed,
			Message: "Embedding generation failed. Check that the embedding backend is reachable.",
		}
	case skerrors.CodeSourceTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: se.Message}
	case skerrors.CodeUploadRejected:
		return &MCPError{Code: ErrCodeInvalidParams, Message: se.Message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: se.Message}
	}
}
