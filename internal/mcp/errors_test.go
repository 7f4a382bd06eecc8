package mcp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	skerrors "github.com/skillscout/skillscout/internal/errors"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"skill not found", skerrors.New(skerrors.CodeSkillNotFound, "x"), ErrCodeSkillNotFound},
		{"doc not found", skerrors.New(skerrors.CodeDocNotFound, "x"), ErrCodeDocNotFound},
		{"embed failed", skerrors.New(skerrors.CodeEmbedFailed, "x"), ErrCodeEmbeddingFailed},
		{"source timeout", skerrors.New(skerrors.CodeSourceTimeout, "x"), ErrCodeTimeout},
		{"upload rejected", skerrors.New(skerrors.CodeUploadRejected, "x"), ErrCodeInvalidParams},
		{"other skill error", skerrors.New(skerrors.CodeSourceUnavailable, "x"), ErrCodeInternalError},
		{"wrapped skill error", fmt.Errorf("outer: %w", skerrors.New(skerrors.CodeDocNotFound, "x")), ErrCodeDocNotFound},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"plain error", fmt.Errorf("boom"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			me := MapError(tt.err)
			assert.Equal(t, tt.code, me.Code)
		})
	}

	assert.Nil(t, MapError(nil))
}

func TestMCPError_Error(t *testing.T) {
	me := NewInvalidParamsError("query is required")
	assert.Equal(t, "MCP error -32602: query is required", me.Error())
}
