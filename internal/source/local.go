package source

import (
	"context"
	"fmt"
	"os"

	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/skill"
)

// LocalSource serves skills from an absolute directory path.
type LocalSource struct {
	path     string
	scope    skill.Scope
	tenantID string
}

// NewLocalSource creates a local source for the given directory.
func NewLocalSource(path string, scope skill.Scope, tenantID string) *LocalSource {
	return &LocalSource{path: path, scope: scope, tenantID: tenantID}
}

// ID returns the directory path.
func (s *LocalSource) ID() string { return s.path }

// Scope returns the inherited skill scope.
func (s *LocalSource) Scope() skill.Scope { return s.scope }

// TenantID returns the inherited tenant.
func (s *LocalSource) TenantID() string { return s.tenantID }

// Acquire verifies the directory exists and returns it.
func (s *LocalSource) Acquire(_ context.Context) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable,
			fmt.Errorf("local source %s: %w", s.path, err)).WithSource(s.path)
	}
	if !info.IsDir() {
		return "", errors.Newf(errors.CodeSourceUnavailable,
			"local source %s is not a directory", s.path).WithSource(s.path)
	}
	return s.path, nil
}

// Advanced always returns false; local sources are not refresh-checked.
func (s *LocalSource) Advanced(_ context.Context) (bool, error) {
	return false, nil
}
