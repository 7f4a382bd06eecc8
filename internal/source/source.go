// Package source provides skill-source adapters. A source yields a local,
// read-only directory tree whose direct subdirectories are candidate skill
// roots (directories containing a SKILL.md manifest).
package source

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/skill"
)

// ManifestName is the per-skill manifest filename.
const ManifestName = "SKILL.md"

// Source is a skill ingestion origin.
type Source interface {
	// ID is the opaque identifier recorded on every skill from this
	// source and used for targeted replacement on refresh.
	ID() string

	// Scope and TenantID are inherited by skills loaded from this source.
	Scope() skill.Scope
	TenantID() string

	// Acquire makes the source contents available as a local directory
	// and returns its path. The directory must be treated as read-only.
	Acquire(ctx context.Context) (string, error)

	// Advanced reports whether the source's upstream content has changed
	// since the last Acquire. Local sources always return false; git
	// sources compare the archive ETag.
	Advanced(ctx context.Context) (bool, error)
}

// New builds a Source from its configuration record.
func New(sc config.SourceConfig, cacheDir string, logger *slog.Logger) (Source, error) {
	scope, err := skill.ParseScope(sc.Scope)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch sc.Type {
	case config.SourceLocal:
		return &LocalSource{path: sc.Path, scope: scope, tenantID: sc.TenantID}, nil
	case config.SourceGit:
		return NewGitSource(GitConfig{
			URL:      sc.URL,
			Ref:      sc.Ref,
			Subdir:   sc.Path,
			CacheDir: cacheDir,
			Scope:    scope,
			TenantID: sc.TenantID,
		}, logger), nil
	default:
		return nil, os.ErrInvalid
	}
}

// CandidateRoots returns the candidate skill roots under dir: direct
// subdirectories containing a manifest, plus dir itself when it carries
// one (upload archives may place the manifest at the top level).
// Results are sorted for deterministic load order within a source.
func CandidateRoots(dir string, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var roots []string
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		roots = append(roots, dir)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(sub, ManifestName)); err != nil {
			logger.Debug("skipping directory without manifest", slog.String("dir", sub))
			continue
		}
		roots = append(roots, sub)
	}

	sort.Strings(roots)
	return roots, nil
}
