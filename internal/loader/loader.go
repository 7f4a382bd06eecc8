// Package loader turns candidate skill roots into skill values:
// manifest parsing, document discovery, and classification.
package loader

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/skill"
	"github.com/skillscout/skillscout/internal/source"
)

// Loader parses skill bundles according to the document policy from the
// configuration (extension allow-lists, image size cap).
type Loader struct {
	loadDocuments bool
	textExts      map[string]bool
	imageExts     map[string]bool
	maxImageSize  int64
	logger        *slog.Logger
}

// New creates a loader from the service configuration.
func New(cfg *config.Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		loadDocuments: cfg.LoadSkillDocuments,
		textExts:      extSet(cfg.TextFileExtensions),
		imageExts:     extSet(cfg.AllowedImageExtensions),
		maxImageSize:  cfg.MaxImageSizeBytes,
		logger:        logger,
	}
}

func extSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return set
}

// LoadRoot loads a single candidate skill root. The returned skill
// inherits sourceID, scope, and tenantID from the source configuration.
func (l *Loader) LoadRoot(root, sourceID string, scope skill.Scope, tenantID string) (*skill.Skill, error) {
	manifestPath := filepath.Join(root, source.ManifestName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeManifestMalformed, err).WithSource(sourceID)
	}

	manifest, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}

	sk := &skill.Skill{
		Name:            manifest.Name,
		Description:     manifest.Description,
		Source:          sourceID,
		Scope:           scope,
		TenantID:        tenantID,
		PrimaryDocument: manifest.Body,
		Metadata:        manifest.Metadata,
	}

	if l.loadDocuments {
		sk.Documents, err = l.walkDocuments(root, sk.Name)
		if err != nil {
			return nil, err
		}
	} else {
		sk.Documents = []skill.Document{{
			Path:    source.ManifestName,
			Class:   skill.DocText,
			Size:    int64(len(data)),
			Content: string(data),
		}}
	}

	if err := sk.Validate(); err != nil {
		return nil, errors.Wrap(errors.CodeManifestMalformed, err).WithSource(sourceID)
	}

	return sk, nil
}

// walkDocuments walks the skill root depth-first in lexical order and
// classifies every regular file.
func (l *Loader) walkDocuments(root, skillName string) ([]skill.Document, error) {
	var docs []skill.Document

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		doc, keep := l.classify(p, rel, info.Size(), skillName)
		if keep {
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeSourceUnavailable, err)
	}

	return docs, nil
}

// classify assigns a document class by extension. Text files that fail
// UTF-8 decoding are downgraded to binary; oversized images are skipped.
func (l *Loader) classify(abs, rel string, size int64, skillName string) (skill.Document, bool) {
	ext := strings.ToLower(filepath.Ext(rel))

	switch {
	case l.textExts[ext]:
		data, err := os.ReadFile(abs)
		if err != nil || !utf8.Valid(data) {
			l.logger.Debug("text document downgraded to binary",
				slog.String("skill", skillName), slog.String("path", rel))
			return skill.Document{Path: rel, Class: skill.DocBinary, Size: size, Locator: abs}, true
		}
		return skill.Document{Path: rel, Class: skill.DocText, Size: size, Content: string(data)}, true

	case l.imageExts[ext]:
		if l.maxImageSize > 0 && size > l.maxImageSize {
			l.logger.Warn("image exceeds size limit, skipping",
				slog.String("skill", skillName),
				slog.String("path", rel),
				slog.Int64("size", size),
				slog.Int64("limit", l.maxImageSize))
			return skill.Document{}, false
		}
		return skill.Document{Path: rel, Class: skill.DocImage, Size: size, Locator: abs}, true

	default:
		return skill.Document{Path: rel, Class: skill.DocBinary, Size: size, Locator: abs}, true
	}
}

// LoadAll loads every candidate root and de-duplicates by name within
// the batch: a later skill replaces an earlier one with a warning.
// Per-root failures are logged, returned, and skipped; they never abort
// the batch.
func (l *Loader) LoadAll(roots []string, sourceID string, scope skill.Scope, tenantID string) ([]skill.Skill, []error) {
	byName := make(map[string]int)
	var skills []skill.Skill
	var errs []error

	for _, root := range roots {
		sk, err := l.LoadRoot(root, sourceID, scope, tenantID)
		if err != nil {
			l.logger.Warn("skipping skill root",
				slog.String("root", root),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(root), err))
			continue
		}

		if prev, dup := byName[sk.Name]; dup {
			l.logger.Warn("duplicate skill name in batch, later wins",
				slog.String("name", sk.Name),
				slog.String("source", sourceID))
			skills[prev] = *sk
			continue
		}

		byName[sk.Name] = len(skills)
		skills = append(skills, *sk)
	}

	return skills, errs
}
