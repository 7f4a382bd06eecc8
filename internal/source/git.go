package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/skill"
)

// maxArchiveSize caps downloaded source archives.
const maxArchiveSize = 100 * 1024 * 1024

// GitConfig configures a git-archive source.
type GitConfig struct {
	// URL is the repository URL (GitHub-style archive export).
	URL string

	// Ref is an optional branch, tag, or commit. Empty tries the
	// default branches (main, then master).
	Ref string

	// Subdir narrows the source to a subdirectory of the repository.
	Subdir string

	// CacheDir is the content-addressed archive cache root.
	CacheDir string

	Scope    skill.Scope
	TenantID string

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// GitSource fetches a repository snapshot as a zip archive and caches the
// extracted tree keyed by (url, ref). A cache hit skips the network.
type GitSource struct {
	cfg    GitConfig
	client *http.Client
	logger *slog.Logger

	mu          sync.Mutex
	resolvedURL string // archive URL that last succeeded
}

// NewGitSource creates a git-archive source.
func NewGitSource(cfg GitConfig, logger *slog.Logger) *GitSource {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitSource{cfg: cfg, client: client, logger: logger}
}

// ID identifies the source: URL plus ref and subdirectory when set.
func (s *GitSource) ID() string {
	id := s.cfg.URL
	if s.cfg.Ref != "" {
		id += "@" + s.cfg.Ref
	}
	if s.cfg.Subdir != "" {
		id += "#" + s.cfg.Subdir
	}
	return id
}

// Scope returns the inherited skill scope.
func (s *GitSource) Scope() skill.Scope { return s.cfg.Scope }

// TenantID returns the inherited tenant.
func (s *GitSource) TenantID() string { return s.cfg.TenantID }

// cacheBase returns the content-addressed cache directory for (url, ref).
func (s *GitSource) cacheBase() string {
	h := sha256.Sum256([]byte(s.cfg.URL + "\x00" + s.cfg.Ref))
	return filepath.Join(s.cfg.CacheDir, "archives", hex.EncodeToString(h[:])[:16])
}

// Acquire downloads (or reuses) the repository archive and returns the
// extracted directory, narrowed to the configured subdirectory.
func (s *GitSource) Acquire(ctx context.Context) (string, error) {
	base := s.cacheBase()
	srcDir := filepath.Join(base, "src")
	marker := filepath.Join(base, ".complete")

	if _, err := os.Stat(marker); err == nil {
		s.logger.Debug("archive cache hit", slog.String("source", s.ID()))
		return s.withSubdir(srcDir)
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}

	// Concurrent processes extracting the same archive serialize here.
	lock := flock.New(base + ".lock")
	if err := lock.Lock(); err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished while we waited.
	if _, err := os.Stat(marker); err == nil {
		return s.withSubdir(srcDir)
	}

	archiveURL, err := s.resolveArchiveURL(ctx)
	if err != nil {
		return "", err
	}

	var data []byte
	var etag string
	err = errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		var ferr error
		data, etag, ferr = s.download(ctx, archiveURL)
		return ferr
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(errors.CodeSourceTimeout, ctx.Err()).WithSource(s.ID())
		}
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}

	if err := os.RemoveAll(srcDir); err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}
	if err := ExtractZip(data, srcDir, true); err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}

	_ = os.WriteFile(filepath.Join(base, ".etag"), []byte(etag), 0o644)
	if err := os.WriteFile(marker, []byte(archiveURL), 0o644); err != nil {
		return "", errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}

	s.mu.Lock()
	s.resolvedURL = archiveURL
	s.mu.Unlock()

	s.logger.Info("archive fetched",
		slog.String("source", s.ID()),
		slog.Int("bytes", len(data)))

	return s.withSubdir(srcDir)
}

// Advanced checks whether the upstream archive changed since the last
// Acquire by comparing ETags. On change the cache completion marker is
// removed so the next Acquire re-downloads.
func (s *GitSource) Advanced(ctx context.Context) (bool, error) {
	base := s.cacheBase()
	stored, err := os.ReadFile(filepath.Join(base, ".etag"))
	if err != nil || len(stored) == 0 {
		// Never acquired (or no ETag support); nothing to compare.
		return false, nil
	}

	archiveURL, err := s.resolveArchiveURL(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, archiveURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(s.ID())
	}
	defer func() { _ = resp.Body.Close() }()

	current := resp.Header.Get("ETag")
	if current == "" || current == string(stored) {
		return false, nil
	}

	_ = os.Remove(filepath.Join(base, ".complete"))
	return true, nil
}

// resolveArchiveURL probes candidate archive URLs (ref as branch, tag, or
// bare commit; default branches when no ref is set) and returns the first
// that answers 200.
func (s *GitSource) resolveArchiveURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.resolvedURL != "" {
		url := s.resolvedURL
		s.mu.Unlock()
		return url, nil
	}
	s.mu.Unlock()

	repo := strings.TrimSuffix(strings.TrimRight(s.cfg.URL, "/"), ".git")

	var candidates []string
	if s.cfg.Ref != "" {
		candidates = []string{
			fmt.Sprintf("%s/archive/refs/heads/%s.zip", repo, s.cfg.Ref),
			fmt.Sprintf("%s/archive/refs/tags/%s.zip", repo, s.cfg.Ref),
			fmt.Sprintf("%s/archive/%s.zip", repo, s.cfg.Ref),
		}
	} else {
		candidates = []string{
			fmt.Sprintf("%s/archive/refs/heads/main.zip", repo),
			fmt.Sprintf("%s/archive/refs/heads/master.zip", repo),
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			return "", err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			s.mu.Lock()
			s.resolvedURL = candidate
			s.mu.Unlock()
			return candidate, nil
		}
		lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, candidate)
	}

	if s.cfg.Ref != "" {
		return "", errors.Newf(errors.CodeSourceUnavailable,
			"ref %q not found for %s", s.cfg.Ref, s.cfg.URL).WithSource(s.ID())
	}
	return "", errors.Wrap(errors.CodeSourceUnavailable,
		fmt.Errorf("no default branch archive for %s: %w", s.cfg.URL, lastErr)).WithSource(s.ID())
}

// download fetches the archive with a size limit and returns its bytes
// and ETag.
func (s *GitSource) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "skillscout/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxArchiveSize {
		return nil, "", fmt.Errorf("archive exceeds %d bytes", maxArchiveSize)
	}

	return data, resp.Header.Get("ETag"), nil
}

// withSubdir narrows the extracted tree to the configured subdirectory.
func (s *GitSource) withSubdir(srcDir string) (string, error) {
	if s.cfg.Subdir == "" {
		return srcDir, nil
	}
	dir := filepath.Join(srcDir, filepath.FromSlash(s.cfg.Subdir))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errors.Newf(errors.CodeSourceUnavailable,
			"subdirectory %q not found in %s", s.cfg.Subdir, s.cfg.URL).WithSource(s.ID())
	}
	return dir, nil
}
