package source

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/skill"
)

// zipBytes builds an in-memory zip from path -> content.
func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractZip(t *testing.T) {
	t.Run("strips shared root", func(t *testing.T) {
		data := zipBytes(t, map[string]string{
			"repo-main/SKILL.md":    "manifest",
			"repo-main/docs/use.md": "docs",
		})
		dest := t.TempDir()
		require.NoError(t, ExtractZip(data, dest, true))

		got, err := os.ReadFile(filepath.Join(dest, "SKILL.md"))
		require.NoError(t, err)
		assert.Equal(t, "manifest", string(got))

		_, err = os.Stat(filepath.Join(dest, "docs", "use.md"))
		assert.NoError(t, err)
	})

	t.Run("keeps mixed top-level entries", func(t *testing.T) {
		data := zipBytes(t, map[string]string{
			"a/SKILL.md": "a",
			"b/SKILL.md": "b",
		})
		dest := t.TempDir()
		require.NoError(t, ExtractZip(data, dest, true))

		_, err := os.Stat(filepath.Join(dest, "a", "SKILL.md"))
		assert.NoError(t, err)
		_, err = os.Stat(filepath.Join(dest, "b", "SKILL.md"))
		assert.NoError(t, err)
	})

	t.Run("rejects traversal entries", func(t *testing.T) {
		data := zipBytes(t, map[string]string{
			"../escape.txt": "bad",
		})
		assert.Error(t, ExtractZip(data, t.TempDir(), false))
	})

	t.Run("rejects non-zip data", func(t *testing.T) {
		assert.Error(t, ExtractZip([]byte("not a zip"), t.TempDir(), true))
	})
}

func TestCandidateRoots(t *testing.T) {
	dir := t.TempDir()

	mkRoot := func(name string, withManifest bool) {
		sub := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(sub, 0o755))
		if withManifest {
			require.NoError(t, os.WriteFile(filepath.Join(sub, ManifestName), []byte("m"), 0o644))
		}
	}
	mkRoot("beta", true)
	mkRoot("alpha", true)
	mkRoot("no-manifest", false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0o644))

	roots, err := CandidateRoots(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "alpha"),
		filepath.Join(dir, "beta"),
	}, roots)

	t.Run("top-level manifest counts as a root", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("m"), 0o644))
		roots, err := CandidateRoots(dir, nil)
		require.NoError(t, err)
		assert.Contains(t, roots, dir)
	})
}

func TestLocalSource(t *testing.T) {
	ctx := context.Background()

	t.Run("existing directory", func(t *testing.T) {
		dir := t.TempDir()
		src, err := New(config.SourceConfig{Type: config.SourceLocal, Path: dir}, "", nil)
		require.NoError(t, err)

		got, err := src.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, dir, got)
		assert.Equal(t, skill.ScopeGlobal, src.Scope())

		advanced, err := src.Advanced(ctx)
		require.NoError(t, err)
		assert.False(t, advanced)
	})

	t.Run("missing directory", func(t *testing.T) {
		src, err := New(config.SourceConfig{
			Type: config.SourceLocal,
			Path: filepath.Join(t.TempDir(), "nope"),
		}, "", nil)
		require.NoError(t, err)

		_, err = src.Acquire(ctx)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
	})
}

// archiveServer serves a GitHub-style archive endpoint for one repo.
func archiveServer(t *testing.T, archive []byte, etag *atomic.Value, downloads *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/skills/archive/refs/heads/main.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", etag.Load().(string))
		if r.Method == http.MethodHead {
			return
		}
		downloads.Add(1)
		_, _ = w.Write(archive)
	}))
}

func TestGitSource(t *testing.T) {
	ctx := context.Background()

	archive := zipBytes(t, map[string]string{
		"skills-main/pdf-tools/SKILL.md": "---\nname: pdf-tools\ndescription: pdfs\n---\n",
	})

	var etag atomic.Value
	etag.Store(`"v1"`)
	var downloads atomic.Int64

	ts := archiveServer(t, archive, &etag, &downloads)
	defer ts.Close()

	src := NewGitSource(GitConfig{
		URL:      ts.URL + "/acme/skills",
		CacheDir: t.TempDir(),
		Scope:    skill.ScopeGlobal,
		Client:   ts.Client(),
	}, nil)

	t.Run("acquire downloads and extracts", func(t *testing.T) {
		dir, err := src.Acquire(ctx)
		require.NoError(t, err)

		roots, err := CandidateRoots(dir, nil)
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, int64(1), downloads.Load())
	})

	t.Run("second acquire hits the cache", func(t *testing.T) {
		_, err := src.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), downloads.Load())
	})

	t.Run("advanced false while etag unchanged", func(t *testing.T) {
		advanced, err := src.Advanced(ctx)
		require.NoError(t, err)
		assert.False(t, advanced)
	})

	t.Run("advanced true after etag change, next acquire re-downloads", func(t *testing.T) {
		etag.Store(`"v2"`)
		advanced, err := src.Advanced(ctx)
		require.NoError(t, err)
		assert.True(t, advanced)

		_, err = src.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), downloads.Load())
	})
}

func TestGitSource_MissingRef(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	src := NewGitSource(GitConfig{
		URL:      ts.URL + "/acme/skills",
		Ref:      "no-such-branch",
		CacheDir: t.TempDir(),
		Client:   ts.Client(),
	}, nil)

	_, err := src.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeSourceUnavailable))
}

func TestGitSource_Subdir(t *testing.T) {
	archive := zipBytes(t, map[string]string{
		"skills-main/bundles/alpha/SKILL.md": "---\nname: alpha\ndescription: a\n---\n",
		"skills-main/README.md":              "top-level readme",
	})

	var etag atomic.Value
	etag.Store(`"v1"`)
	var downloads atomic.Int64
	ts := archiveServer(t, archive, &etag, &downloads)
	defer ts.Close()

	src := NewGitSource(GitConfig{
		URL:      ts.URL + "/acme/skills",
		Subdir:   "bundles",
		CacheDir: t.TempDir(),
		Client:   ts.Client(),
	}, nil)

	dir, err := src.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bundles", filepath.Base(dir))

	roots, err := CandidateRoots(dir, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "alpha", filepath.Base(roots[0]))
}
