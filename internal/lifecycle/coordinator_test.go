package lifecycle

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/embed"
	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/index"
)

func writeSkillDir(t *testing.T, base, name, description string) {
	t.Helper()
	root := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(root, 0o755))
	manifest := "---\nname: " + name + "\ndescription: " + description + "\n---\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "SKILL.md"), []byte(manifest), 0o644))
}

func testConfig(t *testing.T, sources ...config.SourceConfig) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.EmbeddingModel = "static"
	cfg.CacheDir = t.TempDir()
	cfg.SkillSources = sources
	require.NoError(t, cfg.Validate())
	return cfg
}

func newCoordinator(t *testing.T, cfg *config.Config) *Coordinator {
	t.Helper()
	idx := index.New(embed.NewProvider(cfg.EmbeddingModel, "", nil), nil)
	c, err := New(cfg, idx, nil)
	require.NoError(t, err)
	return c
}

func waitForComplete(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for !c.State().Complete() {
		select {
		case <-deadline:
			t.Fatal("loading did not complete")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCoordinator_StagedStartup(t *testing.T) {
	dir := t.TempDir()
	writeSkillDir(t, dir, "alpha", "first local skill")
	writeSkillDir(t, dir, "beta", "second local skill")

	cfg := testConfig(t, config.SourceConfig{Type: config.SourceLocal, Path: dir})
	c := newCoordinator(t, cfg)
	defer c.Stop()

	c.Start(context.Background())
	waitForComplete(t, c)

	snap := c.State().Snapshot()
	assert.Equal(t, 1, snap.SourcesTotal)
	assert.Equal(t, 1, snap.SourcesDone)
	assert.Equal(t, 2, snap.SkillsLoaded)
	assert.Empty(t, snap.Errors)
	assert.True(t, snap.IsComplete)
	assert.Equal(t, 2, c.Index().Len())
}

func TestCoordinator_FailedSourceIsRecorded(t *testing.T) {
	good := t.TempDir()
	writeSkillDir(t, good, "alpha", "loadable skill")

	cfg := testConfig(t,
		config.SourceConfig{Type: config.SourceLocal, Path: good},
		config.SourceConfig{Type: config.SourceLocal, Path: filepath.Join(t.TempDir(), "missing")},
	)
	c := newCoordinator(t, cfg)
	defer c.Stop()

	c.Start(context.Background())
	waitForComplete(t, c)

	snap := c.State().Snapshot()
	assert.Equal(t, 2, snap.SourcesDone)
	assert.Equal(t, 1, snap.SkillsLoaded)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0].Message, "source-unavailable")
	assert.Equal(t, 1, c.Index().Len())
}

func TestCoordinator_SourceTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	cfg := testConfig(t, config.SourceConfig{Type: config.SourceGit, URL: ts.URL + "/acme/skills"})
	cfg.SourceTimeoutSeconds = 1
	c := newCoordinator(t, cfg)
	defer c.Stop()

	c.Start(context.Background())
	waitForComplete(t, c)

	snap := c.State().Snapshot()
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0].Message, "source-timeout")
	assert.Zero(t, c.Index().Len())
}

func TestCoordinator_RootErrorsSurfaceInState(t *testing.T) {
	dir := t.TempDir()
	writeSkillDir(t, dir, "alpha", "loads fine")

	broken := filepath.Join(dir, "broken")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, "SKILL.md"), []byte("no front matter"), 0o644))

	cfg := testConfig(t, config.SourceConfig{Type: config.SourceLocal, Path: dir})
	c := newCoordinator(t, cfg)
	defer c.Stop()

	c.Start(context.Background())
	waitForComplete(t, c)

	snap := c.State().Snapshot()
	assert.Equal(t, 1, snap.SourcesDone)
	assert.Equal(t, 1, snap.SkillsLoaded)
	assert.True(t, snap.IsComplete)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0].Message, "broken")
	assert.Contains(t, snap.Errors[0].Message, "manifest-malformed")
}

func TestCoordinator_PartialServingMidLoad(t *testing.T) {
	slowArchive := uploadZip(t, map[string]string{
		"skills-main/slow-skill/SKILL.md": "---\nname: slow-skill\ndescription: arrives late\n---\n",
	})

	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		if r.URL.Path != "/acme/skills/archive/refs/heads/main.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write(slowArchive)
	}))
	defer ts.Close()

	fast := t.TempDir()
	writeSkillDir(t, fast, "fast-skill", "available immediately")

	cfg := testConfig(t,
		config.SourceConfig{Type: config.SourceLocal, Path: fast},
		config.SourceConfig{Type: config.SourceGit, URL: ts.URL + "/acme/skills"},
	)
	c := newCoordinator(t, cfg)
	defer c.Stop()

	ctx := context.Background()
	c.Start(ctx)

	deadline := time.After(10 * time.Second)
	for c.Index().Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("fast source did not load")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The slow source is still blocked: queries serve the fast source
	// only, and loading reads as in progress.
	require.False(t, c.State().Complete())
	results, err := c.Index().Search(ctx, "available immediately", 5, "", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fast-skill", results[0].Skill.Name)

	close(release)
	waitForComplete(t, c)

	_, ok := c.Index().Get("slow-skill")
	assert.True(t, ok)
	assert.Equal(t, 2, c.State().Snapshot().SkillsLoaded)
}

func TestCoordinator_RefreshReplacesAdvancedSource(t *testing.T) {
	var archive atomic.Value
	archive.Store(uploadZip(t, map[string]string{
		"skills-main/alpha/SKILL.md": "---\nname: alpha\ndescription: first revision\n---\n",
	}))
	var etag atomic.Value
	etag.Store(`"v1"`)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme/skills/archive/refs/heads/main.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", etag.Load().(string))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(archive.Load().([]byte))
	}))
	defer ts.Close()

	cfg := testConfig(t, config.SourceConfig{Type: config.SourceGit, URL: ts.URL + "/acme/skills"})
	c := newCoordinator(t, cfg)
	defer c.Stop()

	ctx := context.Background()
	c.Start(ctx)
	waitForComplete(t, c)

	_, ok := c.Index().Get("alpha")
	require.True(t, ok)

	// Upstream advances: alpha is gone, beta replaces it.
	archive.Store(uploadZip(t, map[string]string{
		"skills-main/beta/SKILL.md": "---\nname: beta\ndescription: second revision\n---\n",
	}))
	etag.Store(`"v2"`)

	c.refreshOnce(ctx)

	assert.Equal(t, 1, c.Index().Len())
	_, ok = c.Index().Get("alpha")
	assert.False(t, ok)
	_, ok = c.Index().Get("beta")
	assert.True(t, ok)
	assert.Equal(t, 1, c.State().Snapshot().SkillsLoaded)

	// Unchanged upstream is left alone.
	c.refreshOnce(ctx)
	assert.Equal(t, 1, c.Index().Len())
	_, ok = c.Index().Get("beta")
	assert.True(t, ok)
}

func uploadZip(t *testing.T, files map[string]string) []byte {
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

func TestCoordinator_Upload(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, testConfig(t))

	t.Run("global upload is indexed", func(t *testing.T) {
		archive := uploadZip(t, map[string]string{
			"pdf-tools/SKILL.md": "---\nname: pdf-tools\ndescription: pdfs\n---\n",
			"pdf-tools/run.py":   "print('go')\n",
		})

		result, err := c.Upload(ctx, archive, "global", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"pdf-tools"}, result.SkillsAdded)
		assert.Equal(t, 1, c.Index().Len())
		assert.Equal(t, 1, c.State().Snapshot().SkillsLoaded)
	})

	t.Run("tenant upload keeps scope", func(t *testing.T) {
		archive := uploadZip(t, map[string]string{
			"acme-billing/SKILL.md": "---\nname: acme-billing\ndescription: invoices\n---\n",
		})

		result, err := c.Upload(ctx, archive, "tenant", "acme")
		require.NoError(t, err)
		assert.Equal(t, []string{"acme-billing"}, result.SkillsAdded)

		sk, ok := c.Index().Get("acme-billing")
		require.True(t, ok)
		assert.Equal(t, "acme", sk.TenantID)
	})

	t.Run("manifest at archive root", func(t *testing.T) {
		archive := uploadZip(t, map[string]string{
			"SKILL.md": "---\nname: rooted\ndescription: manifest at the top level\n---\n",
		})

		result, err := c.Upload(ctx, archive, "", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"rooted"}, result.SkillsAdded)
	})

	t.Run("broken root is reported, good root still lands", func(t *testing.T) {
		archive := uploadZip(t, map[string]string{
			"good/SKILL.md":   "---\nname: good\ndescription: loads fine\n---\n",
			"broken/SKILL.md": "no front matter here",
		})

		result, err := c.Upload(ctx, archive, "global", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, result.SkillsAdded)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "broken")
	})

	rejections := []struct {
		name    string
		archive []byte
		scope   string
		tenant  string
	}{
		{"empty body", nil, "global", ""},
		{"not a zip", []byte("plain text"), "global", ""},
		{"no manifests", uploadZip(t, map[string]string{"readme.txt": "x"}), "global", ""},
		{"malformed manifest only", uploadZip(t, map[string]string{
			"broken/SKILL.md": "no front matter here",
		}), "global", ""},
		{"tenant scope without tenant", uploadZip(t, map[string]string{
			"a/SKILL.md": "---\nname: a\ndescription: b\n---\n",
		}), "tenant", ""},
		{"unknown scope", uploadZip(t, map[string]string{
			"a/SKILL.md": "---\nname: a\ndescription: b\n---\n",
		}), "secret", ""},
	}

	for _, tt := range rejections {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			before := c.Index().Len()
			_, err := c.Upload(ctx, tt.archive, tt.scope, tt.tenant)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeUploadRejected),
				"want upload-rejected, got %v", err)
			assert.Equal(t, before, c.Index().Len())
		})
	}
}

func TestCoordinator_UploadReplacesByName(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, testConfig(t))

	first := uploadZip(t, map[string]string{
		"tool/SKILL.md": "---\nname: tool\ndescription: version one\n---\n",
	})
	_, err := c.Upload(ctx, first, "global", "")
	require.NoError(t, err)

	second := uploadZip(t, map[string]string{
		"tool/SKILL.md": "---\nname: tool\ndescription: version two\n---\n",
	})
	_, err = c.Upload(ctx, second, "global", "")
	require.NoError(t, err)

	assert.Equal(t, 1, c.Index().Len())
	assert.Equal(t, 1, c.Index().Rows())
	sk, ok := c.Index().Get("tool")
	require.True(t, ok)
	assert.Equal(t, "version two", sk.Description)
	assert.Equal(t, 1, c.State().Snapshot().SkillsLoaded)
}

func TestCoordinator_ZeroSourcesCompletesImmediately(t *testing.T) {
	c := newCoordinator(t, testConfig(t))
	defer c.Stop()

	c.Start(context.Background())
	waitForComplete(t, c)

	snap := c.State().Snapshot()
	assert.True(t, snap.IsComplete)
	assert.Zero(t, snap.SourcesTotal)
}
