package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skillscout/skillscout/internal/config"
	"github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/index"
	"github.com/skillscout/skillscout/internal/loader"
	"github.com/skillscout/skillscout/internal/skill"
	"github.com/skillscout/skillscout/internal/source"
)

// Coordinator drives ingestion: it loads configured sources in the
// background at startup, accepts uploads, refreshes advanced git sources
// on a timer, and shuts all of that down on Stop. The server answers
// requests from the moment Start returns; loading progress is visible
// through State.
type Coordinator struct {
	cfg     *config.Config
	sources []source.Source
	loader  *loader.Loader
	index   *index.Index
	state   *LoadState
	logger  *slog.Logger

	// mutMu serializes index mutations from uploads and refresh so two
	// writers never interleave their remove/add pairs.
	mutMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a coordinator from the configuration. Source construction
// errors are fatal: they indicate invalid configuration.
func New(cfg *config.Config, idx *index.Index, logger *slog.Logger) (*Coordinator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sources := make([]source.Source, 0, len(cfg.SkillSources))
	for i, sc := range cfg.SkillSources {
		src, err := source.New(sc, cfg.CacheDir, logger)
		if err != nil {
			return nil, errors.Newf(errors.CodeConfigInvalid, "skill_sources[%d]: %v", i, err)
		}
		sources = append(sources, src)
	}

	return &Coordinator{
		cfg:     cfg,
		sources: sources,
		loader:  loader.New(cfg, logger),
		index:   idx,
		state:   NewLoadState(len(sources)),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}, nil
}

// State exposes loading progress for the health endpoint and tools.
func (c *Coordinator) State() *LoadState { return c.state }

// Index returns the search index the coordinator feeds.
func (c *Coordinator) Index() *index.Index { return c.index }

// Start launches background ingestion of all configured sources and,
// when auto-update is enabled, the periodic refresh loop. It returns
// immediately; callers serve requests while sources load.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		g, gctx := errgroup.WithContext(ctx)
		for _, src := range c.sources {
			src := src
			g.Go(func() error {
				c.ingestSource(gctx, src)
				return nil
			})
		}
		_ = g.Wait()

		snap := c.state.Snapshot()
		c.logger.Info("initial load complete",
			slog.Int("sources", snap.SourcesTotal),
			slog.Int("skills", snap.SkillsLoaded),
			slog.Int("errors", len(snap.Errors)))
	}()

	if c.cfg.AutoUpdateEnabled && len(c.sources) > 0 {
		c.wg.Add(1)
		go c.refreshLoop(ctx)
	}
}

// ingestSource acquires, loads, and indexes one source under the
// configured per-source timeout. Failures are recorded in the load
// state and leave the index untouched.
func (c *Coordinator) ingestSource(ctx context.Context, src source.Source) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.SourceTimeout())
	defer cancel()

	skills, rootErrs, err := c.loadSource(tctx, src)
	if err != nil {
		err = timeoutToCode(tctx, err)
		c.logger.Error("source load failed",
			slog.String("source", src.ID()),
			slog.String("error", err.Error()))
		c.state.SourceFailed(src.ID(), err)
		return
	}
	c.state.RootErrors(src.ID(), rootErrs)

	before := c.index.Len()
	if err := c.index.AddSkills(ctx, skills); err != nil {
		c.logger.Error("source indexing failed",
			slog.String("source", src.ID()),
			slog.String("error", err.Error()))
		c.state.SourceFailed(src.ID(), err)
		return
	}

	c.state.SourceDone(c.index.Len() - before)
	c.logger.Info("source loaded",
		slog.String("source", src.ID()),
		slog.Int("skills", len(skills)))
}

// loadSource acquires the source directory and parses its skill roots.
// Per-root parse failures come back separately; they do not fail the
// source.
func (c *Coordinator) loadSource(ctx context.Context, src source.Source) ([]skill.Skill, []error, error) {
	dir, err := src.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	roots, err := source.CandidateRoots(dir, c.logger)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeSourceUnavailable, err).WithSource(src.ID())
	}

	skills, rootErrs := c.loader.LoadAll(roots, src.ID(), src.Scope(), src.TenantID())
	return skills, rootErrs, nil
}

// UploadResult reports what an upload added and any per-root problems.
type UploadResult struct {
	SkillsAdded []string `json:"skills_added"`
	Errors      []string `json:"errors,omitempty"`
}

// Upload ingests a zip archive of skill bundles. The archive is staged
// under a temporary directory, parsed with the same loader as configured
// sources, and added to the index. Uploads are serialized; a rejected or
// failed upload leaves the index unchanged and the staging directory is
// always discarded.
func (c *Coordinator) Upload(ctx context.Context, archive []byte, scopeStr, tenantID string) (*UploadResult, error) {
	scope, err := skill.ParseScope(scopeStr)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUploadRejected, err)
	}
	if scope == skill.ScopeTenant && tenantID == "" {
		return nil, errors.New(errors.CodeUploadRejected, "tenant scope requires tenant_id")
	}
	if scope == skill.ScopeGlobal && tenantID != "" {
		return nil, errors.New(errors.CodeUploadRejected, "global scope must not set tenant_id")
	}
	if len(archive) == 0 {
		return nil, errors.New(errors.CodeUploadRejected, "empty archive")
	}

	c.mutMu.Lock()
	defer c.mutMu.Unlock()

	uploadID := uuid.NewString()
	staging := filepath.Join(os.TempDir(), "skillscout-upload-"+uploadID)
	defer func() { _ = os.RemoveAll(staging) }()

	if err := source.ExtractZip(archive, staging, true); err != nil {
		return nil, errors.Wrap(errors.CodeUploadRejected, fmt.Errorf("invalid archive: %w", err))
	}

	roots, err := source.CandidateRoots(staging, c.logger)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUploadRejected, err)
	}
	if len(roots) == 0 {
		return nil, errors.New(errors.CodeUploadRejected, "archive contains no skill manifests")
	}

	sourceID := "upload:" + uploadID[:8]
	skills, rootErrs := c.loader.LoadAll(roots, sourceID, scope, tenantID)
	if len(skills) == 0 {
		return nil, errors.New(errors.CodeUploadRejected, "archive contains no loadable skills")
	}

	before := c.index.Len()
	if err := c.index.AddSkills(ctx, skills); err != nil {
		return nil, err
	}
	c.state.SkillsAdded(c.index.Len() - before)

	names := make([]string, len(skills))
	for i, sk := range skills {
		names[i] = sk.Name
	}
	var errStrs []string
	for _, e := range rootErrs {
		errStrs = append(errStrs, e.Error())
	}

	c.logger.Info("upload ingested",
		slog.String("source", sourceID),
		slog.String("scope", string(scope)),
		slog.Int("skills", len(names)),
		slog.Int("root_errors", len(errStrs)))

	return &UploadResult{SkillsAdded: names, Errors: errStrs}, nil
}

// refreshLoop polls git sources on the configured interval and replaces
// the index rows of any source whose upstream content advanced.
func (c *Coordinator) refreshLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.UpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refreshOnce(ctx)
		}
	}
}

// refreshOnce checks every source for upstream changes. Per-source
// failures are logged and skipped so one broken source cannot stall the
// rest.
func (c *Coordinator) refreshOnce(ctx context.Context) {
	for _, src := range c.sources {
		advanced, err := src.Advanced(ctx)
		if err != nil {
			c.logger.Warn("refresh check failed",
				slog.String("source", src.ID()),
				slog.String("error", err.Error()))
			continue
		}
		if !advanced {
			continue
		}

		c.logger.Info("source advanced, reloading", slog.String("source", src.ID()))
		c.refreshSource(ctx, src)
	}
}

func (c *Coordinator) refreshSource(ctx context.Context, src source.Source) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.SourceTimeout())
	defer cancel()

	skills, _, err := c.loadSource(tctx, src)
	if err != nil {
		c.logger.Error("refresh load failed",
			slog.String("source", src.ID()),
			slog.String("error", timeoutToCode(tctx, err).Error()))
		return
	}

	c.mutMu.Lock()
	defer c.mutMu.Unlock()

	before := c.index.Len()
	if err := c.index.ReplaceSource(ctx, src.ID(), skills); err != nil {
		c.logger.Error("refresh indexing failed",
			slog.String("source", src.ID()),
			slog.String("error", err.Error()))
		return
	}
	c.state.SkillsAdded(c.index.Len() - before)
}

// Stop halts the refresh loop and waits for in-flight background work.
// Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// timeoutToCode maps a deadline expiry to the source-timeout code;
// other errors pass through unchanged.
func timeoutToCode(ctx context.Context, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) && errors.CodeOf(err) != errors.CodeSourceTimeout {
		return errors.Wrap(errors.CodeSourceTimeout, err)
	}
	return err
}
