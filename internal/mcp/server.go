package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/skillscout/skillscout/internal/config"
	skerrors "github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/index"
	"github.com/skillscout/skillscout/internal/lifecycle"
	"github.com/skillscout/skillscout/internal/skill"
	"github.com/skillscout/skillscout/pkg/version"
)

// Clamp bounds for the top_k parameter.
const (
	minTopK = 1
	maxTopK = 20
)

// Server is the MCP server for Skillscout. It exposes the skill index
// to AI clients over stdio and streamable HTTP.
type Server struct {
	mcp    *mcp.Server
	index  *index.Index
	state  *lifecycle.LoadState
	config *config.Config
	logger *slog.Logger
}

// FindSkillsInput defines the input schema for find_helpful_skills.
type FindSkillsInput struct {
	TaskDescription string   `json:"task_description" jsonschema:"the task to find skills for"`
	TopK            int      `json:"top_k,omitempty" jsonschema:"maximum number of skills to return, clamped to 1-20"`
	TenantID        string   `json:"tenant_id,omitempty" jsonschema:"tenant identifier for tenant-scoped skills"`
	AllowedSkills   []string `json:"allowed_skill_names,omitempty" jsonschema:"tenant-scoped skill names the caller may see"`
	ListDocuments   bool     `json:"list_documents,omitempty" jsonschema:"include each skill's document paths in the result"`
}

// SkillResult is one find_helpful_skills hit.
type SkillResult struct {
	Name        string      `json:"name" jsonschema:"skill name"`
	Description string      `json:"description" jsonschema:"skill description"`
	Source      string      `json:"source" jsonschema:"origin identifier of the skill"`
	Scope       skill.Scope `json:"scope" jsonschema:"global or tenant"`
	Score       float64     `json:"relevance_score" jsonschema:"raw cosine similarity to the task description"`
	Documents   []string    `json:"documents,omitempty" jsonschema:"document paths, present when list_documents is set"`
}

// FindSkillsOutput defines the output schema for find_helpful_skills.
type FindSkillsOutput struct {
	Results  []SkillResult `json:"results" jsonschema:"matching skills, best first"`
	Markdown string        `json:"markdown" jsonschema:"markdown rendering of the results"`
}

// ReadDocumentInput defines the input schema for read_skill_document.
type ReadDocumentInput struct {
	SkillName    string `json:"skill_name" jsonschema:"name of an indexed skill"`
	DocumentPath string `json:"document_path" jsonschema:"document path relative to the skill root, or a glob pattern"`
}

// ReadDocumentOutput defines the output schema for read_skill_document.
type ReadDocumentOutput struct {
	SkillName string   `json:"skill_name" jsonschema:"skill the documents belong to"`
	Matched   []string `json:"matched" jsonschema:"document paths that matched"`
	Content   string   `json:"content" jsonschema:"markdown with text document contents; non-text matches are listed, not inlined"`
}

// ListSkillsInput defines the (empty) input schema for list_skills.
type ListSkillsInput struct{}

// ListSkillsOutput defines the output schema for list_skills.
type ListSkillsOutput struct {
	Skills            []skill.Snapshot `json:"skills" jsonschema:"every indexed skill in insertion order"`
	LoadingInProgress bool             `json:"loading_in_progress" jsonschema:"true while configured sources are still loading"`
	Markdown          string           `json:"markdown" jsonschema:"markdown rendering of the skill list"`
}

// NewServer creates the MCP server and registers its tools.
func NewServer(idx *index.Index, state *lifecycle.LoadState, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if state == nil {
		return nil, fmt.Errorf("load state is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		index:  idx,
		state:  state,
		config: cfg,
		logger: logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "Skillscout",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance, used by the HTTP
// layer to mount the streamable transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_helpful_skills",
		Description: "Find skills relevant to a task. Describe what you are trying to do and get back the most semantically similar skills with their descriptions. Use list_documents to also see each skill's files.",
	}, s.findSkillsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "read_skill_document",
		Description: "Read documents from a skill by exact path or glob pattern (e.g. SKILL.md, *.md, scripts/*.py). Text documents are returned inline; images and binaries are listed by path.",
	}, s.readDocumentHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_skills",
		Description: "List every indexed skill with its description, scope, and document count. Reports whether background loading is still in progress.",
	}, s.listSkillsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 3))
}

// findSkillsHandler is the MCP SDK handler for the find_helpful_skills tool.
func (s *Server) findSkillsHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindSkillsInput) (
	*mcp.CallToolResult,
	FindSkillsOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(input.TaskDescription) == "" {
		return nil, FindSkillsOutput{}, NewInvalidParamsError("task_description is required and must be non-empty")
	}

	topK := clampTopK(input.TopK, s.config.DefaultTopK)

	s.logger.Info("find_helpful_skills started",
		slog.String("request_id", requestID),
		slog.String("task", input.TaskDescription),
		slog.Int("top_k", topK))

	results, err := s.index.Search(ctx, input.TaskDescription, topK, input.TenantID, input.AllowedSkills)
	if err != nil {
		s.logger.Error("find_helpful_skills failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, FindSkillsOutput{}, MapError(err)
	}

	output := FindSkillsOutput{
		Results:  make([]SkillResult, 0, len(results)),
		Markdown: FormatSearchResults(input.TaskDescription, results, input.ListDocuments),
	}
	for _, r := range results {
		sr := SkillResult{
			Name:        r.Skill.Name,
			Description: r.Skill.Description,
			Source:      r.Skill.Source,
			Scope:       r.Skill.Scope,
			Score:       r.Score,
		}
		if input.ListDocuments {
			sr.Documents = r.Skill.DocumentPaths()
		}
		output.Results = append(output.Results, sr)
	}

	s.logger.Info("find_helpful_skills completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))

	return nil, output, nil
}

// readDocumentHandler is the MCP SDK handler for the read_skill_document tool.
func (s *Server) readDocumentHandler(_ context.Context, _ *mcp.CallToolRequest, input ReadDocumentInput) (
	*mcp.CallToolResult,
	ReadDocumentOutput,
	error,
) {
	requestID := generateRequestID()

	if input.SkillName == "" {
		return nil, ReadDocumentOutput{}, NewInvalidParamsError("skill_name is required")
	}
	if input.DocumentPath == "" {
		return nil, ReadDocumentOutput{}, NewInvalidParamsError("document_path is required")
	}

	s.logger.Info("read_skill_document started",
		slog.String("request_id", requestID),
		slog.String("skill", input.SkillName),
		slog.String("path", input.DocumentPath))

	sk, ok := s.index.Get(input.SkillName)
	if !ok {
		return nil, ReadDocumentOutput{}, MapError(
			skerrors.Newf(skerrors.CodeSkillNotFound, "skill %q is not indexed", input.SkillName))
	}

	docs := matchDocuments(&sk, input.DocumentPath)
	if len(docs) == 0 {
		return nil, ReadDocumentOutput{}, MapError(
			skerrors.Newf(skerrors.CodeDocNotFound,
				"no document in skill %q matches %q", input.SkillName, input.DocumentPath))
	}

	output := ReadDocumentOutput{
		SkillName: sk.Name,
		Matched:   make([]string, len(docs)),
		Content:   FormatDocuments(sk.Name, docs),
	}
	for i, d := range docs {
		output.Matched[i] = d.Path
	}

	s.logger.Info("read_skill_document completed",
		slog.String("request_id", requestID),
		slog.Int("matched", len(docs)))

	return nil, output, nil
}

// listSkillsHandler is the MCP SDK handler for the list_skills tool.
func (s *Server) listSkillsHandler(_ context.Context, _ *mcp.CallToolRequest, _ ListSkillsInput) (
	*mcp.CallToolResult,
	ListSkillsOutput,
	error,
) {
	snaps := s.index.List()
	loading := !s.state.Complete()
	return nil, ListSkillsOutput{
		Skills:            snaps,
		LoadingInProgress: loading,
		Markdown:          FormatSkillList(snaps, loading),
	}, nil
}

// matchDocuments resolves a literal path first, then falls back to glob
// matching over the skill's document paths. Glob semantics follow
// path.Match: '*' does not cross path separators.
func matchDocuments(sk *skill.Skill, pattern string) []skill.Document {
	if doc, ok := sk.Document(pattern); ok {
		return []skill.Document{doc}
	}

	var docs []skill.Document
	for _, d := range sk.Documents {
		if ok, err := path.Match(pattern, d.Path); err == nil && ok {
			docs = append(docs, d)
		}
	}
	return docs
}

// clampTopK applies the default for unset values and bounds the rest.
func clampTopK(requested, def int) int {
	k := requested
	if k == 0 {
		k = def
	}
	if k < minTopK {
		k = minTopK
	}
	if k > maxTopK {
		k = maxTopK
	}
	return k
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
