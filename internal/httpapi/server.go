// Package httpapi exposes the HTTP surface: the streamable MCP transport
// at /mcp, skill uploads, and the health endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	skerrors "github.com/skillscout/skillscout/internal/errors"
	"github.com/skillscout/skillscout/internal/lifecycle"
)

// maxUploadSize bounds the accepted multipart body.
const maxUploadSize = 128 << 20

// Server is the HTTP server wrapping the MCP streamable transport and
// the upload/health endpoints.
type Server struct {
	coordinator *lifecycle.Coordinator
	logger      *slog.Logger
	httpServer  *http.Server
}

// New builds the HTTP server. mcpServer backs the /mcp streamable
// endpoint; every request shares the one server instance.
func New(addr string, mcpServer *sdkmcp.Server, coordinator *lifecycle.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		coordinator: coordinator,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Handle("/mcp", sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	))
	r.Post("/skills/upload", s.handleUpload)
	r.Get("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, used directly by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens and serves until Shutdown. ErrServerClosed is not an error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type uploadResponse struct {
	Status      string   `json:"status"`
	SkillsAdded []string `json:"skills_added,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Error       string   `json:"error,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// handleUpload accepts a multipart zip archive in the "file" field with
// optional "scope" and "tenant_id" fields. Rejections are 400 with the
// error code; embedding or internal failures are 500.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.writeUploadError(w, skerrors.Wrap(skerrors.CodeUploadRejected, err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeUploadError(w, skerrors.New(skerrors.CodeUploadRejected, "missing file field"))
		return
	}
	defer func() { _ = file.Close() }()

	archive, err := io.ReadAll(file)
	if err != nil {
		s.writeUploadError(w, skerrors.Wrap(skerrors.CodeUploadRejected, err))
		return
	}

	result, err := s.coordinator.Upload(
		r.Context(), archive, r.FormValue("scope"), r.FormValue("tenant_id"))
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Status:      "ok",
		SkillsAdded: result.SkillsAdded,
		Errors:      result.Errors,
	})
}

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	code := skerrors.CodeOf(err)
	status := http.StatusInternalServerError
	if code == skerrors.CodeUploadRejected {
		status = http.StatusBadRequest
	}
	if code == "" {
		code = "internal"
	}

	s.logger.Warn("upload failed",
		slog.String("code", code),
		slog.String("error", err.Error()))

	writeJSON(w, status, uploadResponse{
		Status:  "error",
		Error:   code,
		Message: err.Error(),
	})
}

// handleHealth reports loading progress. Always 200: a failed source is
// recorded in the payload, not in the status code.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.State().Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
