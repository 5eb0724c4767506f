// Package server exposes a learned vocabulary over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/example/go-bpe/internal/artifact"
	"github.com/example/go-bpe/internal/config"
)

// Tokenizer segments and encodes request text.
type Tokenizer interface {
	Apply(sentence string) []string
	Encode(text string) ([]int64, error)
}

// ManifestSource reports the artifacts being served.
type ManifestSource interface {
	Manifest() artifact.Manifest
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes int
	workers      int
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes: 64 * 1024,
		workers:      0,
		logger:       slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tokenize.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers bounds the requests tokenized at once; 0 leaves them unbounded.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	tok  Tokenizer
	info ManifestSource
	opts options
	sem  chan struct{} // semaphore for worker pool
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /info and POST /tokenize.
func NewHandler(tok Tokenizer, info ManifestSource, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		tok:  tok,
		info: info,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/info", h.handleInfo)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type infoResponse struct {
	RunID       string `json:"run_id"`
	Generated   string `json:"generated"`
	EndOfWord   string `json:"end_of_word"`
	NumMerges   int    `json:"num_merges"`
	VocabSize   int    `json:"vocab_size"`
	Fingerprint string `json:"fingerprint"`
}

func (h *handler) handleInfo(w http.ResponseWriter, _ *http.Request) {
	if h.info == nil {
		writeError(w, http.StatusNotFound, "no artifacts loaded")
		return
	}

	m := h.info.Manifest()
	writeJSON(w, http.StatusOK, infoResponse{
		RunID:       m.RunID,
		Generated:   m.Generated,
		EndOfWord:   m.EndOfWord,
		NumMerges:   m.NumMerges,
		VocabSize:   m.VocabSize,
		Fingerprint: m.Fingerprint,
	})
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	Subwords []string `json:"subwords"`
	IDs      []int64  `json:"ids"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	var req tokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	start := time.Now()
	subwords := h.tok.Apply(req.Text)
	ids, err := h.tok.Encode(req.Text)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.log.ErrorContext(r.Context(), "tokenize failed",
			slog.Int("text_len", len(req.Text)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "tokenize complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int("subwords", len(subwords)),
		slog.Int64("duration_ms", durationMS),
	)

	if subwords == nil {
		subwords = []string{}
	}

	writeJSON(w, http.StatusOK, tokenizeResponse{Subwords: subwords, IDs: ids})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server: net/http wiring with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	handler         http.Handler
	shutdownTimeout time.Duration
}

func New(cfg config.Config, h http.Handler) *Server {
	return &Server{
		cfg:             cfg,
		handler:         h,
		shutdownTimeout: 30 * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// Start serves until ctx is done, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.handler == nil {
		return errors.New("server handler is required")
	}

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
