package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mockmate/mockmate/internal/interview"
	"github.com/mockmate/mockmate/internal/resume"
	"github.com/mockmate/mockmate/internal/retrieval"
	"github.com/mockmate/mockmate/internal/sandbox"
	"github.com/mockmate/mockmate/internal/speech"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionHeader selects the interview session for a request. Requests without
// it share the process-default session, which matches single-candidate
// deployments.
const sessionHeader = "X-Session-ID"

// Transcriber converts an uploaded audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Synthesizer renders text into an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, path string) (*speech.Audio, error)
}

// defaultSessionTTL bounds how long an idle session keeps its transcript and
// resume index alive.
const defaultSessionTTL = time.Hour

// Config carries the server's runtime settings.
type Config struct {
	Listen      string
	AudioDir    string
	DefaultRole string
	SessionTTL  time.Duration
}

// Deps aggregates the collaborators the server drives.
type Deps struct {
	Orchestrator *interview.Orchestrator
	Retrieval    *retrieval.Store
	Transcriber  Transcriber
	Synthesizer  Synthesizer
	Logger       *zap.Logger
}

// Server exposes the interview over HTTP.
type Server struct {
	echo         *echo.Echo
	cfg          Config
	orchestrator *interview.Orchestrator
	retrieval    *retrieval.Store
	transcriber  Transcriber
	synthesizer  Synthesizer
	logger       *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
	now      func() time.Time
}

// sessionEntry tracks a live session and its idle deadline. Every request
// through session() pushes the deadline forward.
type sessionEntry struct {
	sess      *interview.Session
	expiresAt time.Time
}

type chatRequest struct {
	Message     string             `json:"message"`
	History     []chatHistoryEntry `json:"history"`
	Role        string             `json:"role"`
	CodeSnippet string             `json:"code_snippet"`
}

type chatHistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Response      string `json:"response"`
	AudioURL      string `json:"audio_url"`
	CodeOutput    string `json:"code_output"`
	AudioDegraded bool   `json:"audio_degraded,omitempty"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// New wires the HTTP surface around the injected collaborators.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Orchestrator == nil || deps.Retrieval == nil {
		return nil, fmt.Errorf("orchestrator and retrieval store are required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.AudioDir == "" {
		cfg.AudioDir = "temp_audio"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	s := &Server{
		cfg:          cfg,
		orchestrator: deps.Orchestrator,
		retrieval:    deps.Retrieval,
		transcriber:  deps.Transcriber,
		synthesizer:  deps.Synthesizer,
		logger:       log,
		sessions:     make(map[string]*sessionEntry),
		now:          time.Now,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.errorHandler

	e.POST("/upload-resume", s.handleUploadResume)
	e.POST("/chat", s.handleChat)
	e.POST("/transcribe", s.handleTranscribe)
	e.GET("/audio/:filename", s.handleAudio)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo = e
	return s, nil
}

// Start blocks serving HTTP until the listener fails or is closed.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("listen", s.cfg.Listen))
	return s.echo.Start(s.cfg.Listen)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}

	s.logger.Warn("request failed",
		zap.Int("status", code),
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path),
		zap.Error(err),
	)

	if !c.Response().Committed {
		_ = c.JSON(code, map[string]any{"error": msg})
	}
}

// session returns the interview session for the request, creating it on first
// use. Anonymous requests map onto one shared default session. Each lookup
// refreshes the session's idle deadline and sweeps out sessions that blew
// theirs, dropping their resume indexes with them.
func (s *Server) session(c echo.Context) *interview.Session {
	key := strings.TrimSpace(c.Request().Header.Get(sessionHeader))
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)

	entry, ok := s.sessions[key]
	if !ok {
		entry = &sessionEntry{sess: interview.NewSession(s.cfg.DefaultRole)}
		s.sessions[key] = entry
	}
	entry.expiresAt = now.Add(s.cfg.SessionTTL)
	return entry.sess
}

// sweepLocked evicts sessions idle past their deadline. Callers hold s.mu.
func (s *Server) sweepLocked(now time.Time) {
	for key, entry := range s.sessions {
		if now.Before(entry.expiresAt) {
			continue
		}
		s.retrieval.Drop(entry.sess.ID())
		delete(s.sessions, key)
		s.logger.Info("session expired", zap.String("session_id", entry.sess.ID()))
	}
}

func (s *Server) handleUploadResume(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "resume file is required")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("open upload: %s", err))
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "resume-*"+filepath.Ext(file.Filename))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("store upload: %s", err))
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("store upload: %s", err))
	}
	tmp.Close()

	text, err := resume.ExtractText(tmp.Name())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("parse resume: %s", err))
	}

	sess := s.session(c)

	// A new resume replaces the retrieval context only; the running
	// transcript and turn counter stay.
	if err := s.retrieval.Ingest(sess.ID(), text); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("index resume: %s", err))
	}

	resumeIngestsTotal.Inc()
	s.logger.Info("resume uploaded",
		zap.String("session_id", sess.ID()),
		zap.String("filename", file.Filename),
	)

	return c.JSON(http.StatusOK, statusResponse{
		Status:  "ok",
		Message: fmt.Sprintf("resume %q ingested", file.Filename),
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chat request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	sess := s.session(c)
	sess.SetRole(req.Role)

	// Clients that keep the conversation on their side send it with every
	// call; their copy wins, and an explicit empty list restarts the
	// interview. Clients that omit the field rely on the server-held
	// transcript.
	if req.History != nil {
		entries := make([]interview.HistoryEntry, 0, len(req.History))
		for _, h := range req.History {
			entries = append(entries, interview.HistoryEntry{Role: h.Role, Content: h.Content})
		}
		sess.SeedHistory(entries)
	}

	ctx := c.Request().Context()

	reply, codeOutput, err := s.orchestrator.ProcessTurn(ctx, sess, req.Message, req.CodeSnippet)
	if err != nil {
		turnFailuresTotal.Inc()
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("interview turn failed: %s", err))
	}

	turnsTotal.Inc()
	if strings.TrimSpace(req.CodeSnippet) != "" {
		outcome := "ok"
		if strings.HasPrefix(codeOutput, "Execution failed:") || codeOutput == sandbox.ExecutionErrorMessage {
			outcome = "failed"
		}
		codeRunsTotal.WithLabelValues(outcome).Inc()
	}

	resp := chatResponse{
		Response:   reply,
		CodeOutput: codeOutput,
	}

	if s.synthesizer != nil {
		name := uuid.NewString() + ".wav"
		audio, err := s.synthesizer.Synthesize(ctx, reply, filepath.Join(s.cfg.AudioDir, name))
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("write audio: %s", err))
		}
		if audio.Degraded {
			synthesesDegradedTotal.Inc()
		}
		resp.AudioURL = "/audio/" + name
		resp.AudioDegraded = audio.Degraded
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTranscribe(c echo.Context) error {
	if s.transcriber == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "transcription is not configured")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "audio file is required")
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("open upload: %s", err))
	}
	defer src.Close()

	path := filepath.Join(s.cfg.AudioDir, uuid.NewString()+filepath.Ext(file.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("store upload: %s", err))
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("store upload: %s", err))
	}
	dst.Close()

	// The upload is transient input; remove it once transcribed.
	defer os.Remove(path)

	text, err := s.transcriber.Transcribe(c.Request().Context(), path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("transcription failed: %s", err))
	}

	transcriptionsTotal.Inc()
	return c.JSON(http.StatusOK, transcribeResponse{Text: text})
}

func (s *Server) handleAudio(c echo.Context) error {
	// Strip any path components so requests cannot escape the audio dir.
	name := filepath.Base(c.Param("filename"))
	path := filepath.Join(s.cfg.AudioDir, name)

	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "audio file not found")
	}

	return c.File(path)
}
