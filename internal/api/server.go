package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/campus-rag-chatbot/internal/config"
	"github.com/JakeFAU/campus-rag-chatbot/internal/metrics"
	"github.com/JakeFAU/campus-rag-chatbot/internal/policy/ratelimit"
	"github.com/JakeFAU/campus-rag-chatbot/internal/rag"
)

//go:embed static/index.html
var indexHTML []byte

const apiVersion = "1.0"

const maxChatBodyBytes = 1 << 20

// Answerer is the query service the server delegates to.
type Answerer interface {
	Answer(ctx context.Context, question string) (rag.Answer, error)
	IndexLoaded() bool
	Ready() bool
}

// Server wires HTTP handlers to the query service.
type Server struct {
	router  chi.Router
	service Answerer
	limiter *ratelimit.Limiter
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service Answerer, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: service,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.Server.ChatRPS, Burst: cfg.Server.ChatBurst}),
		cfg:     cfg,
		logger:  logger,
	}

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	if cfg.Server.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
	}

	r.Get("/", s.index)
	r.Get("/api/health", s.apiHealth)
	r.Get("/health", s.health)
	r.Post("/chat", s.chat)
	r.Get("/quick-answer/{key}", s.quickAnswer)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.logger.Error("write index page failed", zap.Error(err))
	}
}

type apiHealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
}

func (s *Server) apiHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, apiHealthResponse{
		Status:  "running",
		Message: s.cfg.Assistant.Name + " Chatbot API",
		Version: apiVersion,
	})
}

type healthResponse struct {
	Status            string `json:"status"`
	VectorstoreLoaded bool   `json:"vectorstore_loaded"`
	QAChainReady      bool   `json:"qa_chain_ready"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "healthy"}
	if s.service != nil {
		resp.VectorstoreLoaded = s.service.IndexLoaded()
		resp.QAChainReady = s.service.Ready()
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	Response string   `json:"response"`
	Sources  []string `json:"sources"`
	Status   string   `json:"status"`
}

type chatErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "Too many requests, please slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No message provided")
		return
	}
	message := strings.TrimSpace(*req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Empty message")
		return
	}
	if s.service == nil || !s.service.Ready() {
		writeJSON(w, http.StatusInternalServerError, chatErrorResponse{
			Error:   "An error occurred processing your request",
			Details: "chatbot is not initialized",
		})
		return
	}

	logger := s.logger.With(zap.String("request_id", requestIDFrom(r.Context())))
	logger.Info("chat query", zap.String("message", message))
	answer, err := s.service.Answer(r.Context(), message)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "Empty message")
			return
		}
		logger.Error("chat failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, chatErrorResponse{
			Error:   "An error occurred processing your request",
			Details: err.Error(),
		})
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer.Text, Sources: sources, Status: "success"})
}

type quickAnswerResponse struct {
	Response string `json:"response"`
	Status   string `json:"status"`
}

func (s *Server) quickAnswer(w http.ResponseWriter, r *http.Request) {
	answer, ok := s.cfg.QuickAnswers.Lookup(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "Quick answer not found")
		return
	}
	writeJSON(w, http.StatusOK, quickAnswerResponse{Response: answer, Status: "success"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
