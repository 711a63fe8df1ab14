package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"copydesk/internal/analysis"
	"copydesk/internal/config"
	"copydesk/internal/identity"
	"copydesk/internal/imageinput"
	"copydesk/internal/model"
	"copydesk/internal/session"
	"copydesk/internal/upstream/gemini"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Analyzer interface {
	Submit(ctx context.Context, req analysis.Request) (analysis.Result, error)
}

type SessionStore interface {
	Begin(sessionID string, req analysis.Request) session.Ticket
	Commit(t session.Ticket, result analysis.Result) bool
	Current(sessionID string) (analysis.Result, time.Time, error)
	LastRequest(sessionID string) (analysis.Request, error)
}

type IdentitySource interface {
	Current() (identity.Identity, bool)
}

type UpstreamChecker interface {
	CheckModels(ctx context.Context) error
}

type MetricsObserver interface {
	ObserveHTTP(route, method string, status int, duration time.Duration)
	IncStaleResult()
}

type Dependencies struct {
	Analyzer       Analyzer
	Sessions       SessionStore
	Identity       IdentitySource
	Upstream       UpstreamChecker
	Metrics        MetricsObserver
	MetricsHandler http.Handler
}

type server struct {
	cfg          config.Config
	logger       *slog.Logger
	analyzer     Analyzer
	sessions     SessionStore
	identity     IdentitySource
	upstream     UpstreamChecker
	metrics      MetricsObserver
	metricsRoute http.Handler
}

type ctxKey string

const (
	requestIDHeader  = "X-Request-Id"
	sessionIDHeader  = "X-Session-Id"
	requestIDContext = ctxKey("request_id")
	maxJSONOverhead  = 1 << 20
	serviceName      = "Copydesk"
)

func NewServer(cfg config.Config, logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Analyzer == nil || deps.Sessions == nil || deps.Identity == nil || deps.Upstream == nil {
		panic("httpapi: all dependencies are required")
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		analyzer:     deps.Analyzer,
		sessions:     deps.Sessions,
		identity:     deps.Identity,
		upstream:     deps.Upstream,
		metrics:      deps.Metrics,
		metricsRoute: deps.MetricsHandler,
	}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader, sessionIDHeader},
		ExposedHeaders:   []string{requestIDHeader, sessionIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(s.authMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metricsRoute != nil {
		r.Handle("/metrics", s.metricsRoute)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/identity", s.handleIdentity)
		r.Get("/headline-counts", s.handleHeadlineCounts)
		r.Post("/analyses", s.handleAnalyze)
		r.Get("/sessions/{sessionID}/result", s.handleCurrentResult)
		r.Post("/sessions/{sessionID}/refresh/{target}", s.handleRefresh)
	})

	return r
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{OK: true})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready := model.ReadyResponse{OK: true, ServiceName: serviceName, AppID: s.cfg.AppID}
	if s.cfg.GeminiAPIKey == "" && gemini.RequestAPIKeyFromContext(r.Context()) == "" {
		writeJSON(w, http.StatusOK, ready)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.upstream.CheckModels(ctx); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "not_ready", "upstream check failed", detailsForError(err))
		return
	}
	writeJSON(w, http.StatusOK, ready)
}

func (s *server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity.Current()
	writeJSON(w, http.StatusOK, model.IdentityResponse{
		Ready:     ok,
		UserID:    id.UserID,
		Anonymous: id.Anonymous,
	})
}

func (s *server) handleHeadlineCounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HeadlineCountsResponse{
		Options: analysis.HeadlineCountOptions,
		Default: analysis.DefaultHeadlineCount,
	})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	sessionID := session.NormalizeID(r.Header.Get(sessionIDHeader))
	if sessionID == "" {
		sessionID = session.NewID()
	}
	w.Header().Set(sessionIDHeader, sessionID)

	var (
		req analysis.Request
		err error
	)
	if isMultipart(r) {
		req, err = s.readMultipartRequest(w, r)
	} else {
		req, err = s.readJSONRequest(w, r)
	}
	if err != nil {
		s.handleInputError(w, r, err)
		return
	}

	s.runAnalysis(w, r, sessionID, req)
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sessionID := session.NormalizeID(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid session id", nil)
		return
	}
	target := chi.URLParam(r, "target")
	if target != "headlines" && target != "corrections" {
		s.writeError(w, r, http.StatusNotFound, "not_found", "refresh target must be headlines or corrections", nil)
		return
	}

	req, err := s.sessions.LastRequest(sessionID)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "not_found", "nothing has been analyzed in this session yet", nil)
		return
	}
	w.Header().Set(sessionIDHeader, sessionID)
	s.logger.Info("analysis_refresh", "request_id", requestIDFromContext(r.Context()), "session_id", sessionID, "target", target)

	s.runAnalysis(w, r, sessionID, req)
}

func (s *server) handleCurrentResult(w http.ResponseWriter, r *http.Request) {
	sessionID := session.NormalizeID(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid session id", nil)
		return
	}
	result, completedAt, err := s.sessions.Current(sessionID)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, "not_found", "no result for this session", nil)
		return
	}
	w.Header().Set(sessionIDHeader, sessionID)
	resp := toAnalysisResponse(sessionID, result)
	resp.CompletedAt = completedAt.UTC().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) runAnalysis(w http.ResponseWriter, r *http.Request, sessionID string, req analysis.Request) {
	started := time.Now()
	// Rejected input must not replace the request behind the current result.
	if _, err := analysis.Build(req); err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	ticket := s.sessions.Begin(sessionID, req)

	result, err := s.analyzer.Submit(r.Context(), req)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if !s.sessions.Commit(ticket, result) {
		if s.metrics != nil {
			s.metrics.IncStaleResult()
		}
		s.writeError(w, r, http.StatusConflict, "superseded", "a newer submission replaced this one", nil)
		return
	}

	resp := toAnalysisResponse(sessionID, result)
	resp.DurationMS = time.Since(started).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) readMultipartRequest(w http.ResponseWriter, r *http.Request) (analysis.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+maxJSONOverhead)
	if err := r.ParseMultipartForm(minInt64(s.cfg.MaxUploadBytes, 8<<20)); err != nil {
		return analysis.Request{}, err
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	count, err := parseHeadlineCount(r.FormValue("headline_count"))
	if err != nil {
		return analysis.Request{}, err
	}
	req := analysis.Request{Text: r.FormValue("text"), HeadlineCount: count}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return analysis.Request{}, err
	}
	defer func() { _ = file.Close() }()

	img, err := imageinput.Convert(file, header.Header.Get("Content-Type"), s.cfg.MaxUploadBytes)
	if err != nil {
		return analysis.Request{}, err
	}
	req.Image = &img
	return req, nil
}

func (s *server) readJSONRequest(w http.ResponseWriter, r *http.Request) (analysis.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*4/3+maxJSONOverhead)
	defer func() { _ = r.Body.Close() }()

	var body model.AnalysisRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		return analysis.Request{}, &jsonError{err: err}
	}
	if err := ensureBodyFullyConsumed(decoder); err != nil {
		return analysis.Request{}, &jsonError{err: err}
	}

	req := analysis.Request{Text: body.Text, HeadlineCount: body.HeadlineCount}
	if req.HeadlineCount == 0 {
		req.HeadlineCount = analysis.DefaultHeadlineCount
	}
	if strings.TrimSpace(body.ImageBase64) != "" {
		img, err := imageinput.Decode(body.ImageBase64, body.ImageMIMEType, s.cfg.MaxUploadBytes)
		if err != nil {
			return analysis.Request{}, err
		}
		req.Image = &img
	}
	return req, nil
}

type jsonError struct{ err error }

func (e *jsonError) Error() string { return e.err.Error() }
func (e *jsonError) Unwrap() error { return e.err }

type headlineCountError struct{ value string }

func (e *headlineCountError) Error() string {
	return fmt.Sprintf("headline_count %q is not an integer", e.value)
}

func parseHeadlineCount(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return analysis.DefaultHeadlineCount, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &headlineCountError{value: value}
	}
	return n, nil
}

func (s *server) handleInputError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		maxErr   *http.MaxBytesError
		countErr *headlineCountError
		jsonErr  *jsonError
	)
	switch {
	case errors.As(err, &maxErr):
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "request_too_large", fmt.Sprintf("request exceeds %d bytes", maxErr.Limit), nil)
	case imageinput.IsConversionError(err):
		s.logger.Warn("image conversion failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		s.writeError(w, r, http.StatusUnprocessableEntity, "file_conversion_failed", analysis.UserMessage(err), nil)
	case errors.As(err, &countErr):
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", countErr.Error(), nil)
	case errors.As(err, &jsonErr):
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
	default:
		s.writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart form data", nil)
	}
}

func (s *server) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := analysis.UserMessage(err)
	var details map[string]any

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		code = "timeout"
		message = "The analysis took too long. Please try again."
	case errors.Is(err, context.Canceled):
		status = 499
		code = "canceled"
		message = "request canceled"
	default:
		switch analysis.KindOf(err) {
		case analysis.KindNoInput, analysis.KindInvalidHeadlineCount:
			status = http.StatusBadRequest
			code = string(analysis.KindOf(err))
		case analysis.KindFileConversion:
			status = http.StatusUnprocessableEntity
			code = "file_conversion_failed"
		case analysis.KindSafetyBlocked:
			status = http.StatusUnprocessableEntity
			code = "safety_blocked"
		case analysis.KindTransportFailure, analysis.KindEmptyResponse:
			status = http.StatusBadGateway
			code = "upstream_request_failed"
			details = attemptDetails(err)
		case analysis.KindMalformedJSON:
			status = http.StatusBadGateway
			code = "malformed_response"
		}
	}

	s.logger.Warn("analysis_failed",
		"request_id", requestIDFromContext(r.Context()),
		"kind", analysis.KindOf(err),
		"status", status,
		"error", err,
	)
	s.writeError(w, r, status, code, message, details)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	if rid := requestIDFromContext(r.Context()); rid != "" {
		w.Header().Set(requestIDHeader, rid)
	}
	writeJSON(w, status, model.ErrorResponse{
		Error:     model.APIError{Code: code, Message: message, Details: details},
		RequestID: requestIDFromContext(r.Context()),
	})
}

func (s *server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDContext, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		duration := time.Since(started)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, status, duration)
		}

		s.logger.Info("http_request",
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"route", route,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", duration.Milliseconds(),
		)
	})
}

func (s *server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "request_id", requestIDFromContext(r.Context()), "panic", rec)
				s.writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, hasHeader, ok := extractBearerToken(r.Header.Get("Authorization"))
		if hasHeader && !ok {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authorization must be Bearer <gemini_api_key>", nil)
			return
		}
		if !isPublicPath(r.URL.Path) && token == "" && s.cfg.GeminiAPIKey == "" {
			s.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing Gemini API key bearer token", nil)
			return
		}
		if token != "" {
			r = r.WithContext(gemini.WithRequestAPIKey(r.Context(), token))
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/v1/identity", "/v1/headline-counts":
		return true
	default:
		return strings.HasPrefix(path, "/v1/sessions/") && strings.HasSuffix(path, "/result")
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func ensureBodyFullyConsumed(decoder *json.Decoder) error {
	var extra any
	if err := decoder.Decode(&extra); err != io.EOF {
		if err == nil {
			return fmt.Errorf("multiple JSON values")
		}
		return err
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContext).(string)
	return value
}

func extractBearerToken(header string) (token string, hasHeader bool, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, true
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", true, false
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", true, false
	}
	return token, true, true
}

func newRequestID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func toAnalysisResponse(sessionID string, result analysis.Result) model.AnalysisResponse {
	resp := model.AnalysisResponse{
		SessionID:     sessionID,
		AnnotatedText: result.AnnotatedText,
		Corrections:   make([]model.Correction, 0, len(result.Corrections)),
		Headlines:     make([]model.Headline, 0, len(result.Headlines)),
	}
	for _, c := range result.Corrections {
		resp.Corrections = append(resp.Corrections, model.Correction{OriginalError: c.OriginalError, CorrectedText: c.CorrectedText})
	}
	for _, h := range result.Headlines {
		resp.Headlines = append(resp.Headlines, model.Headline{Headline: h.Headline, Subheadline: h.Subheadline})
	}
	return resp
}

func attemptDetails(err error) map[string]any {
	var perr *analysis.Error
	if !errors.As(err, &perr) {
		return nil
	}
	details := map[string]any{"attempts": perr.Attempts}
	if perr.StatusCode > 0 {
		details["upstream_status"] = perr.StatusCode
	}
	return details
}

func detailsForError(err error) map[string]any {
	if err == nil {
		return nil
	}
	details := map[string]any{"error": err.Error()}
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		details["upstream_status"] = statusErr.HTTPStatus()
	}
	var upstreamErr *gemini.Error
	if errors.As(err, &upstreamErr) && upstreamErr.Body != "" {
		details["upstream_body"] = upstreamErr.Body
	}
	return details
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
