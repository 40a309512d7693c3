// Package gate puts API key and rate limit checks in front of the flight API.
package gate

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/auth"
	"github.com/lowc1012/flight-change-api/internal/log"
	"github.com/lowc1012/flight-change-api/internal/ratelimiter"
	"github.com/lowc1012/flight-change-api/internal/utils"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"

	DefaultPrefix = "/api"
)

const (
	msgMissingKey   = "Authorization required. Missing API key."
	msgInvalidKey   = "Invalid API key."
	msgRateLimited  = "Too many requests. Please try again later."
	msgStoreFailure = "Internal Server Error: Could not connect to rate limiter."
	msgInternal     = "Internal Server Error"
)

var tracer = otel.Tracer("github.com/lowc1012/flight-change-api/internal/gate")

// Verifier checks the credential of a request. It returns auth.ErrMissingKey
// or auth.ErrInvalidKey on failure.
type Verifier interface {
	Verify(r *http.Request) error
}

// Config defines the configuration for the gate handler.
type Config struct {
	// Prefix is the protected path prefix. Defaults to /api.
	Prefix    string
	Extractor utils.Extractor
	Verifier  Verifier
	Limiter   ratelimiter.RateLimiter
	// AnnotateResponses adds the rate limit headers to admitted responses.
	AnnotateResponses bool
	Logger            *zap.Logger
}

type gateHandler struct {
	next   http.Handler
	config Config
	logger *zap.Logger
}

// New wraps next, checking the API key and rate limit of every request under
// the protected prefix. A request failing either check gets a JSON error
// response and never reaches next.
func New(next http.Handler, config Config) http.Handler {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	config.Prefix = strings.TrimSuffix(config.Prefix, "/")
	if config.Extractor == nil {
		config.Extractor = utils.NewClientAddressExtractor()
	}
	if config.Logger == nil {
		config.Logger = log.Logger()
	}

	return &gateHandler{
		next:   next,
		config: config,
		logger: config.Logger.Named("gate"),
	}
}

func (h *gateHandler) protects(path string) bool {
	return path == h.config.Prefix || strings.HasPrefix(path, h.config.Prefix+"/")
}

func (h *gateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.protects(r.URL.Path) {
		h.next.ServeHTTP(w, r)
		return
	}

	ctx, span := tracer.Start(r.Context(), "gate")
	defer span.End()
	r = r.WithContext(ctx)

	identity, err := h.config.Extractor.Extract(r)
	if err != nil {
		identity = utils.FallbackIdentity
	}

	logger := h.logger.With(
		zap.String("identity", identity),
		zap.String("path", r.URL.Path),
	)
	if id := log.RequestID(ctx); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}
	span.SetAttributes(attribute.String("client.identity", identity))

	if err := h.config.Verifier.Verify(r); err != nil {
		if errors.Is(err, auth.ErrMissingKey) {
			logger.Info("gate.auth_missing")
			writeError(w, http.StatusUnauthorized, msgMissingKey)
			return
		}
		logger.Info("gate.auth_invalid")
		writeError(w, http.StatusForbidden, msgInvalidKey)
		return
	}

	verdict, err := h.config.Limiter.Check(ctx, identity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ratelimiter.ErrStoreUnavailable) {
			logger.Error("gate.store_error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgStoreFailure)
			return
		}
		logger.Error("Failed to run rate limiting for request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	fields := []zap.Field{
		zap.Int64("limit", verdict.Limit),
		zap.Int64("remaining", verdict.Remaining),
		zap.Bool("degraded", verdict.Degraded),
	}

	if !verdict.Admitted() {
		logger.Info("gate.rate_limited", fields...)
		setRateLimitHeaders(w, verdict)
		writeError(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	logger.Debug("gate.admitted", fields...)
	if h.config.AnnotateResponses {
		setRateLimitHeaders(w, verdict)
	}
	h.next.ServeHTTP(w, r)
}

func setRateLimitHeaders(w http.ResponseWriter, v *ratelimiter.Verdict) {
	w.Header().Set(HeaderLimit, strconv.FormatInt(v.Limit, 10))
	w.Header().Set(HeaderRemaining, strconv.FormatInt(v.Remaining, 10))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorBody{Error: msg}); err != nil {
		log.Logger().Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}
