// Package flights serves the mock flight change endpoints. All data is
// synthesized per request; nothing is persisted.
package flights

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/log"
)

// Options configures a Handler. Now, NewID and Seed exist so tests get
// repeatable output.
type Options struct {
	// Seed seeds the random source. Zero seeds from the clock.
	Seed int64
	// LookupDelay is the simulated latency of a reservation lookup.
	LookupDelay time.Duration
	Now         func() time.Time
	NewID       func() string
	Logger      *zap.Logger
}

type Handler struct {
	validate    *validator.Validate
	lookupDelay time.Duration
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.Logger()
	}
	seed := uint64(opts.Seed)
	if seed == 0 {
		seed = uint64(opts.Now().UnixNano())
	}

	return &Handler{
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		lookupDelay: opts.LookupDelay,
		now:         opts.Now,
		newID:       opts.NewID,
		logger:      opts.Logger.Named("flights"),
		rnd:         rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

// Routes returns the endpoints relative to the mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/flight-availability-search", h.SearchAvailability)
	r.Post("/flight-change-quote", h.Quote)
	r.Post("/get-ancillary-offers", h.AncillaryOffers)
	r.Post("/loyalty-redemption-options", h.LoyaltyOptions)
	r.Post("/confirm-flight-change", h.ConfirmChange)
	r.Post("/get-flight-details", h.FlightDetails)
	return r
}

func (h *Handler) intN(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rnd.IntN(n)
}

// statusError carries a client facing status and message out of an endpoint.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string {
	return e.msg
}

type endpoint struct {
	name        string
	invalidMsg  string
	internalMsg string
}

// maxBodyBytes caps the request body an endpoint will decode.
const maxBodyBytes = 1 << 20

const msgBodyTooLarge = "Request body too large."

// serve decodes and validates a Req, runs fn and writes its result. A body
// that is not valid JSON is a 400 with the endpoint's validation message,
// the same as a missing field, not the generic 500 reserved for server
// faults. A body over maxBodyBytes is a 413. Any
// failure of fn other than a statusError, panics included, becomes a 500
// carrying the endpoint's generic message.
func serve[Req any](h *Handler, e endpoint, fn func(ctx context.Context, logger *zap.Logger, req *Req) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invocationID := log.RequestID(r.Context())
		if invocationID == "" {
			invocationID = "func-inv-" + h.newID()
		}
		logger := h.logger.With(
			zap.String("invocation_id", invocationID),
			zap.String("function", e.name),
		)

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("An unhandled error occurred", zap.Any("panic", rec), zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, ErrorBody{Status: http.StatusInternalServerError, Error: e.internalMsg})
			}
		}()

		logger.Info("Function execution started")

		var req Req
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				logger.Warn("Request body too large", zap.Int64("limit", tooLarge.Limit))
				writeJSON(w, http.StatusRequestEntityTooLarge, ErrorBody{Status: http.StatusRequestEntityTooLarge, Error: msgBodyTooLarge})
				return
			}
			logger.Warn("Input validation failed", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, ErrorBody{Status: http.StatusBadRequest, Error: e.invalidMsg})
			return
		}
		if err := h.validate.Struct(&req); err != nil {
			logger.Warn("Input validation failed", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, ErrorBody{Status: http.StatusBadRequest, Error: e.invalidMsg})
			return
		}
		logger.Debug("Input validation successful", zap.Any("request", req))

		resp, err := fn(r.Context(), logger, &req)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) {
				logger.Warn("Request could not be served", zap.Int("status", se.status), zap.String("reason", se.msg))
				writeJSON(w, se.status, ErrorBody{Status: se.status, Error: se.msg})
				return
			}
			logger.Error("An unhandled error occurred", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorBody{Status: http.StatusInternalServerError, Error: e.internalMsg})
			return
		}

		logger.Info("Function execution completed successfully")
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Logger().Warn("Failed to write body to HTTP response", zap.Error(err))
	}
}
