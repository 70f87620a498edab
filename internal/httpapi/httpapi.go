package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"lunamatcha/backend/internal/analytics"
	"lunamatcha/backend/internal/bucket"
	"lunamatcha/backend/internal/daylock"
	"lunamatcha/backend/internal/service"
	"lunamatcha/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type API struct {
	service        *service.Service
	analytics      *analytics.Rollup
	allowedOrigins []string
	requestTimeout time.Duration
}

func New(svc *service.Service, rollup *analytics.Rollup, opts Options) *API {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	return &API{
		service:        svc,
		analytics:      rollup,
		allowedOrigins: opts.AllowedOrigins,
		requestTimeout: opts.RequestTimeout,
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(recoverer)
	r.Use(a.withCORS)
	r.Use(limitBody)
	r.Use(middleware.Timeout(a.requestTimeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", a.handleListOrders)
			r.Post("/", a.handleCreateOrder)
			r.Get("/held", a.handleListHeldOrders)
			r.Get("/{id}", a.handleGetOrder)
			r.Put("/{id}", a.handleUpdateOrder)
			r.Delete("/{id}", a.handleDeleteOrder)
			r.Post("/{id}/hold", a.handleHoldOrder)
			r.Post("/{id}/restore", a.handleRestoreOrder)
			r.Post("/{id}/complete", a.handleCompleteOrder)
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Get("/", a.handleGetShift)
			r.Get("/list", a.handleListShifts)
			r.Put("/{id}/start-amount", a.handleSetStartAmount)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/daily", a.handlePeriod(bucket.Day, "date"))
			r.Get("/weekly", a.handlePeriod(bucket.Week, "week"))
			r.Get("/monthly", a.handlePeriod(bucket.Month, "month"))
			r.Get("/quarterly", a.handlePeriod(bucket.Quarter, "quarter"))
			r.Get("/yearly", a.handlePeriod(bucket.Year, "year"))
			r.Get("/peak-hours", a.handlePeakHours)
			r.Get("/products", a.handleTopProducts)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "Server is running")
}

func (a *API) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if origin := a.corsOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) corsOrigin(origin string) string {
	if slices.Contains(a.allowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(a.allowedOrigins, origin) {
		return origin
	}
	return ""
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverer turns a handler panic into the usual JSON 500 body.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			writeError(w, r, http.StatusInternalServerError, fmt.Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one event per request; the level follows the status.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(startedAt)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("client_ip", r.RemoteAddr).
			Msg("request processed")
	})
}

// writeServiceError maps domain errors onto HTTP statuses. ErrNotHeld wraps
// ErrConflict but is a client mistake, so it is checked first.
func writeServiceError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	switch {
	case errors.Is(err, service.ErrNotHeld):
		writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrValidation), errors.Is(err, bucket.ErrInvalidReference):
		writeError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, errors.New(resource+" not found"))
	case errors.Is(err, store.ErrConflict):
		writeError(w, r, http.StatusConflict, err)
	case errors.Is(err, daylock.ErrLockTimeout):
		writeError(w, r, http.StatusServiceUnavailable, err)
	default:
		writeError(w, r, http.StatusInternalServerError, err)
	}
}

// decodeJSON ignores unknown fields: clients may echo totalAmount and similar
// server-derived values, which are never trusted.
func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Error().
			Err(err).
			Int("status", status).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("internal error")
		msg = "internal server error"
	}
	writeMessage(w, status, msg)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
