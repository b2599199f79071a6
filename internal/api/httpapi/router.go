// Package httpapi is the tracking REST surface, served as chi handlers
// covering shipments, events, subscriptions, statistics and health.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/aerocargo/shiptrack/internal/integrations/source"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/services/ingestion"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SourceClient pairs an adapter with its source row id, the same shape
// the poller uses; httpapi needs its own copy because a forced refresh
// must complete synchronously in the HTTP response, not via the worker's
// async kafka pipeline.
type SourceClient struct {
	SourceID uint64
	Name     string
	Client   source.Client
}

// SourceLookup resolves the "manual" source row id for operator-submitted
// events (POST /tracking/events), a narrow slice of
// pgshipment.Storage.GetSourceByName.
type SourceLookup interface {
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
}

// RateLimiter matches rediscache.RateLimiter's shape, used to throttle the
// public AWB lookup endpoint per caller.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// SchedulerTrigger proxies POST /tracking/process-updates to whatever owns
// the poll scheduler (the worker process in the two-process topology;
// see cmd/shiptrack-api's wiring).
type SchedulerTrigger interface {
	Trigger(ctx context.Context) error
}

type HealthChecker interface {
	Healthy(ctx context.Context) error
}

type Server struct {
	svc                      *ingestion.Service
	sources                  []SourceClient
	lookup                   SourceLookup
	rl                       RateLimiter
	trigger                  SchedulerTrigger
	health                   HealthChecker
	authSecret               string
	publicRateLimitPerMinute int64
}

func New(svc *ingestion.Service, sources []SourceClient, lookup SourceLookup, rl RateLimiter, trigger SchedulerTrigger, health HealthChecker, authSecret string) *Server {
	return &Server{
		svc: svc, sources: sources, lookup: lookup, rl: rl, trigger: trigger, health: health,
		authSecret:               authSecret,
		publicRateLimitPerMinute: 60,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(identityMiddleware(s.authSecret))

	r.Get("/tracking/health", s.handleHealth)
	r.Get("/tracking/awb/{awb}", s.rateLimitedPublic(s.handleGetByAWB))
	r.Get("/tracking/shipments/{id}", requireAuthed(s.handleGetShipment))
	r.Get("/tracking/customer/{id}/history", requireSelf(pathID("id"))(s.handleCustomerHistory))
	r.Get("/tracking/shipments/{id}/events", requireAuthed(s.handleListEvents))
	r.Post("/tracking/shipments", requireOperator(s.handleCreateShipment))
	r.Post("/tracking/events", requireOperator(s.handleCreateEvent))
	r.Post("/tracking/update/{awb}", requireOperator(s.handleForceRefresh))
	r.Post("/tracking/bulk-update", requireOperator(s.handleBulkUpdate))
	r.Post("/tracking/subscribe", requireCustomer(s.handleSubscribe))
	r.Post("/tracking/shipments/{id}/cancel", requireAdmin(s.handleCancelShipment))
	r.Get("/tracking/statistics", requireAdmin(s.handleStatistics))
	r.Post("/tracking/process-updates", requireAdmin(s.handleProcessUpdates))

	return r
}

func pathID(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return chi.URLParam(r, name)
	}
}

func (s *Server) rateLimitedPublic(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.rl != nil {
			key := "rl:public:" + r.RemoteAddr
			allowed, _, err := s.rl.Allow(r.Context(), key, s.publicRateLimitPerMinute, time.Minute)
			if err == nil && !allowed {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
				return
			}
		}
		next(w, r)
	}
}
