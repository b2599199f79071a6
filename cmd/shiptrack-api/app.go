package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/aerocargo/shiptrack/config"
	"github.com/aerocargo/shiptrack/internal/api/httpapi"
	"github.com/aerocargo/shiptrack/internal/api/wsapi"
	"github.com/aerocargo/shiptrack/internal/broker/kafka"
	"github.com/aerocargo/shiptrack/internal/cache"
	"github.com/aerocargo/shiptrack/internal/cache/rediscache"
	"github.com/aerocargo/shiptrack/internal/integrations/source/carrierstub"
	"github.com/aerocargo/shiptrack/internal/integrations/source/customsstub"
	"github.com/aerocargo/shiptrack/internal/integrations/source/industryfeed"
	"github.com/aerocargo/shiptrack/internal/services/hub"
	"github.com/aerocargo/shiptrack/internal/services/ingestion"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

// APIRepository is every storage method the api process needs across
// ingestion.Service and the manual/forced-refresh source lookup, the same
// narrow-interface-over-pgshipment.Storage shape defaultWorkerFactories
// uses on the worker side.
type APIRepository interface {
	ingestion.Repository
	httpapi.SourceLookup
	httpapi.HealthChecker
}

// apiFactories keeps every external dependency behind a factory func so
// runShipTrackAPI is testable with fakes, the same way
// cmd/shiptrack-worker's workerFactories is.
type apiFactories struct {
	newStorage     func(cfg *config.Config) (repo APIRepository, closeFn func(), err error)
	newCache       func(cfg *config.Config) cache.BytesCache
	newProducer    func(cfg *config.Config) ingestion.JobNotifier
	newConsumer    func(cfg *config.Config) kafkaConsumer
	newRateLimiter func(cfg *config.Config) httpapi.RateLimiter
	newSources     func(cfg *config.Config, repo APIRepository) []httpapi.SourceClient
}

func defaultAPIFactories() apiFactories {
	return apiFactories{
		newStorage: func(cfg *config.Config) (APIRepository, func(), error) {
			st, err := openStorage(cfg)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newCache: func(cfg *config.Config) cache.BytesCache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
		newProducer: func(cfg *config.Config) ingestion.JobNotifier {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newConsumer: func(cfg *config.Config) kafkaConsumer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers, cfg.Kafka.RawEventsTopicName, cfg.ShipTrack.KafkaConsumerGroup)
		},
		newRateLimiter: func(cfg *config.Config) httpapi.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newSources: defaultAPISources,
	}
}

// defaultAPISources mirrors cmd/shiptrack-worker's defaultSources: the
// same three pollable adapters, wrapped for httpapi's synchronous "Force
// adapter refresh" path instead of the worker's async poll loop.
func defaultAPISources(cfg *config.Config, st APIRepository) []httpapi.SourceClient {
	var out []httpapi.SourceClient

	if cfg.ShipTrack.IndustryFeedEnabled {
		if src, err := st.GetSourceByName(context.Background(), "industry-feed"); err == nil {
			out = append(out, httpapi.SourceClient{
				SourceID: src.ID, Name: src.Name,
				Client: industryfeed.New(cfg.ShipTrack.IndustryFeedBaseURL, cfg.ShipTrack.IndustryFeedAPIKey, src.ID),
			})
		}
	}
	if src, err := st.GetSourceByName(context.Background(), "carrier-api"); err == nil {
		out = append(out, httpapi.SourceClient{SourceID: src.ID, Name: src.Name, Client: carrierstub.New()})
	}
	if src, err := st.GetSourceByName(context.Background(), "customs-api"); err == nil {
		out = append(out, httpapi.SourceClient{SourceID: src.ID, Name: src.Name, Client: customsstub.New()})
	}
	return out
}

func openStorage(cfg *config.Config) (*pgshipment.Storage, error) {
	return pgshipment.New(connString(cfg))
}

func connString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

type apiApp struct {
	router http.Handler
	hub    *hub.Hub
	svc    *ingestion.Service
}

// runShipTrackAPI wires ingestion.Service, the subscription hub, the REST
// and websocket surfaces, and the raw-events kafka consumer into one HTTP
// listener, then blocks until ctx is cancelled; the api half of the
// two-process topology cmd/shiptrack-worker's RunWorker is the other half
// of.
func runShipTrackAPI(ctx context.Context, cfg *config.Config, f apiFactories, swaggerPath string, onReady func(*apiApp, string)) error {
	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	h := hub.New(cfg.ShipTrack.HubQueueCapacityPerClient, cfg.ShipTrack.HubMaxDropsBeforeDisconnect, nil)

	svc := ingestion.New(st, f.newCache(cfg), h, f.newProducer(cfg),
		time.Duration(cfg.ShipTrack.CurrentSnapshotTTLSeconds)*time.Second,
		cfg.Kafka.NotificationJobsTopicName)

	access := wsapi.NewServiceAccess(svc, cfg.ShipTrack.AuthTokenSecret)
	h.SetAccessChecker(access)

	sources := f.newSources(cfg, st)
	trigger := newWorkerTrigger(cfg.ShipTrack.WorkerBaseURL)

	api := httpapi.New(svc, sources, st, f.newRateLimiter(cfg), trigger, st, cfg.ShipTrack.AuthTokenSecret)
	ws := wsapi.New(h, access, access, access)

	r := chi.NewRouter()
	r.Mount("/", api.Router())
	r.Get("/ws", ws.HandleWS)
	if swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) { http.ServeFile(w, r, swaggerPath) })
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	}

	if onReady != nil {
		onReady(&apiApp{router: r, hub: h, svc: svc}, cfg.ShipTrack.HTTPAddr)
	}

	consumer := f.newConsumer(cfg)
	defer func() { _ = consumer.Close() }()

	consumerErr := make(chan error, 1)
	go func() {
		slog.Info("kafka raw-events consumer started", "topic", cfg.Kafka.RawEventsTopicName, "group", cfg.ShipTrack.KafkaConsumerGroup)
		consumerErr <- consumer.Consume(ctx, func(key, value []byte) error {
			return applyRawEvent(ctx, svc, key, value)
		})
	}()

	lis, err := net.Listen("tcp", cfg.ShipTrack.HTTPAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		h.Shutdown("service shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShipTrack.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP api listening", "addr", lis.Addr().String())
	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		if err == http.ErrServerClosed {
			return ctx.Err()
		}
		return err
	case err := <-consumerErr:
		return err
	}
}

func swaggerPathFromEnv() string {
	p := os.Getenv("swaggerPath")
	if p == "" {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		slog.Warn("swagger file not found, docs routes disabled", "path", p)
		return ""
	}
	return p
}
