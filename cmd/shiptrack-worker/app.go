package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aerocargo/shiptrack/config"
	"github.com/aerocargo/shiptrack/internal/broker/kafka"
	"github.com/aerocargo/shiptrack/internal/cache/rediscache"
	"github.com/aerocargo/shiptrack/internal/integrations/source/carrierstub"
	"github.com/aerocargo/shiptrack/internal/integrations/source/customsstub"
	"github.com/aerocargo/shiptrack/internal/integrations/source/industryfeed"
	"github.com/aerocargo/shiptrack/internal/models"
	"github.com/aerocargo/shiptrack/internal/services/notify"
	"github.com/aerocargo/shiptrack/internal/services/poller"
	"github.com/aerocargo/shiptrack/internal/storage/pgshipment"
)

// WorkerRepository is every storage method the three worker loops need
// combined: poller.Repository, notify.Repository, notify.EventLoader,
// notify.SweepRepository, plus the source-row lookup defaultSources uses.
// Kept as one interface (rather than threading pgshipment.Storage through
// directly) so RunWorker stays testable with a fake.
type WorkerRepository interface {
	poller.Repository
	notify.Repository
	notify.EventLoader
	notify.SweepRepository
	GetSourceByName(ctx context.Context, name string) (*models.Source, error)
}

// workerFactories keeps every external dependency behind a factory func
// so RunWorker is testable with fakes.
type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo WorkerRepository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) poller.Producer
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
	newSources     func(cfg *config.Config, repo WorkerRepository) ([]poller.SourceClient, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (WorkerRepository, func(), error) {
			st, err := pgshipment.New(connString(cfg))
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newSources: defaultSources,
	}
}

// defaultSources resolves every source row this process can poll (Manual
// is excluded: it has no Fetch loop, only the API's manual-apply path;
// Ground handler has no adapter in this system, see DESIGN.md) and wraps
// it with its seeded source_id so the poller stamps events correctly.
func defaultSources(cfg *config.Config, st WorkerRepository) ([]poller.SourceClient, error) {
	var out []poller.SourceClient

	if cfg.ShipTrack.IndustryFeedEnabled {
		src, err := st.GetSourceByName(context.Background(), "industry-feed")
		if err != nil {
			return nil, err
		}
		out = append(out, poller.SourceClient{
			SourceID: src.ID,
			Name:     src.Name,
			Client:   industryfeed.New(cfg.ShipTrack.IndustryFeedBaseURL, cfg.ShipTrack.IndustryFeedAPIKey, src.ID),
		})
	}

	carrierSrc, err := st.GetSourceByName(context.Background(), "carrier-api")
	if err != nil {
		return nil, err
	}
	out = append(out, poller.SourceClient{SourceID: carrierSrc.ID, Name: carrierSrc.Name, Client: carrierstub.New()})

	customsSrc, err := st.GetSourceByName(context.Background(), "customs-api")
	if err != nil {
		return nil, err
	}
	out = append(out, poller.SourceClient{SourceID: customsSrc.ID, Name: customsSrc.Name, Client: customsstub.New()})

	return out, nil
}

func connString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

// workerApp bundles the poller, dispatcher and sweeper so RunWorker can
// start all three and stop cleanly on ctx cancellation.
type workerApp struct {
	poller     *poller.Poller
	dispatcher *notify.Dispatcher
	sweeper    *notify.Sweeper
}

func RunWorker(ctx context.Context, cfg *config.Config, f workerFactories, onReady func(app *workerApp)) error {
	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	sources, err := f.newSources(cfg, st)
	if err != nil {
		return err
	}

	topic := cfg.Kafka.RawEventsTopicName
	if topic == "" {
		topic = "shipment.raw-events"
	}

	p := poller.New(st, sources, f.newProducer(cfg), f.newRateLimiter(cfg), topic).
		WithSettings(
			time.Duration(cfg.ShipTrack.SchedulerIntervalMinutes)*time.Minute,
			cfg.ShipTrack.SchedulerBatchSize,
			cfg.ShipTrack.SchedulerConcurrency,
			int64(cfg.ShipTrack.SchedulerRateLimitPerMinute),
		)

	router := notify.NewRouter(notify.NewLogDeliverer())
	router.Register("WEBHOOK", notify.NewWebhookDeliverer(time.Duration(cfg.ShipTrack.NotificationDeliverTimeoutSeconds)*time.Second))
	router.Register("PUSH", notify.PushDeliverer{})

	dispatcher := notify.NewDispatcher(st, st, router,
		time.Duration(cfg.ShipTrack.NotificationPollIntervalSeconds)*time.Second,
		cfg.ShipTrack.NotificationBatchSize)
	sweeper := notify.NewSweeper(st, time.Duration(cfg.ShipTrack.NotificationSweepIntervalSeconds)*time.Second, cfg.ShipTrack.NotificationBatchSize)

	if onReady != nil {
		onReady(&workerApp{poller: p, dispatcher: dispatcher, sweeper: sweeper})
	}

	errCh := make(chan error, 3)
	go func() { errCh <- p.Run(ctx) }()
	go func() { errCh <- dispatcher.Run(ctx) }()
	go func() { errCh <- sweeper.Run(ctx) }()

	return <-errCh
}
