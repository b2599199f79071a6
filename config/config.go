package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ShipTrack ShipTrackConfig `yaml:"shiptrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	RawEventsTopicName        string `yaml:"raw_events_topic_name"`
	NotificationJobsTopicName string `yaml:"notification_jobs_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ShipTrackConfig is the tracking backbone's own settings: database and
// cache endpoints live above, this covers the auth secret, source adapter
// settings, scheduler tuning, hub queue sizing, and the notification
// poll, sweep and delivery-timeout settings.
type ShipTrackConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	WorkerHTTPAddr string `yaml:"worker_http_addr"`
	WorkerBaseURL  string `yaml:"worker_base_url"`

	AuthTokenSecret string `yaml:"auth_token_secret"`

	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CurrentSnapshotTTLSeconds int `yaml:"current_snapshot_ttl_seconds"`

	IndustryFeedBaseURL string `yaml:"industry_feed_base_url"`
	IndustryFeedAPIKey  string `yaml:"industry_feed_api_key"`
	IndustryFeedEnabled bool   `yaml:"industry_feed_enabled"`

	SchedulerIntervalMinutes    int `yaml:"scheduler_interval_minutes"`
	SchedulerBatchSize          int `yaml:"scheduler_batch_size"`
	SchedulerConcurrency        int `yaml:"scheduler_concurrency"`
	SchedulerRateLimitPerMinute int `yaml:"scheduler_rate_limit_per_minute"`

	HubQueueCapacityPerClient   int   `yaml:"hub_queue_capacity_per_client"`
	HubMaxDropsBeforeDisconnect int64 `yaml:"hub_max_drops_before_disconnect"`

	NotificationPollIntervalSeconds   int `yaml:"notification_poll_interval_seconds"`
	NotificationBatchSize             int `yaml:"notification_batch_size"`
	NotificationSweepIntervalSeconds  int `yaml:"notification_sweep_interval_seconds"`
	NotificationDeliverTimeoutSeconds int `yaml:"notification_deliver_timeout_seconds"`

	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.ShipTrack.HTTPAddr == "" {
		c.ShipTrack.HTTPAddr = ":8080"
	}
	if c.ShipTrack.WorkerHTTPAddr == "" {
		c.ShipTrack.WorkerHTTPAddr = ":8081"
	}
	if c.ShipTrack.WorkerBaseURL == "" {
		c.ShipTrack.WorkerBaseURL = "http://localhost:8081"
	}
	if c.ShipTrack.KafkaConsumerGroup == "" {
		c.ShipTrack.KafkaConsumerGroup = "shiptrack-api"
	}
	if c.ShipTrack.CurrentSnapshotTTLSeconds <= 0 {
		c.ShipTrack.CurrentSnapshotTTLSeconds = 30
	}
	if c.ShipTrack.SchedulerIntervalMinutes <= 0 {
		c.ShipTrack.SchedulerIntervalMinutes = 1
	}
	if c.ShipTrack.SchedulerBatchSize <= 0 {
		c.ShipTrack.SchedulerBatchSize = 100
	}
	if c.ShipTrack.SchedulerConcurrency <= 0 {
		c.ShipTrack.SchedulerConcurrency = 10
	}
	if c.ShipTrack.SchedulerRateLimitPerMinute <= 0 {
		c.ShipTrack.SchedulerRateLimitPerMinute = 120
	}
	if c.ShipTrack.HubQueueCapacityPerClient <= 0 {
		c.ShipTrack.HubQueueCapacityPerClient = 64
	}
	if c.ShipTrack.HubMaxDropsBeforeDisconnect <= 0 {
		c.ShipTrack.HubMaxDropsBeforeDisconnect = 50
	}
	if c.ShipTrack.NotificationPollIntervalSeconds <= 0 {
		c.ShipTrack.NotificationPollIntervalSeconds = 3
	}
	if c.ShipTrack.NotificationBatchSize <= 0 {
		c.ShipTrack.NotificationBatchSize = 50
	}
	if c.ShipTrack.NotificationSweepIntervalSeconds <= 0 {
		c.ShipTrack.NotificationSweepIntervalSeconds = 60
	}
	if c.ShipTrack.NotificationDeliverTimeoutSeconds <= 0 {
		c.ShipTrack.NotificationDeliverTimeoutSeconds = 30
	}
	if c.ShipTrack.ShutdownTimeoutSeconds <= 0 {
		c.ShipTrack.ShutdownTimeoutSeconds = 30
	}
	if c.Kafka.RawEventsTopicName == "" {
		c.Kafka.RawEventsTopicName = "shipment.raw-events"
	}
	if c.Kafka.NotificationJobsTopicName == "" {
		c.Kafka.NotificationJobsTopicName = "shipment.notification-jobs"
	}
}
