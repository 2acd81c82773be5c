package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"remindr/internal/quota"
	"remindr/internal/scanner"
	"remindr/internal/store/pg"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

type Common struct {
	Port        string `envconfig:"PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// postgres or memory; memory is for local runs only.
	Store string `envconfig:"STORE" default:"postgres"`
}

type DB struct {
	DBDSN             string        `envconfig:"DB_DSN"`
	MaxConns          int32         `envconfig:"DB_POOL_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`
	MaxConnIdleTime   time.Duration `envconfig:"DB_POOL_MAX_CONN_IDLE_TIME" default:"5m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_POOL_HEALTH_CHECK_PERIOD" default:"30s"`
}

func (d DB) PoolOptions() pg.PoolOptions {
	return pg.PoolOptions{
		MaxConns:          d.MaxConns,
		MinConns:          d.MinConns,
		MaxConnLifetime:   d.MaxConnLifetime,
		MaxConnIdleTime:   d.MaxConnIdleTime,
		HealthCheckPeriod: d.HealthCheckPeriod,
	}
}

type Quota struct {
	// postgres or redis
	QuotaBackend  string `envconfig:"QUOTA_BACKEND" default:"postgres"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_QUOTA_PREFIX" default:"quota:"`
}

func (q Quota) RedisOptions() quota.RedisOptions {
	return quota.RedisOptions{Addr: q.RedisAddr, Password: q.RedisPassword, DB: q.RedisDB}
}

type SQS struct {
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-east-1"`
	SQSQueueURL        string `envconfig:"SQS_QUEUE_URL"`
	SQSFIFO            bool   `envconfig:"SQS_FIFO" default:"false"`
	LocalstackEndpoint string `envconfig:"LOCALSTACK_ENDPOINT"`
	SQSWaitTime        int32  `envconfig:"SQS_WAIT_TIME" default:"20"`
	SQSMaxMsgs         int32  `envconfig:"SQS_MAX_MSGS" default:"10"`
	SQSVizTimeout      int32  `envconfig:"SQS_VISIBILITY_TIMEOUT" default:"60"`
}

type Twilio struct {
	TwilioAccountSID          string        `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken           string        `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioMessagingServiceSID string        `envconfig:"TWILIO_MESSAGING_SERVICE_SID"`
	TwilioFromNumber          string        `envconfig:"TWILIO_FROM_NUMBER"`
	TwilioBaseURL             string        `envconfig:"TWILIO_BASE_URL" default:"https://api.twilio.com"`
	TwilioStatusCallbackURL   string        `envconfig:"TWILIO_STATUS_CALLBACK_URL"`
	TwilioRPSPerPod           float64       `envconfig:"TWILIO_RPS_PER_POD" default:"5"`
	TwilioBurst               int           `envconfig:"TWILIO_BURST" default:"10"`
	TwilioSendTimeout         time.Duration `envconfig:"TWILIO_SEND_TIMEOUT" default:"5s"`
	BreakerOpenTimeout        time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
	BreakerFailures           uint32        `envconfig:"BREAKER_CONSECUTIVE_FAILURES" default:"5"`
}

type Inbound struct {
	VocabularyPath string        `envconfig:"VOCABULARY_PATH"`
	PendingWindow  time.Duration `envconfig:"PENDING_WINDOW" default:"48h"`
}

type ScannerConfig struct {
	Common
	DB
	Quota
	Twilio

	ScanCadence       time.Duration `envconfig:"SCAN_CADENCE" default:"1m"`
	ScanWindow        time.Duration `envconfig:"SCAN_WINDOW" default:"2m"`
	MissedHorizon     time.Duration `envconfig:"SCAN_MISSED_HORIZON" default:"0"`
	ScanBatchSize     int           `envconfig:"SCAN_BATCH_SIZE" default:"500"`
	ScanConcurrency   int           `envconfig:"SCAN_CONCURRENCY" default:"8"`
	StaleClaimAfter   time.Duration `envconfig:"STALE_CLAIM_AFTER" default:"10m"`
	MissedPolicy      string        `envconfig:"MISSED_POLICY" default:"send"`
	UnconfirmedPolicy string        `envconfig:"UNCONFIRMED_POLICY" default:"send"`
}

func (c ScannerConfig) Scanner() scanner.Config {
	return scanner.Config{
		Cadence:           c.ScanCadence,
		Window:            c.ScanWindow,
		MissedHorizon:     c.MissedHorizon,
		BatchSize:         c.ScanBatchSize,
		Concurrency:       c.ScanConcurrency,
		StaleClaimAfter:   c.StaleClaimAfter,
		MissedPolicy:      scanner.MissedPolicy(c.MissedPolicy),
		UnconfirmedPolicy: scanner.UnconfirmedPolicy(c.UnconfirmedPolicy),
	}
}

type WebhookConfig struct {
	Common
	DB
	SQS
	Inbound

	// Signature verification needs the exact public URL configured in Twilio;
	// route paths are appended to it.
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" required:"true"`
	PublicWebhookURL string `envconfig:"PUBLIC_WEBHOOK_URL" required:"true"`
}

type InboundProcessorConfig struct {
	Common
	DB
	SQS
	Inbound
	Twilio

	WorkerConcurrency int `envconfig:"WORKER_CONCURRENCY" default:"20"`
}

type APIConfig struct {
	Common
	DB
	Quota
}

type MockCarrierConfig struct {
	Port       string `envconfig:"PORT" default:"8089"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	AccountSID string `envconfig:"TWILIO_ACCOUNT_SID" default:"mock_sid"`
	AuthToken  string `envconfig:"TWILIO_AUTH_TOKEN" default:"mock_token"`

	// Status callbacks go here unless the send names its own StatusCallback.
	CallbackURL   string        `envconfig:"MOCK_CALLBACK_URL"`
	CallbackDelay time.Duration `envconfig:"MOCK_CALLBACK_DELAY" default:"1s"`
	// Simulated replies are forwarded to this inbound webhook.
	InboundURL string `envconfig:"MOCK_INBOUND_URL"`
	// Destinations starting with this prefix are rejected as invalid.
	InvalidPrefix string `envconfig:"MOCK_INVALID_PREFIX" default:"+1555000"`
}

func LoadScanner() ScannerConfig {
	var cfg ScannerConfig
	load(&cfg)
	must(cfg.Common.validate(cfg.DB))
	must(cfg.Quota.validate())
	must(cfg.Twilio.validate())
	must(cfg.Scanner().Validate())
	return cfg
}

func LoadWebhook() WebhookConfig {
	var cfg WebhookConfig
	load(&cfg)
	// With a queue the webhook never touches the store.
	if cfg.SQSQueueURL == "" {
		must(cfg.Common.validate(cfg.DB))
	}
	return cfg
}

func LoadInboundProcessor() InboundProcessorConfig {
	var cfg InboundProcessorConfig
	load(&cfg)
	must(cfg.Common.validate(cfg.DB))
	if cfg.SQSQueueURL == "" {
		must(fmt.Errorf("SQS_QUEUE_URL is required"))
	}
	return cfg
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	load(&cfg)
	must(cfg.Common.validate(cfg.DB))
	must(cfg.Quota.validate())
	return cfg
}

func LoadMockCarrier() MockCarrierConfig {
	var cfg MockCarrierConfig
	load(&cfg)
	return cfg
}

func (c Common) validate(db DB) error {
	switch c.Store {
	case BackendPostgres:
		if db.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required when STORE=%s", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	return nil
}

func (q Quota) validate() error {
	switch q.QuotaBackend {
	case BackendPostgres, BackendRedis:
		return nil
	}
	return fmt.Errorf("unknown QUOTA_BACKEND %q", q.QuotaBackend)
}

func (t Twilio) validate() error {
	if t.TwilioAccountSID == "" || t.TwilioAuthToken == "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
	}
	if t.TwilioMessagingServiceSID == "" && t.TwilioFromNumber == "" {
		return fmt.Errorf("one of TWILIO_MESSAGING_SERVICE_SID or TWILIO_FROM_NUMBER is required")
	}
	return nil
}

func load(cfg any) {
	if err := envconfig.Process("", cfg); err != nil {
		panic(err)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
