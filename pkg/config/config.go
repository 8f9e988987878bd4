package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Academic     AcademicConfig
	Quota        QuotaConfig
	Jobs         JobsConfig
	Storage      StorageConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	S3           S3Config
	PubSub       PubSubConfig
	Cache        CacheConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MIVAHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"MIVAHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MIVAHUB_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"MIVAHUB_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"MIVAHUB_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string      `envconfig:"MIVAHUB_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout    time.Duration `envconfig:"MIVAHUB_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MIVAHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MIVAHUB_DB_DSN"`
	Driver string `envconfig:"MIVAHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MIVAHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"MIVAHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MIVAHUB_DB_USER"`
	LegacyPassword string `envconfig:"MIVAHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"MIVAHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"MIVAHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MIVAHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MIVAHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MIVAHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MIVAHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MIVAHUB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MIVAHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MIVAHUB_REDIS_ADDR"`
	Password     string        `envconfig:"MIVAHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"MIVAHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MIVAHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIVAHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MIVAHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MIVAHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MIVAHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"MIVAHUB_REDIS_KEY_PREFIX" default:"mh"`
}

// JWTConfig holds the settings used to verify access tokens minted by the
// identity provider in front of this service.
type JWTConfig struct {
	Secret            string `envconfig:"MIVAHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MIVAHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MIVAHUB_JWT_EXPIRATION_MINUTES" default:"60"`
	// Leeway absorbs clock skew between this service and the token issuer.
	Leeway time.Duration `envconfig:"MIVAHUB_JWT_LEEWAY" default:"30s"`
}

// AcademicConfig carries the campus-wide settings that request handlers read
// instead of looking them up globally.
type AcademicConfig struct {
	CurrentSemester string   `envconfig:"MIVAHUB_CURRENT_SEMESTER" default:"Fall 2025"`
	AdminEmails     []string `envconfig:"MIVAHUB_ADMIN_EMAILS"`
}

// IsAdminEmail reports whether email is on the admin allow-list.
func (a AcademicConfig) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, candidate := range a.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(candidate), email) {
			return true
		}
	}
	return false
}

type QuotaConfig struct {
	UploadUsageType  string        `envconfig:"MIVAHUB_QUOTA_UPLOAD_USAGE_TYPE" default:"uploads"`
	CounterRetention time.Duration `envconfig:"MIVAHUB_QUOTA_COUNTER_RETENTION" default:"2160h"`
	UpgradeURL       string        `envconfig:"MIVAHUB_QUOTA_UPGRADE_URL" default:"/pricing"`
}

type JobsConfig struct {
	WorkerBaseURL   string        `envconfig:"MIVAHUB_WORKER_BASE_URL" required:"true"`
	WorkerToken     string        `envconfig:"MIVAHUB_WORKER_TOKEN"`
	DispatchTimeout time.Duration `envconfig:"MIVAHUB_DISPATCH_TIMEOUT" default:"10s"`
	StaleAfter      time.Duration `envconfig:"MIVAHUB_JOB_STALE_AFTER" default:"30m"`
	CallbackToken   string        `envconfig:"MIVAHUB_JOB_CALLBACK_TOKEN" required:"true"`
}

type StorageConfig struct {
	Backend     string `envconfig:"MIVAHUB_STORAGE_BACKEND" default:"gcs"`
	MaxUploadMB int    `envconfig:"MIVAHUB_MAX_UPLOAD_MB" default:"50"`
}

// MaxUploadBytes converts the configured upload ceiling to bytes.
func (s StorageConfig) MaxUploadBytes() int64 {
	if s.MaxUploadMB <= 0 {
		return 0
	}
	return int64(s.MaxUploadMB) << 20
}

func (s *StorageConfig) validate() error {
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case StorageBackendGCS, StorageBackendS3:
		return nil
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvStorageBackend, StorageBackendGCS, StorageBackendS3)
	}
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MIVAHUB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MIVAHUB_EVENTING_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MIVAHUB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MIVAHUB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MIVAHUB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"MIVAHUB_GCS_BUCKET_NAME"`
	// Endpoint points at an emulator such as fake-gcs-server. Requests to it
	// are sent without credentials.
	Endpoint string `envconfig:"MIVAHUB_GCS_ENDPOINT"`
}

type S3Config struct {
	Bucket          string `envconfig:"MIVAHUB_S3_BUCKET"`
	Region          string `envconfig:"MIVAHUB_S3_REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"MIVAHUB_S3_ENDPOINT"`
	AccessKeyID     string `envconfig:"MIVAHUB_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"MIVAHUB_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `envconfig:"MIVAHUB_S3_USE_PATH_STYLE" default:"false"`
}

type PubSubConfig struct {
	JobResultsSubscription string `envconfig:"MIVAHUB_PUBSUB_JOB_RESULTS_SUBSCRIPTION" default:"mh-job-results-sub"`
	JobEventsTopic         string `envconfig:"MIVAHUB_PUBSUB_JOB_EVENTS_TOPIC" default:"mh-job-events"`
}

type CacheConfig struct {
	PlanCacheSize int           `envconfig:"MIVAHUB_PLAN_CACHE_SIZE" default:"256"`
	PlanCacheTTL  time.Duration `envconfig:"MIVAHUB_PLAN_CACHE_TTL" default:"1m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MIVAHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MIVAHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MIVAHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Tick                 time.Duration `envconfig:"MIVAHUB_CRON_TICK" default:"1m"`
	LockTTL              time.Duration `envconfig:"MIVAHUB_CRON_LOCK_TTL" default:"10m"`
	StaleSweepEvery      time.Duration `envconfig:"MIVAHUB_CRON_STALE_SWEEP_EVERY" default:"5m"`
	CounterGCEvery       time.Duration `envconfig:"MIVAHUB_CRON_COUNTER_GC_EVERY" default:"24h"`
	OutboxRetentionEvery time.Duration `envconfig:"MIVAHUB_CRON_OUTBOX_RETENTION_EVERY" default:"24h"`
	OutboxRetentionDays  int           `envconfig:"MIVAHUB_OUTBOX_RETENTION_DAYS" default:"30"`
	StaleSweepBatchSize  int           `envconfig:"MIVAHUB_STALE_SWEEP_BATCH_SIZE" default:"500"`
}

// RateLimitConfig bounds how fast a single caller can push uploads.
type RateLimitConfig struct {
	UploadWindow  time.Duration `envconfig:"MIVAHUB_UPLOAD_RATE_WINDOW" default:"1m"`
	UploadPerUser int           `envconfig:"MIVAHUB_UPLOAD_RATE_PER_USER" default:"10"`
	UploadPerIP   int           `envconfig:"MIVAHUB_UPLOAD_RATE_PER_IP" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
