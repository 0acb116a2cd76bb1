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
	Realtime     RealtimeConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	Retention    RetentionConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SCHOOLMIS_APP_ENV" required:"true"`
	Port         string   `envconfig:"SCHOOLMIS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"SCHOOLMIS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SCHOOLMIS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"SCHOOLMIS_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SCHOOLMIS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SCHOOLMIS_DB_DSN"`
	Driver string `envconfig:"SCHOOLMIS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SCHOOLMIS_DB_HOST"`
	LegacyPort     int    `envconfig:"SCHOOLMIS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SCHOOLMIS_DB_USER"`
	LegacyPassword string `envconfig:"SCHOOLMIS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SCHOOLMIS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SCHOOLMIS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SCHOOLMIS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SCHOOLMIS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SCHOOLMIS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SCHOOLMIS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SCHOOLMIS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SCHOOLMIS_REDIS_ADDR"`
	Password     string        `envconfig:"SCHOOLMIS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SCHOOLMIS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SCHOOLMIS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SCHOOLMIS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SCHOOLMIS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SCHOOLMIS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SCHOOLMIS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SCHOOLMIS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SCHOOLMIS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SCHOOLMIS_JWT_EXPIRATION_MINUTES" required:"true"`
}

// RealtimeConfig tunes the websocket hub and per-session buffers.
type RealtimeConfig struct {
	Path            string        `envconfig:"SCHOOLMIS_REALTIME_PATH" default:"/socket.io"`
	WriteTimeout    time.Duration `envconfig:"SCHOOLMIS_REALTIME_WRITE_TIMEOUT" default:"10s"`
	PingInterval    time.Duration `envconfig:"SCHOOLMIS_REALTIME_PING_INTERVAL" default:"25s"`
	PongTimeout     time.Duration `envconfig:"SCHOOLMIS_REALTIME_PONG_TIMEOUT" default:"60s"`
	SessionBuffer   int           `envconfig:"SCHOOLMIS_REALTIME_SESSION_BUFFER" default:"16"`
	BridgeChannel   string        `envconfig:"SCHOOLMIS_REALTIME_BRIDGE_CHANNEL" default:"smis:realtime:events"`
	ReadLimitBytes  int64         `envconfig:"SCHOOLMIS_REALTIME_READ_LIMIT_BYTES" default:"65536"`
	HandshakeWindow time.Duration `envconfig:"SCHOOLMIS_REALTIME_HANDSHAKE_WINDOW" default:"20s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SCHOOLMIS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SCHOOLMIS_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"SCHOOLMIS_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SCHOOLMIS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SCHOOLMIS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SCHOOLMIS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"SCHOOLMIS_PUBSUB_DOMAIN_TOPIC" default:"smis-domain-events"`
	DomainSubscription string `envconfig:"SCHOOLMIS_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"SCHOOLMIS_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"SCHOOLMIS_CRON_LOCK_TTL" default:"30m"`
}

type RetentionConfig struct {
	NotificationDays int `envconfig:"SCHOOLMIS_NOTIFICATION_RETENTION_DAYS" default:"90"`
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
