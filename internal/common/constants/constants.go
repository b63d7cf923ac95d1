package constants

import "time"

const (
	UsernameMinLength  = 3
	UsernameMaxLength  = 50
	FirstNameMinLength = 3
	FirstNameMaxLength = 50
	LastNameMaxLength  = 50
	BiographyMaxLength = 4000

	DefaultMaxRequestSize = 1 << 20

	DefaultCacheRetention     = time.Hour
	DefaultCacheTimeout       = 500 * time.Millisecond
	DefaultCacheRetryAttempts = 5
	DefaultCacheRetryBase     = 100 * time.Millisecond
	CacheKeyPrefix            = "appuser:"

	DefaultEmitTimeout       = 5 * time.Second
	DefaultEmitRetryAttempts = 5
	DefaultEmitRetryDelay    = 200 * time.Millisecond
	DefaultCorrelationHeader = "correlationId"
	DefaultEventsStream      = "APPUSERS"
	DefaultEventsSubject     = "appusers.changed"
	DefaultEventsExchange    = "appusers"
	DefaultEventsRoutingKey  = "appusers.changed"
	BrokerConnectTimeout     = 10 * time.Second
	BrokerConfirmTimeout     = 5 * time.Second

	DefaultOutboxSchedule    = "@every 30s"
	DefaultOutboxItemsPerRun = 30
	OutboxReprocessTimeout   = 2 * time.Minute

	DefaultTaskWorkers   = 4
	DefaultTaskQueueSize = 1000
	DefaultTaskTimeout   = 10 * time.Second

	DBPoolMaxOpenConns    = 25
	DBPoolMinOpenConns    = 5
	DBPoolConnMaxLifetime = time.Hour
	DBPoolConnMaxIdleTime = 30 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 5 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second
	DBApplicationName     = "user-directory"

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultUserDirHTTPPort         = "8080"
	DefaultUserDirRequestTimeout   = 5 * time.Second
	DefaultCircuitBreakerThreshold = 5
	DefaultCircuitBreakerReset     = 30 * time.Second

	RateLimitCleanupInterval          = 5 * time.Minute
	RateLimitWriteRequestsPerSecond   = 20
	RateLimitWriteBurst               = 40
	RateLimitGeneralRequestsPerSecond = 100
	RateLimitGeneralBurst             = 200

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const (
	TraceIDKey       TraceIDKeyType = "trace_id"
	CorrelationIDKey TraceIDKeyType = "correlation_id"
)

const (
	TraceIDHeader       = "X-Trace-ID"
	CorrelationIDHeader = "X-Request-ID"
)
