package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	MetricsAddr   string
	DrainDuration time.Duration
	ShutdownGrace time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	DatabaseURL string
	CatalogFile string

	Redis      RedisConfig
	Kafka      KafkaConfig
	Issuer     IssuerConfig
	Signer     SignerConfig
	Ledger     LedgerConfig
	EntityData EntityDataConfig
	Onboarding OnboardingConfig
	Nonce      NonceConfig
}

// RedisConfig configures the nonce store backend. An empty URL selects the
// in-memory store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures outbox publishing. No brokers means events are
// logged and marked published.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partitions   int32
	Replication  int16
	PollInterval time.Duration
	BatchSize    int
}

// IssuerConfig identifies this gateway as a credential issuer.
type IssuerConfig struct {
	BaseURL               string
	OperatorDID           string
	VerifierID            string
	PrivateKeyJWK         string
	IncludeAccreditations bool
}

// SignerConfig points at the external signing and authorization service.
type SignerConfig struct {
	URL     string
	Timeout time.Duration
}

// LedgerConfig points at the ledger JSON-RPC gateway and its registries.
type LedgerConfig struct {
	RPCURL   string
	DIDRURL  string
	TIRURL   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// EntityDataConfig configures the entity-data backend. Mock answers with
// development fixtures and is only honoured when URL is empty.
type EntityDataConfig struct {
	URL     string
	Auth    string
	Mock    bool
	Timeout time.Duration
}

// OnboardingConfig sizes the ledger registration worker pool.
type OnboardingConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries uint64
	RetryDelay time.Duration
	DrainAfter time.Duration
}

// NonceConfig bounds the lifetime of authorization correlation records.
type NonceConfig struct {
	TTL        time.Duration
	GCInterval time.Duration
}

const (
	defaultDIDRURL = "https://api-pilot.ebsi.eu/did-registry/v5/identifiers"
	defaultTIRURL  = "https://api-pilot.ebsi.eu/trusted-issuers-registry/v5/issuers"
)

// RegistryCacheTTL bounds how long ledger registry reads are served from cache.
var RegistryCacheTTL = 5 * time.Minute

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("VCISSUER_ADDR", ":8080"),
		MetricsAddr:   envOr("VCISSUER_METRICS_ADDR", ""),
		DrainDuration: envDuration("VCISSUER_DRAIN", 5*time.Second),
		ShutdownGrace: envDuration("VCISSUER_SHUTDOWN_GRACE", 30*time.Second),
		ReadTimeout:   envDuration("VCISSUER_READ_TIMEOUT", 60*time.Second),
		WriteTimeout:  envDuration("VCISSUER_WRITE_TIMEOUT", 60*time.Second),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		CatalogFile:   os.Getenv("CATALOG_FILE"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      envList("KAFKA_BROKERS"),
			Topic:        envOr("KAFKA_TOPIC", "vcissuer.events"),
			Partitions:   int32(envInt("KAFKA_PARTITIONS", 3)),
			Replication:  int16(envInt("KAFKA_REPLICATION", 1)),
			PollInterval: envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		Issuer: IssuerConfig{
			BaseURL:               strings.TrimRight(envOr("ISSUER_URL", "http://localhost:8080"), "/"),
			OperatorDID:           os.Getenv("ISSUER_DID"),
			VerifierID:            os.Getenv("VERIFIER_ID"),
			PrivateKeyJWK:         os.Getenv("ISSUER_PRIVATE_KEY_JWK"),
			IncludeAccreditations: envBool("INCLUDE_ACCREDITATIONS"),
		},
		Signer: SignerConfig{
			URL:     strings.TrimRight(os.Getenv("SIGNER_URL"), "/"),
			Timeout: envDuration("SIGNER_TIMEOUT", 30*time.Second),
		},
		Ledger: LedgerConfig{
			RPCURL:   strings.TrimRight(os.Getenv("LEDGER_URL"), "/"),
			DIDRURL:  strings.TrimRight(envOr("EBSI_DIDR_URL", defaultDIDRURL), "/"),
			TIRURL:   strings.TrimRight(envOr("EBSI_TIR_URL", defaultTIRURL), "/"),
			Timeout:  envDuration("LEDGER_TIMEOUT", 30*time.Second),
			CacheTTL: envDuration("LEDGER_CACHE_TTL", RegistryCacheTTL),
		},
		EntityData: EntityDataConfig{
			URL:     strings.TrimRight(os.Getenv("ENTITY_DATA_URL"), "/"),
			Auth:    os.Getenv("ENTITY_DATA_AUTH"),
			Mock:    envBool("DEVELOPER_MOCKUP_ENTITIES"),
			Timeout: envDuration("ENTITY_DATA_TIMEOUT", 15*time.Second),
		},
		Onboarding: OnboardingConfig{
			Workers:    envInt("ONBOARDING_WORKERS", 4),
			QueueSize:  envInt("ONBOARDING_QUEUE_SIZE", 256),
			MaxRetries: uint64(envInt("ONBOARDING_MAX_RETRIES", 3)),
			RetryDelay: envDuration("ONBOARDING_RETRY_DELAY", 15*time.Second),
			DrainAfter: envDuration("ONBOARDING_DRAIN_TIMEOUT", 2*time.Minute),
		},
		Nonce: NonceConfig{
			TTL:        envDuration("NONCE_TTL", 10*time.Minute),
			GCInterval: envDuration("NONCE_GC_INTERVAL", time.Minute),
		},
	}
	if cfg.Issuer.VerifierID == "" {
		cfg.Issuer.VerifierID = cfg.Issuer.OperatorDID
	}
	return cfg
}

// UsesPostgres reports whether durable stores are configured.
func (s Server) UsesPostgres() bool {
	return s.DatabaseURL != ""
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

// envDuration accepts Go durations ("15s") or bare seconds ("15").
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
