// Package config loads the archive configuration: a YAML file over the
// defaults, then DICOMARC_* environment variables, validated as a whole.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/caio-sobreiro/dicomarc/capability"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DICOMARC_"

// Config holds the complete archive configuration.
type Config struct {
	Server   Server             `yaml:"server"`
	Archive  Archive            `yaml:"archive"`
	AEs      []capability.Entry `yaml:"aes" validate:"dive"`
	Backend  Backend            `yaml:"backend"`
	Postgres Postgres           `yaml:"postgres"`
	Mongo    Mongo              `yaml:"mongo"`
	Redis    Redis              `yaml:"redis"`
	Storage  Storage            `yaml:"storage"`
	Minio    Minio              `yaml:"minio"`
	Auth     Auth               `yaml:"auth"`
	Logging  Logging            `yaml:"logging"`
}

// Server holds HTTP server configuration.
type Server struct {
	Addr              string        `yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	// RequestsPerMinute limits requests per client IP; 0 disables the limit.
	RequestsPerMinute int      `yaml:"requests_per_minute" validate:"gte=0"`
	CORSOrigins       []string `yaml:"cors_origins"`
}

// Archive holds matching and retrieve policy.
type Archive struct {
	// BaseURL is the public location of the archive, used in RetrieveURL.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// RetrieveAETitle is recorded for instances stored without one.
	RetrieveAETitle           string `yaml:"retrieve_ae_title" validate:"max=16"`
	FuzzyAlgorithm            string `yaml:"fuzzy_algorithm" validate:"oneof=soundex esoundex"`
	MatchUnknown              bool   `yaml:"match_unknown"`
	PersonNameCaseInsensitive bool   `yaml:"person_name_case_insensitive"`
	// AlwaysInclude lists, per query level, attribute keywords returned
	// whatever fields a search requests.
	AlwaysInclude     map[string][]string `yaml:"always_include"`
	BulkDataThreshold int64               `yaml:"bulk_data_threshold"`
	JPEGQuality       int                 `yaml:"jpeg_quality" validate:"gte=1,lte=100"`
	// Capabilities selects where AE configurations come from.
	Capabilities string `yaml:"capabilities" validate:"oneof=static redis"`
	// Identities selects the patient identity cross-reference.
	Identities string `yaml:"identities" validate:"oneof=none static redis"`
	// IdentityGroups links identities in ID^^^Issuer form for the static
	// cross-reference.
	IdentityGroups [][]string `yaml:"identity_groups"`
}

// Backend selects the match store.
type Backend struct {
	Type string `yaml:"type" validate:"oneof=memory postgres mongo"`
	// LoadDir bootstraps the memory store from Part 10 files.
	LoadDir string `yaml:"load_dir"`
}

// Postgres holds the relational match store connection.
type Postgres struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// Mongo holds the document match store connection.
type Mongo struct {
	URI           string `yaml:"uri"`
	Database      string `yaml:"database"`
	EnsureIndexes bool   `yaml:"ensure_indexes"`
}

// Redis holds the connection used by the Redis capability and identity
// sources.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

// Storage selects where stored objects are read from.
type Storage struct {
	Type string `yaml:"type" validate:"oneof=filesystem minio"`
	Root string `yaml:"root"`
}

// Minio holds the object storage connection.
type Minio struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Auth configures bearer token verification.
type Auth struct {
	Enabled bool   `yaml:"enabled"`
	Secret  string `yaml:"secret"`
	Issuer  string `yaml:"issuer"`
	// Claim names the token claim listing the caller's access control ids.
	Claim string `yaml:"claim"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the default configuration: an in-memory archive
// serving one AE from the local filesystem.
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			RequestsPerMinute: 600,
			CORSOrigins:       []string{"*"},
		},
		Archive: Archive{
			BaseURL:                   "http://localhost:8080",
			RetrieveAETitle:           "DICOMARC",
			FuzzyAlgorithm:            "esoundex",
			PersonNameCaseInsensitive: true,
			BulkDataThreshold:         4096,
			JPEGQuality:               90,
			Capabilities:              "static",
			Identities:                "none",
		},
		AEs: []capability.Entry{{
			AETitle:      "DICOMARC",
			Installed:    true,
			QueryOptions: []string{"RELATIONAL", "DATETIME", "FUZZY", "TIMEZONE"},
			Timezone:     "+0000",
		}},
		Backend: Backend{Type: "memory"},
		Mongo:   Mongo{Database: "dicomarc", EnsureIndexes: true},
		Redis:   Redis{Addr: "localhost:6379"},
		Storage: Storage{Type: "filesystem", Root: "data"},
		Auth:    Auth{Claim: "access_control_ids"},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file leaves the defaults in place; an
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	// a missing .env file is normal outside development
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnvString("SERVER_ADDR", c.Server.Addr)
	c.Server.RequestsPerMinute = getEnvInt("SERVER_REQUESTS_PER_MINUTE", c.Server.RequestsPerMinute)
	c.Archive.BaseURL = getEnvString("ARCHIVE_BASE_URL", c.Archive.BaseURL)
	c.Archive.Capabilities = getEnvString("ARCHIVE_CAPABILITIES", c.Archive.Capabilities)
	c.Archive.Identities = getEnvString("ARCHIVE_IDENTITIES", c.Archive.Identities)
	c.Archive.MatchUnknown = getEnvBool("ARCHIVE_MATCH_UNKNOWN", c.Archive.MatchUnknown)
	c.Backend.Type = getEnvString("BACKEND_TYPE", c.Backend.Type)
	c.Backend.LoadDir = getEnvString("BACKEND_LOAD_DIR", c.Backend.LoadDir)
	c.Postgres.DSN = getEnvString("POSTGRES_DSN", c.Postgres.DSN)
	c.Mongo.URI = getEnvString("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnvString("MONGO_DATABASE", c.Mongo.Database)
	c.Redis.Addr = getEnvString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Storage.Type = getEnvString("STORAGE_TYPE", c.Storage.Type)
	c.Storage.Root = getEnvString("STORAGE_ROOT", c.Storage.Root)
	c.Minio.Endpoint = getEnvString("MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getEnvString("MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getEnvString("MINIO_SECRET_KEY", c.Minio.SecretKey)
	c.Minio.Bucket = getEnvString("MINIO_BUCKET", c.Minio.Bucket)
	c.Auth.Enabled = getEnvBool("AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.Secret = getEnvString("AUTH_SECRET", c.Auth.Secret)
	c.Logging.Level = getEnvString("LOGGING_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOGGING_FORMAT", c.Logging.Format)
}

// Validate checks field constraints and the settings each selected
// component requires.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	var missing []string
	require := func(ok bool, name string) {
		if !ok {
			missing = append(missing, name)
		}
	}
	switch c.Backend.Type {
	case "postgres":
		require(c.Postgres.DSN != "", "postgres.dsn")
	case "mongo":
		require(c.Mongo.URI != "", "mongo.uri")
		require(c.Mongo.Database != "", "mongo.database")
	}
	switch c.Storage.Type {
	case "filesystem":
		require(c.Storage.Root != "", "storage.root")
	case "minio":
		require(c.Minio.Endpoint != "", "minio.endpoint")
		require(c.Minio.Bucket != "", "minio.bucket")
	}
	if c.Archive.Capabilities == "redis" || c.Archive.Identities == "redis" {
		require(c.Redis.Addr != "", "redis.addr")
	}
	if c.Archive.Capabilities == "static" {
		require(len(c.AEs) > 0, "aes")
	}
	if c.Auth.Enabled {
		require(c.Auth.Secret != "", "auth.secret")
		require(c.Auth.Claim != "", "auth.claim")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid configuration: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
