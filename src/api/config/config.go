package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string   `yaml:"port"`
	MySQLDSN    string   `yaml:"mysql_dsn"`
	RedisURL    string   `yaml:"redis_url"`
	JWTSecret   string   `yaml:"jwt_secret"`
	TokenTTL    Duration `yaml:"token_ttl"`
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   int      `yaml:"rate_limit"` // requests per minute per wallet/IP
	TLSCert     string   `yaml:"tls_cert"`
	TLSKey      string   `yaml:"tls_key"`

	Log   LogConfig   `yaml:"log"`
	Chain ChainConfig `yaml:"chain"`

	Storage StorageConfig `yaml:"storage"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Discord DiscordConfig `yaml:"discord"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ChainConfig struct {
	RPCURL          string   `yaml:"rpc_url"`
	ChainID         int64    `yaml:"chain_id"`
	EscrowAddress   string   `yaml:"escrow_address"`
	AdminPrivateKey string   `yaml:"admin_private_key"`
	AdminWallets    []string `yaml:"admin_wallets"`
	Confirmations   uint64   `yaml:"confirmations"`
	SyncAttempts    int      `yaml:"sync_attempts"`
	SyncBaseDelay   Duration `yaml:"sync_base_delay"`
	SyncFactor      float64  `yaml:"sync_factor"`
	SyncInterval    Duration `yaml:"sync_interval"`
}

// Enabled reports whether an RPC endpoint and escrow contract are configured.
func (c ChainConfig) Enabled() bool {
	return c.RPCURL != "" && c.EscrowAddress != ""
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // disk, minio, s3, gridfs
	UploadDir string `yaml:"upload_dir"`
	MaxUpload int64  `yaml:"max_upload"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Region    string `yaml:"s3_region"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Bucket    string `yaml:"s3_bucket"`

	MongoURI    string `yaml:"mongo_uri"`
	MongoDB     string `yaml:"mongo_db"`
	MongoBucket string `yaml:"mongo_bucket"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

func (s SMTPConfig) Enabled() bool { return s.Host != "" && s.From != "" }

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

func (d DiscordConfig) Enabled() bool { return d.Token != "" && d.ChannelID != "" }

// Duration lets YAML carry values such as "2s" or "5m".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", node.Value, err)
	}
	d.Duration = parsed
	return nil
}

func defaults() Config {
	return Config{
		Port:        "8080",
		RedisURL:    "redis://127.0.0.1:6379/0",
		TokenTTL:    Duration{24 * time.Hour},
		CORSOrigins: []string{"http://localhost:3000"},
		RateLimit:   120,
		Log:         LogConfig{Level: "info", Format: "text"},
		Chain: ChainConfig{
			ChainID:       11155111,
			Confirmations: 2,
			SyncAttempts:  8,
			SyncBaseDelay: Duration{2 * time.Second},
			SyncFactor:    1.5,
			SyncInterval:  Duration{time.Minute},
		},
		Storage: StorageConfig{
			Backend:     "disk",
			UploadDir:   "uploads",
			MaxUpload:   20 << 20,
			MinioBucket: "market-files",
			S3Region:    "us-east-1",
			S3Bucket:    "market-files",
			MongoDB:     "market",
			MongoBucket: "files",
		},
		SMTP: SMTPConfig{Port: 587},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE and finally the environment.
func Load() (Config, error) {
	cfg, err := loadUnvalidated()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadChain resolves only the chain section. Tools that never touch the
// database use it to skip full validation.
func LoadChain() (ChainConfig, error) {
	cfg, err := loadUnvalidated()
	return cfg.Chain, err
}

// LoadStorage is LoadChain for the file store section.
func LoadStorage() (StorageConfig, error) {
	cfg, err := loadUnvalidated()
	return cfg.Storage, err
}

func loadUnvalidated() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v, err := strconv.Atoi(getenv(key, "")); err == nil {
		return v
	}
	return def
}

func getenvDuration(key string, def Duration) Duration {
	if d, err := time.ParseDuration(getenv(key, "")); err == nil {
		return Duration{d}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyEnv(cfg *Config) {
	cfg.Port = getenv("PORT", cfg.Port)
	cfg.MySQLDSN = getenv("MYSQL_DSN", cfg.MySQLDSN)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = getenv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getenvDuration("TOKEN_TTL", cfg.TokenTTL)
	cfg.CORSOrigins = getenvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.RateLimit = getenvInt("RATE_LIMIT", cfg.RateLimit)
	cfg.TLSCert = getenv("TLS_CERT", cfg.TLSCert)
	cfg.TLSKey = getenv("TLS_KEY", cfg.TLSKey)

	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("LOG_FORMAT", cfg.Log.Format)

	ch := &cfg.Chain
	ch.RPCURL = getenv("RPC_URL", ch.RPCURL)
	if id, err := strconv.ParseInt(getenv("CHAIN_ID", ""), 10, 64); err == nil {
		ch.ChainID = id
	}
	ch.EscrowAddress = getenv("ESCROW_ADDRESS", ch.EscrowAddress)
	ch.AdminPrivateKey = getenv("ADMIN_PRIVATE_KEY", ch.AdminPrivateKey)
	ch.AdminWallets = getenvList("ADMIN_WALLETS", ch.AdminWallets)
	if n, err := strconv.ParseUint(getenv("CONFIRMATIONS", ""), 10, 64); err == nil {
		ch.Confirmations = n
	}
	ch.SyncAttempts = getenvInt("SYNC_ATTEMPTS", ch.SyncAttempts)
	ch.SyncBaseDelay = getenvDuration("SYNC_BASE_DELAY", ch.SyncBaseDelay)
	if f, err := strconv.ParseFloat(getenv("SYNC_FACTOR", ""), 64); err == nil {
		ch.SyncFactor = f
	}
	ch.SyncInterval = getenvDuration("SYNC_INTERVAL", ch.SyncInterval)

	st := &cfg.Storage
	st.Backend = getenv("STORAGE_BACKEND", st.Backend)
	st.UploadDir = getenv("UPLOAD_DIR", st.UploadDir)
	st.MaxUpload = int64(getenvInt("MAX_UPLOAD", int(st.MaxUpload)))
	st.MinioEndpoint = getenv("MINIO_ENDPOINT", st.MinioEndpoint)
	st.MinioAccessKey = getenv("MINIO_ACCESS_KEY", st.MinioAccessKey)
	st.MinioSecretKey = getenv("MINIO_SECRET_KEY", st.MinioSecretKey)
	st.MinioBucket = getenv("MINIO_BUCKET", st.MinioBucket)
	st.MinioUseSSL = getenv("MINIO_USE_SSL", strconv.FormatBool(st.MinioUseSSL)) == "true"
	st.S3Endpoint = getenv("S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getenv("S3_REGION", st.S3Region)
	st.S3AccessKey = getenv("S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getenv("S3_SECRET_KEY", st.S3SecretKey)
	st.S3Bucket = getenv("S3_BUCKET", st.S3Bucket)
	st.MongoURI = getenv("MONGO_URI", st.MongoURI)
	st.MongoDB = getenv("MONGO_DB", st.MongoDB)
	st.MongoBucket = getenv("MONGO_BUCKET", st.MongoBucket)

	cfg.SMTP.Host = getenv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getenvInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getenv("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getenv("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = getenv("SMTP_FROM", cfg.SMTP.From)

	cfg.Discord.Token = getenv("DISCORD_TOKEN", cfg.Discord.Token)
	cfg.Discord.ChannelID = getenv("DISCORD_CHANNEL_ID", cfg.Discord.ChannelID)
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.MySQLDSN == "" {
		errs = append(errs, errors.New("missing MYSQL_DSN"))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Chain.SyncAttempts < 1 {
		errs = append(errs, errors.New("SYNC_ATTEMPTS must be positive"))
	}
	if c.Chain.SyncFactor < 1 {
		errs = append(errs, errors.New("SYNC_FACTOR must be >= 1"))
	}
	switch c.Storage.Backend {
	case "disk":
	case "minio":
		if c.Storage.MinioEndpoint == "" {
			errs = append(errs, errors.New("minio storage needs MINIO_ENDPOINT"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("s3 storage needs S3_BUCKET"))
		}
	case "gridfs":
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("gridfs storage needs MONGO_URI"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}
