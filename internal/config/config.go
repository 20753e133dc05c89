package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vcscsvcscs/azblobfile/pkg/blobfile"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Session SessionConfig
	Logging LoggingConfig
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// StorageConfig holds Azure Blob Storage configuration
type StorageConfig struct {
	AccountName      string
	AccountKey       string
	ConnectionString string
	BlobEndpoint     string
}

// SessionConfig holds blob session behaviour
type SessionConfig struct {
	StagingDir            string
	OverwritePolicy       string // warn or fail
	ClosePolicy           string // best-effort or transactional
	AutoCreateAppendBlobs bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// flagKeys maps CLI flag names to config keys
var flagKeys = map[string]string{
	"account-name":     "storage.accountname",
	"account-key":      "storage.accountkey",
	"blob-endpoint":    "storage.blobendpoint",
	"staging-dir":      "session.stagingdir",
	"overwrite-policy": "session.overwritepolicy",
	"close-policy":     "session.closepolicy",
	"log-level":        "logging.level",
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags reads configuration from environment variables, letting flags that were
// set on fs take precedence
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// RegisterFlags adds the flags LoadWithFlags understands to fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("account-name", "", "storage account name")
	fs.String("account-key", "", "storage account key")
	fs.String("blob-endpoint", "", "blob service endpoint, e.g. an Azurite URL")
	fs.String("staging-dir", "", "directory for local staging files")
	fs.String("overwrite-policy", "", "write over an existing blob: warn or fail")
	fs.String("close-policy", "", "failed upload on close: best-effort or transactional")
	fs.String("log-level", "", "log level")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Session defaults
	v.SetDefault("session.stagingdir", "")
	v.SetDefault("session.overwritepolicy", "warn")
	v.SetDefault("session.closepolicy", "best-effort")
	v.SetDefault("session.autocreateappendblobs", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Azure Storage
	v.BindEnv("storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("storage.connectionstring", "AZURE_STORAGE_CONNECTION_STRING")
	v.BindEnv("storage.blobendpoint", "AZURE_STORAGE_BLOB_ENDPOINT")

	// Session
	v.BindEnv("session.stagingdir", "BLOBFILE_STAGING_DIR")
	v.BindEnv("session.overwritepolicy", "BLOBFILE_OVERWRITE_POLICY")
	v.BindEnv("session.closepolicy", "BLOBFILE_CLOSE_POLICY")
	v.BindEnv("session.autocreateappendblobs", "BLOBFILE_AUTO_CREATE_APPEND")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.ConnectionString == "" && (c.Storage.AccountName == "" || c.Storage.AccountKey == "") {
		return fmt.Errorf("azure storage credentials are required (either connection string or account name + key)")
	}

	if _, err := blobfile.ParseOverwritePolicy(c.Session.OverwritePolicy); err != nil {
		return fmt.Errorf("session.overwritepolicy: %w", err)
	}

	if _, err := blobfile.ParseClosePolicy(c.Session.ClosePolicy); err != nil {
		return fmt.Errorf("session.closepolicy: %w", err)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	return nil
}

// Account returns the storage account the sessions connect to
func (c *Config) Account() blobfile.Account {
	return blobfile.Account{
		Name:             c.Storage.AccountName,
		Key:              c.Storage.AccountKey,
		ConnectionString: c.Storage.ConnectionString,
		BlobEndpoint:     c.Storage.BlobEndpoint,
	}
}

// SessionOptions converts the session configuration into blobfile options.
// The policies were checked by Validate.
func (c *Config) SessionOptions() []blobfile.Option {
	overwrite, _ := blobfile.ParseOverwritePolicy(c.Session.OverwritePolicy)
	closePolicy, _ := blobfile.ParseClosePolicy(c.Session.ClosePolicy)

	return []blobfile.Option{
		blobfile.WithStagingDir(c.Session.StagingDir),
		blobfile.WithOverwritePolicy(overwrite),
		blobfile.WithClosePolicy(closePolicy),
		blobfile.WithAutoCreateAppendBlobs(c.Session.AutoCreateAppendBlobs),
	}
}
