// Package config loads the cloudstash configuration.
//
// Settings are resolved with viper, in order of precedence: command line flags,
// CLOUDSTASH_* environment variables, then a yaml configuration file found at
// $CLOUDSTASH_CONFIG, or as cloudstash.yaml in the current directory,
// $HOME/.cloudstash or /etc/cloudstash.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix for environment variables overriding settings
	EnvPrefix = "CLOUDSTASH"

	// EnvConfig points to an explicit configuration file
	EnvConfig = "CLOUDSTASH_CONFIG"

	// Name of the configuration file, without extension
	Name = "cloudstash"
)

// Index backends
const (
	IndexMemory = "memory"
	IndexSQLite = "sqlite"
	IndexBadger = "badger"
)

// Remote backends
const (
	RemoteDropbox = "dropbox"
	RemoteGCS     = "gcs"
	RemoteS3      = "s3"
	RemoteLocalFS = "localfs"
)

// DefaultClientID is the Dropbox application used by the authenticate command
const DefaultClientID = "g71rb26y469u0n6"

// Keys of all settings
const (
	KeyLogLevel            = "log-level"
	KeyConcurrency         = "concurrency"
	KeyProtectSharedChunks = "protect-shared-chunks"
	KeyIndexBackend        = "index.backend"
	KeyIndexPath           = "index.path"
	KeyRemoteBackend       = "remote.backend"
	KeyRemoteBucket        = "remote.bucket"
	KeyRemotePrefix        = "remote.prefix"
	KeyRemotePath          = "remote.path"
	KeyRemoteRegion        = "remote.region"
	KeyRemoteEndpoint      = "remote.endpoint"
	KeyRemoteCredentials   = "remote.credentials"
	KeyRemoteToken         = "remote.token"
	KeyRemoteSkipExisting  = "remote.skip-existing"
	KeyRemoteVerifyHash    = "remote.verify-hash"
	KeyAuthClientID        = "auth.client-id"
	KeyAuthAddress         = "auth.address"
)

// ErrInvalidConfig indicates a configuration which cannot be used
var ErrInvalidConfig = errors.New("invalid configuration")

// Config describes the cloudstash settings
type Config struct {
	LogLevel            string `mapstructure:"log-level" yaml:"log-level"`
	Concurrency         int    `mapstructure:"concurrency" yaml:"concurrency"`
	ProtectSharedChunks bool   `mapstructure:"protect-shared-chunks" yaml:"protect-shared-chunks"`

	Index  Index  `mapstructure:"index" yaml:"index"`
	Remote Remote `mapstructure:"remote" yaml:"remote"`
	Auth   Auth   `mapstructure:"auth" yaml:"auth"`
}

// Index locates the local index
type Index struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path,omitempty"`
}

// Remote locates the blob backend holding chunks
type Remote struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	Bucket       string `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix       string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Path         string `mapstructure:"path" yaml:"path,omitempty"`
	Region       string `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Credentials  string `mapstructure:"credentials" yaml:"credentials,omitempty"`
	Token        string `mapstructure:"token" yaml:"-"`
	SkipExisting bool   `mapstructure:"skip-existing" yaml:"skip-existing"`
	VerifyHash   bool   `mapstructure:"verify-hash" yaml:"verify-hash"`
}

// Auth configures the authenticate command
type Auth struct {
	ClientID string `mapstructure:"client-id" yaml:"client-id"`
	Address  string `mapstructure:"address" yaml:"address"`
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + Name
	}
	return home + "/." + Name
}

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	dir := defaultDir()
	v.SetDefault(KeyLogLevel, dlogger.LogLevelInfo)
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyProtectSharedChunks, false)
	v.SetDefault(KeyIndexBackend, IndexSQLite)
	v.SetDefault(KeyIndexPath, dir+"/index.db")
	v.SetDefault(KeyRemoteBackend, RemoteDropbox)
	v.SetDefault(KeyRemoteBucket, "")
	v.SetDefault(KeyRemotePrefix, "")
	v.SetDefault(KeyRemotePath, dir+"/objects")
	v.SetDefault(KeyRemoteRegion, "us-west-2")
	v.SetDefault(KeyRemoteEndpoint, "")
	v.SetDefault(KeyRemoteCredentials, "")
	v.SetDefault(KeyRemoteToken, "")
	v.SetDefault(KeyRemoteSkipExisting, false)
	v.SetDefault(KeyRemoteVerifyHash, false)
	v.SetDefault(KeyAuthClientID, DefaultClientID)
	v.SetDefault(KeyAuthAddress, "127.0.0.1:8080")
}

// Init prepares v to read settings from the environment and the configuration file
func Init(v *viper.Viper) {
	SetDefaults(v)

	if file := os.Getenv(EnvConfig); file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/." + Name)
		v.AddConfigPath("/etc/" + Name)
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration file, if any, and returns the resolved settings.
//
// A missing configuration file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, ErrInvalidConfig.Wrap(fmt.Errorf("reading %s: %w", v.ConfigFileUsed(), err))
		}
	}
	return Unmarshal(v)
}

// Unmarshal the settings known to v and validate them
func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the configuration with all defaults applied
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	c, err := Unmarshal(v)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks that the settings describe a usable stash
func (c *Config) Validate() error {
	if _, err := dlogger.GetLogger(c.LogLevel); err != nil {
		return ErrInvalidConfig.Wrap(fmt.Errorf("log level %q: %w", c.LogLevel, err))
	}
	if c.Concurrency < 1 {
		return ErrInvalidConfig.Wrap(fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}

	switch c.Index.Backend {
	case IndexMemory:
	case IndexSQLite, IndexBadger:
		if c.Index.Path == "" {
			return ErrInvalidConfig.Wrap(fmt.Errorf("index %s requires a path", c.Index.Backend))
		}
	default:
		return ErrInvalidConfig.Wrap(fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}

	switch c.Remote.Backend {
	case RemoteDropbox:
	case RemoteGCS, RemoteS3:
		if c.Remote.Bucket == "" {
			return ErrInvalidConfig.Wrap(fmt.Errorf("remote %s requires a bucket", c.Remote.Backend))
		}
	case RemoteLocalFS:
		if c.Remote.Path == "" {
			return ErrInvalidConfig.Wrap(fmt.Errorf("remote %s requires a path", c.Remote.Backend))
		}
	default:
		return ErrInvalidConfig.Wrap(fmt.Errorf("unknown remote backend %q", c.Remote.Backend))
	}
	return nil
}

// YAML renders the configuration as a configuration file. Tokens are never written.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
