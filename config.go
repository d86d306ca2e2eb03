package lsatproxy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/goccy/go-yaml"
	"github.com/lightninglabs/lsatproxy/backend"
	"github.com/lightningnetwork/lnd/build"
)

var (
	proxyDataDir          = btcutil.AppDataDir("lsatproxy", false)
	defaultConfigFilename = "lsatproxy.yaml"
	defaultLogFilename    = "lsatproxy.log"
	defaultLogLevel       = "info"

	defaultQuotaDBFileName = "quota.db"
	defaultQuotaDBPath     = filepath.Join(proxyDataDir, defaultQuotaDBFileName)
)

const (
	defaultIdleTimeout  = time.Minute * 2
	defaultReadTimeout  = time.Second * 15
	defaultWriteTimeout = time.Second * 30

	defaultRateLimit = 10.0
	defaultRateBurst = 20

	// DefaultMaxLogFileSize is the default size, in megabytes, a log
	// file is allowed to reach before it's rotated.
	DefaultMaxLogFileSize = 10

	// DefaultMaxLogFiles is the default number of rotated log files to
	// keep around.
	DefaultMaxLogFiles = 3
)

// ServerConfig is the listen configuration for the proxy's HTTP surface.
type ServerConfig struct {
	Host string `long:"host" env:"LSATPROXY_SERVER_HOST" description:"The interface to listen on for client requests." yaml:"host"`
	Port uint16 `long:"port" env:"LSATPROXY_SERVER_PORT" description:"The port to listen on for client requests." yaml:"port"`
}

func (s *ServerConfig) addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LndConfig points at the lnd node backing the Node Gateway.
type LndConfig struct {
	Host    string `long:"host" env:"LSATPROXY_LND_HOST" description:"Hostname:port of the lnd instance to connect to" yaml:"host"`
	TLSPath string `long:"tlspath" env:"LSATPROXY_LND_TLSPATH" description:"Path to lnd's TLS certificate" yaml:"tls_path"`
	MacPath string `long:"macpath" env:"LSATPROXY_LND_MACPATH" description:"Path to lnd's macaroon granting invoice and lookup permissions" yaml:"mac_path"`
}

func (l *LndConfig) validate() error {
	if l.Host == "" {
		return fmt.Errorf("lnd host required")
	}
	if l.TLSPath == "" {
		return fmt.Errorf("lnd tls path required")
	}
	if l.MacPath == "" {
		return fmt.Errorf("lnd macaroon path required")
	}
	return nil
}

// RateLimitConfig bounds how often an unauthenticated caller may mint fresh
// challenges from a single source IP.
type RateLimitConfig struct {
	Requests float64 `long:"requests" description:"Challenges per second allowed per source IP" yaml:"requests"`
	Burst    int     `long:"burst" description:"Challenge burst allowed per source IP" yaml:"burst"`
}

// Config is the top level configuration for the proxy daemon.
type Config struct {
	Server *ServerConfig `group:"server" namespace:"server" yaml:"server"`

	Lnd *LndConfig `group:"lnd" namespace:"lnd" yaml:"lnd"`

	RateLimit *RateLimitConfig `group:"ratelimit" namespace:"ratelimit" yaml:"ratelimit"`

	Backends []backend.Descriptor `yaml:"backends"`

	QuotaDBPath string `long:"quotadb" env:"LSATPROXY_QUOTADB" description:"Path to the quota store's database file" yaml:"quota_db_path"`

	DebugLevel string `long:"debuglevel" env:"LSATPROXY_DEBUGLEVEL" description:"Debug level for the application and its subsystems." yaml:"debug_level"`

	ConfigFile string `long:"configfile" description:"Custom path to a config file." yaml:"-"`

	IdleTimeout  time.Duration `long:"idletimeout" description:"Maximum amount of time a connection may be idle." yaml:"idle_timeout"`
	ReadTimeout  time.Duration `long:"readtimeout" description:"Maximum amount of time to wait for a request to be fully read." yaml:"read_timeout"`
	WriteTimeout time.Duration `long:"writetimeout" description:"Maximum amount of time to wait for a response to be fully written." yaml:"write_timeout"`

	Logging *build.LogConfig `group:"logging" namespace:"logging" yaml:"-"`
}

// NewConfig returns a Config populated with the proxy's defaults.
func NewConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Lnd: &LndConfig{},
		RateLimit: &RateLimitConfig{
			Requests: defaultRateLimit,
			Burst:    defaultRateBurst,
		},
		QuotaDBPath:  defaultQuotaDBPath,
		DebugLevel:   defaultLogLevel,
		IdleTimeout:  defaultIdleTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		Logging:      build.DefaultLogConfig(),
	}
}

// DefaultDataDir returns the OS-appropriate directory lsatproxy stores its
// config, log, and quota database files under by default.
func DefaultDataDir() string {
	return proxyDataDir
}

// DefaultConfigPath returns the default location of the YAML config file.
func DefaultConfigPath() string {
	return filepath.Join(proxyDataDir, defaultConfigFilename)
}

// DefaultLogPath returns the default location of the rotating log file.
func DefaultLogPath() string {
	return filepath.Join(proxyDataDir, defaultLogFilename)
}

// Validate checks that the configuration is complete enough to start the
// proxy, and normalizes the per-backend budget multiple.
func (c *Config) Validate() error {
	if err := c.Lnd.validate(); err != nil {
		return err
	}

	if c.Server.Port == 0 {
		return fmt.Errorf("missing server port")
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}

	seen := make(map[string]struct{}, len(c.Backends))
	for i := range c.Backends {
		b := &c.Backends[i]

		if b.Path == "" {
			return fmt.Errorf("backend %q missing path", b.Name)
		}
		if _, ok := seen[b.Path]; ok {
			return fmt.Errorf("duplicate backend path %q", b.Path)
		}
		seen[b.Path] = struct{}{}

		if b.UpstreamURL == "" {
			return fmt.Errorf("backend %q missing upstream url",
				b.Name)
		}
		if b.BudgetMultiple == 0 {
			b.BudgetMultiple = 1
		}
	}

	return nil
}

// LoadConfigFile reads and unmarshals the YAML config file at path into cfg,
// leaving cfg's defaults in place for any field the file doesn't set.
func LoadConfigFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.UnmarshalWithOptions(b, cfg, yaml.DisallowUnknownField())
}
