// Package config loads the settings consumed by the anchoring core: the
// identity gate policy, replay window, OP_RETURN payload cap, the header
// chain used for SPV checks and the storage and wallet endpoints used by the
// examples.
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

// Static error variables for err113 compliance
var (
	errInvalidBool     = errors.New("invalid boolean")
	errInvalidInteger  = errors.New("invalid integer")
	errNonPositive     = errors.New("value must be positive")
	errInvalidChain    = errors.New("chain must be main or test")
	errInvalidNonceTTL = errors.New("nonce ttl must be positive")
)

// Environment variable names.
const (
	EnvIdentityRequired = "IDENTITY_REQUIRED"
	EnvNonceTTL         = "NONCE_TTL_SEC"
	EnvMaxOpReturnBytes = "OPRETURN_MAX_BYTES"
	EnvNonceStorePath   = "NONCE_STORE_PATH"
	EnvMongoURI         = "MONGO_URI"
	EnvMongoDatabase    = "MONGO_DB"
	EnvChain            = "BSV_CHAIN"
	EnvHeadersFile      = "HEADERS_FILE"
	EnvMinConfirmations = "POLICY_MIN_CONFS"
)

// Defaults.
const (
	DefaultNonceTTL         = 120 * time.Second
	DefaultMaxOpReturnBytes = 100_000
	DefaultMongoDatabase    = "dlm1"
	DefaultChain            = "main"
)

// Config holds the core settings. NonceStorePath empty selects the in-memory
// nonce store; MongoURI empty disables persistence; HeadersFile empty
// disables SPV envelope verification.
type Config struct {
	IdentityRequired bool          `yaml:"identity_required"`
	NonceTTL         time.Duration `yaml:"nonce_ttl"`
	MaxOpReturnBytes int           `yaml:"opreturn_max_bytes"`
	NonceStorePath   string        `yaml:"nonce_store_path"`
	MongoURI         string        `yaml:"mongo_uri"`
	MongoDatabase    string        `yaml:"mongo_db"`
	Chain            string        `yaml:"chain"`
	HeadersFile      string        `yaml:"headers_file"`
	MinConfirmations uint32        `yaml:"min_confirmations"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NonceTTL:         DefaultNonceTTL,
		MaxOpReturnBytes: DefaultMaxOpReturnBytes,
		MongoDatabase:    DefaultMongoDatabase,
		Chain:            DefaultChain,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	if err := applyEnvOverrides(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromEnv builds the configuration from defaults and environment only.
func FromEnv() (*Config, error) {
	return Load("")
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	if c.NonceTTL <= 0 {
		return fmt.Errorf("%w: %s", errInvalidNonceTTL, c.NonceTTL)
	}
	if c.MaxOpReturnBytes <= 0 {
		return fmt.Errorf("%w: opreturn_max_bytes=%d", errNonPositive, c.MaxOpReturnBytes)
	}
	switch c.Chain {
	case "main", "test":
	default:
		return fmt.Errorf("%w: %q", errInvalidChain, c.Chain)
	}
	return nil
}

func applyEnvOverrides(c *Config) error {
	if v := os.Getenv(EnvIdentityRequired); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIdentityRequired, err)
		}
		c.IdentityRequired = b
	}
	if v := os.Getenv(EnvNonceTTL); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w: %q", EnvNonceTTL, errInvalidInteger, v)
		}
		if n <= 0 {
			return fmt.Errorf("%s: %w", EnvNonceTTL, errNonPositive)
		}
		c.NonceTTL = time.Duration(n) * time.Second
	}
	if v := os.Getenv(EnvMaxOpReturnBytes); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w: %q", EnvMaxOpReturnBytes, errInvalidInteger, v)
		}
		if n <= 0 {
			return fmt.Errorf("%s: %w", EnvMaxOpReturnBytes, errNonPositive)
		}
		c.MaxOpReturnBytes = n
	}
	if v := os.Getenv(EnvNonceStorePath); v != "" {
		c.NonceStorePath = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.MongoURI = v
	}
	if v := os.Getenv(EnvMongoDatabase); v != "" {
		c.MongoDatabase = v
	}
	if v := os.Getenv(EnvChain); v != "" {
		c.Chain = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvHeadersFile); v != "" {
		c.HeadersFile = v
	}
	if v := os.Getenv(EnvMinConfirmations); v != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("%s: %w: %q", EnvMinConfirmations, errInvalidInteger, v)
		}
		c.MinConfirmations = uint32(n)
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", errInvalidBool, v)
}
