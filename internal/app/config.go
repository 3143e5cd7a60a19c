package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. PAYENGINE_API_KEY.
const EnvPrefix = "PAYENGINE"

// Config keys. Flags use the same names.
const (
	KeyConfig           = "config"
	KeyHome             = "home"
	KeyAPIURL           = "api-url"
	KeySocketURL        = "socket-url"
	KeyAPIKey           = "api-key"
	KeyOrigin           = "origin"
	KeyLogLevel         = "log-level"
	KeyLogConsole       = "log-console"
	KeyHandshakeTimeout = "handshake-timeout"
	KeyHostTokenTTL     = "host-token-ttl"
	KeyStrictFrames     = "strict-frames"
	KeyMetrics          = "metrics"
	KeyPassphrase       = "passphrase"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home             string // journal directory, e.g. $HOME/.payengine
	APIURL           string // backend base URL serving the pt-token endpoint
	SocketURL        string // socket URL, e.g. wss://host.example/socket
	APIKey           string
	Origin           string
	LogLevel         string
	LogConsole       bool
	HandshakeTimeout time.Duration
	HostTokenTTL     time.Duration
	StrictFrames     bool
	Metrics          bool
	Passphrase       string // seals the receipt journal; empty disables it
}

var ErrMissingEndpoint = errors.New("api-url and socket-url are required")

// RegisterFlags adds every config key to fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfig, "", "config file (yaml, json or toml)")
	fs.String(KeyHome, "", "data dir (default ~/.payengine)")
	fs.String(KeyAPIURL, "", "backend base URL")
	fs.String(KeySocketURL, "", "host socket URL")
	fs.String(KeyAPIKey, "", "merchant API key")
	fs.String(KeyOrigin, "", "origin sent with the host token request")
	fs.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	fs.Bool(KeyLogConsole, false, "human-readable logs")
	fs.Duration(KeyHandshakeTimeout, 30*time.Second, "handshake timeout")
	fs.Duration(KeyHostTokenTTL, 60*time.Minute, "host token lifetime before a new handshake")
	fs.Bool(KeyStrictFrames, false, "reject unknown fields in host frames")
	fs.Bool(KeyMetrics, false, "print engine metrics on exit")
	fs.StringP(KeyPassphrase, "p", "", "passphrase protecting the receipt journal")
}

// LoadConfig resolves the config from, in order of precedence, flags set on
// fs, PAYENGINE_* environment variables, the config file, and defaults.
func LoadConfig(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Home:             v.GetString(KeyHome),
		APIURL:           v.GetString(KeyAPIURL),
		SocketURL:        v.GetString(KeySocketURL),
		APIKey:           v.GetString(KeyAPIKey),
		Origin:           v.GetString(KeyOrigin),
		LogLevel:         v.GetString(KeyLogLevel),
		LogConsole:       v.GetBool(KeyLogConsole),
		HandshakeTimeout: v.GetDuration(KeyHandshakeTimeout),
		HostTokenTTL:     v.GetDuration(KeyHostTokenTTL),
		StrictFrames:     v.GetBool(KeyStrictFrames),
		Metrics:          v.GetBool(KeyMetrics),
		Passphrase:       v.GetString(KeyPassphrase),
	}
	if cfg.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return Config{}, err
		}
		cfg.Home = filepath.Join(dir, ".payengine")
	}
	return cfg, nil
}

// RequireEndpoints fails when the backend or socket URL is missing.
func (c Config) RequireEndpoints() error {
	if c.APIURL == "" || c.SocketURL == "" {
		return ErrMissingEndpoint
	}
	return nil
}
