package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/davgate/davgate/internal/bytesize"
)

// Config represents the DavGate configuration.
//
// The davmail.* section is the settings store shared with the original
// DavMail gateway: every key keeps its historical name so an existing
// davmail.properties file loads unchanged. The gateway.* section holds
// the ambient concerns of this port (logging, metrics, telemetry).
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DAVGATE_*)
//  2. Configuration file (YAML or Java properties)
//  3. Default values (lowest priority)
type Config struct {
	// Davmail holds the Exchange gateway settings store.
	Davmail DavmailConfig `mapstructure:"davmail" yaml:"davmail"`

	// Gateway holds the operational settings of this port.
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
}

// DavmailConfig mirrors the historical davmail.* settings store.
type DavmailConfig struct {
	// URL is the Exchange OWA base URL, e.g. https://mail.company.com/exchange.
	URL string `mapstructure:"url" validate:"required,url" yaml:"url"`

	// BindAddress is the address listeners bind to.
	// Empty string binds all interfaces.
	BindAddress string `mapstructure:"bindAddress" yaml:"bindAddress,omitempty"`

	// LdapPort is the LDAP listener port. 0 selects the default (1389).
	LdapPort int `mapstructure:"ldapPort" validate:"omitempty,min=0,max=65535" yaml:"ldapPort"`

	// ClientSoTimeout is the per-client read timeout in seconds.
	// Expiry closes the connection silently. Default: 300.
	ClientSoTimeout int `mapstructure:"clientSoTimeout" validate:"omitempty,min=0" yaml:"clientSoTimeout"`

	// AllowRemote permits connections from non-loopback addresses.
	// Default: false (local clients only).
	AllowRemote bool `mapstructure:"allowRemote" yaml:"allowRemote"`

	// SSL configures the optional TLS listener socket.
	SSL SSLConfig `mapstructure:"ssl" yaml:"ssl,omitempty"`

	// EnableProxy routes Exchange traffic through an HTTP proxy.
	EnableProxy bool `mapstructure:"enableProxy" yaml:"enableProxy"`

	// ProxyHost and ProxyPort locate the HTTP proxy.
	ProxyHost string `mapstructure:"proxyHost" yaml:"proxyHost,omitempty"`
	ProxyPort int    `mapstructure:"proxyPort" validate:"omitempty,min=0,max=65535" yaml:"proxyPort,omitempty"`

	// ProxyUser authenticates against the proxy. A backslash selects
	// NTLM proxy credentials (DOMAIN\user); otherwise basic auth.
	ProxyUser     string `mapstructure:"proxyUser" yaml:"proxyUser,omitempty"`
	ProxyPassword string `mapstructure:"proxyPassword" yaml:"proxyPassword,omitempty"`

	// EnableKerberos authenticates against Exchange via SPNEGO instead
	// of the Digest/Basic scheme order.
	EnableKerberos bool `mapstructure:"enableKerberos" yaml:"enableKerberos"`
}

// SSLConfig mirrors the davmail.ssl.* keys. When KeystoreFile is empty
// the listener speaks plain TCP.
type SSLConfig struct {
	// KeystoreFile holds the server certificate and key.
	KeystoreFile string `mapstructure:"keystoreFile" yaml:"keystoreFile,omitempty"`

	// KeystoreType is PEM or PKCS12. Default: PEM.
	KeystoreType string `mapstructure:"keystoreType" validate:"omitempty,oneof=PEM PKCS12 pem pkcs12" yaml:"keystoreType,omitempty"`

	// KeystorePass decrypts a PKCS12 keystore.
	KeystorePass string `mapstructure:"keystorePass" yaml:"keystorePass,omitempty"`

	// KeyPass decrypts an encrypted PEM private key.
	KeyPass string `mapstructure:"keyPass" yaml:"keyPass,omitempty"`

	// TruststoreFile holds the CA certificates used to verify client
	// certificates when NeedClientAuth is set.
	TruststoreFile string `mapstructure:"truststoreFile" yaml:"truststoreFile,omitempty"`
	TruststoreType string `mapstructure:"truststoreType" validate:"omitempty,oneof=PEM PKCS12 pem pkcs12" yaml:"truststoreType,omitempty"`
	TruststorePass string `mapstructure:"truststorePass" yaml:"truststorePass,omitempty"`

	// NeedClientAuth requires and verifies a client certificate.
	NeedClientAuth bool `mapstructure:"needClientAuth" yaml:"needClientAuth"`
}

// GatewayConfig holds the operational settings of this port.
type GatewayConfig struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	LDAP      LDAPConfig      `mapstructure:"ldap" yaml:"ldap"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
	Kerberos  KerberosConfig  `mapstructure:"kerberos" yaml:"kerberos,omitempty"`
}

// LogConfig controls logging behavior.
type LogConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// File is the log destination: stdout, stderr, or a file path.
	// A file path also enables `davgate logs`.
	File string `mapstructure:"file" validate:"required" yaml:"file"`
}

// LDAPConfig holds LDAP adapter limits.
type LDAPConfig struct {
	// MaxConnections limits concurrent client connections. 0 = unlimited.
	MaxConnections int `mapstructure:"maxConnections" validate:"omitempty,min=0" yaml:"maxConnections"`

	// ShutdownTimeout bounds the graceful shutdown wait.
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout" validate:"required,gt=0" yaml:"shutdownTimeout"`

	// MaxMessageSize bounds a single BER request frame.
	// Accepts human-readable sizes: "1Mi", "256Ki".
	MaxMessageSize bytesize.ByteSize `mapstructure:"maxMessageSize" yaml:"maxMessageSize,omitempty"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /healthz. Default: 9090.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS toward the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the trace sampling ratio (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sampleRate" validate:"omitempty,gte=0,lte=1" yaml:"sampleRate"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes selects which profiles to collect.
	ProfileTypes []string `mapstructure:"profileTypes" yaml:"profileTypes,omitempty"`
}

// KerberosConfig locates the Kerberos client configuration used when
// davmail.enableKerberos is set.
type KerberosConfig struct {
	// Krb5Conf is the path to krb5.conf. Default: /etc/krb5.conf.
	Krb5Conf string `mapstructure:"krb5Conf" yaml:"krb5Conf,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: path to a YAML or Java properties file (empty string
//     uses the default location)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := Default()
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  davgate init\n\n"+
				"Or specify a custom config file:\n"+
				"  davgate <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  davgate init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given path in YAML format.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the settings store can carry proxy and keystore passwords.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the DAVGATE_ prefix with underscores:
	// DAVGATE_DAVMAIL_URL, DAVGATE_GATEWAY_LOG_LEVEL, ...
	v.SetEnvPrefix("DAVGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		// A davmail.properties file from an existing DavMail install
		// loads as Java properties.
		if strings.HasSuffix(configPath, ".properties") {
			v.SetConfigType("properties")
		}
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize
// so config files can use "1Mi", "256Ki" or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files
// can use "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "davgate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "davgate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
