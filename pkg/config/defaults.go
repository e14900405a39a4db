package config

import (
	"strings"
	"time"

	"github.com/davgate/davgate/internal/bytesize"
)

// Fixed defaults shared with the original gateway.
const (
	// DefaultLdapPort is used when davmail.ldapPort is 0.
	DefaultLdapPort = 1389

	// DefaultClientSoTimeout is the per-client read timeout in seconds.
	DefaultClientSoTimeout = 300
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values (0, "", false, nil) are replaced with defaults;
// explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyDavmailDefaults(&cfg.Davmail)
	applyLogDefaults(&cfg.Gateway.Log)
	applyLDAPDefaults(&cfg.Gateway.LDAP)
	applyMetricsDefaults(&cfg.Gateway.Metrics)
	applyTelemetryDefaults(&cfg.Gateway.Telemetry)
	applyProfilingDefaults(&cfg.Gateway.Profiling)
	applyKerberosDefaults(&cfg.Gateway.Kerberos)
}

func applyDavmailDefaults(cfg *DavmailConfig) {
	if cfg.LdapPort == 0 {
		cfg.LdapPort = DefaultLdapPort
	}
	if cfg.ClientSoTimeout == 0 {
		cfg.ClientSoTimeout = DefaultClientSoTimeout
	}
	if cfg.SSL.KeystoreType == "" {
		cfg.SSL.KeystoreType = "PEM"
	}
	cfg.SSL.KeystoreType = strings.ToUpper(cfg.SSL.KeystoreType)
	if cfg.SSL.TruststoreType == "" {
		cfg.SSL.TruststoreType = "PEM"
	}
	cfg.SSL.TruststoreType = strings.ToUpper(cfg.SSL.TruststoreType)
}

func applyLogDefaults(cfg *LogConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize to uppercase for consistent internal representation.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.File == "" {
		cfg.File = "stdout"
	}
}

func applyLDAPDefaults(cfg *LDAPConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = bytesize.MiB
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics).
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry).
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyKerberosDefaults(cfg *KerberosConfig) {
	if cfg.Krb5Conf == "" {
		cfg.Krb5Conf = "/etc/krb5.conf"
	}
}

// Default returns a Config with all default values applied.
//
// Useful for generating sample configuration files, testing, and
// documentation. The Exchange URL has no default; it must be set
// before the config validates.
func Default() *Config {
	cfg := &Config{
		Davmail: DavmailConfig{
			URL: "https://localhost/exchange",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
