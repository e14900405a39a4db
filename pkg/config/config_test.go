package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davgate/davgate/internal/bytesize"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultLdapPort, cfg.Davmail.LdapPort)
	assert.Equal(t, DefaultClientSoTimeout, cfg.Davmail.ClientSoTimeout)
	assert.False(t, cfg.Davmail.AllowRemote)
	assert.Equal(t, "PEM", cfg.Davmail.SSL.KeystoreType)
	assert.Equal(t, "INFO", cfg.Gateway.Log.Level)
	assert.Equal(t, "text", cfg.Gateway.Log.Format)
	assert.Equal(t, "stdout", cfg.Gateway.Log.File)
	assert.Equal(t, 30*time.Second, cfg.Gateway.LDAP.ShutdownTimeout)
	assert.Equal(t, bytesize.MiB, cfg.Gateway.LDAP.MaxMessageSize)
	assert.False(t, cfg.Gateway.Metrics.Enabled)
	assert.False(t, cfg.Gateway.Telemetry.Enabled)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Davmail: DavmailConfig{
			URL:             "https://mail.example.com/exchange",
			LdapPort:        10389,
			ClientSoTimeout: 60,
		},
		Gateway: GatewayConfig{
			Log: LogConfig{Level: "debug"},
		},
	}

	ApplyDefaults(cfg)

	assert.Equal(t, 10389, cfg.Davmail.LdapPort)
	assert.Equal(t, 60, cfg.Davmail.ClientSoTimeout)
	// Level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Gateway.Log.Level)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
davmail:
  url: https://mail.example.com/exchange
  ldapPort: 10389
  allowRemote: true
gateway:
  log:
    level: debug
    format: json
  ldap:
    maxConnections: 42
    shutdownTimeout: 5s
    maxMessageSize: 256Ki
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mail.example.com/exchange", cfg.Davmail.URL)
	assert.Equal(t, 10389, cfg.Davmail.LdapPort)
	assert.True(t, cfg.Davmail.AllowRemote)
	assert.Equal(t, "DEBUG", cfg.Gateway.Log.Level)
	assert.Equal(t, "json", cfg.Gateway.Log.Format)
	assert.Equal(t, 42, cfg.Gateway.LDAP.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.Gateway.LDAP.ShutdownTimeout)
	assert.Equal(t, 256*bytesize.KiB, cfg.Gateway.LDAP.MaxMessageSize)
	// Unset keys get defaults.
	assert.Equal(t, DefaultClientSoTimeout, cfg.Davmail.ClientSoTimeout)
}

func TestLoad_PropertiesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "davmail.properties")
	content := `davmail.url=https://mail.example.com/exchange
davmail.ldapPort=10389
davmail.enableProxy=true
davmail.proxyHost=proxy.example.com
davmail.proxyPort=3128
davmail.proxyUser=CORP\\jdoe
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://mail.example.com/exchange", cfg.Davmail.URL)
	assert.Equal(t, 10389, cfg.Davmail.LdapPort)
	assert.True(t, cfg.Davmail.EnableProxy)
	assert.Equal(t, "proxy.example.com", cfg.Davmail.ProxyHost)
	assert.Equal(t, 3128, cfg.Davmail.ProxyPort)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
davmail:
  url: https://mail.example.com/exchange
  ldapPort: 10389
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("DAVGATE_DAVMAIL_LDAPPORT", "20389")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20389, cfg.Davmail.LdapPort)
}

func TestValidate_MissingURL(t *testing.T) {
	cfg := Default()
	cfg.Davmail.URL = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Log.Level = "TRACE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidate_ProxyWithoutHost(t *testing.T) {
	cfg := Default()
	cfg.Davmail.EnableProxy = true

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "proxyHost")
}

func TestValidate_ClientAuthWithoutTruststore(t *testing.T) {
	cfg := Default()
	cfg.Davmail.SSL.KeystoreFile = "/tmp/server.pem"
	cfg.Davmail.SSL.NeedClientAuth = true

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truststoreFile")
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Davmail.URL = "https://owa.example.com/exchange"
	cfg.Gateway.Metrics.Enabled = true
	cfg.Gateway.Metrics.Port = 9191

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Davmail.URL, loaded.Davmail.URL)
	assert.True(t, loaded.Gateway.Metrics.Enabled)
	assert.Equal(t, 9191, loaded.Gateway.Metrics.Port)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
