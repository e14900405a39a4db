package commands

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/davgate/davgate/internal/cli/prompt"
	"github.com/davgate/davgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file interactively",
	Long: `Initialize a DavGate configuration file.

The wizard asks for the Exchange OWA URL and the listener settings, then
writes the configuration. By default the file is created at
$XDG_CONFIG_HOME/davgate/config.yaml; use --config for a custom path.

Examples:
  # Initialize with default location
  davgate init

  # Initialize with custom path
  davgate init --config /etc/davgate/config.yaml

  # Force overwrite existing config
  davgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.Default()

	owaURL, err := prompt.InputWithValidation("Exchange OWA URL (e.g. https://mail.company.com/exchange)", validateURL)
	if err != nil {
		return err
	}
	cfg.Davmail.URL = owaURL

	ldapPort, err := prompt.InputPort("LDAP listener port", config.DefaultLdapPort)
	if err != nil {
		return err
	}
	cfg.Davmail.LdapPort = ldapPort

	allowRemote, err := prompt.Confirm("Allow connections from other hosts", false)
	if err != nil {
		return err
	}
	cfg.Davmail.AllowRemote = allowRemote
	if allowRemote {
		cfg.Davmail.BindAddress = ""
	}

	useProxy, err := prompt.Confirm("Connect to Exchange through an HTTP proxy", false)
	if err != nil {
		return err
	}
	if useProxy {
		cfg.Davmail.EnableProxy = true
		if cfg.Davmail.ProxyHost, err = prompt.InputRequired("Proxy host"); err != nil {
			return err
		}
		if cfg.Davmail.ProxyPort, err = prompt.InputPort("Proxy port", 3128); err != nil {
			return err
		}
		if cfg.Davmail.ProxyUser, err = prompt.Input("Proxy user (DOMAIN\\user for NTLM, empty for none)", ""); err != nil {
			return err
		}
		if cfg.Davmail.ProxyUser != "" {
			if cfg.Davmail.ProxyPassword, err = prompt.Password("Proxy password"); err != nil {
				return err
			}
		}
	}

	enableMetrics, err := prompt.Confirm("Enable Prometheus metrics endpoint", false)
	if err != nil {
		return err
	}
	if enableMetrics {
		cfg.Gateway.Metrics.Enabled = true
		if cfg.Gateway.Metrics.Port, err = prompt.InputPort("Metrics port", 9090); err != nil {
			return err
		}
	}

	logFormat, err := prompt.Select("Log format", []prompt.SelectOption{
		{Label: "text", Value: "text", Description: "Human-readable console output"},
		{Label: "json", Value: "json", Description: "Structured JSON lines for log shippers"},
	})
	if err != nil {
		return err
	}
	cfg.Gateway.Log.Format = logFormat

	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Verify Exchange connectivity with: davgate check")
	fmt.Println("  2. Start the gateway with: davgate start")
	fmt.Printf("  3. Point your address book client at ldap://localhost:%d with base ou=people\n", cfg.Davmail.LdapPort)

	return nil
}

func validateURL(input string) error {
	parsed, err := url.Parse(input)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}
