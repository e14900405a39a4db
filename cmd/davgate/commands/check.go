package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/davgate/davgate/internal/cli/output"
	"github.com/davgate/davgate/pkg/config"
	"github.com/davgate/davgate/pkg/gateway"
)

var checkTimeout time.Duration

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify configuration and Exchange connectivity",
	Long: `Load the configuration, validate it, and probe the Exchange endpoint.

The probe issues an unauthenticated request against davmail.url through
the configured proxy and reports the result. An authentication challenge
(401) counts as success: it proves the endpoint answers.

Examples:
  # Check the default configuration
  davgate check

  # Check a specific config file
  davgate check --config /etc/davgate/config.yaml`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 15*time.Second, "Probe timeout")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	pairs := [][2]string{
		{"Config", getConfigSource(GetConfigFile())},
		{"Exchange URL", cfg.Davmail.URL},
		{"LDAP port", strconv.Itoa(cfg.Davmail.LdapPort)},
		{"Allow remote", strconv.FormatBool(cfg.Davmail.AllowRemote)},
		{"Proxy", proxySummary(cfg)},
		{"Kerberos", strconv.FormatBool(cfg.Davmail.EnableKerberos)},
		{"LDAPS", strconv.FormatBool(cfg.Davmail.SSL.KeystoreFile != "")},
	}
	if err := output.SimpleTable(os.Stdout, pairs); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	if err := gateway.Check(ctx, cfg); err != nil {
		return fmt.Errorf("exchange connectivity check failed: %w", err)
	}

	fmt.Println("\nExchange endpoint is reachable.")
	return nil
}

func proxySummary(cfg *config.Config) string {
	if !cfg.Davmail.EnableProxy {
		return "disabled"
	}
	return fmt.Sprintf("%s:%d", cfg.Davmail.ProxyHost, cfg.Davmail.ProxyPort)
}
