package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags
// plus the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return err
		}

		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	return validateCrossFields(cfg)
}

// formatFieldError renders one field error with its config key path.
func formatFieldError(fe validator.FieldError) string {
	// Namespace is Config.Davmail.URL; drop the root and lowercase the
	// first segment to approximate the config key.
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %q validation (param %s)", path, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %q validation", path, fe.Tag())
}

// validateCrossFields enforces rules spanning multiple keys.
func validateCrossFields(cfg *Config) error {
	if cfg.Davmail.EnableProxy {
		if cfg.Davmail.ProxyHost == "" {
			return fmt.Errorf("invalid configuration: davmail.enableProxy is set but davmail.proxyHost is empty")
		}
		if cfg.Davmail.ProxyPort == 0 {
			return fmt.Errorf("invalid configuration: davmail.enableProxy is set but davmail.proxyPort is 0")
		}
	}

	if cfg.Davmail.SSL.NeedClientAuth && cfg.Davmail.SSL.TruststoreFile == "" {
		return fmt.Errorf("invalid configuration: davmail.ssl.needClientAuth requires davmail.ssl.truststoreFile")
	}

	if cfg.Davmail.SSL.KeystoreFile == "" && cfg.Davmail.SSL.NeedClientAuth {
		return fmt.Errorf("invalid configuration: davmail.ssl.needClientAuth requires a keystore")
	}

	return nil
}
