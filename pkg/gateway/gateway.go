// Package gateway wires configuration, metrics, the Exchange session
// factory and the LDAP adapter into one runnable unit.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/davgate/davgate/internal/logger"
	"github.com/davgate/davgate/pkg/adapter"
	"github.com/davgate/davgate/pkg/adapter/ldap"
	"github.com/davgate/davgate/pkg/config"
	"github.com/davgate/davgate/pkg/exchange"
	"github.com/davgate/davgate/pkg/exchange/httpclient"
	"github.com/davgate/davgate/pkg/exchange/owa"
	"github.com/davgate/davgate/pkg/metrics"
	promadapter "github.com/davgate/davgate/pkg/metrics/prometheus"
)

// Gateway is the assembled server: one LDAP listener in front of the
// Exchange session factory, plus the optional metrics endpoint.
type Gateway struct {
	cfg           *config.Config
	adapter       *ldap.Adapter
	factory       *exchange.CachingFactory
	metricsServer *metrics.Server
}

// New assembles a gateway from validated configuration.
func New(cfg *config.Config) (*Gateway, error) {
	gw := &Gateway{cfg: cfg}

	if cfg.Gateway.Metrics.Enabled {
		metrics.InitRegistry()
		server, err := metrics.NewServer(cfg.Gateway.Metrics.Port)
		if err != nil {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
		gw.metricsServer = server
	}
	ldapMetrics := promadapter.NewLDAPMetrics()
	exchangeMetrics := promadapter.NewExchangeMetrics()

	dialer := owa.NewDialer(FacadeConfig(cfg), exchangeMetrics)
	gw.factory = exchange.NewCachingFactory(dialer.Dial)

	tlsConfig, err := adapter.BuildTLSConfig(cfg.Davmail.SSL)
	if err != nil {
		return nil, fmt.Errorf("ssl keystore: %w", err)
	}

	gw.adapter = ldap.New(ldap.Config{
		BindAddress:     cfg.Davmail.BindAddress,
		Port:            cfg.Davmail.LdapPort,
		AllowRemote:     cfg.Davmail.AllowRemote,
		ClientSoTimeout: time.Duration(cfg.Davmail.ClientSoTimeout) * time.Second,
		MaxConnections:  cfg.Gateway.LDAP.MaxConnections,
		ShutdownTimeout: cfg.Gateway.LDAP.ShutdownTimeout,
		MaxMessageSize:  int(cfg.Gateway.LDAP.MaxMessageSize),
		GatewayURL:      cfg.Davmail.URL,
		TLS:             tlsConfig,
	}, gw.factory, ldapMetrics)

	return gw, nil
}

// FacadeConfig derives the HTTP facade template from the settings
// store. Credentials stay empty: each LDAP bind dials its own session.
func FacadeConfig(cfg *config.Config) httpclient.Config {
	return httpclient.Config{
		BaseURL:        cfg.Davmail.URL,
		EnableProxy:    cfg.Davmail.EnableProxy,
		ProxyHost:      cfg.Davmail.ProxyHost,
		ProxyPort:      cfg.Davmail.ProxyPort,
		ProxyUser:      cfg.Davmail.ProxyUser,
		ProxyPassword:  cfg.Davmail.ProxyPassword,
		EnableKerberos: cfg.Davmail.EnableKerberos,
		Krb5Conf:       cfg.Gateway.Kerberos.Krb5Conf,
	}
}

// Serve runs the gateway until ctx is cancelled, then shuts everything
// down. It blocks for the lifetime of the server.
func (g *Gateway) Serve(ctx context.Context) error {
	if g.metricsServer != nil {
		go func() {
			if err := g.metricsServer.Start(); err != nil {
				logger.Error("Metrics server failed", logger.KeyError, err)
			}
		}()
		logger.Info("Metrics server listening",
			logger.KeyPort, g.cfg.Gateway.Metrics.Port)
	}

	logger.Info("Gateway starting",
		logger.KeyURL, g.cfg.Davmail.URL,
		logger.KeyPort, g.adapter.Port(),
		logger.KeyProtocol, g.adapter.Protocol())

	err := g.adapter.Serve(ctx)

	g.shutdown()
	return err
}

// Addr reports the listener address once it is bound. Blocks until the
// listener is ready.
func (g *Gateway) Addr() string {
	return g.adapter.GetListenerAddr()
}

func (g *Gateway) shutdown() {
	g.factory.Close()

	if g.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", logger.KeyError, err)
		}
	}

	logger.Info("Gateway stopped")
}

// Check probes the Exchange endpoint from the settings store. It backs
// the connectivity verification command and the startup log line.
func Check(ctx context.Context, cfg *config.Config) error {
	facade, err := httpclient.New(FacadeConfig(cfg))
	if err != nil {
		return err
	}
	facade.Start()
	defer facade.Stop()

	return exchange.CheckConfig(ctx, facade, cfg.Davmail.URL)
}
