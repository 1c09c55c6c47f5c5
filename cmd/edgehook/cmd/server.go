package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/acme/autocert"

	"github.com/jmcleod/edgehook/config"
	"github.com/jmcleod/edgehook/internal/util"
	"github.com/jmcleod/edgehook/version"
)

var (
	port        int
	adapter     string
	assetsDir   string
	tlsCert     string
	tlsKey      string
	acmeDomains []string
	noCompress  bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the site server",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServerFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err := newLogger(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		rev, err := version.Revision(cmd.Context())
		if err != nil {
			logger.Warn("serving without a version tag", slog.Any("error", err))
		}

		handler, err := newRouter(cfg, logger, routerOptions{revision: rev, accessLog: true, fallback: true})
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		}

		listen := server.ListenAndServe
		if cfg.Adapter == config.AdapterNode {
			tlsConfig, err := newTLSConfig(cfg.TLS, logger)
			if err != nil {
				return err
			}
			server.TLSConfig = tlsConfig
			listen = func() error { return server.ListenAndServeTLS("", "") }
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(rev)
		logger.Info("starting server",
			slog.Int("port", cfg.Port),
			slog.String("adapter", string(cfg.Adapter)),
			slog.String("assets", cfg.Assets))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&adapter, "adapter", string(config.AdapterNode), "Deployment adapter: node (terminate TLS) or edge (plain HTTP behind a proxy)")
	serverCmd.Flags().StringVar(&assetsDir, "assets", "public", "Directory holding the built site")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().StringSliceVar(&acmeDomains, "acme-domain", nil, "Domain to obtain an ACME certificate for (repeatable)")
	serverCmd.Flags().BoolVar(&noCompress, "no-compress", false, "Disable gzip compression")
}

// applyServerFlags copies flags the user set over the loaded configuration.
func applyServerFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Port = port
	}
	if flags.Changed("adapter") {
		c.Adapter = config.Adapter(adapter)
	}
	if flags.Changed("assets") {
		c.Assets = assetsDir
	}
	if flags.Changed("tls-cert") {
		c.TLS.Cert = tlsCert
	}
	if flags.Changed("tls-key") {
		c.TLS.Key = tlsKey
	}
	if flags.Changed("acme-domain") {
		c.TLS.ACMEDomains = acmeDomains
	}
	if flags.Changed("no-compress") {
		c.Compression = !noCompress
	}
}

// newTLSConfig picks, in order, the configured key pair, ACME, or a runtime
// self-signed certificate.
func newTLSConfig(tc config.TLSConfig, logger *slog.Logger) (*tls.Config, error) {
	switch {
	case tc.Cert != "" && tc.Key != "":
		cert, err := tls.LoadX509KeyPair(tc.Cert, tc.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}, nil

	case len(tc.ACMEDomains) > 0:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(tc.ACMEDomains...),
			Cache:      autocert.DirCache(tc.ACMECache),
		}
		tlsConfig := m.TLSConfig()
		tlsConfig.MinVersion = tls.VersionTLS12
		logger.Info("using ACME certificates", slog.Any("domains", tc.ACMEDomains))
		return tlsConfig, nil
	}

	cert, err := util.GenerateSelfSignedCert()
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	logger.Warn("using self-signed runtime generated certificate for TLS")
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
