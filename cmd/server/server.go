package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tariel-x/affiliates/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// startServer serves plain HTTP, or HTTPS with Let's Encrypt when DOMAIN is
// set. It returns once ctx is done and the servers are shut down.
func startServer(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Domain == "" {
		return startHTTP(ctx, router, cfg, logger)
	}

	certsDir := getCertsDirectory()
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return fmt.Errorf("create certs directory: %w", err)
	}

	domain := normalizeDomain(cfg.Domain)
	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			if normalizeDomain(host) != domain {
				return fmt.Errorf("host %q not configured (expected %q)", host, domain)
			}
			return nil
		},
		Cache: autocert.DirCache(certsDir),
	}

	errorLog := newServerErrorLog(logger)

	// Port 80 answers ACME challenges and redirects everything else.
	httpServer := newServer(":"+cfg.HTTPPort, m.HTTPHandler(nil), errorLog)
	httpsServer := newServer(":"+cfg.HTTPSPort, router, errorLog)
	httpsServer.TLSConfig = m.TLSConfig()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server (ACME challenge & redirects) starting", "port", cfg.HTTPPort)
		return listen(httpServer.ListenAndServe)
	})
	g.Go(func() error {
		logger.Info("HTTPS server starting", "port", cfg.HTTPSPort, "domain", domain, "certs_dir", certsDir)
		return listen(func() error { return httpsServer.ListenAndServeTLS("", "") })
	})
	g.Go(func() error {
		watchCertificate(gctx, m, domain, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(logger, httpServer, httpsServer)
	})
	return g.Wait()
}

func startHTTP(ctx context.Context, router *gin.Engine, cfg *config.Config, logger *slog.Logger) error {
	srv := newServer(":"+cfg.HTTPPort, router, newServerErrorLog(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.HTTPPort)
		return listen(srv.ListenAndServe)
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(logger, srv)
	})
	return g.Wait()
}

func newServer(addr string, handler http.Handler, errorLog *log.Logger) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     errorLog,
	}
}

func listen(serve func() error) error {
	if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func shutdown(logger *slog.Logger, servers ...*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	logger.Info("HTTP servers stopped")
	return errors.Join(errs...)
}

// watchCertificate logs the certificate expiry once a day. Fetching the
// certificate lets autocert renew it when it is close to expiry.
func watchCertificate(ctx context.Context, m *autocert.Manager, domain string, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		checkCertificate(m, domain, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func checkCertificate(m *autocert.Manager, domain string, logger *slog.Logger) {
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
	if err != nil || cert == nil || len(cert.Certificate) == 0 {
		logger.Warn("certificate not available yet", "domain", domain, "error", err)
		return
	}

	leaf := cert.Leaf
	if leaf == nil {
		leaf, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			logger.Error("failed to parse certificate", "domain", domain, "error", err)
			return
		}
	}

	days := int(time.Until(leaf.NotAfter).Hours() / 24)
	logger.Info("certificate checked", "domain", domain, "expires", leaf.NotAfter.Format("2006-01-02"), "days_left", days)
}

func getCertsDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "certs"
	}
	return filepath.Join(filepath.Dir(execPath), "certs")
}

// normalizeDomain lowercases, trims and drops a leading "www.".
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
