package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/ingredient-sheets/credentials"
	"github.com/jrsteele09/ingredient-sheets/internal/config"
	"github.com/jrsteele09/ingredient-sheets/internal/logging"
	"github.com/jrsteele09/ingredient-sheets/kvstore"
	"github.com/jrsteele09/ingredient-sheets/kvstore/filestore"
	"github.com/jrsteele09/ingredient-sheets/kvstore/sqlitestore"
	"github.com/jrsteele09/ingredient-sheets/oauthflow"
	"github.com/jrsteele09/ingredient-sheets/provisioning"
	"github.com/jrsteele09/ingredient-sheets/server"
	"github.com/jrsteele09/ingredient-sheets/sessions"
	"github.com/jrsteele09/ingredient-sheets/spreadsheet"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetEnv())
	for _, warning := range c.GetStartupWarnings() {
		log.Warn().Msg(warning)
	}
	displayAppname(c.GetAppName())

	app, err := newApp(c)
	if err != nil {
		return err
	}
	defer app.close()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// app holds the wired handler and the resources to release on exit.
type app struct {
	handler http.Handler
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

func newApp(c config.Config) (a *app, returnError error) {
	a = &app{}
	defer func() {
		if returnError != nil {
			a.close()
		}
	}()

	kv, err := openStore(c)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, kv.Close)

	sessionRepo, err := newSessionRepo(c, a)
	if err != nil {
		return nil, err
	}
	sessionManager, err := sessions.NewManager(sessionRepo, c.GetSessionSecret(), c.GetMaxSessionAge(),
		sessions.WithSecureCookies(c.GetCookieSecure()))
	if err != nil {
		return nil, err
	}

	credStore, err := credentials.NewStore(kv, c.GetCredentialKey())
	if err != nil {
		return nil, err
	}

	flow, err := newFlowController(c)
	if err != nil {
		return nil, err
	}

	sheets := spreadsheet.NewGoogleFactory(credStore, spreadsheet.WithCallTimeout(c.GetProviderTimeout()))
	provisioner, err := provisioning.NewService(kv, sheets,
		provisioning.WithTitle(c.GetSheetTitle()),
		provisioning.WithLease(c.GetProvisioningLease()),
	)
	if err != nil {
		return nil, err
	}

	a.handler, err = server.New(c, server.Services{
		Sessions:     sessionManager,
		Flow:         flow,
		Credentials:  credStore,
		Provisioning: provisioner,
		Sheets:       sheets,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openStore(c config.Config) (kvstore.Store, error) {
	folder := c.GetDataFolder()
	switch c.GetStoreBackend() {
	case config.StoreBackendSQLite:
		path := filepath.Join(folder, "store.db")
		log.Info().Str("path", path).Msg("Using SQLite store")
		return sqlitestore.Open(path)
	default:
		path := filepath.Join(folder, "store.json")
		log.Info().Str("path", path).Msg("Using file store")
		return filestore.Open(path)
	}
}

func newSessionRepo(c config.StorageConfig, a *app) (sessions.Repo, error) {
	if c.GetSessionBackend() != config.SessionBackendRedis {
		return sessions.NewInMemoryRepo(), nil
	}

	opts, err := redis.ParseURL(c.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("[newSessionRepo] parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("[newSessionRepo] redis ping: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Using redis sessions")
	return sessions.NewRedisRepo(client), nil
}

func newFlowController(c config.OAuthConfig) (*oauthflow.Controller, error) {
	oauthCfg, err := c.GetOAuth2Config()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: c.GetProviderTimeout()}
	ctx, cancel := context.WithTimeout(oidc.ClientContext(context.Background(), httpClient), c.GetProviderTimeout())
	defer cancel()
	provider, err := oidc.NewProvider(ctx, c.GetIssuer())
	if err != nil {
		return nil, fmt.Errorf("[newFlowController] discover %s: %w", c.GetIssuer(), err)
	}
	oauthCfg.Endpoint = provider.Endpoint()

	identity := oauthflow.NewOIDCIdentity(provider, oauthCfg.ClientID, httpClient)
	return oauthflow.NewController(oauthCfg, identity, c.GetProviderTimeout(), oauthflow.WithHTTPClient(httpClient))
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
