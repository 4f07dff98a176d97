// Command threshold serves the login, external provider and logout pages
// of an identity provider.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/threshold/pkg/authn"
	"github.com/platinummonkey/threshold/pkg/config"
	"github.com/platinummonkey/threshold/pkg/cookie"
	"github.com/platinummonkey/threshold/pkg/flow"
	"github.com/platinummonkey/threshold/pkg/observability"
	"github.com/platinummonkey/threshold/pkg/resume"
	"github.com/platinummonkey/threshold/pkg/server"
	"github.com/platinummonkey/threshold/pkg/session"
	"github.com/platinummonkey/threshold/pkg/signin"
	"github.com/platinummonkey/threshold/pkg/sso"
	"github.com/platinummonkey/threshold/pkg/users"
	"github.com/platinummonkey/threshold/pkg/views"
)

func main() {
	demoUser := flag.String("demo-user", "", "username:password seeded into the in-memory user store")
	migrate := flag.Bool("migrate", false, "apply database migrations before serving")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger, *demoUser, *migrate); err != nil {
		logger.WithError(err).Fatal("threshold exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, demoUser string, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	codec, err := cookie.NewCodec([]byte(cfg.Cookies.Secret))
	if err != nil {
		return fmt.Errorf("failed to create cookie codec: %w", err)
	}

	var db *sql.DB
	var userService authn.UserService
	userOpts := users.Options{
		SecondFactorPath: cfg.Login.SecondFactorPath,
		RegistrationPath: cfg.Login.RegistrationPath,
	}
	if cfg.Storage.DatabaseURL != "" {
		db, err = users.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open user database: %w", err)
		}
		if migrate {
			if err := users.RunMigrations(ctx, db, logger); err != nil {
				return err
			}
		}
		userService = users.NewSQLService(db, userOpts, logger)

		stored, err := sso.NewStorage(db).ListProviders(ctx, true)
		if err != nil {
			return fmt.Errorf("failed to load stored providers: %w", err)
		}
		cfg.Providers = mergeProviders(cfg.Providers, stored)
		logger.WithField("stored_providers", len(stored)).Info("User database connected")
	} else {
		mem := users.NewMemoryService(userOpts)
		if demoUser != "" {
			name, password, ok := strings.Cut(demoUser, ":")
			if !ok || name == "" || password == "" {
				return errors.New("-demo-user must be username:password")
			}
			if _, err := mem.AddUser(name, name, password, false); err != nil {
				return fmt.Errorf("failed to seed demo user: %w", err)
			}
		}
		userService = mem
		logger.Warn("No database configured, using the in-memory user store")
	}

	registry, err := sso.NewRegistryFromConfigs(ctx, sso.NewProviderFactory(cfg.Server.BaseURL), cfg.Providers, logger)
	if err != nil {
		return fmt.Errorf("failed to load identity providers: %w", err)
	}

	var redisClient *redis.Client
	var guard resume.Guard
	if cfg.Storage.RedisURL != "" {
		redisClient, err = resume.NewRedisClient(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		guard = resume.NewRedisGuard(redisClient, cfg.Storage.ResumeTokenTTL)
	} else {
		guard = resume.NewMemoryGuard(cfg.Storage.ResumeCacheSize, cfg.Storage.ResumeTokenTTL)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(promRegistry)
		if otelProviders != nil {
			om, err := observability.NewOTelMetrics(observability.Meter())
			if err != nil {
				return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
			}
			metrics.WithOTel(om)
		}
	}

	sessions := session.NewManager(codec, registry, session.Options{
		CookieName:       cfg.Cookies.Name,
		Lifetime:         cfg.Cookies.SessionLifetime,
		ExternalLifetime: cfg.Cookies.ExternalLifetime,
	})

	links := make([]flow.Link, 0, len(cfg.LoginLinks))
	for _, l := range cfg.LoginLinks {
		links = append(links, flow.Link(l))
	}
	orch, err := flow.New(flow.Options{
		SiteName:           cfg.Server.SiteName,
		BaseURL:            cfg.Server.BaseURL,
		EnableLocalLogin:   cfg.Login.EnableLocalLogin,
		AllowRememberMe:    cfg.Login.AllowRememberMe,
		PersistentCookies:  cfg.Login.PersistentCookies,
		RememberMeDuration: cfg.Login.RememberMeDuration,
		LoginLinks:         links,
		ProtocolLogoutURLs: cfg.ProtocolLogoutURLs,
	}, userService,
		flow.WithProviders(registry),
		flow.WithResumeGuard(guard),
		flow.WithMetrics(metrics),
		flow.WithLogger(logger),
		flow.WithClaimsFilter(claimsFilter(cfg)),
	)
	if err != nil {
		return fmt.Errorf("failed to create login flow: %w", err)
	}

	policy, err := signin.NewOriginPolicy(cfg.Server.BaseURL, cfg.AllowedReturnOrigins...)
	if err != nil {
		return fmt.Errorf("invalid return origins: %w", err)
	}

	renderer, err := pageRenderer(cfg.Server.TemplatesDir)
	if err != nil {
		return err
	}
	if cfg.Server.TemplatesDir != "" {
		logger.WithField("dir", cfg.Server.TemplatesDir).Info("Using custom page templates")
	}

	extra := []server.RouteRegistrar{
		sso.NewHandlers(registry, sessions, cfg.CookieOptions(), cfg.Server.BaseURL+flow.PathCallback, logger),
	}
	for _, path := range unmountedPartialPaths(cfg.Login) {
		logger.WithField("path", path).Warn("Partial sign-ins redirect to a path this server does not mount; an out-of-band handler must resume them")
	}

	srv := server.New(server.Config{
		Orchestrator:   orch,
		Sessions:       sessions,
		Codec:          codec,
		Cookies:        cfg.CookieOptions(),
		SignInLifetime: cfg.Login.SignInLifetime,
		Renderer:       renderer,
		Metrics:        metrics,
		Logger:         logger,
		ReturnURLs:     policy,
		Extra:          extra,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(srv.Handler(), "threshold"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, cfg.Observability.OTelServiceVersion))
	healthMux.Handle("/metrics", observability.MetricsHandler(promRegistry))
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	if db != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	}
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, otelProviders, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer observability.RecoverPanic(logger, "login server")
		logger.WithFields(logrus.Fields{
			"addr":     httpServer.Addr,
			"base_url": cfg.Server.BaseURL,
		}).Info("Starting login server")
		return listen(httpServer)
	})
	g.Go(func() error {
		defer observability.RecoverPanic(logger, "health server")
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return listen(healthServer)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// mergeProviders appends stored providers whose names the config file does
// not already define.
func mergeProviders(file, stored []*sso.ProviderConfig) []*sso.ProviderConfig {
	seen := make(map[string]bool, len(file))
	for _, p := range file {
		seen[p.Name] = true
	}
	for _, p := range stored {
		if !seen[p.Name] {
			file = append(file, p)
			seen[p.Name] = true
		}
	}
	return file
}

// pageRenderer loads page templates from dir over the built-in ones
func pageRenderer(dir string) (*views.TemplateRenderer, error) {
	if dir == "" {
		return views.NewTemplateRenderer(), nil
	}
	r, err := views.NewTemplateRendererFS(os.DirFS(dir), "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to load templates from %s: %w", dir, err)
	}
	return r, nil
}

// claimsFilter builds the provider claim filter from the config file
func claimsFilter(cfg *config.Config) authn.ClaimsFilter {
	var filters []authn.ClaimsFilter
	if len(cfg.ClaimTypeMap) > 0 {
		filters = append(filters, authn.ClaimTypeMap(cfg.ClaimTypeMap))
	}
	if len(filters) == 0 {
		return nil
	}
	return authn.ChainFilters(filters...)
}

// unmountedPartialPaths lists the app-relative partial sign-in redirects.
// No route in this binary serves them.
func unmountedPartialPaths(login config.LoginConfig) []string {
	var paths []string
	for _, p := range []string{login.SecondFactorPath, login.RegistrationPath} {
		if strings.HasPrefix(p, "~/") {
			paths = append(paths, p)
		}
	}
	return paths
}
