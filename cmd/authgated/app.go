package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haloedge/authcore/internal/authpipeline"
	"github.com/haloedge/authcore/internal/fetcher"
	"github.com/haloedge/authcore/internal/gwconfig"
	"github.com/haloedge/authcore/internal/issuer"
	"github.com/haloedge/authcore/internal/jwt"
	"github.com/haloedge/authcore/internal/keycache"
	"github.com/haloedge/authcore/internal/keysource"
	"github.com/haloedge/authcore/internal/observability"
	"github.com/haloedge/authcore/internal/policy"
	"github.com/haloedge/authcore/internal/storage"
	"github.com/haloedge/authcore/internal/tokencache"
)

// application holds every long-lived component the authentication core
// needs for the lifetime of the process.
type application struct {
	cfg           *gwconfig.ServiceConfig
	pipeline      *authpipeline.Pipeline
	policies      policy.Registry
	watcher       *issuer.Watcher
	tracer        *observability.Tracer
	fetcher       fetcher.HttpFetcher
	store         *storage.Store
	vaultSource   *keysource.Source
	metricsServer *http.Server
}

// svcContext adapts the constructed components into authpipeline.ServiceContext.
type svcContext struct {
	serviceName string
	tokenCache  tokencache.Cache
	keyCache    keycache.Cache
	registry    issuer.Registry
	fetch       fetcher.HttpFetcher
	validator   jwt.TokenValidator
	keySource   authpipeline.KeySource
}

func (s *svcContext) ServiceName() string              { return s.serviceName }
func (s *svcContext) TokenCache() tokencache.Cache      { return s.tokenCache }
func (s *svcContext) KeyCache() keycache.Cache          { return s.keyCache }
func (s *svcContext) IssuerRegistry() issuer.Registry   { return s.registry }
func (s *svcContext) Fetcher() fetcher.HttpFetcher      { return s.fetch }
func (s *svcContext) Validator() jwt.TokenValidator     { return s.validator }
func (s *svcContext) KeySource() authpipeline.KeySource { return s.keySource }

var _ authpipeline.ServiceContext = (*svcContext)(nil)

// initApplication wires every component named in the configuration into a
// running application, ready for waitForShutdown.
func initApplication(cfg *gwconfig.ServiceConfig, logger observability.Logger) *application {
	tracer := initTracer(cfg, logger)

	httpFetcher := fetcher.New(fetcherConfig(cfg), logger)

	var store *storage.Store
	tokenCache, keyCache := buildLocalCaches(cfg, logger)
	if cfg.Storage.Enabled {
		var err error
		store, err = storage.New(storage.Config{
			Addr:      cfg.Storage.Addr,
			Password:  cfg.Storage.Password,
			DB:        cfg.Storage.DB,
			KeyPrefix: cfg.Storage.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Fatal("failed to connect to shared storage", observability.Error(err))
		}
		tokenCache = storage.NewTokenCache(store, cfg.Cache.TokenCacheTTL.Duration(), logger)
		keyCache = storage.NewKeyCache(store, logger)
		logger.Info("using shared Redis-backed cache tier", observability.String("addr", cfg.Storage.Addr))
	}

	registry := issuer.New(cfg.Issuers)

	var vaultSource *keysource.Source
	var keySource authpipeline.KeySource
	if cfg.Vault.Enabled {
		var err error
		vaultSource, err = keysource.New(keysource.Config{
			Address:   cfg.Vault.Address,
			Token:     cfg.Vault.Token,
			Namespace: cfg.Vault.Namespace,
			Field:     cfg.Vault.Field,
		}, logger)
		if err != nil {
			logger.Fatal("failed to build vault key source", observability.Error(err))
		}
		keySource = vaultSource
	}

	policies := policy.NewRegistry(cfg.Methods)

	svc := &svcContext{
		serviceName: cfg.ServiceName,
		tokenCache:  tokenCache,
		keyCache:    keyCache,
		registry:    registry,
		fetch:       httpFetcher,
		validator:   jwt.NewValidator(),
		keySource:   keySource,
	}

	pipeline := authpipeline.New(svc, logger)

	watcher := initIssuerWatcher(cfg, registry, keyCache, logger)

	return &application{
		cfg:         cfg,
		pipeline:    pipeline,
		policies:    policies,
		watcher:     watcher,
		tracer:      tracer,
		fetcher:     httpFetcher,
		store:       store,
		vaultSource: vaultSource,
	}
}

func buildLocalCaches(cfg *gwconfig.ServiceConfig, logger observability.Logger) (tokencache.Cache, keycache.Cache) {
	tc := tokencache.New(cfg.Cache.TokenCacheCapacity, logger)
	kc := keycache.New(cfg.Cache.KeyCacheCapacity, logger)
	return tc, kc
}

func fetcherConfig(cfg *gwconfig.ServiceConfig) fetcher.Config {
	out := fetcher.DefaultConfig()
	if cfg.Fetcher.TimeoutSeconds > 0 {
		out.Timeout = time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second
	}
	if cfg.Fetcher.RateLimitPerSecond > 0 {
		out.RateLimitPerSecond = cfg.Fetcher.RateLimitPerSecond
	}
	if cfg.Fetcher.RateLimitBurst > 0 {
		out.RateLimitBurst = cfg.Fetcher.RateLimitBurst
	}
	if cfg.Fetcher.BreakerFailureRatio > 0 {
		out.BreakerFailureRatio = cfg.Fetcher.BreakerFailureRatio
	}
	return out
}

func initTracer(cfg *gwconfig.ServiceConfig, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		Enabled:      cfg.Observability.Tracing.Enabled,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	}
	if tracerCfg.ServiceName == "" {
		tracerCfg.ServiceName = "authcore"
	}
	logger.Info("tracing configured",
		observability.Bool("enabled", tracerCfg.Enabled),
		observability.String("service_name", tracerCfg.ServiceName))
	return observability.NewTracer(tracerCfg)
}

func initIssuerWatcher(cfg *gwconfig.ServiceConfig, registry issuer.Registry, keyCache keycache.Cache, logger observability.Logger) *issuer.Watcher {
	if cfg.IssuerConfigPath == "" {
		return nil
	}

	issuerNames := make([]string, 0, len(cfg.Issuers))
	for _, e := range cfg.Issuers {
		issuerNames = append(issuerNames, e.Issuer)
	}

	watcher, err := issuer.NewWatcher(cfg.IssuerConfigPath, issuerNames, func(issuers []string) {
		for _, name := range issuers {
			registry.Reset(name)
			keyCache.Reset(name)
		}
	}, logger)
	if err != nil {
		logger.Warn("failed to create issuer config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(); err != nil {
		logger.Warn("failed to start issuer config watcher", observability.Error(err))
		return nil
	}

	return watcher
}

// startMetricsServerIfEnabled starts the /metrics and /healthz endpoints.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	mc := app.cfg.Observability.Metrics
	if !mc.Enabled {
		return
	}

	path := mc.Path
	if path == "" {
		path = "/metrics"
	}
	addr := app.cfg.ListenAddr
	if mc.Port > 0 {
		addr = ":" + strconv.Itoa(mc.Port)
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	app.metricsServer = server

	logger.Info("starting metrics server", observability.String("address", addr), observability.String("path", path))
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", observability.Error(err))
		}
	}()
}

