package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pgi/internal/checkout"
	"github.com/noah-isme/backend-pgi/internal/common"
	"github.com/noah-isme/backend-pgi/internal/config"
	"github.com/noah-isme/backend-pgi/internal/gateway"
	"github.com/noah-isme/backend-pgi/internal/health"
	"github.com/noah-isme/backend-pgi/internal/lock"
	"github.com/noah-isme/backend-pgi/internal/obs"
	"github.com/noah-isme/backend-pgi/internal/payment"
	"github.com/noah-isme/backend-pgi/internal/ratelimit"
	"github.com/noah-isme/backend-pgi/internal/resilience"
	"github.com/noah-isme/backend-pgi/internal/security"
	"github.com/noah-isme/backend-pgi/internal/session"
	"github.com/noah-isme/backend-pgi/internal/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	defer cfg.KeySecret.Scrub()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pgi")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pgi-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	sandbox := gateway.NewSandbox(cfg.KeySecret)
	if cfg.IsProduction() {
		logger.Warn().Msg("no hosted gateway client configured; sandbox payments are disabled")
	}
	breaker := resilience.NewBreaker(cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor).
		WithTarget("razorpay").
		WithLogger(logger)
	gw := gateway.Resilient{
		Next:      sandbox,
		Breaker:   breaker,
		Retries:   envInt("GATEWAY_READ_RETRIES", 2),
		RetryBase: envDurationMillis("GATEWAY_RETRY_BASE_MS", 100),
	}

	pipeline := &payment.Pipeline{
		Gateway:   gw,
		Signature: signature.Verifier{Key: cfg.KeySecret},
		Logger:    logger.With().Str("component", "verification").Logger(),
	}
	sessionStore := &session.RedisStore{Client: redisClient, TTL: cfg.SessionTTL}
	guard := &session.Guard{
		Enabled:  cfg.SessionAuthorization,
		Store:    sessionStore,
		Verifier: pipeline,
		Locker:   lock.Locker{R: redisClient},
		Logger:   logger.With().Str("component", "session").Logger(),
	}
	checkoutSvc := &checkout.Service{
		Gateway:  gw,
		Builder:  payment.OrderBuilder{DefaultCurrency: cfg.DefaultCurrency},
		Pipeline: pipeline,
		Guard:    guard,
		KeyID:    cfg.KeyID,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}
	cookieCfg := session.CookieConfig{
		Name:     cfg.SessionCookieName,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
		TTL:      cfg.SessionTTL,
	}
	checkoutHandler := &checkout.Handler{
		Svc:      checkoutSvc,
		Store:    sessionStore,
		Cookie:   cookieCfg,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if !cfg.IsProduction() {
		checkoutHandler.Sandbox = sandbox
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	csrf := security.CSRF{
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
		Exempt:   security.WithoutCookie(cfg.SessionCookieName),
	}
	verifyLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "pgi:ratelimit:"},
		Config: ratelimit.Config{
			Key:    ratelimit.PerClientIP("verify"),
			Window: time.Minute,
			Max:    cfg.RateLimitVerifyPerMin,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("verify rate limiter") },
	}
	apiLimit, err := ratelimit.NewFixed(redisClient, cfg.RateLimitAPI)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise api rate limiter")
	}
	apiLimit.OnError = func(err error) { logger.Error().Err(err).Msg("api rate limiter") }

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, SessionCookie: cfg.SessionCookieName}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS", true),
		EnableHSTS:            cfg.IsProduction(),
		HSTSIncludeSubdomains: true,
		TrustForwardedProto:   envBool("SECURE_TRUST_FORWARDED_PROTO", false),
	}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", !cfg.IsProduction())
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:        readinessChecker{redis: redisClient, breaker: breaker, cfg: cfg},
		RedisTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		GatewayTimeout: envDurationMillis("HEALTH_READY_GATEWAY_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(apiLimit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Get("/csrf", csrf.Issue)

		v.Group(func(g chi.Router) {
			g.Use(csrf.Middleware)
			g.With(idem.Middleware).Post("/orders", checkoutHandler.CreateOrder)
			g.Post("/session", checkoutHandler.BeginSession)
			g.With(verifyLimit.Middleware).Post("/payments/verify", checkoutHandler.VerifyPayment)
			g.Get("/payments/authorization", checkoutHandler.Authorization)
			g.Delete("/payments/authorization", checkoutHandler.ResetAuthorization)
			if checkoutHandler.Sandbox != nil {
				g.Post("/sandbox/payments", checkoutHandler.SandboxPay)
			}
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()
	go func() {
		<-stop.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Bool("session_authorization", cfg.SessionAuthorization).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	redis   *redis.Client
	breaker *resilience.Breaker
	cfg     *config.Config
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func (c readinessChecker) PingGateway(_ context.Context, _ time.Duration) error {
	if c.cfg == nil || !c.cfg.KeySecret.Available() {
		return errors.New("gateway key unavailable")
	}
	if c.breaker != nil && c.breaker.State() == resilience.Open {
		return resilience.ErrOpenCircuit
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
