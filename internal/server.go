package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/2beens/fitassess/internal/auth"
	"github.com/2beens/fitassess/internal/capture"
	"github.com/2beens/fitassess/internal/config"
	"github.com/2beens/fitassess/internal/db"
	"github.com/2beens/fitassess/internal/faceverify"
	"github.com/2beens/fitassess/internal/flow"
	"github.com/2beens/fitassess/internal/middleware"
	"github.com/2beens/fitassess/internal/misc"
	"github.com/2beens/fitassess/internal/results"
	"github.com/2beens/fitassess/internal/submission"
	"github.com/2beens/fitassess/internal/telemetry/metrics"
	"github.com/2beens/fitassess/internal/telemetry/tracing"
)

const sessionsCleanupInterval = 8 * time.Hour

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client

	sessionStore *auth.RedisSessionStore
	authService  *auth.Service
	flowManager  *flow.Manager
	resultsRepo  *results.Repo

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	RedisPassword           string
	PostgresUser            string
	PostgresPassword        string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         cfg.PostgresHost,
		DBPort:         cfg.PostgresPort,
		DBName:         cfg.PostgresDBName,
		DBUser:         params.PostgresUser,
		DBPassword:     params.PostgresPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": cfg.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("station", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fitassess-station", rdb)
	if err != nil {
		return nil, err
	}

	sessionStore := auth.NewRedisSessionStore(rdb, cfg.SessionTTL())
	authService := auth.NewService(auth.NewUsersRepo(dbPool), sessionStore, cfg.SessionTTL())
	go func() {
		ticker := time.NewTicker(sessionsCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := sessionStore.ScanAndClean(ctx)
				log.Debugf("sessions cleanup: %d removed", removed)
			}
		}
	}()

	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	submitPolicy, err := flow.ParseSubmitPolicy(cfg.SubmitPolicy)
	if err != nil {
		return nil, err
	}

	resultsRepo := results.NewRepo(dbPool)
	flowManager, err := flow.NewManager(flow.ManagerParams{
		TTL:      cfg.FlowTTL(),
		Policy:   submitPolicy,
		MediaDir: cfg.MediaDir,
		Device: capture.NewFFmpegDevice(capture.FFmpegDeviceParams{
			FFmpegPath:  cfg.FFmpegPath,
			InputFormat: cfg.FFmpegInputFormat,
			FrontInput:  cfg.FrontCameraInput,
			BackInput:   cfg.BackCameraInput,
			AudioInput:  cfg.AudioInput,
		}),
		NewVerifier: func() flow.Verifier {
			return faceverify.NewClient(faceverify.ClientParams{
				BaseURL:          cfg.FaceServiceURL,
				SkipNgrokWarning: cfg.SkipNgrokBrowserWarning,
				Timeout:          cfg.VerificationTimeout(),
				MetricsManager:   metricsManager,
			})
		},
		NewSubmitter: func() flow.Submitter {
			return submission.NewClient(submission.ClientParams{
				BaseURL:          cfg.AnalysisServiceURL,
				SkipNgrokWarning: cfg.SkipNgrokBrowserWarning,
				Timeout:          cfg.SubmissionTimeout(),
				MetricsManager:   metricsManager,
			})
		},
		ResultStore:    results.NewStore(cfg.ResultsCacheSizeMegabytes, cfg.FlowTTL()),
		History:        resultsRepo,
		MetricsManager: metricsManager,
	})
	if err != nil {
		return nil, fmt.Errorf("new flow manager: %w", err)
	}

	return &Server{
		config:      cfg,
		dbPool:      dbPool,
		versionInfo: params.VersionInfo,

		redisClient:  rdb,
		sessionStore: sessionStore,
		authService:  authService,
		flowManager:  flowManager,
		resultsRepo:  resultsRepo,

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("station-router"))

	miscHandler := misc.NewHandler(s.versionInfo, map[string]misc.HealthCheck{
		"postgres": s.dbPool.Ping,
		"redis": func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		},
	})
	miscHandler.SetupRoutes(r)

	// rate limit the session endpoints to prevent abuse
	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	authSubrouter := r.PathPrefix("/a").Subrouter()
	auth.NewHandler(s.authService).SetupRoutes(authSubrouter)
	authSubrouter.Use(middleware.RateLimit(
		reqRateLimiter,
		"auth",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))

	results.NewHandler(s.resultsRepo).SetupRoutes(r)
	flow.NewHandler(s.flowManager, s.config.MediaDir).SetupRoutes(r)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.authService)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(host string, port int) {
	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler: s.routerSetup(),
		Addr:    ipAndPort,
		// uploads and submissions of large videos take a while
		WriteTimeout: 5 * time.Minute,
		ReadTimeout:  5 * time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	// stops recordings and cancels in-flight verification/submission calls
	s.flowManager.Shutdown()
	log.Debugln("active flows closed")

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
