// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"boost-service/internal/config"
	"boost-service/internal/db"
	"boost-service/internal/domain/boost"
	wstypes "boost-service/internal/domain/websocket"
	boostHandler "boost-service/internal/handlers/boost"
	promotionHandler "boost-service/internal/handlers/promotion"
	wsHandler "boost-service/internal/handlers/websocket"
	"boost-service/internal/jobs"
	"boost-service/internal/ledger"
	"boost-service/internal/middleware"
	"boost-service/internal/pkg/events"
	"boost-service/internal/pkg/jwt"
	"boost-service/internal/pkg/marketclient"
	"boost-service/internal/pkg/metrics"
	"boost-service/internal/pkg/session"
	"boost-service/internal/repository/postgres"
	boostUsecase "boost-service/internal/service/boost"
	creditUsecase "boost-service/internal/service/credit"
	gatewayUsecase "boost-service/internal/service/gateway"
	pricingUsecase "boost-service/internal/service/pricing"
	promotionUsecase "boost-service/internal/service/promotion"
	walletUsecase "boost-service/internal/service/wallet"
	"boost-service/internal/websocket"
	wsHandlers "boost-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	mu         sync.Mutex
	httpServer *http.Server
	hub        *websocket.Hub
	cron       *jobs.CronManager
	publisher  events.Publisher
	pool       *pgxpool.Pool
	redis      *redis.Client
	cancel     context.CancelFunc
}

func NewServer(logger *zap.Logger) *Server {
	cfg := config.Load()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires every component and serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, db.PostgresConfig{
		URL:             s.cfg.DatabaseURL,
		MaxConns:        10,
		MaxConnLifetime: 30 * time.Minute,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("postgres connected")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Address:  s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		cancel()
		pool.Close()
		return err
	}
	logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Verifier -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		cancel()
		pool.Close()
		_ = redisClient.Close()
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Metrics -----
	m := metrics.New()

	// ----- Upstream marketplace -----
	market := marketclient.NewClient(s.cfg.MarketplaceURL, s.cfg.MarketplaceTimeout, logger)
	market.SetObserver(m)

	// ----- Ledgers -----
	catalogLedger := pricingUsecase.NewCatalogLedger(redisClient, market, s.cfg.CatalogTTL, logger,
		ledger.WithObserver[[]boost.PricingTier](m))
	creditLedger := creditUsecase.NewCreditLedger(redisClient, market, s.cfg.LedgerTTL, logger,
		ledger.WithObserver[boost.SubscriptionCredit](m))
	walletLedger := walletUsecase.NewWalletLedger(redisClient, market, s.cfg.LedgerTTL, logger,
		ledger.WithObserver[boost.Wallet](m))
	providerLedger := gatewayUsecase.NewProviderLedger(redisClient, market, s.cfg.CatalogTTL, logger,
		ledger.WithObserver[[]boost.PaymentProvider](m))
	boostLedger := boostUsecase.NewBoostLedger(redisClient, market, s.cfg.LedgerTTL, logger,
		ledger.WithObserver[[]boost.Boost](m))

	// ----- Repositories & Stores -----
	attemptRepo := postgres.NewPurchaseAttemptRepository(pool)
	workflowStore := session.NewStore(redisClient, s.cfg.WorkflowTTL)
	submitLock := session.NewSubmitLock(redisClient, s.cfg.SubmitLockTTL)

	// ----- Events -----
	publisher := events.Connect(s.cfg.AMQPURL, s.cfg.EventsExchange, logger)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, logger)
	hub.SetObserver(m)

	// ----- Services (Usecases) -----
	pricingService := pricingUsecase.NewPricingService(market, catalogLedger, logger)
	creditService := creditUsecase.NewCreditService(creditLedger, logger)
	walletService := walletUsecase.NewWalletService(walletLedger, logger)
	gatewayService := gatewayUsecase.NewGatewayService(market, providerLedger, s.cfg.GatewayInsecureHosts, logger)
	boostService := boostUsecase.NewBoostService(boostLedger, logger)
	promotionService := promotionUsecase.NewPromotionService(promotionUsecase.Deps{
		Pricing:   pricingService,
		Credits:   creditService,
		Wallets:   walletService,
		Gateway:   gatewayService,
		Boosts:    boostService,
		Purchaser: market,
		Store:     workflowStore,
		Locker:    submitLock,
		Journal:   attemptRepo,
		Events:    publisher,
		Notifier:  hub,
		Recorder:  m,
	}, s.cfg.SubmitTimeout, logger)

	// Register WebSocket handlers
	hub.RegisterHandler(wsHandlers.NewPromotionHandler(promotionService, walletService, logger))
	go hub.Run(ctx)

	// ----- Background Jobs -----
	cronManager := jobs.NewCronManager(logger)
	reporter := jobs.NewRedirectReporter(attemptRepo, m, publisher, s.cfg.PendingRedirectAge, logger)
	if err := cronManager.Schedule("pending-redirects", s.cfg.ReconcileSchedule, reporter.Job()); err != nil {
		logger.Error("failed to schedule pending redirect report", zap.Error(err))
	}
	cronManager.Start()

	// ----- Handlers -----
	boostHandlerInst := boostHandler.NewBoostHandler(pricingService, creditService, walletService, gatewayService, boostService)
	promotionHandlerInst := promotionHandler.NewPromotionHandler(promotionService)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier, logger)
	priceLimiter := middleware.NewRateLimiter(s.cfg.PriceCalcPerMinute, s.cfg.PriceCalcBurst)
	go priceLimiter.Cleanup(ctx, 10*time.Minute)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.SentryMiddleware(),
		middleware.RequestLogger(logger),
		m.Middleware(),
	)

	// ----- Router -----
	SetupRouter(s.engine, logger, &Handlers{
		BoostHandler:     boostHandlerInst,
		PromotionHandler: promotionHandlerInst,
		WSHandler:        wsHandlerInst,
		AuthMiddleware:   authMiddleware,
		PriceLimiter:     priceLimiter,
		MetricsHandler:   m.Handler(),
	})

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	httpServer := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           corsHandler(s.engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.hub = hub
	s.cron = cronManager
	s.publisher = publisher
	s.pool = pool
	s.redis = redisClient
	s.cancel = cancel
	s.mu.Unlock()

	// ----- Start HTTP -----
	logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr), zap.String("env", s.cfg.AppEnv))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, stops background work and closes connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	s.hub.BroadcastSystemAlert(&wstypes.SystemAlertData{
		Severity: "info",
		Title:    "Maintenance",
		Message:  "server is restarting, reconnect shortly",
	})

	err := s.httpServer.Shutdown(ctx)

	s.cron.Stop()
	s.cancel()
	s.publisher.Close()
	if cerr := s.redis.Close(); cerr != nil {
		s.logger.Warn("failed to close redis", zap.Error(cerr))
	}
	s.pool.Close()

	s.httpServer = nil
	return err
}
