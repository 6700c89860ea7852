package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"wellness-crisis/internal/analyzer"
	"wellness-crisis/internal/cache"
	"wellness-crisis/internal/config"
	"wellness-crisis/internal/dispatcher"
	"wellness-crisis/internal/lexicon"
	"wellness-crisis/internal/lifecycle"
	"wellness-crisis/internal/models"
	"wellness-crisis/internal/repository"
	"wellness-crisis/internal/safetyplan"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// AlertsStore the alert queries the service layer runs directly, beyond
// what the lifecycle owns.
type AlertsStore interface {
	ListCrisisAlerts(ctx context.Context, userID string, filters repository.CrisisAlertFilters, page, size int) ([]*models.CrisisAlert, int, error)
	ListAttentionQueue(ctx context.Context, staleBefore time.Time, page, size int) ([]*models.CrisisAlert, int, error)
}

// CrisisService wires detection, intervention and lifecycle together
// behind one facade.
type CrisisService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	watcher   *lexicon.Watcher
	analyzer  *analyzer.Analyzer
	alerts    AlertsStore
	lifecycle *lifecycle.Lifecycle

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewCrisisService connects to Postgres and Redis and assembles the
// component stack.
func NewCrisisService(cfg *config.Config, logger *zap.Logger) (*CrisisService, error) {
	// 1. Database
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. Lexicon: file if configured, built-in otherwise
	lex := lexicon.Default()
	if cfg.Lexicon.Path != "" {
		lex, err = lexicon.Load(cfg.Lexicon.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load lexicon: %w", err)
		}
	}
	watchPath := ""
	if cfg.Lexicon.WatchReload {
		watchPath = cfg.Lexicon.Path
	}
	watcher := lexicon.NewWatcher(watchPath, lex, logger)

	// 4. Analyzer
	textAnalyzer := analyzer.New(watcher, cfg.Analyzer.ScanLimit, analyzer.Thresholds{
		Medium:   cfg.Analyzer.MediumThreshold,
		High:     cfg.Analyzer.HighThreshold,
		Critical: cfg.Analyzer.CriticalThreshold,
	}, logger)

	// 5. Repositories
	alertsRepo := repository.NewCrisisAlertsRepository(db, logger)
	contactsRepo := repository.NewEmergencyContactsRepository(db, logger)
	plansRepo := repository.NewSafetyPlansRepository(db, logger)

	// 6. Cache index
	alertIndex := cache.NewActiveAlertIndex(redisClient, cfg.Cache.ActiveAlertKeyPrefix, logger)

	// 7. Dispatch and safety plan access
	transport := dispatcher.NewGatewayTransport(cfg.Dispatcher.GatewayURL, cfg.Dispatcher.AttemptTimeout, logger)
	contactDispatcher := dispatcher.New(contactsRepo, transport, cfg.Dispatcher.MaxContacts, cfg.Dispatcher.AttemptTimeout, logger)
	planAccessor := safetyplan.NewAccessor(plansRepo, logger)

	// 8. Lifecycle
	alertLifecycle := lifecycle.New(
		alertsRepo,
		alertIndex,
		contactDispatcher,
		planAccessor,
		cfg.Lifecycle.ActionTimeout,
		cfg.Lifecycle.TotalBudget,
		logger,
	)

	return &CrisisService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		watcher:     watcher,
		analyzer:    textAnalyzer,
		alerts:      alertsRepo,
		lifecycle:   alertLifecycle,
	}, nil
}

// Start begins background work: the lexicon watcher and the escalation
// watchdog.
func (s *CrisisService) Start(ctx context.Context) error {
	s.logger.Info("Starting crisis service")

	if err := s.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start lexicon watcher: %w", err)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	s.wg.Add(1)
	go s.runEscalationWatchdog(watchCtx)

	return nil
}

// Stop shuts down background work and closes connections.
func (s *CrisisService) Stop() error {
	s.logger.Info("Stopping crisis service")

	if s.watchCancel != nil {
		s.watchCancel()
	}
	s.wg.Wait()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database",
				zap.Error(err),
			)
		}
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis",
				zap.Error(err),
			)
		}
	}

	return nil
}

// runEscalationWatchdog periodically surfaces the attention queue:
// escalated alerts plus criticals still active past the resolution SLA.
// A failed critical intervention must never go quietly.
func (s *CrisisService) runEscalationWatchdog(ctx context.Context) {
	defer s.wg.Done()

	interval := s.config.Lifecycle.WatchInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Escalation watchdog started",
		zap.Duration("interval", interval),
		zap.Duration("resolution_sla", s.config.Lifecycle.ResolutionSLA),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Escalation watchdog stopped")
			return
		case <-ticker.C:
			s.checkAttentionQueue(ctx)
		}
	}
}

func (s *CrisisService) checkAttentionQueue(ctx context.Context) {
	staleBefore := time.Now().Add(-s.config.Lifecycle.ResolutionSLA)

	alerts, total, err := s.alerts.ListAttentionQueue(ctx, staleBefore, 1, 50)
	if err != nil {
		s.logger.Error("Failed to query attention queue",
			zap.Error(err),
		)
		return
	}
	if total == 0 {
		return
	}

	for _, alert := range alerts {
		s.logger.Warn("crisis alert needs human attention",
			zap.String("alert_id", alert.AlertID),
			zap.String("user_id", alert.UserID),
			zap.String("severity", string(alert.Severity)),
			zap.String("status", string(alert.Status)),
			zap.Time("created_at", alert.CreatedAt),
		)
	}
	if total > len(alerts) {
		s.logger.Warn("attention queue truncated",
			zap.Int("shown", len(alerts)),
			zap.Int("total", total),
		)
	}
}
