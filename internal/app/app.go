package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm/logger"

	"github.com/atvirokodosprendimai/incidents/internal/adapters/events"
	"github.com/atvirokodosprendimai/incidents/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/incidents/internal/adapters/metrics"
	sqliteadapter "github.com/atvirokodosprendimai/incidents/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/incidents/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/incidents/internal/core/ports"
	"github.com/atvirokodosprendimai/incidents/internal/core/usecase"
	"github.com/atvirokodosprendimai/incidents/migrations"
)

type Config struct {
	Addr   string
	DBPath string
	// SQLDebug logs every statement through the gorm logger.
	SQLDebug bool

	RequireAPIKey    bool
	BootstrapAPIKey  string
	BootstrapKeyName string

	WebhookURL       string
	WebhookSecret    string
	WebhookTimeout   time.Duration
	DispatchInterval time.Duration
	DispatchBatch    int
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDB opens the database at path and brings its schema up to date.
func OpenDB(ctx context.Context, path string, sqlDebug bool) (*gormsqlite.DB, int64, error) {
	level := logger.Silent
	if sqlDebug {
		level = logger.Info
	}
	db, err := gormsqlite.Open(path, gormsqlite.WithLogLevel(level))
	if err != nil {
		return nil, 0, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("resolve writer sql db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	version, err := migrations.Up(ctx, writeSQLDB)
	if err != nil {
		_ = db.Close()
		return nil, 0, err
	}
	return db, version, nil
}

// CreateAPIKey registers token (or a freshly minted one) under name and
// returns the plain token.
func CreateAPIKey(ctx context.Context, dbPath, name, token string) (string, error) {
	db, _, err := OpenDB(ctx, dbPath, false)
	if err != nil {
		return "", err
	}
	defer db.Close()

	return usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db)).Register(ctx, name, token)
}

// RevokeAPIKeys deactivates every key registered under name.
func RevokeAPIKeys(ctx context.Context, dbPath, name string) (int64, error) {
	db, _, err := OpenDB(ctx, dbPath, false)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db)).Revoke(ctx, name)
}

func NewServer(ctx context.Context, cfg Config) (*http.Server, io.Closer, error) {
	db, version, err := OpenDB(ctx, cfg.DBPath, cfg.SQLDebug)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("database %s at schema version %d", cfg.DBPath, version)

	m := metrics.New()

	validator, err := usecase.NewIncidentValidator()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	incidentStore := sqliteadapter.NewIncidentStore(db)
	auditRepo := sqliteadapter.NewAuditRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	outboxRepo := sqliteadapter.NewOutboxRepository(db)

	auditService := usecase.NewAuditService(auditRepo, usecase.WithAuditMetrics(m))
	incidentService := usecase.NewIncidentService(incidentStore, validator, auditService, usecase.WithIncidentMetrics(m))
	authService := usecase.NewAuthService(apiKeyRepo)

	if cfg.BootstrapAPIKey != "" {
		name := cfg.BootstrapKeyName
		if name == "" {
			name = "bootstrap"
		}
		bootstrapCtx, bootstrapCancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := authService.Register(bootstrapCtx, name, cfg.BootstrapAPIKey)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
	}

	dispatcher := usecase.NewOutboxDispatcher(outboxRepo, newPublisher(cfg),
		usecase.WithDispatchInterval(cfg.DispatchInterval),
		usecase.WithDispatchBatchSize(cfg.DispatchBatch),
		usecase.WithDispatcherMetrics(m),
	)
	dispatcher.Start(context.Background())

	opts := []httpapi.Option{httpapi.WithMetrics(m)}
	if cfg.RequireAPIKey {
		opts = append(opts, httpapi.WithAuth(authService))
	} else {
		log.Printf("api key auth disabled; all changes are recorded as actor \"api\"")
	}
	handler := httpapi.NewHandler(incidentService, auditService, opts...)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newPublisher(cfg Config) ports.EventPublisher {
	if cfg.WebhookURL == "" {
		return events.NewLogPublisher(nil)
	}
	if cfg.WebhookSecret == "" {
		log.Printf("webhook %s configured without a signing secret", cfg.WebhookURL)
	}
	return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
}
