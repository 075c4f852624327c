package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"longrun/internal/config"
)

// Dependencies holds the external collaborators opened during bootstrap.
// The caller owns their lifecycle and closes them on shutdown.
type Dependencies struct {
	DB       *sql.DB
	Producer *nsq.Producer
}

// Pinger is the subset of *sql.DB that PingWithRetry needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Bootstrap opens the database, runs migrations, and connects the NSQ
// producer. Everything here must succeed before a single job can be
// accepted, so failures are returned rather than logged and ignored.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := PingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	// NSQ Producer
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg)

	return &Dependencies{
		DB:       db,
		Producer: producer,
	}, nil
}

// PingWithRetry pings until the database answers or the attempts run out.
func PingWithRetry(ctx context.Context, p Pinger, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = p.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}

// createTopics pre-creates one NSQ topic per configured queue via the
// nsqd http api. NSQ creates topics lazily on first publish, but
// consumers querying lookupd 404 until each topic exists. Failures are
// non-fatal: topics still appear once something is published.
func createTopics(cfg *config.Config) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", cfg.NSQDHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to pre-create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, queue := range cfg.QueueList() {
			create(config.JobTopic(queue))
		}
	}()
}
