package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
	"time"

	"storyline/internal/events"
	"storyline/internal/genclient"
	"storyline/internal/metrics"
	"storyline/internal/repo"
)

// DefaultActor is recorded when a caller does not identify itself.
const DefaultActor = "local-user"

// Generator produces text remotely. Implementations never fail; they report Unavailable instead.
type Generator interface {
	GenerateSpecification(ctx context.Context, title, description string) genclient.Result
	DescribeDesign(ctx context.Context, designRef string) genclient.Result
}

// DesignStore persists uploaded design artifacts and returns a reference to them.
type DesignStore interface {
	Put(contentType string, data []byte) (string, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Generator Generator
	Designs   DesignStore
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

func New(db *sql.DB, gen Generator) Engine {
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Generator: gen,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func actorOrDefault(actorID string) string {
	if a := strings.TrimSpace(actorID); a != "" {
		return a
	}
	return DefaultActor
}

// withTx runs fn in one transaction, committing only when fn succeeds.
func (e Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// eventWriter shares the clock of e so audit timestamps match row timestamps.
func (e Engine) eventWriter() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}
