// Package store archives chat exchanges to Postgres. The archive is
// optional and strictly best-effort: a failed write logs and moves on,
// since losing an archive row must never cost a user their reply.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/dugoutai/dugout/config"
)

// Exchange is one archived request/reply pair.
type Exchange struct {
	ID         string
	UserID     string
	Message    string
	Reply      json.RawMessage
	DataType   string
	Model      string
	Cost       float64
	DurationMS int64
	CreatedAt  time.Time
}

// Archive wraps the Postgres connection for chat archival.
type Archive struct {
	DB     *sql.DB
	logger *log.Logger
}

// New opens the archive connection using the resolved DSN.
func New(ctx context.Context, cfg config.PostgresConfig) (*Archive, error) {
	db, err := sql.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}
	return &Archive{
		DB:     db,
		logger: log.New(log.Writer(), "[ARCHIVE] ", log.LstdFlags),
	}, nil
}

// DSN builds the Postgres DSN from config, preferring an explicit URL.
func DSN(cfg config.PostgresConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	ssl := cfg.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.DBName, ssl)
}

// Save writes one exchange. Errors are logged, not returned; archival never
// blocks the reply path.
func (a *Archive) Save(ctx context.Context, ex Exchange) {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	_, err := a.DB.ExecContext(ctx, `
		INSERT INTO chat_exchanges (id, user_id, message, reply, data_type, model, cost, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ex.ID, ex.UserID, ex.Message, ex.Reply, ex.DataType, ex.Model, ex.Cost, ex.DurationMS)
	if err != nil {
		a.logger.Printf("archiving exchange %s failed: %v", ex.ID, err)
	}
}

// RecentForUser returns a user's latest archived exchanges, newest first.
func (a *Archive) RecentForUser(ctx context.Context, userID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.DB.QueryContext(ctx, `
		SELECT id, user_id, message, reply, data_type, model, cost, duration_ms, created_at
		FROM chat_exchanges
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Message, &ex.Reply, &ex.DataType,
			&ex.Model, &ex.Cost, &ex.DurationMS, &ex.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (a *Archive) Close() error {
	return a.DB.Close()
}
