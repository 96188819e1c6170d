package db

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"

	"github.com/audumla/signalrules/internal/types"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql
// files. Uses dotsql for named query management and sqlx for database
// operations.
type Queries struct {
	dot  *dotsql.DotSql
	conn *sqlx.DB
}

// NotificationRecord is one journaled notification row.
type NotificationRecord struct {
	NotificationID string `db:"notification_id"`
	Identity       string `db:"identity"`
	Source         string `db:"source"`
	EventType      string `db:"event_type"`
	ReceivedAt     string `db:"received_at"`
	Payload        string `db:"payload"`
}

// ActionEventRecord is one journaled fired-action row.
type ActionEventRecord struct {
	ActionEventID  int64  `db:"action_event_id"`
	NotificationID string `db:"notification_id"`
	RuleID         string `db:"rule_id"`
	RuleTitle      string `db:"rule_title"`
	Matched        bool   `db:"matched"`
	Actions        string `db:"actions"`
	FiredAt        string `db:"fired_at"`
}

// LoadQueries loads all .sql files from the embedded filesystem and returns
// a Queries instance bound to conn.
func LoadQueries(conn *sqlx.DB) (*Queries, error) {
	var combinedSQL string

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combinedSQL += string(content) + "\n"
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combinedSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, conn: conn}, nil
}

// Exec executes a named query with placeholder conversion for database
// compatibility. sqlx Rebind converts ? placeholders to $1, $2 for
// PostgreSQL.
func (q *Queries) Exec(name string, args ...any) (sql.Result, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return nil, fmt.Errorf("query not found: %s", name)
	}
	return q.conn.Exec(q.conn.Rebind(query), args...)
}

// Get retrieves a single row into dest using a named query.
func (q *Queries) Get(name string, dest any, args ...any) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("query not found: %s", name)
	}
	return q.conn.Get(dest, q.conn.Rebind(query), args...)
}

// Select retrieves multiple rows into dest using a named query.
func (q *Queries) Select(name string, dest any, args ...any) error {
	query, err := q.dot.Raw(name)
	if err != nil {
		return fmt.Errorf("query not found: %s", name)
	}
	return q.conn.Select(dest, q.conn.Rebind(query), args...)
}

// InsertNotification journals one processed notification and returns its
// generated UUIDv7 id.
func (q *Queries) InsertNotification(identity types.Identity, source, eventType string, payload types.Payload, receivedAt time.Time) (types.NotificationID, error) {
	id := types.NewNotificationID()
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = q.Exec("insert-notification",
		string(id), string(identity), source, eventType,
		receivedAt.UTC().Format(time.RFC3339), string(encoded),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// InsertActionEvent journals one fired MatchResult.
func (q *Queries) InsertActionEvent(notificationID types.NotificationID, result types.MatchResult, firedAt time.Time) error {
	encoded, err := json.Marshal(result.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	_, err = q.Exec("insert-action-event",
		string(notificationID), result.RuleID, result.RuleTitle, result.Matched,
		string(encoded), firedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListActionEvents returns the most recent fired actions for one rule.
func (q *Queries) ListActionEvents(ruleID string, limit int) ([]ActionEventRecord, error) {
	var records []ActionEventRecord
	if err := q.Select("list-action-events", &records, ruleID, limit); err != nil {
		return nil, err
	}
	return records, nil
}

// ListNotifications returns the most recent journaled notifications for one
// identity.
func (q *Queries) ListNotifications(identity types.Identity, limit int) ([]NotificationRecord, error) {
	var records []NotificationRecord
	if err := q.Select("list-notifications", &records, string(identity), limit); err != nil {
		return nil, err
	}
	return records, nil
}

// CountActionEvents returns the total number of journaled fired actions.
func (q *Queries) CountActionEvents() (int64, error) {
	var count int64
	if err := q.Get("count-action-events", &count); err != nil {
		return 0, err
	}
	return count, nil
}
