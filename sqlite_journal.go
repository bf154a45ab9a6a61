package chronicle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournalOptions configures the SQLite journal.
type SQLiteJournalOptions struct {
	PragmaJournalMode string        // WAL mode for better concurrent performance
	PragmaSyncMode    string        // Synchronization mode
	QueryTimeout      time.Duration // Timeout for database queries
	MaxConnections    int           // Maximum number of connections in pool
}

// DefaultSQLiteJournalOptions returns sensible defaults.
func DefaultSQLiteJournalOptions() SQLiteJournalOptions {
	return SQLiteJournalOptions{
		PragmaJournalMode: "WAL",
		PragmaSyncMode:    "NORMAL",
		QueryTimeout:      30 * time.Second,
		MaxConnections:    10,
	}
}

// SQLiteJournal mirrors the unified event index into a SQLite database.
// Lookup is strictly per workflow and task; the journal is an audit
// mirror, not a query engine.
type SQLiteJournal struct {
	db      *sql.DB
	dbPath  string
	options SQLiteJournalOptions
	mutex   sync.Mutex
}

// NewSQLiteJournal opens (or creates) a journal database at dbPath.
func NewSQLiteJournal(dbPath string, options SQLiteJournalOptions) (*SQLiteJournal, error) {
	if options.QueryTimeout == 0 {
		options = DefaultSQLiteJournalOptions()
	}
	journal := &SQLiteJournal{
		dbPath:  dbPath,
		options: options,
	}
	if err := journal.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite journal: %w", err)
	}
	return journal, nil
}

func (j *SQLiteJournal) initialize() error {
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_sync=%s&_timeout=5000",
		j.dbPath, j.options.PragmaJournalMode, j.options.PragmaSyncMode)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(j.options.MaxConnections)
	db.SetMaxIdleConns(j.options.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)
	j.db = db

	ctx, cancel := context.WithTimeout(context.Background(), j.options.QueryTimeout)
	defer cancel()

	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS recorded_events (
		workflow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		data JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(workflow_id, sequence)
	);

	CREATE INDEX IF NOT EXISTS idx_recorded_events_task ON recorded_events(workflow_id, task_id, sequence);
	`
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append inserts envelopes in a single batch transaction.
func (j *SQLiteJournal) Append(ctx context.Context, workflowID string, events []*RecordedEvent) error {
	if len(events) == 0 {
		return nil
	}
	j.mutex.Lock()
	defer j.mutex.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Path: j.dbPath, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO recorded_events
		(workflow_id, task_id, sequence, timestamp, event_type, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &PersistenceError{Path: j.dbPath, Err: fmt.Errorf("failed to prepare statement: %w", err)}
	}
	defer stmt.Close()

	for i, event := range events {
		var dataJSON []byte
		if event.Data != nil {
			dataJSON, err = json.Marshal(event.Data)
			if err != nil {
				return &PersistenceError{Path: j.dbPath, Err: fmt.Errorf("failed to marshal event data at index %d: %w", i, err)}
			}
		}
		if _, err := stmt.ExecContext(ctx,
			workflowID,
			event.TaskID,
			event.Sequence,
			event.Timestamp.UTC(),
			event.EventType,
			dataJSON,
		); err != nil {
			return &PersistenceError{Path: j.dbPath, Err: fmt.Errorf("failed to insert event at index %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Path: j.dbPath, Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	return nil
}

// TaskHistory returns the task's journaled envelopes in insertion order.
func (j *SQLiteJournal) TaskHistory(ctx context.Context, workflowID, taskID string) ([]*RecordedEvent, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	rows, err := j.db.QueryContext(ctx, `
		SELECT task_id, sequence, timestamp, event_type, data
		FROM recorded_events
		WHERE workflow_id = ? AND task_id = ?
		ORDER BY sequence ASC
	`, workflowID, taskID)
	if err != nil {
		return nil, &CorruptedRecordError{Path: j.dbPath, Err: err}
	}
	defer rows.Close()

	var events []*RecordedEvent
	for rows.Next() {
		var event RecordedEvent
		var dataJSON []byte
		if err := rows.Scan(&event.TaskID, &event.Sequence, &event.Timestamp, &event.EventType, &dataJSON); err != nil {
			return nil, &CorruptedRecordError{Path: j.dbPath, Err: err}
		}
		if len(dataJSON) > 0 {
			var data any
			if err := json.Unmarshal(dataJSON, &data); err != nil {
				return nil, &CorruptedRecordError{Path: j.dbPath, Err: err}
			}
			event.Data = data
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, &CorruptedRecordError{Path: j.dbPath, Err: err}
	}
	return events, nil
}

// LastSequence returns the workflow's journaled high-water mark.
func (j *SQLiteJournal) LastSequence(ctx context.Context, workflowID string) (int64, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	var last int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence), 0) FROM recorded_events WHERE workflow_id = ?
	`, workflowID).Scan(&last)
	if err != nil {
		return 0, &CorruptedRecordError{Path: j.dbPath, Err: err}
	}
	return last, nil
}

// Close closes the underlying database.
func (j *SQLiteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}
