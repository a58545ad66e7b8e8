package server

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// auditEntry is one dispatch outcome queued for the writer goroutine.
type auditEntry struct {
	when    time.Time
	player  string
	command string
	outcome string
}

// AuditRow is one record read back from the audit table.
type AuditRow struct {
	When    time.Time
	Player  string
	Command string
	Outcome string
}

// AuditLog records every dispatched input line to a SQLite database:
// who typed what, and whether it dispatched, was denied, missed, or
// faulted. Writes go through a buffered queue so dispatch never blocks
// on disk; a full queue drops entries rather than stall the game.
type AuditLog struct {
	db        *sql.DB
	path      string
	mu        sync.Mutex
	queue     chan auditEntry
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// OpenAuditLog opens (or creates) the audit database, sets WAL mode and
// busy timeout, and starts the writer goroutine.
func OpenAuditLog(path string, timeoutSec int) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// Set WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	// Set busy timeout (milliseconds)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", timeoutSec*1000)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS command_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		player TEXT NOT NULL,
		command TEXT NOT NULL,
		outcome TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit table: %w", err)
	}

	a := &AuditLog{
		db:    db,
		path:  path,
		queue: make(chan auditEntry, 256),
	}
	a.wg.Add(1)
	go a.writer()
	return a, nil
}

func (a *AuditLog) writer() {
	defer a.wg.Done()
	for e := range a.queue {
		a.mu.Lock()
		_, err := a.db.Exec(
			"INSERT INTO command_audit (ts, player, command, outcome) VALUES (?, ?, ?, ?)",
			e.when.Unix(), e.player, e.command, e.outcome)
		a.mu.Unlock()
		if err != nil {
			log.Printf("AUDIT: insert: %v", err)
		}
	}
}

// Record queues one outcome for writing. Best effort: a full queue
// drops the entry rather than block dispatch.
func (a *AuditLog) Record(player, command, outcome string) {
	select {
	case a.queue <- auditEntry{time.Now(), player, command, outcome}:
	default:
	}
}

// Recent returns the newest entries, most recent first.
func (a *AuditLog) Recent(limit int) ([]AuditRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		"SELECT ts, player, command, outcome FROM command_audit ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var ts int64
		var r AuditRow
		if err := rows.Scan(&ts, &r.Player, &r.Command, &r.Outcome); err != nil {
			return nil, err
		}
		r.When = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByOutcome returns totals per outcome since the log began.
func (a *AuditLog) CountByOutcome() (map[string]int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query("SELECT outcome, COUNT(*) FROM command_audit GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Path returns the filesystem path of the audit database.
func (a *AuditLog) Path() string { return a.path }

// Close drains the queue and closes the database.
func (a *AuditLog) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.queue)
		a.wg.Wait()
		a.mu.Lock()
		defer a.mu.Unlock()
		err = a.db.Close()
	})
	return err
}
