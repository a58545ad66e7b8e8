package server

import (
	"log"
	"sync"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/events"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// speechEntry is one spoken line queued for the writer goroutine.
type speechEntry struct {
	when time.Time
	room world.Ref
	line string
}

// SpeechRow is one recalled line of room speech.
type SpeechRow struct {
	When time.Time
	Room world.Ref
	Text string
}

// SpeechLog is a global event bus subscriber that records spoken lines
// (say, yell, emote) to the audit database so recall can replay the
// recent conversation in a room. Like the command audit, writes go
// through a buffered queue; a full queue drops lines rather than stall
// the emitting handler.
type SpeechLog struct {
	audit *AuditLog
	queue chan speechEntry
	wg    sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewSpeechLog creates the speech table, starts the writer, and
// registers the log as a global subscriber on the event bus. Returns
// nil when the game has no audit database to write into.
func NewSpeechLog(game *Game) *SpeechLog {
	if game.Audit == nil {
		return nil
	}
	if err := game.Audit.initSpeechTable(); err != nil {
		log.Printf("SPEECH: init table: %v", err)
		return nil
	}
	sl := &SpeechLog{
		audit: game.Audit,
		queue: make(chan speechEntry, 256),
	}
	sl.wg.Add(1)
	go sl.writer()
	game.EventBus.SubscribeGlobal(sl)
	return sl
}

// Receive implements events.Subscriber. Only room speech is stored;
// the bus delivers each utterance once per room it was heard in, so a
// yell is recorded in every room it carried to.
func (sl *SpeechLog) Receive(ev events.Event) {
	switch ev.Type {
	case events.EvSay, events.EvYell, events.EvEmote:
	default:
		return
	}
	if ev.Room == world.Nothing || ev.Text == "" {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.closed {
		return
	}
	select {
	case sl.queue <- speechEntry{time.Now(), ev.Room, ev.Text}:
	default:
	}
}

// Closed implements events.Subscriber.
func (sl *SpeechLog) Closed() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.closed
}

func (sl *SpeechLog) writer() {
	defer sl.wg.Done()
	for e := range sl.queue {
		if err := sl.audit.insertSpeech(e.when, e.room, e.line); err != nil {
			log.Printf("SPEECH: insert: %v", err)
		}
	}
}

// Recent returns the newest lines spoken in a room, oldest first so
// they read as a conversation.
func (sl *SpeechLog) Recent(room world.Ref, limit int) ([]SpeechRow, error) {
	return sl.audit.speechIn(room, limit)
}

// Close stops bus delivery and drains pending writes. Must run before
// the audit database closes.
func (sl *SpeechLog) Close() {
	sl.closeOnce.Do(func() {
		sl.mu.Lock()
		sl.closed = true
		sl.mu.Unlock()
		close(sl.queue)
		sl.wg.Wait()
	})
}

// StartSpeechRetention starts an hourly goroutine that purges speech
// older than the retention window.
func StartSpeechRetention(a *AuditLog, retention time.Duration) {
	if a == nil || retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			purged, err := a.purgeSpeech(time.Now().Add(-retention))
			if err != nil {
				log.Printf("SPEECH: purge: %v", err)
				continue
			}
			if purged > 0 {
				log.Printf("SPEECH: purged %d old lines", purged)
			}
		}
	}()
}

// The speech table lives in the audit database; these keep all of its
// SQL next to the type that owns the connection's mutex.

func (a *AuditLog) initSpeechTable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS room_speech (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		room INTEGER NOT NULL,
		line TEXT NOT NULL
	)`); err != nil {
		return err
	}
	_, err := a.db.Exec(
		"CREATE INDEX IF NOT EXISTS room_speech_room ON room_speech (room, id)")
	return err
}

func (a *AuditLog) insertSpeech(when time.Time, room world.Ref, line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.Exec("INSERT INTO room_speech (ts, room, line) VALUES (?, ?, ?)",
		when.Unix(), int(room), line)
	return err
}

func (a *AuditLog) speechIn(room world.Ref, limit int) ([]SpeechRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(
		"SELECT ts, line FROM room_speech WHERE room = ? ORDER BY id DESC LIMIT ?",
		int(room), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpeechRow
	for rows.Next() {
		var ts int64
		r := SpeechRow{Room: room}
		if err := rows.Scan(&ts, &r.Text); err != nil {
			return nil, err
		}
		r.When = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (a *AuditLog) purgeSpeech(cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.Exec("DELETE FROM room_speech WHERE ts < ?", cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
