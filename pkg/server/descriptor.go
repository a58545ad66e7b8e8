package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/events"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// TransportType identifies the kind of transport a Descriptor uses.
type TransportType int

const (
	TransportTCP       TransportType = iota // Traditional telnet/TCP
	TransportWebSocket                      // WebSocket (JSON events)
)

// ConnState tracks the state of a connection.
type ConnState int

const (
	ConnLogin     ConnState = iota // Pre-login: awaiting connect/create
	ConnConnected                  // Logged in as a player
)

// promptStr is the prompt redrawn after every dispatched line. The
// trailing IAC GA tells capable clients the server is done talking.
const promptStr = "> \xff\xf9"

// Descriptor represents a single client connection.
// It implements events.Subscriber so it can receive events from the bus.
type Descriptor struct {
	ID        int
	Conn      net.Conn
	Reader    *bufio.Reader
	State     ConnState
	Player    *world.Player // nil until logged in
	Addr      string
	ConnTime  time.Time
	LastCmd   time.Time
	Retries   int
	CmdCount  int // Total commands entered this session
	BytesSent int // Total bytes sent to this connection
	BytesRecv int // Total bytes received from this connection
	Transport TransportType

	// SendFunc overrides the default Send behavior (used by WebSocket transport).
	// If nil, the default TCP Send is used.
	SendFunc func(msg string)
	// PromptFunc overrides the default prompt redraw (used by WebSocket transport).
	PromptFunc func()
	// ReceiveFunc overrides the default event→text→Send path (used by WebSocket transport).
	ReceiveFunc func(ev events.Event)

	// Metrics sink for traffic counters, set by the ConnManager. May be nil.
	Metrics *Metrics

	hist   *History
	mu     sync.Mutex
	closed bool
}

// NewDescriptor wraps a net.Conn into a Descriptor.
func NewDescriptor(id int, conn net.Conn) *Descriptor {
	now := time.Now()
	return &Descriptor{
		ID:       id,
		Conn:     conn,
		Reader:   bufio.NewReaderSize(conn, 4096),
		State:    ConnLogin,
		Addr:     conn.RemoteAddr().String(),
		ConnTime: now,
		LastCmd:  now,
		Retries:  3,
	}
}

// History returns this session's input history, creating it on first
// touch. A missing history is never an error.
func (d *Descriptor) History() *History {
	if d.hist == nil {
		d.hist = NewHistory()
	}
	return d.hist
}

// PlayerName returns the logged-in player's name, or a placeholder for
// pre-login descriptors.
func (d *Descriptor) PlayerName() string {
	if d.Player == nil {
		return "(not logged in)"
	}
	return d.Player.Name
}

// Send writes a string to the client connection.
func (d *Descriptor) Send(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	// Ensure lines end with \r\n for telnet
	if !strings.HasSuffix(msg, "\n") {
		msg += "\r\n"
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
	d.Metrics.AddBytesSent(n)
}

// SendNoNewline writes a string without appending a newline.
func (d *Descriptor) SendNoNewline(msg string) {
	if d.SendFunc != nil {
		d.SendFunc(msg)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	n, _ := d.Conn.Write([]byte(msg))
	d.BytesSent += n
	d.Metrics.AddBytesSent(n)
}

// Prompt redraws the input prompt. Every dispatched line ends with
// exactly one of these.
func (d *Descriptor) Prompt() {
	if d.PromptFunc != nil {
		d.PromptFunc()
		return
	}
	d.SendNoNewline(promptStr)
}

// Close shuts down the connection.
func (d *Descriptor) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.Conn.Close()
	}
}

// IsClosed returns whether the connection has been closed.
func (d *Descriptor) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Receive implements events.Subscriber. It delivers an event to the
// client using the appropriate encoding for this transport.
func (d *Descriptor) Receive(ev events.Event) {
	if d.ReceiveFunc != nil {
		d.ReceiveFunc(ev)
		return
	}
	if ev.Text != "" {
		d.Send(ev.Text)
	}
}

// Closed implements events.Subscriber.
func (d *Descriptor) Closed() bool {
	return d.IsClosed()
}

// Compile-time check that Descriptor implements events.Subscriber.
var _ events.Subscriber = (*Descriptor)(nil)

// nullConn is a no-op net.Conn backing descriptors whose transport is
// not a socket (WebSocket sessions use SendFunc instead).
type nullConn struct{}

func (nullConn) Read([]byte) (int, error)        { return 0, fmt.Errorf("no connection") }
func (nullConn) Write(b []byte) (int, error)     { return len(b), nil }
func (nullConn) Close() error                    { return nil }
func (nullConn) LocalAddr() net.Addr             { return nil }
func (nullConn) RemoteAddr() net.Addr            { return &net.TCPAddr{} }
func (nullConn) SetDeadline(time.Time) error     { return nil }
func (nullConn) SetReadDeadline(time.Time) error { return nil }
func (nullConn) SetWriteDeadline(time.Time) error { return nil }

// ConnManager tracks all active connections.
type ConnManager struct {
	mu          sync.RWMutex
	descriptors map[int]*Descriptor
	nextID      int
	byPlayer    map[world.Ref][]*Descriptor // player -> connections (multi-login)
	EventBus    *events.Bus                 // Event bus for pub/sub (nil = disabled)
	Metrics     *Metrics                    // Traffic counters handed to descriptors (nil = disabled)
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		descriptors: make(map[int]*Descriptor),
		byPlayer:    make(map[world.Ref][]*Descriptor),
		nextID:      1,
	}
}

// Add registers a new descriptor.
func (cm *ConnManager) Add(d *Descriptor) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	d.Metrics = cm.Metrics
	cm.descriptors[d.ID] = d
}

// Remove unregisters a descriptor and unsubscribes it from the event bus.
func (cm *ConnManager) Remove(d *Descriptor) {
	if cm.EventBus != nil && d.Player != nil {
		cm.EventBus.Unsubscribe(d.Player.Ref, d)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.descriptors, d.ID)
	if d.Player != nil {
		ref := d.Player.Ref
		descs := cm.byPlayer[ref]
		for i, dd := range descs {
			if dd.ID == d.ID {
				cm.byPlayer[ref] = append(descs[:i], descs[i+1:]...)
				break
			}
		}
		if len(cm.byPlayer[ref]) == 0 {
			delete(cm.byPlayer, ref)
		}
	}
}

// Login associates a descriptor with a player and subscribes it to the
// event bus.
func (cm *ConnManager) Login(d *Descriptor, p *world.Player) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	d.State = ConnConnected
	d.Player = p
	cm.byPlayer[p.Ref] = append(cm.byPlayer[p.Ref], d)

	if cm.EventBus != nil {
		cm.EventBus.Subscribe(p.Ref, d)
	}
}

// NextID returns the next descriptor ID.
func (cm *ConnManager) NextID() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	id := cm.nextID
	cm.nextID++
	return id
}

// GetByPlayer returns all descriptors for a given player.
func (cm *ConnManager) GetByPlayer(ref world.Ref) []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byPlayer[ref]
}

// IsConnected returns true if the player has at least one active connection.
func (cm *ConnManager) IsConnected(ref world.Ref) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byPlayer[ref]) > 0
}

// ConnectedPlayers returns all currently connected player refs.
func (cm *ConnManager) ConnectedPlayers() []world.Ref {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	players := make([]world.Ref, 0, len(cm.byPlayer))
	for p := range cm.byPlayer {
		players = append(players, p)
	}
	return players
}

// AllDescriptors returns a snapshot of all active descriptors.
func (cm *ConnManager) AllDescriptors() []*Descriptor {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	descs := make([]*Descriptor, 0, len(cm.descriptors))
	for _, d := range cm.descriptors {
		descs = append(descs, d)
	}
	return descs
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.descriptors)
}

// SendToPlayer sends a message to all connections of a player.
func (cm *ConnManager) SendToPlayer(ref world.Ref, msg string) {
	cm.mu.RLock()
	descs := cm.byPlayer[ref]
	cm.mu.RUnlock()
	for _, d := range descs {
		d.Send(msg)
	}
}

// FormatIdleTime formats a duration as a human-readable idle time.
func FormatIdleTime(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm", secs/60)
	}
	if secs < 86400 {
		return fmt.Sprintf("%dh", secs/3600)
	}
	return fmt.Sprintf("%dd", secs/86400)
}

// FormatConnTime formats a duration as connection time.
func FormatConnTime(d time.Duration) string {
	secs := int(d.Seconds())
	hours := secs / 3600
	mins := (secs % 3600) / 60
	return fmt.Sprintf("%02d:%02d", hours, mins)
}
