package server

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/boltstore"
	"github.com/emberwake-mud/emberwake/pkg/events"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// Game holds the shared state for a running world: the entity graph,
// the command registry, connections, and the supporting services. Every
// handler receives the Game it belongs to; nothing here is package
// global, so tests can run isolated instances side by side.
type Game struct {
	World    *world.World
	Conns    *ConnManager
	Commands *Registry
	Conf     *Config
	Help     *HelpSystem
	EventBus *events.Bus
	Store    *boltstore.Store
	Audit    *AuditLog
	Speech   *SpeechLog
	Metrics  *Metrics

	StartRoom world.Ref
	Uptime    time.Time

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewGame creates a game instance around an existing world. The command
// registry is populated immediately; aliases from the config's alias
// file are layered on top by the caller once the Game exists.
func NewGame(w *world.World, conf *Config) *Game {
	if conf == nil {
		conf = DefaultConfig()
	}
	g := &Game{
		World:      w,
		Conf:       conf,
		EventBus:   events.NewBus(),
		StartRoom:  world.Ref(conf.StartRoom),
		Uptime:     time.Now(),
		shutdownCh: make(chan struct{}),
	}
	g.Metrics = NewMetrics(g.Uptime)
	g.Conns = NewConnManager()
	g.Conns.EventBus = g.EventBus
	g.Conns.Metrics = g.Metrics
	g.ResetCommands()
	return g
}

// ResetCommands rebuilds the command registry from scratch: built-in
// commands first, then the alias file if one is configured. Used at
// boot and by @reload; also the isolation point for tests that mutate
// the registry.
func (g *Game) ResetCommands() {
	g.Commands = NewRegistry()
	InitCommands(g)
	if g.Conf != nil && g.Conf.AliasFile != "" {
		if err := LoadAliasFile(g.Commands, g.Conf.AliasFile); err != nil {
			log.Printf("GAME: alias file %s: %v", g.Conf.AliasFile, err)
		}
	}
}

// ShutdownRequested returns a channel closed when a @shutdown has been
// issued.
func (g *Game) ShutdownRequested() <-chan struct{} {
	return g.shutdownCh
}

// RequestShutdown signals the main loop to stop accepting and exit.
func (g *Game) RequestShutdown() {
	g.shutdownOnce.Do(func() { close(g.shutdownCh) })
}

// lookBrief shows just the room name and exits: the response to a blank
// input line, and the body of glance.
func (g *Game) lookBrief(d *Descriptor) {
	if d.Player == nil {
		return
	}
	room, ok := g.World.Room(d.Player.Location)
	if !ok {
		d.Send("You are nowhere.")
		return
	}
	d.Send(room.Name)
	d.Send(exitLine(room))
}

// exitLine renders the obvious-exits line for a room.
func exitLine(room *world.Room) string {
	names := room.ExitNames()
	if len(names) == 0 {
		return "Obvious exits: none"
	}
	return "Obvious exits: " + strings.Join(names, ", ")
}

// ShowRoom sends the full room display to a descriptor: name,
// description, contents, occupants, exits.
func (g *Game) ShowRoom(d *Descriptor, ref world.Ref) {
	room, ok := g.World.Room(ref)
	if !ok {
		d.Send("You see nothing here.")
		return
	}
	d.Send(room.Name)
	if room.Desc != "" {
		d.Send(room.Desc)
	}
	for _, t := range g.World.ThingsIn(ref) {
		d.Send(fmt.Sprintf("You see %s here.", t.Name))
	}
	for _, p := range g.World.PlayersIn(ref) {
		if d.Player != nil && p.Ref == d.Player.Ref {
			continue
		}
		status := ""
		if p.Unconscious {
			status = " (unconscious)"
		} else if !g.Conns.IsConnected(p.Ref) {
			status = " (asleep)"
		}
		d.Send(fmt.Sprintf("%s is here%s.", p.Name, status))
	}
	d.Send(exitLine(room))
}

// AnnounceToRoom emits a text event to everyone in a room except one
// player (usually the actor, who gets their own first-person line).
func (g *Game) AnnounceToRoom(room world.Ref, except world.Ref, evType events.EventType, text string) {
	ev := events.Event{
		Type: evType,
		Room: room,
		Text: text,
	}
	g.EventBus.EmitToRoomExcept(g.World, room, except, ev)
}

// DisconnectPlayer tears down a descriptor, announcing the departure to
// the room when the session was logged in.
func (g *Game) DisconnectPlayer(d *Descriptor, reason string) {
	if d.Player != nil {
		log.Printf("NET: %s disconnected (desc=%d, %s)", d.Player.Name, d.ID, reason)
		d.Player.LastSeen = time.Now()
		g.PersistPlayer(d.Player)
		g.Conns.Remove(d)
		if !g.Conns.IsConnected(d.Player.Ref) {
			g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvDisconnect,
				fmt.Sprintf("%s has left the world.", d.Player.Name))
		}
		if g.Metrics != nil {
			g.Metrics.SetSessions(g.Conns.Count())
		}
		d.Close()
		return
	}
	g.Conns.Remove(d)
	if g.Metrics != nil {
		g.Metrics.SetSessions(g.Conns.Count())
	}
	d.Close()
}

// PersistPlayer writes a player back to the store, if one is attached.
func (g *Game) PersistPlayer(p *world.Player) {
	if g.Store == nil || p == nil {
		return
	}
	if err := g.Store.PutPlayer(p); err != nil {
		log.Printf("STORE: persist player %s: %v", p.Name, err)
	}
}

// PersistRoom writes a room back to the store, if one is attached.
func (g *Game) PersistRoom(r *world.Room) {
	if g.Store == nil || r == nil {
		return
	}
	if err := g.Store.PutRoom(r); err != nil {
		log.Printf("STORE: persist room %s: %v", r.Name, err)
	}
}

// PersistThing writes a thing back to the store, if one is attached.
func (g *Game) PersistThing(t *world.Thing) {
	if g.Store == nil || t == nil {
		return
	}
	if err := g.Store.PutThing(t); err != nil {
		log.Printf("STORE: persist thing %s: %v", t.Name, err)
	}
}

// auditRecord writes one dispatch outcome to the audit log, when
// auditing is enabled.
func (g *Game) auditRecord(d *Descriptor, token, outcome string) {
	if g.Audit == nil {
		return
	}
	g.Audit.Record(d.PlayerName(), token, outcome)
}
