package world

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Ref is the fundamental entity reference type.
type Ref int

const (
	// Nothing is the null reference.
	Nothing Ref = -1
)

func (r Ref) String() string {
	return fmt.Sprintf("#%d", int(r))
}

// EntityType represents the kind of a world entity.
type EntityType int

const (
	TypeRoom   EntityType = 0
	TypeThing  EntityType = 1
	TypePlayer EntityType = 2
)

func (t EntityType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypePlayer:
		return "PLAYER"
	default:
		return "UNKNOWN"
	}
}

// Room is a location players occupy. Exits maps canonical long-form
// direction names ("north", "southwest", ...) to destination rooms.
type Room struct {
	Ref   Ref
	Name  string
	Desc  string
	Exits map[string]Ref
}

// ExitNames returns the room's exit directions in a stable sorted order.
func (r *Room) ExitNames() []string {
	names := make([]string, 0, len(r.Exits))
	for dir := range r.Exits {
		names = append(names, dir)
	}
	sort.Strings(names)
	return names
}

// Thing is a portable object. Location is the room it lies in or the
// player carrying it.
type Thing struct {
	Ref      Ref
	Name     string
	Desc     string
	Location Ref
}

// Player is a persistent participant record. PassHash holds a bcrypt
// hash, or a 13-character legacy DES crypt awaiting upgrade on next
// login. Unconscious is session-mutable game state: while set, the
// dispatch layer refuses movement and item handling.
type Player struct {
	Ref         Ref
	Name        string
	PassHash    string
	Location    Ref
	Unconscious bool
	Admin       bool
	Created     time.Time
	LastSeen    time.Time
}

// World is the in-memory entity graph. The maps are guarded by a
// read-write mutex; individual entity fields follow the per-session
// ownership rule (a player's mutable fields are touched only by that
// player's own dispatch), so field access takes no lock.
type World struct {
	mu      sync.RWMutex
	rooms   map[Ref]*Room
	things  map[Ref]*Thing
	players map[Ref]*Player
	byName  map[string]Ref // lowercased player name -> ref
	nextRef Ref
}

// New creates an empty world.
func New() *World {
	return &World{
		rooms:   make(map[Ref]*Room),
		things:  make(map[Ref]*Thing),
		players: make(map[Ref]*Player),
		byName:  make(map[string]Ref),
		nextRef: 0,
	}
}

func (w *World) allocRef() Ref {
	ref := w.nextRef
	w.nextRef++
	return ref
}

// NewRoom creates a room and returns it.
func (w *World) NewRoom(name, desc string) *Room {
	w.mu.Lock()
	defer w.mu.Unlock()
	room := &Room{
		Ref:   w.allocRef(),
		Name:  name,
		Desc:  desc,
		Exits: make(map[string]Ref),
	}
	w.rooms[room.Ref] = room
	return room
}

// NewThing creates a thing at the given location.
func (w *World) NewThing(name, desc string, loc Ref) *Thing {
	w.mu.Lock()
	defer w.mu.Unlock()
	thing := &Thing{
		Ref:      w.allocRef(),
		Name:     name,
		Desc:     desc,
		Location: loc,
	}
	w.things[thing.Ref] = thing
	return thing
}

// NewPlayer creates a player record. Returns an error if the name is
// already taken (player names are unique, case-insensitive).
func (w *World) NewPlayer(name, passHash string, loc Ref) (*Player, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := w.byName[key]; exists {
		return nil, fmt.Errorf("world: player name %q already taken", name)
	}
	now := time.Now()
	p := &Player{
		Ref:      w.allocRef(),
		Name:     name,
		PassHash: passHash,
		Location: loc,
		Created:  now,
		LastSeen: now,
	}
	w.players[p.Ref] = p
	w.byName[key] = p.Ref
	return p, nil
}

// Room looks up a room by ref.
func (w *World) Room(ref Ref) (*Room, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	r, ok := w.rooms[ref]
	return r, ok
}

// Thing looks up a thing by ref.
func (w *World) Thing(ref Ref) (*Thing, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	t, ok := w.things[ref]
	return t, ok
}

// Player looks up a player by ref.
func (w *World) Player(ref Ref) (*Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.players[ref]
	return p, ok
}

// PlayerByName looks up a player by name, case-insensitively.
func (w *World) PlayerByName(name string) (*Player, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ref, ok := w.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	p, ok := w.players[ref]
	return p, ok
}

// PlayersIn returns the players located in the given room, sorted by ref
// for deterministic iteration.
func (w *World) PlayersIn(room Ref) []*Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Player
	for _, p := range w.players {
		if p.Location == room {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// ThingsIn returns the things whose location is the given room or player.
func (w *World) ThingsIn(loc Ref) []*Thing {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []*Thing
	for _, t := range w.things {
		if t.Location == loc {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// FindThingIn matches a thing at loc by case-insensitive name prefix.
func (w *World) FindThingIn(loc Ref, name string) (*Thing, bool) {
	name = strings.ToLower(name)
	for _, t := range w.ThingsIn(loc) {
		if strings.HasPrefix(strings.ToLower(t.Name), name) {
			return t, true
		}
	}
	return nil, false
}

// MovePlayer relocates a player to a room.
func (w *World) MovePlayer(ref, room Ref) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.players[ref]; ok {
		p.Location = room
	}
}

// MoveThing relocates a thing to a room or onto a player.
func (w *World) MoveThing(ref, loc Ref) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.things[ref]; ok {
		t.Location = loc
	}
}

// Counts returns the number of rooms, things and players.
func (w *World) Counts() (rooms, things, players int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.rooms), len(w.things), len(w.players)
}

// AllRooms returns a snapshot of every room.
func (w *World) AllRooms() []*Room {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Room, 0, len(w.rooms))
	for _, r := range w.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// AllThings returns a snapshot of every thing.
func (w *World) AllThings() []*Thing {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Thing, 0, len(w.things))
	for _, t := range w.things {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// AllPlayers returns a snapshot of every player record.
func (w *World) AllPlayers() []*Player {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out
}

// Install places loaded entities into the world, rebuilding the name
// index and the ref counter. Used when loading from the store.
func (w *World) Install(rooms []*Room, things []*Thing, players []*Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rooms {
		w.rooms[r.Ref] = r
		if r.Ref >= w.nextRef {
			w.nextRef = r.Ref + 1
		}
	}
	for _, t := range things {
		w.things[t.Ref] = t
		if t.Ref >= w.nextRef {
			w.nextRef = t.Ref + 1
		}
	}
	for _, p := range players {
		w.players[p.Ref] = p
		w.byName[strings.ToLower(p.Name)] = p.Ref
		if p.Ref >= w.nextRef {
			w.nextRef = p.Ref + 1
		}
	}
}
