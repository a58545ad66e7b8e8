package events

import "github.com/emberwake-mud/emberwake/pkg/world"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvSay                         // Speech in a room
	EvYell                        // Shout heard in adjacent rooms too
	EvEmote                       // Emote/pose
	EvMove                        // Arrive/depart
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
	EvWall                        // Staff broadcast
	EvCombat                      // Combat messages
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvYell:
		return "yell"
	case EvEmote:
		return "emote"
	case EvMove:
		return "move"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvWall:
		return "wall"
	case EvCombat:
		return "combat"
	default:
		return "unknown"
	}
}

// Event is a structured game event that flows through the event bus.
// Telnet descriptors render the pre-formatted Text; the websocket
// transport sends the structured fields as JSON.
type Event struct {
	Type   EventType
	Player world.Ref      // Recipient (Nothing for broadcast)
	Source world.Ref      // Who generated the event
	Room   world.Ref      // Room context
	Text   string         // Pre-formatted text (telnet uses this)
	Data   map[string]any // Structured data for JSON clients
}
