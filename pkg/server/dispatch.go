package server

import (
	"fmt"
	"log"
	"runtime/debug"
	"strings"
)

// Fixed pipeline messages.
const (
	msgNothingToRepeat = "Nothing to repeat."
	msgUnconscious     = "You can't do that while you're out cold."
	msgHandlerFault    = "Sorry, something went wrong executing that command."
	msgHuh             = "Huh?  (Type \"help\" for help.)"
)

// unconsciousDenied is the fixed set of command tokens refused while a
// player is out cold: movement in every spelling, item pickup and drop,
// and spawning. Combat is deliberately absent. A downed fighter can
// still strike back but cannot flee or loot.
var unconsciousDenied = func() map[string]bool {
	m := map[string]bool{
		"go":    true,
		"get":   true,
		"take":  true,
		"drop":  true,
		"spawn": true,
	}
	for _, dir := range CanonicalDirections {
		m[dir] = true
	}
	for _, short := range ShortDirections {
		m[short] = true
	}
	return m
}()

// DispatchCommand carries one raw input line from one session through
// the whole pipeline: trim, empty-line glance, "." repeat, history
// recording, quote shortcuts, the out-cold gate, the direction
// fast-path, resolution, and failure containment. Every branch ends
// with exactly one prompt redraw except the unauthenticated guard,
// which owes the line nothing at all.
//
// The caller's read loop invokes this serially per session; lines from
// different sessions dispatch in parallel, which is safe because the
// registry is read-only after boot and everything else touched here is
// owned by this session.
func DispatchCommand(g *Game, d *Descriptor, raw string) {
	if d.State != ConnConnected || d.Player == nil {
		return
	}

	DebugLog("dispatch: desc=%d player=%s input=%q", d.ID, d.PlayerName(), raw)

	input := strings.TrimSpace(raw)

	// An empty line is a glance at the surroundings. History is not
	// touched.
	if input == "" {
		g.lookBrief(d)
		d.Prompt()
		return
	}

	// "." repeats the newest history entry. The repeat is recorded
	// again, so repeats chain; the "." itself never is.
	if input == "." {
		last, ok := d.History().Last()
		if !ok {
			d.Send(msgNothingToRepeat)
			d.Prompt()
			return
		}
		d.Send(fmt.Sprintf("(repeating: %s)", last))
		d.History().Push(last)
		input = last
	} else {
		d.History().Push(input)
	}

	// Quote shortcuts: 'text speaks, "text yells. A lone quote is not
	// rewritten; it dispatches as a literal one-character command and
	// fails lookup the ordinary way.
	var token, arg string
	switch {
	case len(input) > 1 && input[0] == '\'':
		token, arg = "say", input[1:]
	case len(input) > 1 && input[0] == '"':
		token, arg = "yell", input[1:]
	default:
		token = input
		if sp := strings.IndexByte(input, ' '); sp >= 0 {
			token = input[:sp]
			arg = strings.TrimSpace(input[sp+1:])
		}
	}

	lower := strings.ToLower(token)

	// Out-cold gate. Refused tokens stop here, before any lookup.
	if d.Player.Unconscious && unconsciousDenied[lower] {
		d.Send(msgUnconscious)
		g.noteDenied(d, lower)
		d.Prompt()
		return
	}

	// Direction fast-path: movement tokens skip generic resolution and
	// always carry their canonical long form, whatever else was typed.
	if canon, ok := NormalizeDirection(lower); ok {
		if cmd, found := g.Commands.Get("go"); found {
			g.runHandler(d, cmd, canon)
			g.noteDispatched(d, canon)
		}
		d.Prompt()
		return
	}

	// General resolution under the namespace rule. An alias's fixed
	// argument replaces whatever the player typed.
	if res, ok := g.Commands.Lookup(lower); ok {
		if res.HasFixed {
			arg = res.FixedArg
		}
		g.runHandler(d, res.Cmd, arg)
		g.noteDispatched(d, lower)
		d.Prompt()
		return
	}

	g.unknownCommand(d, lower)
	d.Prompt()
}

// runHandler executes a command handler inside the dispatch failure
// boundary. A panic is logged with session and command context and
// converted into a generic apology; the session always survives.
func (g *Game) runHandler(d *Descriptor, cmd *Command, arg string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in command %q (desc=%d player=%s): %v\n%s",
				cmd.Name, d.ID, d.PlayerName(), r, debug.Stack())
			g.noteFault(d, cmd.Name)
			d.Send(msgHandlerFault)
		}
	}()
	cmd.Handler(g, d, arg)
}

// unknownCommand reports an unresolvable token. The specific namespace
// correction is preferred over the fuzzy match: if the player typed a
// staff command without its prefix (or prefixed an ordinary one), name
// the spelling that works instead of guessing at typos.
func (g *Game) unknownCommand(d *Descriptor, token string) {
	g.noteUnknown(d, token)

	if hint, ok := g.Commands.NamespaceHint(token); ok {
		if strings.HasPrefix(hint, NamespacePrefix) {
			d.Send(fmt.Sprintf("Huh?  (Try \"%s\". Staff commands take the %s prefix.)", hint, NamespacePrefix))
		} else {
			d.Send(fmt.Sprintf("Huh?  (Try \"%s\", without the %s prefix.)", hint, NamespacePrefix))
		}
		return
	}

	if best, ok := g.Commands.Suggest(token); ok {
		if cmd, found := g.Commands.Get(best); found && cmd.Restricted {
			best = NamespacePrefix + best
		}
		d.Send(fmt.Sprintf("Huh?  (Did you mean \"%s\"?)", best))
		g.noteSuggestion(d, token, best)
		return
	}

	d.Send(msgHuh)
}

// noteDispatched records a successfully executed command.
func (g *Game) noteDispatched(d *Descriptor, token string) {
	g.Metrics.IncDispatched()
	g.auditRecord(d, token, auditOK)
}

// noteDenied records an out-cold refusal.
func (g *Game) noteDenied(d *Descriptor, token string) {
	g.Metrics.IncDenied()
	g.auditRecord(d, token, auditDenied)
}

// noteUnknown records a failed lookup.
func (g *Game) noteUnknown(d *Descriptor, token string) {
	g.Metrics.IncUnknown()
	g.auditRecord(d, token, auditUnknown)
}

// noteFault records a recovered handler panic.
func (g *Game) noteFault(d *Descriptor, token string) {
	g.Metrics.IncFault()
	g.auditRecord(d, token, auditFault)
}

// noteSuggestion records a fuzzy hint that was shown.
func (g *Game) noteSuggestion(d *Descriptor, token, best string) {
	g.Metrics.IncSuggestion()
	log.Printf("DISPATCH: suggested %q for %q (desc=%d)", best, token, d.ID)
}
