package server

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/boltstore"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// testEnv holds the shared test infrastructure.
type testEnv struct {
	game   *Game
	player *Descriptor // Ash, in Ember Square
	square world.Ref
	gate   world.Ref
}

// newTestEnv creates a minimal game environment for testing:
//
//   - Ember Square, with a north exit to North Gate
//   - North Gate, with a south exit back
//   - a copper lantern lying in the square
//   - Ash (the test session) and Brann, both in the square
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	w := world.New()

	square := w.NewRoom("Ember Square", "Banked coals glow in the brazier at the center of the square.")
	gate := w.NewRoom("North Gate", "The city wall looms overhead, its arch black with old soot.")
	square.Exits["north"] = gate.Ref
	gate.Exits["south"] = square.Ref

	w.NewThing("a copper lantern", "A dented lantern, its candle long gone.", square.Ref)

	ash, err := w.NewPlayer("Ash", "", square.Ref)
	if err != nil {
		t.Fatalf("creating Ash: %v", err)
	}
	if _, err := w.NewPlayer("Brann", "", square.Ref); err != nil {
		t.Fatalf("creating Brann: %v", err)
	}

	g := NewGame(w, nil)
	d := makeTestDescriptor(t, g, ash)

	return &testEnv{game: g, player: d, square: square.Ref, gate: gate.Ref}
}

// makeTestDescriptor creates a logged-in Descriptor backed by net.Pipe
// for capturing output. net.Pipe is synchronous, so the server side is
// swapped for a buffering wrapper before anything writes to it.
func makeTestDescriptor(t *testing.T, g *Game, p *world.Player) *Descriptor {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	d := &Descriptor{
		ID:       g.Conns.NextID(),
		Conn:     &asyncPipeWriter{conn: serverConn},
		State:    ConnConnected,
		Player:   p,
		Addr:     "test",
		ConnTime: time.Now(),
		LastCmd:  time.Now(),
		Retries:  3,
	}
	g.Conns.Add(d)
	g.Conns.Login(d, p)

	t.Cleanup(func() {
		serverConn.Close()
		clientConn.Close()
	})
	return d
}

// asyncPipeWriter wraps the server-side pipe conn and stores output in a
// buffer so Sends never block.
type asyncPipeWriter struct {
	conn net.Conn
	buf  strings.Builder
}

func (a *asyncPipeWriter) Read(b []byte) (int, error) {
	return 0, fmt.Errorf("read not supported on server side")
}

func (a *asyncPipeWriter) Write(b []byte) (int, error) {
	a.buf.Write(b)
	return len(b), nil
}

func (a *asyncPipeWriter) Close() error {
	return a.conn.Close()
}

func (a *asyncPipeWriter) LocalAddr() net.Addr                { return a.conn.LocalAddr() }
func (a *asyncPipeWriter) RemoteAddr() net.Addr               { return a.conn.RemoteAddr() }
func (a *asyncPipeWriter) SetDeadline(t time.Time) error      { return nil }
func (a *asyncPipeWriter) SetReadDeadline(t time.Time) error  { return nil }
func (a *asyncPipeWriter) SetWriteDeadline(t time.Time) error { return nil }

// getOutput returns all buffered output and clears the buffer.
func getOutput(d *Descriptor) string {
	w, ok := d.Conn.(*asyncPipeWriter)
	if !ok {
		return ""
	}
	s := w.buf.String()
	w.buf.Reset()
	return strings.TrimRight(s, "\r\n")
}

// clearOutput discards any buffered output.
func clearOutput(d *Descriptor) {
	if w, ok := d.Conn.(*asyncPipeWriter); ok {
		w.buf.Reset()
	}
}

// --- Dispatch: resolution and arguments ---

func TestDispatchCommand_Say(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "say Hello World")
	out := getOutput(env.player)
	if !strings.Contains(out, `You say "Hello World"`) {
		t.Errorf("say: expected 'You say \"Hello World\"', got: %s", out)
	}
}

func TestDispatchCommand_CasePreservesArg(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	// Only the command token folds to lowercase. The argument reaches
	// the handler exactly as typed.
	DispatchCommand(env.game, env.player, "SAY HELLO")
	out := getOutput(env.player)
	if !strings.Contains(out, `You say "HELLO"`) {
		t.Errorf("SAY HELLO: expected 'You say \"HELLO\"', got: %s", out)
	}
}

func TestDispatchCommand_SayApostrophe(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "'hello there")
	out := getOutput(env.player)
	if !strings.Contains(out, `You say "hello there"`) {
		t.Errorf("' shortcut: expected 'You say \"hello there\"', got: %s", out)
	}
}

func TestDispatchCommand_YellQuote(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, `"hear me out`)
	out := getOutput(env.player)
	if !strings.Contains(out, `You yell "hear me out"`) {
		t.Errorf(`" shortcut: expected 'You yell "hear me out"', got: %s`, out)
	}
}

func TestDispatchCommand_LoneQuoteNotRewritten(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	// A bare quote has no text to carry, so it dispatches as a literal
	// one-character command and misses.
	DispatchCommand(env.game, env.player, `'`)
	out := getOutput(env.player)
	if strings.Contains(out, "You say") || strings.Contains(out, "You yell") {
		t.Errorf("lone quote: should not become speech, got: %s", out)
	}
	if !strings.Contains(out, "Huh?") {
		t.Errorf("lone quote: expected 'Huh?', got: %s", out)
	}
}

func TestDispatchCommand_EmptyLineGlances(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "   ")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ember Square") {
		t.Errorf("empty line: expected room name, got: %s", out)
	}
	if !strings.Contains(out, "Obvious exits: north") {
		t.Errorf("empty line: expected exit line, got: %s", out)
	}
	if got := env.player.History().Len(); got != 0 {
		t.Errorf("empty line: history should stay empty, has %d entries", got)
	}
}

func TestDispatchCommand_HuhMessage(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "xyzzyplugh")
	out := getOutput(env.player)
	if !strings.Contains(out, "Huh?") {
		t.Errorf("unknown command: expected 'Huh?', got: %s", out)
	}
}

func TestDispatchCommand_SuggestsNearMiss(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "lok")
	out := getOutput(env.player)
	if !strings.Contains(out, `Did you mean "look"?`) {
		t.Errorf("lok: expected suggestion of look, got: %s", out)
	}
}

func TestDispatchCommand_NoSuggestionPastThreshold(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "qqqqqqqqqqqq")
	out := getOutput(env.player)
	if strings.Contains(out, "Did you mean") {
		t.Errorf("far token: expected no suggestion, got: %s", out)
	}
	if !strings.Contains(out, msgHuh) {
		t.Errorf("far token: expected %q, got: %s", msgHuh, out)
	}
}

func TestDispatchCommand_OnePromptPerLine(t *testing.T) {
	env := newTestEnv(t)

	for _, input := range []string{"look", "", "xyzzyplugh", "n", "say hi"} {
		clearOutput(env.player)
		DispatchCommand(env.game, env.player, input)
		out := getOutput(env.player)
		if got := strings.Count(out, promptStr); got != 1 {
			t.Errorf("input %q: expected exactly 1 prompt, got %d in: %s", input, got, out)
		}
	}
}

// --- Dispatch: the "." repeat ---

func TestDispatchCommand_RepeatEmptyHistory(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, ".")
	out := getOutput(env.player)
	if !strings.Contains(out, msgNothingToRepeat) {
		t.Errorf("repeat on empty history: expected %q, got: %s", msgNothingToRepeat, out)
	}
	if got := env.player.History().Len(); got != 0 {
		t.Errorf("repeat on empty history: history should stay empty, has %d", got)
	}
}

func TestDispatchCommand_RepeatLastCommand(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.player, "look")
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, ".")
	out := getOutput(env.player)
	if !strings.Contains(out, "(repeating: look)") {
		t.Errorf("repeat: expected '(repeating: look)', got: %s", out)
	}
	if !strings.Contains(out, "Ember Square") {
		t.Errorf("repeat: look should re-run, got: %s", out)
	}
	// The repeated line is recorded again; the "." itself never is.
	if got := env.player.History().Len(); got != 2 {
		t.Errorf("repeat: expected 2 history entries, got %d", got)
	}
	if last, _ := env.player.History().Last(); last != "look" {
		t.Errorf("repeat: newest entry should be 'look', got %q", last)
	}
}

func TestDispatchCommand_PasswordNeverRecorded(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "password old new")
	out := getOutput(env.player)
	if !strings.Contains(out, "Wrong password.") {
		t.Errorf("password: handler should run, got: %s", out)
	}
	if got := env.player.History().Len(); got != 0 {
		t.Errorf("password: line must not be recorded, history has %d", got)
	}

	// The guard matches anywhere in the line, any case.
	DispatchCommand(env.game, env.player, "say my PASSWORD is hunter2")
	if got := env.player.History().Len(); got != 0 {
		t.Errorf("password in arg: line must not be recorded, history has %d", got)
	}
}

// --- Dispatch: the out-cold gate ---

func TestDispatchCommand_UnconsciousGate(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Unconscious = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "north")
	out := getOutput(env.player)
	if !strings.Contains(out, msgUnconscious) {
		t.Errorf("unconscious north: expected %q, got: %s", msgUnconscious, out)
	}
	if env.player.Player.Location != env.square {
		t.Errorf("unconscious north: player moved to %v", env.player.Player.Location)
	}

	clearOutput(env.player)
	DispatchCommand(env.game, env.player, "get lantern")
	out = getOutput(env.player)
	if !strings.Contains(out, msgUnconscious) {
		t.Errorf("unconscious get: expected %q, got: %s", msgUnconscious, out)
	}
}

func TestDispatchCommand_UnconsciousCanStillLookAndSpeak(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Unconscious = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "look")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ember Square") {
		t.Errorf("unconscious look: expected room display, got: %s", out)
	}

	clearOutput(env.player)
	DispatchCommand(env.game, env.player, "say ow")
	out = getOutput(env.player)
	if !strings.Contains(out, `You say "ow"`) {
		t.Errorf("unconscious say: expected speech, got: %s", out)
	}
}

func TestDispatchCommand_UnconsciousCanStillAttack(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Unconscious = true
	clearOutput(env.player)

	// A downed fighter can still strike back.
	DispatchCommand(env.game, env.player, "attack Brann")
	out := getOutput(env.player)
	if strings.Contains(out, msgUnconscious) {
		t.Errorf("unconscious attack: must not be gated, got: %s", out)
	}
	if !strings.Contains(out, "You knock Brann out cold.") {
		t.Errorf("unconscious attack: expected the hit to land, got: %s", out)
	}
}

// --- Dispatch: movement ---

func TestDispatchCommand_ShortDirectionMoves(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "n")
	out := getOutput(env.player)
	if env.player.Player.Location != env.gate {
		t.Fatalf("n: expected player at North Gate, location=%v", env.player.Player.Location)
	}
	if !strings.Contains(out, "North Gate") {
		t.Errorf("n: expected arrival room display, got: %s", out)
	}
}

func TestDispatchCommand_DirectionCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.game.World.MovePlayer(env.player.Player.Ref, env.gate)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "SOUTH")
	if env.player.Player.Location != env.square {
		t.Errorf("SOUTH: expected player back in Ember Square, location=%v", env.player.Player.Location)
	}
}

func TestDispatchCommand_NoExitThatWay(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "west")
	out := getOutput(env.player)
	if !strings.Contains(out, "You can't go that way.") {
		t.Errorf("west: expected refusal, got: %s", out)
	}
	if env.player.Player.Location != env.square {
		t.Errorf("west: player should not have moved")
	}
}

// --- Dispatch: the staff namespace ---

func TestDispatchCommand_RestrictedNeedsPrefix(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "wall sparks fly")
	out := getOutput(env.player)
	if strings.Contains(out, "announces") {
		t.Errorf("bare wall: handler must not run, got: %s", out)
	}
	if !strings.Contains(out, `Try "@wall"`) {
		t.Errorf("bare wall: expected hint naming @wall, got: %s", out)
	}
}

func TestDispatchCommand_PrefixedStaffCommandRuns(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@wall sparks fly")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ash announces: sparks fly") {
		t.Errorf("@wall: expected broadcast, got: %s", out)
	}
}

func TestDispatchCommand_PrefixOnOrdinaryCommand(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@say hello")
	out := getOutput(env.player)
	if strings.Contains(out, "You say") {
		t.Errorf("@say: handler must not run, got: %s", out)
	}
	if !strings.Contains(out, `Try "say"`) {
		t.Errorf("@say: expected hint naming the bare form, got: %s", out)
	}
}

func TestDispatchCommand_StaffCommandDeniedWithoutAdmin(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@wall anybody home")
	out := getOutput(env.player)
	if !strings.Contains(out, "Permission denied.") {
		t.Errorf("@wall without admin: expected denial, got: %s", out)
	}
}

// --- Dispatch: failure containment ---

func TestDispatchCommand_HandlerPanicContained(t *testing.T) {
	env := newTestEnv(t)
	env.game.Commands.Register(&Command{
		Name: "detonate",
		Desc: "Blows up the handler.",
		Handler: func(g *Game, d *Descriptor, args string) {
			panic("kaboom")
		},
	})
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "detonate")
	out := getOutput(env.player)
	if !strings.Contains(out, msgHandlerFault) {
		t.Errorf("panic: expected %q, got: %s", msgHandlerFault, out)
	}
	if got := strings.Count(out, promptStr); got != 1 {
		t.Errorf("panic: expected prompt redraw, got %d prompts in: %s", got, out)
	}

	// The session survives; the next line dispatches cleanly.
	clearOutput(env.player)
	DispatchCommand(env.game, env.player, "say still here")
	out = getOutput(env.player)
	if !strings.Contains(out, `You say "still here"`) {
		t.Errorf("after panic: expected normal dispatch, got: %s", out)
	}
}

// --- Information commands ---

func TestLook(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "look")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ember Square") {
		t.Errorf("look: expected room name, got: %s", out)
	}
	if !strings.Contains(out, "Banked coals glow") {
		t.Errorf("look: expected description, got: %s", out)
	}
	if !strings.Contains(out, "You see a copper lantern here.") {
		t.Errorf("look: expected lantern contents line, got: %s", out)
	}
	if !strings.Contains(out, "Brann is here") {
		t.Errorf("look: expected Brann in occupants, got: %s", out)
	}
	if strings.Contains(out, "Ash is here") {
		t.Errorf("look: viewer must not be listed, got: %s", out)
	}
}

func TestLookAtThing(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "look lantern")
	out := getOutput(env.player)
	if !strings.Contains(out, "A dented lantern") {
		t.Errorf("look lantern: expected thing description, got: %s", out)
	}
}

func TestLookAtNothing(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "look chandelier")
	out := getOutput(env.player)
	if !strings.Contains(out, "I don't see that here.") {
		t.Errorf("look chandelier: expected miss message, got: %s", out)
	}
}

func TestGlance(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "glance")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ember Square") {
		t.Errorf("glance: expected room name, got: %s", out)
	}
	if strings.Contains(out, "Banked coals glow") {
		t.Errorf("glance: must not include the description, got: %s", out)
	}
}

func TestInventoryEmpty(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "inventory")
	out := getOutput(env.player)
	if !strings.Contains(out, "You aren't carrying anything.") {
		t.Errorf("inventory: expected empty-handed message, got: %s", out)
	}
}

func TestWho(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "WHO")
	out := getOutput(env.player)
	if !strings.Contains(out, "Ash") {
		t.Errorf("WHO: expected 'Ash' in output, got: %s", out)
	}
	if !strings.Contains(out, "1 players connected.") {
		t.Errorf("WHO: expected connection count, got: %s", out)
	}
	// Brann has a player record but no descriptor.
	if strings.Contains(out, "Brann") {
		t.Errorf("WHO: Brann is not connected, got: %s", out)
	}
}

func TestScore(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "score")
	out := getOutput(env.player)
	if !strings.Contains(out, "You are Ash") {
		t.Errorf("score: expected name line, got: %s", out)
	}
	if !strings.Contains(out, "Location: Ember Square") {
		t.Errorf("score: expected location line, got: %s", out)
	}
}

func TestHistoryCommand(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.player, "look")
	DispatchCommand(env.game, env.player, "say one")
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "history")
	out := getOutput(env.player)
	if !strings.Contains(out, "Recent commands:") {
		t.Errorf("history: expected header, got: %s", out)
	}
	if !strings.Contains(out, "look") || !strings.Contains(out, "say one") {
		t.Errorf("history: expected recorded lines, got: %s", out)
	}
	// "history" itself was pushed before the handler ran.
	if !strings.Contains(out, "  3  history") {
		t.Errorf("history: expected the history line itself as entry 3, got: %s", out)
	}
}

func TestHelpListsCommands(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "help")
	out := getOutput(env.player)
	if !strings.Contains(out, "Commands:") {
		t.Errorf("help: expected command list header, got: %s", out)
	}
	if !strings.Contains(out, "say") || !strings.Contains(out, "@wall") {
		t.Errorf("help: expected say and @wall in the list, got: %s", out)
	}
}

func TestHelpCommandDetail(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "help say")
	out := getOutput(env.player)
	if !strings.Contains(out, "say:") {
		t.Errorf("help say: expected the registered description, got: %s", out)
	}
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "version")
	out := getOutput(env.player)
	if !strings.Contains(out, "Emberwake") {
		t.Errorf("version: expected 'Emberwake', got: %s", out)
	}
}

// --- Object commands ---

func TestGet(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "get lantern")
	out := getOutput(env.player)
	if !strings.Contains(out, "You pick up a copper lantern.") {
		t.Errorf("get: expected pickup message, got: %s", out)
	}
	if _, ok := env.game.World.FindThingIn(env.player.Player.Ref, "lantern"); !ok {
		t.Errorf("get: lantern should be in inventory")
	}
}

func TestGetEmpty(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "get")
	out := getOutput(env.player)
	if !strings.Contains(out, "Get what?") {
		t.Errorf("get empty: expected 'Get what?', got: %s", out)
	}
}

func TestTakeAliasesGet(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "take lantern")
	out := getOutput(env.player)
	if !strings.Contains(out, "You pick up a copper lantern.") {
		t.Errorf("take: expected pickup via the get handler, got: %s", out)
	}
}

func TestDrop(t *testing.T) {
	env := newTestEnv(t)

	DispatchCommand(env.game, env.player, "get lantern")
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "drop lantern")
	out := getOutput(env.player)
	if !strings.Contains(out, "You drop a copper lantern.") {
		t.Errorf("drop: expected drop message, got: %s", out)
	}
	if _, ok := env.game.World.FindThingIn(env.square, "lantern"); !ok {
		t.Errorf("drop: lantern should be back in the square")
	}
}

func TestDropNotCarrying(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "drop lantern")
	out := getOutput(env.player)
	if !strings.Contains(out, "You aren't carrying that.") {
		t.Errorf("drop not carrying: expected refusal, got: %s", out)
	}
}

func TestSpawn(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "spawn a clay whistle")
	out := getOutput(env.player)
	if !strings.Contains(out, "a clay whistle shimmers into being.") {
		t.Errorf("spawn: expected creation message, got: %s", out)
	}
	if _, ok := env.game.World.FindThingIn(env.square, "a clay whistle"); !ok {
		t.Errorf("spawn: whistle should lie in the square")
	}
}

// --- Combat and consciousness ---

func TestAttackKnocksOut(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "attack Brann")
	out := getOutput(env.player)
	if !strings.Contains(out, "You knock Brann out cold.") {
		t.Errorf("attack: expected knockout message, got: %s", out)
	}
	brann, _ := env.game.World.PlayerByName("Brann")
	if !brann.Unconscious {
		t.Errorf("attack: Brann should be unconscious")
	}
}

func TestAttackSelf(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "attack Ash")
	out := getOutput(env.player)
	if !strings.Contains(out, "Hitting yourself solves nothing.") {
		t.Errorf("attack self: expected refusal, got: %s", out)
	}
}

func TestKillAliasesAttack(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "kill Brann")
	out := getOutput(env.player)
	if !strings.Contains(out, "You knock Brann out cold.") {
		t.Errorf("kill: expected the attack handler, got: %s", out)
	}
}

func TestSleepAndWake(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "sleep")
	out := getOutput(env.player)
	if !strings.Contains(out, "You slump to the ground, senseless.") {
		t.Errorf("sleep: expected collapse message, got: %s", out)
	}
	if !env.player.Player.Unconscious {
		t.Fatalf("sleep: player should be unconscious")
	}

	clearOutput(env.player)
	DispatchCommand(env.game, env.player, "wake")
	out = getOutput(env.player)
	if !strings.Contains(out, "You come to, head ringing.") {
		t.Errorf("wake: expected recovery message, got: %s", out)
	}
	if env.player.Player.Unconscious {
		t.Errorf("wake: player should be awake")
	}
}

// --- Room events between sessions ---

func TestSayHeardInRoom(t *testing.T) {
	env := newTestEnv(t)
	brann, _ := env.game.World.PlayerByName("Brann")
	bd := makeTestDescriptor(t, env.game, brann)
	clearOutput(env.player)
	clearOutput(bd)

	DispatchCommand(env.game, env.player, "say the fire is low")
	if out := getOutput(bd); !strings.Contains(out, `Ash says "the fire is low"`) {
		t.Errorf("say: Brann should hear it, got: %s", out)
	}
}

func TestYellCarriesNextDoor(t *testing.T) {
	env := newTestEnv(t)
	brann, _ := env.game.World.PlayerByName("Brann")
	env.game.World.MovePlayer(brann.Ref, env.gate)
	bd := makeTestDescriptor(t, env.game, brann)
	clearOutput(env.player)
	clearOutput(bd)

	DispatchCommand(env.game, env.player, `"FIRE`)
	if out := getOutput(bd); !strings.Contains(out, `From nearby, you hear Ash yell "FIRE"`) {
		t.Errorf("yell: Brann next door should hear the muffled form, got: %s", out)
	}
}

func TestMovementAnnounced(t *testing.T) {
	env := newTestEnv(t)
	brann, _ := env.game.World.PlayerByName("Brann")
	bd := makeTestDescriptor(t, env.game, brann)
	clearOutput(env.player)
	clearOutput(bd)

	DispatchCommand(env.game, env.player, "north")
	if out := getOutput(bd); !strings.Contains(out, "Ash has left.") {
		t.Errorf("move: Brann should see the departure, got: %s", out)
	}
}

// --- Staff commands ---

func TestTeleportPlayer(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@teleport Brann=North Gate")
	out := getOutput(env.player)
	if !strings.Contains(out, "Teleported Brann.") {
		t.Errorf("@teleport: expected confirmation, got: %s", out)
	}
	brann, _ := env.game.World.PlayerByName("Brann")
	if brann.Location != env.gate {
		t.Errorf("@teleport: Brann should be at North Gate, location=%v", brann.Location)
	}
}

func TestTeleportSelfByRef(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, fmt.Sprintf("@teleport #%d", int(env.gate)))
	if env.player.Player.Location != env.gate {
		t.Errorf("@teleport #ref: expected player at North Gate, location=%v", env.player.Player.Location)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@stats")
	out := getOutput(env.player)
	if !strings.Contains(out, "2 rooms") {
		t.Errorf("@stats: expected world counts, got: %s", out)
	}
	if !strings.Contains(out, "Registry:") {
		t.Errorf("@stats: expected registry size line, got: %s", out)
	}
}

func TestReloadRebuildsRegistry(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	env.game.Commands.Register(&Command{
		Name:    "ephemeral",
		Desc:    "Gone after reload.",
		Handler: func(g *Game, d *Descriptor, args string) {},
	})
	if _, ok := env.game.Commands.Get("ephemeral"); !ok {
		t.Fatalf("ephemeral should be registered")
	}
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@reload")
	out := getOutput(env.player)
	if !strings.Contains(out, "Command table rebuilt") {
		t.Errorf("@reload: expected confirmation, got: %s", out)
	}
	if _, ok := env.game.Commands.Get("ephemeral"); ok {
		t.Errorf("@reload: ephemeral should be gone")
	}
	if _, ok := env.game.Commands.Get("say"); !ok {
		t.Errorf("@reload: built-ins should be back")
	}
}

// --- Session commands ---

func TestQuitDisconnects(t *testing.T) {
	env := newTestEnv(t)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "quit")
	out := getOutput(env.player)
	if !strings.Contains(out, "The embers dim. Goodbye.") {
		t.Errorf("quit: expected farewell, got: %s", out)
	}
	if !env.player.IsClosed() {
		t.Errorf("quit: descriptor should be closed")
	}
	if env.game.Conns.IsConnected(env.player.Player.Ref) {
		t.Errorf("quit: player should no longer be connected")
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	hash, err := HashPassword("oldpass")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	env.player.Player.PassHash = hash
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "password oldpass newpass")
	out := getOutput(env.player)
	if !strings.Contains(out, "Password changed.") {
		t.Errorf("password: expected confirmation, got: %s", out)
	}
	if !CheckPassword(env.player.Player.PassHash, "newpass") {
		t.Errorf("password: new password should verify")
	}
	if CheckPassword(env.player.Player.PassHash, "oldpass") {
		t.Errorf("password: old password should no longer verify")
	}
}

func TestBackupWithoutStore(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@backup")
	out := getOutput(env.player)
	if !strings.Contains(out, "No world database is open.") {
		t.Errorf("@backup without a store: got: %s", out)
	}
}

func TestBackupSnapshotsDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true

	dir := t.TempDir()
	store, err := boltstore.Open(filepath.Join(dir, "world.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	env.game.Store = store
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@backup")
	out := getOutput(env.player)
	if !strings.Contains(out, "World saved and backed up to") {
		t.Fatalf("@backup: expected confirmation, got: %s", out)
	}
	snaps, err := filepath.Glob(filepath.Join(dir, "world-*.db"))
	if err != nil {
		t.Fatalf("globbing snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("expected one snapshot file, found %d", len(snaps))
	}
}

func TestIntegrityCleanWorld(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@integrity")
	out := getOutput(env.player)
	if !strings.Contains(out, "The world holds together") {
		t.Errorf("@integrity on a clean world: got: %s", out)
	}
}

func TestIntegrityReportsBrokenExit(t *testing.T) {
	env := newTestEnv(t)
	env.player.Player.Admin = true
	room, ok := env.game.World.Room(env.square)
	if !ok {
		t.Fatalf("square missing")
	}
	room.Exits["pit"] = world.Ref(4040)
	clearOutput(env.player)

	DispatchCommand(env.game, env.player, "@integrity")
	out := getOutput(env.player)
	if !strings.Contains(out, "1 problem(s) found:") {
		t.Errorf("@integrity: expected a problem count, got: %s", out)
	}
	if !strings.Contains(out, "#4040") {
		t.Errorf("@integrity: expected the dangling ref, got: %s", out)
	}
}
