package server

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emberwake-mud/emberwake/pkg/events"
	"github.com/emberwake-mud/emberwake/pkg/world"
)

// InitCommands registers the built-in command set into the game's
// registry. Aliases from the alias config file are layered on top by
// ResetCommands after this returns.
func InitCommands(g *Game) {
	r := g.Commands

	register := func(name, desc string, handler CommandHandler) {
		r.Register(&Command{Name: name, Desc: desc, Handler: handler})
	}
	registerStaff := func(name, desc string, handler CommandHandler) {
		r.Register(&Command{Name: name, Desc: desc, Restricted: true, Handler: handler})
	}

	// Communication
	register("say", "Speak to everyone in the room: say <message>.", cmdSay)
	register("yell", "Shout loud enough to carry into adjacent rooms.", cmdYell)
	register("emote", "Act out a visible action: emote <action>.", cmdEmote)

	// Movement. The twenty direction tokens are aliases onto the one
	// movement command, each carrying its canonical long form as a
	// fixed argument, so "n" always dispatches go north.
	register("go", "Move through an exit: go <direction>.", cmdGo)
	for i, long := range CanonicalDirections {
		r.RegisterAlias(long, "go", long)
		r.RegisterAlias(ShortDirections[i], "go", long)
	}

	// Information
	register("look", "Describe the room or something in it: look [target].", cmdLook)
	register("glance", "Just the room name and exits.", cmdGlance)
	register("inventory", "List what you are carrying.", cmdInventory)
	register("who", "List connected players.", cmdWho)
	register("score", "Your character sheet.", cmdScore)
	register("history", "Show this session's command history.", cmdHistory)
	register("recall", "Replay the last lines spoken in this room: recall [n].", cmdRecall)
	register("help", "Read a help topic: help [topic].", cmdHelp)
	register("version", "Server version.", cmdVersion)

	// Objects
	register("get", "Pick something up: get <thing>.", cmdGet)
	r.RegisterAlias("take", "get")
	register("drop", "Put something down: drop <thing>.", cmdDrop)
	register("spawn", "Conjure a new thing: spawn <name>.", cmdSpawn)

	// Combat and consciousness
	register("attack", "Strike another player senseless: attack <player>.", cmdAttack)
	r.RegisterAlias("kill", "attack")
	register("sleep", "Knock yourself out.", cmdSleep)
	register("wake", "Shake off unconsciousness.", cmdWake)

	// Session
	register("password", "Change your password: password <old> <new>.", cmdPassword)
	register("quit", "Leave the world.", cmdQuit)

	// Staff commands, reachable only with the @ prefix.
	registerStaff("wall", "Broadcast to every connected player.", cmdWall)
	registerStaff("stats", "World and dispatch statistics.", cmdStats)
	registerStaff("teleport", "Move a player: @teleport [player=]<room>.", cmdTeleport)
	registerStaff("audit", "Recent command audit entries: @audit [n].", cmdAudit)
	registerStaff("backup", "Save the world and snapshot its database.", cmdBackup)
	registerStaff("integrity", "Scan the world for broken references.", cmdIntegrity)
	registerStaff("reload", "Rebuild the command table and reload help.", cmdReload)
	registerStaff("shutdown", "Stop the server: @shutdown [message].", cmdShutdown)
}

// requireStaff gates the staff handlers on the player's admin bit.
func requireStaff(d *Descriptor) bool {
	if d.Player != nil && d.Player.Admin {
		return true
	}
	d.Send("Permission denied.")
	return false
}

// --- Communication ---

func cmdSay(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Say what?")
		return
	}
	loc := d.Player.Location
	d.Send(fmt.Sprintf("You say \"%s\"", args))
	g.EventBus.EmitToRoomExcept(g.World, loc, d.Player.Ref, events.Event{
		Type:   events.EvSay,
		Source: d.Player.Ref,
		Room:   loc,
		Text:   fmt.Sprintf("%s says \"%s\"", d.Player.Name, args),
		Data:   map[string]any{"message": args, "speaker": d.Player.Name},
	})
}

func cmdYell(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Yell what?")
		return
	}
	loc := d.Player.Location
	d.Send(fmt.Sprintf("You yell \"%s\"", args))
	g.EventBus.EmitToRoomExcept(g.World, loc, d.Player.Ref, events.Event{
		Type:   events.EvYell,
		Source: d.Player.Ref,
		Room:   loc,
		Text:   fmt.Sprintf("%s yells \"%s\"", d.Player.Name, args),
		Data:   map[string]any{"message": args, "speaker": d.Player.Name},
	})

	// A yell carries through the exits into adjacent rooms.
	room, ok := g.World.Room(loc)
	if !ok {
		return
	}
	heard := map[world.Ref]bool{loc: true}
	for _, dest := range room.Exits {
		if heard[dest] {
			continue
		}
		heard[dest] = true
		g.EventBus.EmitToRoom(g.World, dest, events.Event{
			Type:   events.EvYell,
			Source: d.Player.Ref,
			Room:   dest,
			Text:   fmt.Sprintf("From nearby, you hear %s yell \"%s\"", d.Player.Name, args),
			Data:   map[string]any{"message": args, "speaker": d.Player.Name, "muffled": true},
		})
	}
}

func cmdEmote(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Emote what?")
		return
	}
	loc := d.Player.Location
	g.EventBus.EmitToRoom(g.World, loc, events.Event{
		Type:   events.EvEmote,
		Source: d.Player.Ref,
		Room:   loc,
		Text:   fmt.Sprintf("%s %s", d.Player.Name, args),
		Data:   map[string]any{"action": args, "actor": d.Player.Name},
	})
}

// --- Movement ---

func cmdGo(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Go where?")
		return
	}
	dir := strings.ToLower(args)
	if canon, ok := NormalizeDirection(dir); ok {
		dir = canon
	}
	room, ok := g.World.Room(d.Player.Location)
	if !ok {
		d.Send("You can't go that way.")
		return
	}
	dest, ok := room.Exits[dir]
	if !ok {
		d.Send("You can't go that way.")
		return
	}
	g.MovePlayer(d, dest)
}

// MovePlayer moves a player to a new room, announcing the departure and
// arrival, and shows them where they ended up.
func (g *Game) MovePlayer(d *Descriptor, dest world.Ref) {
	p := d.Player
	if p.Location != world.Nothing {
		g.AnnounceToRoom(p.Location, p.Ref, events.EvMove,
			fmt.Sprintf("%s has left.", p.Name))
	}
	g.World.MovePlayer(p.Ref, dest)
	g.AnnounceToRoom(dest, p.Ref, events.EvMove,
		fmt.Sprintf("%s has arrived.", p.Name))
	g.PersistPlayer(p)
	g.ShowRoom(d, dest)
}

// --- Information ---

func cmdLook(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" || strings.EqualFold(args, "here") {
		g.ShowRoom(d, d.Player.Location)
		return
	}
	if strings.EqualFold(args, "me") {
		d.Send(fmt.Sprintf("%s, a wanderer of the ember roads.", d.Player.Name))
		return
	}
	if t, ok := g.World.FindThingIn(d.Player.Location, args); ok {
		sendThingDesc(d, t)
		return
	}
	if t, ok := g.World.FindThingIn(d.Player.Ref, args); ok {
		sendThingDesc(d, t)
		return
	}
	if p, ok := g.World.PlayerByName(args); ok && p.Location == d.Player.Location {
		if p.Unconscious {
			d.Send(fmt.Sprintf("%s lies here, out cold.", p.Name))
		} else {
			d.Send(fmt.Sprintf("%s stands here.", p.Name))
		}
		return
	}
	d.Send("I don't see that here.")
}

func sendThingDesc(d *Descriptor, t *world.Thing) {
	if t.Desc != "" {
		d.Send(t.Desc)
		return
	}
	d.Send(fmt.Sprintf("%s is unremarkable.", t.Name))
}

func cmdGlance(g *Game, d *Descriptor, _ string) {
	g.lookBrief(d)
}

func cmdInventory(g *Game, d *Descriptor, _ string) {
	held := g.World.ThingsIn(d.Player.Ref)
	if len(held) == 0 {
		d.Send("You aren't carrying anything.")
		return
	}
	d.Send("You are carrying:")
	for _, t := range held {
		d.Send(fmt.Sprintf("  %s", t.Name))
	}
}

func cmdWho(g *Game, d *Descriptor, _ string) {
	g.ShowWho(d)
}

// ShowWho displays the WHO list.
func (g *Game) ShowWho(d *Descriptor) {
	now := time.Now()
	d.Send(fmt.Sprintf("%-16s%9s %4s  %s", "Player Name", "On For", "Idle", "Where"))

	type whoEntry struct {
		name  string
		onFor string
		idle  string
		where string
	}
	var entries []whoEntry
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State != ConnConnected || dd.Player == nil {
			continue
		}
		where := ""
		if room, ok := g.World.Room(dd.Player.Location); ok {
			where = room.Name
		}
		entries = append(entries, whoEntry{
			name:  dd.Player.Name,
			onFor: FormatConnTime(now.Sub(dd.ConnTime)),
			idle:  FormatIdleTime(now.Sub(dd.LastCmd)),
			where: where,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].name < entries[j].name
	})
	for _, e := range entries {
		d.Send(fmt.Sprintf("%-16s%9s %4s  %s", e.name, e.onFor, e.idle, e.where))
	}
	d.Send(fmt.Sprintf("%d players connected.", len(entries)))
}

func cmdScore(g *Game, d *Descriptor, _ string) {
	p := d.Player
	d.Send(fmt.Sprintf("You are %s (%s).", p.Name, p.Ref))
	if room, ok := g.World.Room(p.Location); ok {
		d.Send(fmt.Sprintf("Location: %s", room.Name))
	}
	d.Send(fmt.Sprintf("Carrying: %d things.", len(g.World.ThingsIn(p.Ref))))
	d.Send(fmt.Sprintf("Commands this session: %d.", d.CmdCount))
	if p.Unconscious {
		d.Send("You are out cold.")
	}
	if p.Admin {
		d.Send("You carry the staff brand.")
	}
}

func cmdHistory(g *Game, d *Descriptor, _ string) {
	entries := d.History().Entries()
	if len(entries) == 0 {
		d.Send("No history yet.")
		return
	}
	d.Send("Recent commands:")
	for i, e := range entries {
		d.Send(fmt.Sprintf("%3d  %s", i+1, e))
	}
}

func cmdRecall(g *Game, d *Descriptor, args string) {
	if g.Speech == nil {
		d.Send("The speech log is not enabled.")
		return
	}
	limit := 10
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		limit = n
	}
	rows, err := g.Speech.Recent(d.Player.Location, limit)
	if err != nil {
		log.Printf("SPEECH: query: %v", err)
		d.Send("The echoes refuse to settle.")
		return
	}
	if len(rows) == 0 {
		d.Send("It has been quiet here.")
		return
	}
	d.Send("The room's echoes replay:")
	for _, row := range rows {
		d.Send(fmt.Sprintf("%s  %s", row.When.Format("15:04"), row.Text))
	}
}

func cmdHelp(g *Game, d *Descriptor, args string) {
	topic := strings.ToLower(strings.TrimSpace(args))
	if topic == "" {
		d.Send("Commands:")
		var names []string
		for _, cmd := range g.Commands.Commands() {
			name := cmd.Name
			if cmd.Restricted {
				name = NamespacePrefix + name
			}
			names = append(names, name)
		}
		sort.Strings(names)
		d.Send("  " + strings.Join(names, ", "))
		d.Send("Type \"help <command>\" for details, or \"help <topic>\" for lore.")
		return
	}
	if g.Help != nil {
		if text, ok := g.Help.Lookup(topic); ok {
			d.Send(text)
			return
		}
	}
	if cmd, ok := g.Commands.Get(strings.TrimPrefix(topic, NamespacePrefix)); ok {
		name := cmd.Name
		if cmd.Restricted {
			name = NamespacePrefix + name
		}
		d.Send(fmt.Sprintf("%s: %s", name, cmd.Desc))
		return
	}
	d.Send(fmt.Sprintf("No help available for \"%s\".", topic))
}

func cmdVersion(g *Game, d *Descriptor, _ string) {
	d.Send(VersionString())
}

// --- Objects ---

func cmdGet(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Get what?")
		return
	}
	t, ok := g.World.FindThingIn(d.Player.Location, args)
	if !ok {
		d.Send("I don't see that here.")
		return
	}
	g.World.MoveThing(t.Ref, d.Player.Ref)
	g.PersistThing(t)
	d.Send(fmt.Sprintf("You pick up %s.", t.Name))
	g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvText,
		fmt.Sprintf("%s picks up %s.", d.Player.Name, t.Name))
}

func cmdDrop(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Drop what?")
		return
	}
	t, ok := g.World.FindThingIn(d.Player.Ref, args)
	if !ok {
		d.Send("You aren't carrying that.")
		return
	}
	g.World.MoveThing(t.Ref, d.Player.Location)
	g.PersistThing(t)
	d.Send(fmt.Sprintf("You drop %s.", t.Name))
	g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvText,
		fmt.Sprintf("%s drops %s.", d.Player.Name, t.Name))
}

func cmdSpawn(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Spawn what?")
		return
	}
	t := g.World.NewThing(args, "", d.Player.Location)
	g.PersistThing(t)
	d.Send(fmt.Sprintf("%s shimmers into being.", t.Name))
	g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvText,
		fmt.Sprintf("%s conjures %s out of the ember-light.", d.Player.Name, t.Name))
}

// --- Combat and consciousness ---

func cmdAttack(g *Game, d *Descriptor, args string) {
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Attack whom?")
		return
	}
	target, ok := g.World.PlayerByName(args)
	if !ok || target.Location != d.Player.Location {
		d.Send("They aren't here.")
		return
	}
	if target.Ref == d.Player.Ref {
		d.Send("Hitting yourself solves nothing.")
		return
	}
	if target.Unconscious {
		d.Send(fmt.Sprintf("%s is already out cold.", target.Name))
		return
	}
	target.Unconscious = true
	g.PersistPlayer(target)
	d.Send(fmt.Sprintf("You knock %s out cold.", target.Name))
	g.Conns.SendToPlayer(target.Ref, fmt.Sprintf("%s knocks you out cold!", d.Player.Name))
	for _, p := range g.World.PlayersIn(d.Player.Location) {
		if p.Ref == d.Player.Ref || p.Ref == target.Ref {
			continue
		}
		g.Conns.SendToPlayer(p.Ref, fmt.Sprintf("%s knocks %s out cold!", d.Player.Name, target.Name))
	}
}

func cmdSleep(g *Game, d *Descriptor, _ string) {
	if d.Player.Unconscious {
		d.Send("You are already out cold.")
		return
	}
	d.Player.Unconscious = true
	g.PersistPlayer(d.Player)
	d.Send("You slump to the ground, senseless.")
	g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvText,
		fmt.Sprintf("%s slumps to the ground, senseless.", d.Player.Name))
}

func cmdWake(g *Game, d *Descriptor, _ string) {
	if !d.Player.Unconscious {
		d.Send("You are already awake.")
		return
	}
	d.Player.Unconscious = false
	g.PersistPlayer(d.Player)
	d.Send("You come to, head ringing.")
	g.AnnounceToRoom(d.Player.Location, d.Player.Ref, events.EvText,
		fmt.Sprintf("%s stirs and comes to.", d.Player.Name))
}

// --- Session ---

func cmdPassword(g *Game, d *Descriptor, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		d.Send("Usage: password <old> <new>")
		return
	}
	if !CheckPassword(d.Player.PassHash, fields[0]) {
		d.Send("Wrong password.")
		return
	}
	hash, err := HashPassword(fields[1])
	if err != nil {
		d.Send("That password cannot be used.")
		return
	}
	d.Player.PassHash = hash
	g.PersistPlayer(d.Player)
	d.Send("Password changed.")
}

func cmdQuit(g *Game, d *Descriptor, _ string) {
	d.Send("The embers dim. Goodbye.")
	g.DisconnectPlayer(d, "quit")
}

// --- Staff ---

func cmdWall(g *Game, d *Descriptor, args string) {
	if !requireStaff(d) {
		return
	}
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Announce what?")
		return
	}
	msg := fmt.Sprintf("%s announces: %s", d.Player.Name, args)
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State == ConnConnected {
			dd.Send(msg)
		}
	}
	log.Printf("WALL: %s: %s", d.Player.Name, args)
}

func cmdStats(g *Game, d *Descriptor, _ string) {
	if !requireStaff(d) {
		return
	}
	rooms, things, players := g.World.Counts()
	d.Send(fmt.Sprintf("World: %d rooms, %d things, %d players.", rooms, things, players))
	cs := g.ConnectionStats()
	d.Send(fmt.Sprintf("Sessions: %d (%d telnet, %d websocket, %d at the login screen).",
		cs.Total, cs.TCP, cs.WebSocket, cs.LoginScreen))
	d.Send(fmt.Sprintf("Traffic: %d bytes out, %d in, %d commands.",
		cs.BytesSent, cs.BytesRecv, cs.Commands))
	ms := MemoryStats()
	d.Send(fmt.Sprintf("Runtime: %.1f MB heap, %d goroutines, %d GC cycles.",
		ms.HeapAllocMB, ms.Goroutines, ms.GCCycles))
	d.Send(fmt.Sprintf("Registry: %d tokens.", g.Commands.Len()))
	d.Send(fmt.Sprintf("Up since %s.", g.Uptime.Format(time.RFC1123)))
	if g.Audit != nil {
		if counts, err := g.Audit.CountByOutcome(); err == nil {
			d.Send(fmt.Sprintf("Audit: %d ok, %d unknown, %d denied, %d faults.",
				counts[auditOK], counts[auditUnknown], counts[auditDenied], counts[auditFault]))
		}
	}
}

func cmdTeleport(g *Game, d *Descriptor, args string) {
	if !requireStaff(d) {
		return
	}
	args = strings.TrimSpace(args)
	if args == "" {
		d.Send("Usage: @teleport [player=]<room>")
		return
	}
	target := d.Player
	destStr := args
	if eq := strings.IndexByte(args, '='); eq >= 0 {
		name := strings.TrimSpace(args[:eq])
		destStr = strings.TrimSpace(args[eq+1:])
		p, ok := g.World.PlayerByName(name)
		if !ok {
			d.Send("No such player.")
			return
		}
		target = p
	}
	dest, ok := g.resolveRoom(destStr)
	if !ok {
		d.Send("No such room.")
		return
	}

	if target.Ref == d.Player.Ref {
		g.MovePlayer(d, dest)
		return
	}
	g.AnnounceToRoom(target.Location, target.Ref, events.EvMove,
		fmt.Sprintf("%s vanishes in a swirl of sparks.", target.Name))
	g.World.MovePlayer(target.Ref, dest)
	g.AnnounceToRoom(dest, target.Ref, events.EvMove,
		fmt.Sprintf("%s appears in a swirl of sparks.", target.Name))
	g.PersistPlayer(target)
	g.Conns.SendToPlayer(target.Ref, "You are swept away in a swirl of sparks.")
	for _, dd := range g.Conns.GetByPlayer(target.Ref) {
		g.ShowRoom(dd, dest)
	}
	d.Send(fmt.Sprintf("Teleported %s.", target.Name))
}

// resolveRoom finds a room by "#ref" or by case-insensitive name prefix.
func (g *Game) resolveRoom(s string) (world.Ref, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return world.Nothing, false
	}
	if s[0] == '#' {
		n, err := strconv.Atoi(s[1:])
		if err != nil {
			return world.Nothing, false
		}
		if _, ok := g.World.Room(world.Ref(n)); ok {
			return world.Ref(n), true
		}
		return world.Nothing, false
	}
	lower := strings.ToLower(s)
	for _, room := range g.World.AllRooms() {
		if strings.HasPrefix(strings.ToLower(room.Name), lower) {
			return room.Ref, true
		}
	}
	return world.Nothing, false
}

func cmdAudit(g *Game, d *Descriptor, args string) {
	if !requireStaff(d) {
		return
	}
	if g.Audit == nil {
		d.Send("The audit log is not enabled.")
		return
	}
	limit := 20
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		limit = n
	}
	rows, err := g.Audit.Recent(limit)
	if err != nil {
		log.Printf("AUDIT: query: %v", err)
		d.Send("Audit query failed.")
		return
	}
	if len(rows) == 0 {
		d.Send("The audit log is empty.")
		return
	}
	for _, row := range rows {
		d.Send(fmt.Sprintf("%s  %-16s %-8s %s",
			row.When.Format("15:04:05"), row.Player, row.Outcome, row.Command))
	}
}

func cmdBackup(g *Game, d *Descriptor, _ string) {
	if !requireStaff(d) {
		return
	}
	if g.Store == nil {
		d.Send("No world database is open.")
		return
	}
	if err := g.Store.PutWorld(g.World); err != nil {
		log.Printf("STORE: pre-backup save: %v", err)
		d.Send("Could not save the world before backing it up.")
		return
	}
	name := fmt.Sprintf("world-%s.db", time.Now().Format("20060102-150405"))
	dest := filepath.Join(filepath.Dir(g.Store.Path()), name)
	if err := g.Store.Backup(dest); err != nil {
		log.Printf("STORE: backup: %v", err)
		d.Send("Backup failed.")
		return
	}
	d.Send(fmt.Sprintf("World saved and backed up to %s.", dest))
	log.Printf("STORE: %s backed up the world to %s", d.Player.Name, dest)
}

func cmdIntegrity(g *Game, d *Descriptor, _ string) {
	if !requireStaff(d) {
		return
	}
	findings := world.Check(g.World)
	if len(findings) == 0 {
		d.Send("The world holds together: no broken references.")
		return
	}
	d.Send(fmt.Sprintf("%d problem(s) found:", len(findings)))
	for _, f := range findings {
		d.Send("  " + f)
	}
}

func cmdReload(g *Game, d *Descriptor, _ string) {
	if !requireStaff(d) {
		return
	}
	g.ResetCommands()
	if g.Help != nil {
		if err := g.Help.Reload(); err != nil {
			log.Printf("HELP: reload: %v", err)
		}
	}
	d.Send(fmt.Sprintf("Command table rebuilt: %d tokens.", g.Commands.Len()))
	log.Printf("GAME: %s rebuilt the command table", d.Player.Name)
}

func cmdShutdown(g *Game, d *Descriptor, args string) {
	if !requireStaff(d) {
		return
	}
	log.Printf("GAME: @shutdown by %s", d.Player.Name)
	msg := "The world holds its breath: shutting down."
	if strings.TrimSpace(args) != "" {
		msg = strings.TrimSpace(args)
	}
	for _, dd := range g.Conns.AllDescriptors() {
		if dd.State == ConnConnected {
			dd.Send(msg)
		}
	}
	g.RequestShutdown()
}
