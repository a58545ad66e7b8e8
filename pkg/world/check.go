package world

import (
	"fmt"
	"sort"
)

// Check scans the world for referential problems and returns one line
// per finding: exits leading to rooms that do not exist, things whose
// location is gone, players standing in missing rooms. A loaded world
// that produces no findings is safe to run.
func Check(w *World) []string {
	var findings []string

	for _, room := range w.AllRooms() {
		names := make([]string, 0, len(room.Exits))
		for name := range room.Exits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dest := room.Exits[name]
			if _, ok := w.Room(dest); !ok {
				findings = append(findings,
					fmt.Sprintf("room %s exit %q leads to %s which does not exist",
						room.Ref, name, dest))
			}
		}
	}

	for _, thing := range w.AllThings() {
		if locationExists(w, thing.Location) {
			continue
		}
		findings = append(findings,
			fmt.Sprintf("thing %s (%s) location %s does not exist",
				thing.Ref, thing.Name, thing.Location))
	}

	for _, player := range w.AllPlayers() {
		if _, ok := w.Room(player.Location); ok {
			continue
		}
		findings = append(findings,
			fmt.Sprintf("player %s (%s) is in room %s which does not exist",
				player.Ref, player.Name, player.Location))
	}

	return findings
}

// locationExists reports whether a ref is a valid holder for a thing:
// a room, a carrying player, or a containing thing.
func locationExists(w *World, ref Ref) bool {
	if _, ok := w.Room(ref); ok {
		return true
	}
	if _, ok := w.Player(ref); ok {
		return true
	}
	if _, ok := w.Thing(ref); ok {
		return true
	}
	return false
}
