package world

// link connects two rooms in both directions.
func link(a *Room, dir string, b *Room, back string) {
	a.Exits[dir] = b.Ref
	b.Exits[back] = a.Ref
}

// Seed builds the starting area used on first boot, before any world
// database exists. Returns the room new players start in.
func Seed(w *World) *Room {
	square := w.NewRoom("Ember Square",
		"A wide cobbled square beneath the old signal tower. Braziers burn\n"+
			"at each corner, never quite going out.")
	gate := w.NewRoom("North Gate",
		"The city wall looms here, its gate kept open for traders.")
	market := w.NewRoom("Ash Market",
		"Stalls of oiled canvas crowd together. The air smells of charcoal\n"+
			"and river fish.")
	stair := w.NewRoom("Tower Stair",
		"A spiral stair climbs the inside of the signal tower.")
	beacon := w.NewRoom("Beacon Platform",
		"Wind pulls at you. The beacon's iron cage dominates the platform,\n"+
			"cold now, waiting.")
	cellar := w.NewRoom("Tower Cellar",
		"Casks and coils of rope fill the low-ceilinged cellar under the\n"+
			"tower.")
	wharf := w.NewRoom("Ferry Wharf",
		"Planks creak over slow gray water. A bell hangs from a post.")

	link(square, "north", gate, "south")
	link(square, "east", market, "west")
	link(square, "up", stair, "down")
	link(stair, "up", beacon, "down")
	link(square, "down", cellar, "up")
	link(market, "southeast", wharf, "northwest")
	link(gate, "northeast", wharf, "southwest")

	w.NewThing("a rusted lantern", "Its glass is cracked but the wick looks sound.", square.Ref)
	w.NewThing("a coil of rope", "Tarred hemp, maybe twenty feet of it.", cellar.Ref)
	w.NewThing("a ferry bell", "Ring it and wait, the sign says.", wharf.Ref)

	return square
}
