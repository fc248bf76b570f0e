package main

// SafeZone is a named circular region where hostile actions are suppressed.
// The only exception is retaliation: an NPC reacting to the specific player
// who attacked it may still act inside the zone.
type SafeZone struct {
	Name   string
	X, Y   float64
	Radius float64
}

// Contains checks whether a point lies inside the zone
func (z SafeZone) Contains(x, y float64) bool {
	return WithinRadius(z.X, z.Y, z.Radius, x, y)
}

// zoneAt returns the safe zone covering a point, or nil
func zoneAt(zones []SafeZone, x, y float64) *SafeZone {
	for i := range zones {
		if zones[i].Contains(x, y) {
			return &zones[i]
		}
	}
	return nil
}
