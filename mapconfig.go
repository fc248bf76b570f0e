package main

// MapConfig holds per-map world settings. Each world owns its player and
// NPC sets independently; there is no cross-map transaction.
type MapConfig struct {
	Name           string
	WorldWidth     float64
	WorldHeight    float64
	SpawnCounts    map[string]int // archetype -> count at world init
	SafeZones      []SafeZone
	InterestRadius float64 // broadcast filter distance
	NPCEventRadius float64 // wide-but-bounded radius for NPC damage/death events
	RespawnDelay   float64 // seconds before a destroyed NPC is replaced
}

// DefaultMapConfig returns the config for a named map
func DefaultMapConfig(name string) MapConfig {
	switch name {
	case "frontier":
		return MapConfig{
			Name:        "frontier",
			WorldWidth:  8000,
			WorldHeight: 8000,
			SpawnCounts: map[string]int{
				"drifter":  12,
				"marauder": 4,
			},
			SafeZones: []SafeZone{
				{Name: "outpost", X: 1000, Y: 1000, Radius: 600},
			},
			InterestRadius: 2000,
			NPCEventRadius: 2500,
			RespawnDelay:   15,
		}
	default:
		return MapConfig{
			Name:        "nexus",
			WorldWidth:  6000,
			WorldHeight: 6000,
			SpawnCounts: map[string]int{
				"drifter":  8,
				"marauder": 2,
			},
			SafeZones: []SafeZone{
				{Name: "station", X: 500, Y: 500, Radius: 500},
			},
			InterestRadius: 2000,
			NPCEventRadius: 2500,
			RespawnDelay:   10,
		}
	}
}

// SpawnPosition returns a spawn point inside the map's first safe zone,
// or near world center when the map has none
func (c MapConfig) SpawnPosition() (float64, float64) {
	if len(c.SafeZones) > 0 {
		z := c.SafeZones[0]
		return z.X + (randFloat()-0.5)*z.Radius, z.Y + (randFloat()-0.5)*z.Radius
	}
	return c.WorldWidth/2 + (randFloat()-0.5)*400, c.WorldHeight/2 + (randFloat()-0.5)*400
}

// InBounds checks that a point lies inside the world rectangle
func (c MapConfig) InBounds(x, y float64) bool {
	return x >= 0 && x <= c.WorldWidth && y >= 0 && y <= c.WorldHeight
}
