package main

// Hit radii for projectile collision tests. NPC-fired shots use a wider
// radius to compensate for defender movement between ticks.
const (
	PlayerHitRadius  = 30.0
	NPCHitRadius     = 35.0
	NPCShotHitRadius = 60.0
	GenericHitRadius = 40.0
)

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 <= radSum*radSum
}

// WithinRadius checks if a point is within radius of a center
func WithinRadius(cx, cy, radius, px, py float64) bool {
	dx := px - cx
	dy := py - cy
	return dx*dx+dy*dy <= radius*radius
}

// InsideRect checks if (px,py) lies inside a rectangle centered at (cx,cy)
// with the given half-width and half-height. Combat engagement envelopes
// are rectangular, not circular.
func InsideRect(cx, cy, halfW, halfH, px, py float64) bool {
	dx := px - cx
	if dx < 0 {
		dx = -dx
	}
	dy := py - cy
	if dy < 0 {
		dy = -dy
	}
	return dx <= halfW && dy <= halfH
}
