package engine

// Grid stores cell markers in row-major order
type Grid struct {
	W, H int
	data []Marker
}

func newGrid(w, h int) *Grid {
	return &Grid{W: w, H: h, data: make([]Marker, w*h)}
}

func (g *Grid) index(p Position) int { return p.Y*g.W + p.X }

func (g *Grid) position(i int) Position { return Position{X: i % g.W, Y: i / g.W} }

// InBounds reports whether p lies on the grid
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.W && p.Y >= 0 && p.Y < g.H
}

// Clamp pins coordinates to the grid edges. Coordinates never wrap.
func (g *Grid) Clamp(p Position) Position {
	return Position{X: clamp(p.X, 0, g.W-1), Y: clamp(p.Y, 0, g.H-1)}
}

// At returns the marker at p. Out-of-range positions read as Obstacle.
func (g *Grid) At(p Position) Marker {
	if !g.InBounds(p) {
		return Obstacle
	}
	return g.data[g.index(p)]
}

func (g *Grid) set(p Position, m Marker) {
	g.data[g.index(p)] = m
}

// Count returns how many cells hold m
func (g *Grid) Count(m Marker) int {
	n := 0
	for _, c := range g.data {
		if c == m {
			n++
		}
	}
	return n
}

// Positions lists every cell holding m in row-major order
func (g *Grid) Positions(m Marker) []Position {
	var out []Position
	for i, c := range g.data {
		if c == m {
			out = append(out, g.position(i))
		}
	}
	return out
}

// Rows returns a deep copy of the grid as rows
func (g *Grid) Rows() [][]Marker {
	rows := make([][]Marker, g.H)
	for y := 0; y < g.H; y++ {
		row := make([]Marker, g.W)
		copy(row, g.data[y*g.W:(y+1)*g.W])
		rows[y] = row
	}
	return rows
}

// window is an inclusive rectangle of grid cells
type window struct {
	MinX, MinY, MaxX, MaxY int
}

// sensorWindow returns the square of the given radius around center, clamped to the grid
func (g *Grid) sensorWindow(center Position, radius int) window {
	lo := g.Clamp(Position{X: center.X - radius, Y: center.Y - radius})
	hi := g.Clamp(Position{X: center.X + radius, Y: center.Y + radius})
	return window{MinX: lo.X, MinY: lo.Y, MaxX: hi.X, MaxY: hi.Y}
}

func (w window) contains(p Position) bool {
	return p.X >= w.MinX && p.X <= w.MaxX && p.Y >= w.MinY && p.Y <= w.MaxY
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// chebyshev is the king-move distance between two cells
func chebyshev(a, b Position) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx > dy {
		return dx
	}
	return dy
}
