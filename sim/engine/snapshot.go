package engine

// Snapshot is an immutable copy of the grid at one iteration. It is what
// renderers and frame streams consume; nothing in it aliases live state.
type Snapshot struct {
	Iteration int        `json:"iteration"`
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Cells     [][]Marker `json:"cells"`
	Agent     Position   `json:"agent"`
	Path      []Position `json:"path"`
	Obstacles []Position `json:"obstacles"`
	Dirt      []Position `json:"dirt"`
}

// Render draws the snapshot as text rows using marker glyphs.
// Cells on the path that are now clean are drawn as 'o'.
func (s *Snapshot) Render() []string {
	onPath := make(map[Position]bool, len(s.Path))
	for _, p := range s.Path {
		onPath[p] = true
	}
	rows := make([]string, len(s.Cells))
	for y, row := range s.Cells {
		buf := make([]byte, len(row))
		for x, m := range row {
			buf[x] = m.Glyph()
			if m == Clean && onPath[Position{X: x, Y: y}] {
				buf[x] = 'o'
			}
		}
		rows[y] = string(buf)
	}
	return rows
}
