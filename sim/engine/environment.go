package engine

import (
	"fmt"
	"math"
)

// Environment owns the grid and the record of how it was populated.
// The agent never writes cells itself; it goes through Occupy and Vacate.
type Environment struct {
	grid *Grid

	initialObstacles []Position
	initialDirt      []Position
	currentObstacles map[Position]struct{}
	currentDirt      map[Position]struct{}

	populated bool
	occupied  *Position
}

// Generate allocates a width x height grid with every cell Clean
func Generate(width, height int) (*Environment, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return &Environment{
		grid:             newGrid(width, height),
		currentObstacles: make(map[Position]struct{}),
		currentDirt:      make(map[Position]struct{}),
	}, nil
}

// Populate scatters obstacles and dirt over the grid. A shuffled permutation
// of every coordinate is drawn; the first floor(W*H*obstacleDensity) become
// obstacles and the next floor(W*H*dirtDensity) become dirt, so the two sets
// never overlap. When the densities sum past 1 the dirt count is capped at
// the cells left over.
func (e *Environment) Populate(obstacleDensity, dirtDensity float64, rng Random) error {
	if e.populated {
		return fmt.Errorf("%w: environment already populated", ErrInvalidConfig)
	}
	if err := validateDensity("obstacle", obstacleDensity); err != nil {
		return err
	}
	if err := validateDensity("dirt", dirtDensity); err != nil {
		return err
	}

	total := e.grid.W * e.grid.H
	nObstacles := int(math.Floor(float64(total) * obstacleDensity))
	nDirt := int(math.Floor(float64(total) * dirtDensity))
	if nObstacles+nDirt > total {
		nDirt = total - nObstacles
	}

	cells := make([]Position, total)
	for i := range cells {
		cells[i] = e.grid.position(i)
	}
	rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })

	e.initialObstacles = append([]Position(nil), cells[:nObstacles]...)
	e.initialDirt = append([]Position(nil), cells[nObstacles:nObstacles+nDirt]...)

	for _, p := range e.initialObstacles {
		e.grid.set(p, Obstacle)
		e.currentObstacles[p] = struct{}{}
	}
	for _, p := range e.initialDirt {
		e.grid.set(p, Dirt)
		e.currentDirt[p] = struct{}{}
	}
	e.populated = true
	return nil
}

// FromLayout builds a populated environment from text rows: '.' clean,
// '#' obstacle, '*' dirt. Every row must have the same width.
func FromLayout(rows []string) (*Environment, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty layout", ErrInvalidSize)
	}
	e, err := Generate(len(rows[0]), len(rows))
	if err != nil {
		return nil, err
	}
	for y, row := range rows {
		if len(row) != e.grid.W {
			return nil, fmt.Errorf("%w: layout row %d has %d cells, want %d", ErrInvalidSize, y+1, len(row), e.grid.W)
		}
		for x := 0; x < len(row); x++ {
			p := Position{X: x, Y: y}
			switch row[x] {
			case '.':
			case '#':
				e.grid.set(p, Obstacle)
				e.initialObstacles = append(e.initialObstacles, p)
				e.currentObstacles[p] = struct{}{}
			case '*':
				e.grid.set(p, Dirt)
				e.initialDirt = append(e.initialDirt, p)
				e.currentDirt[p] = struct{}{}
			default:
				return nil, fmt.Errorf("%w: invalid layout character '%c' at row %d, col %d", ErrInvalidConfig, row[x], y+1, x+1)
			}
		}
	}
	e.populated = true
	return e, nil
}

func validateDensity(name string, d float64) error {
	if math.IsNaN(d) || d < 0 || d > 1 {
		return fmt.Errorf("%w: %s density %v not in [0,1]", ErrInvalidDensity, name, d)
	}
	return nil
}

// Grid returns the grid for reading. Callers must not mutate it.
func (e *Environment) Grid() *Grid { return e.grid }

// Width returns the grid width
func (e *Environment) Width() int { return e.grid.W }

// Height returns the grid height
func (e *Environment) Height() int { return e.grid.H }

// IsClean reports whether no cell holds Dirt
func (e *Environment) IsClean() bool {
	for _, c := range e.grid.data {
		if c == Dirt {
			return false
		}
	}
	return true
}

// GlobalDirtyCount scans the whole grid and counts Dirt cells
func (e *Environment) GlobalDirtyCount() int {
	return e.grid.Count(Dirt)
}

// DirtyLocations lists every dirty cell in row-major order
func (e *Environment) DirtyLocations() []Position {
	return e.grid.Positions(Dirt)
}

// ObstacleLocations lists every obstacle cell in row-major order
func (e *Environment) ObstacleLocations() []Position {
	return e.grid.Positions(Obstacle)
}

// InitialDirt returns the dirt placed by Populate
func (e *Environment) InitialDirt() []Position {
	return append([]Position(nil), e.initialDirt...)
}

// InitialObstacles returns the obstacles placed by Populate
func (e *Environment) InitialObstacles() []Position {
	return append([]Position(nil), e.initialObstacles...)
}

// Occupy marks p as the agent cell. Any previously occupied cell is vacated
// first so at most one cell carries AgentOccupied.
func (e *Environment) Occupy(p Position) error {
	if !e.grid.InBounds(p) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBoundsStart, p.X, p.Y, e.grid.W, e.grid.H)
	}
	if e.occupied != nil && *e.occupied != p {
		e.Vacate(*e.occupied)
	}
	e.forget(p)
	e.grid.set(p, AgentOccupied)
	e.occupied = &p
	return nil
}

// Vacate reverts an agent cell to Clean. Whatever the cell held before the
// agent arrived is gone: visiting a cell cleans it.
func (e *Environment) Vacate(p Position) {
	if !e.grid.InBounds(p) || e.grid.At(p) != AgentOccupied {
		return
	}
	e.grid.set(p, Clean)
	if e.occupied != nil && *e.occupied == p {
		e.occupied = nil
	}
}

// AgentPosition returns the occupied cell, if any
func (e *Environment) AgentPosition() (Position, bool) {
	if e.occupied == nil {
		return Position{}, false
	}
	return *e.occupied, true
}

func (e *Environment) forget(p Position) {
	delete(e.currentDirt, p)
	delete(e.currentObstacles, p)
}

// NearestDirt returns the closest Dirt cell to from inside the sensor window.
// Distance is Chebyshev; ties go to the row-major first cell.
func (e *Environment) NearestDirt(from Position, sensorRange int) (Position, bool) {
	w := e.grid.sensorWindow(from, sensorRange)
	best, found, bestDist := Position{}, false, 0
	for y := w.MinY; y <= w.MaxY; y++ {
		for x := w.MinX; x <= w.MaxX; x++ {
			p := Position{X: x, Y: y}
			if e.grid.At(p) != Dirt {
				continue
			}
			d := chebyshev(from, p)
			if !found || d < bestDist {
				best, found, bestDist = p, true, d
			}
		}
	}
	return best, found
}

// Snapshot copies the current grid state for rendering
func (e *Environment) Snapshot(iteration int, path []Position) *Snapshot {
	s := &Snapshot{
		Iteration: iteration,
		Width:     e.grid.W,
		Height:    e.grid.H,
		Cells:     e.grid.Rows(),
		Path:      append([]Position(nil), path...),
		Obstacles: e.ObstacleLocations(),
		Dirt:      e.DirtyLocations(),
	}
	if p, ok := e.AgentPosition(); ok {
		s.Agent = p
	}
	return s
}
