package engine

import "fmt"

// Agent is the cleaning robot. It holds a handle to an Environment it does
// not own and changes cells only through Occupy and Vacate.
type Agent struct {
	env         *Environment
	tuning      Tuning
	rng         Random
	sensorRange int

	pos           Position
	initialEnergy float64
	energy        float64

	path       []Position
	visited    map[Position]struct{}
	encounters []ObstacleEncounter
	target     *Position
	steps      int
}

// NewAgent places an agent at start. The start cell becomes AgentOccupied
// whatever it held before, and is the first entry of the path.
func NewAgent(env *Environment, start Position, energy float64, sensorRange int, tuning Tuning, rng Random) (*Agent, error) {
	if !env.Grid().InBounds(start) {
		return nil, fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBoundsStart, start.X, start.Y, env.Width(), env.Height())
	}
	if err := env.Occupy(start); err != nil {
		return nil, err
	}
	return &Agent{
		env:           env,
		tuning:        tuning,
		rng:           rng,
		sensorRange:   sensorRange,
		pos:           start,
		initialEnergy: energy,
		energy:        energy,
		path:          []Position{start},
		visited:       map[Position]struct{}{start: {}},
	}, nil
}

type candidate struct {
	dir Direction
	pos Position
}

// scan classifies the clamped neighbours and records obstacle sightings.
// Clamping can fold several directions onto one cell. Every direction that
// sees an obstacle records a sighting, but each cell is a candidate once.
func (a *Agent) scan(iteration int) (dirty, clean []candidate) {
	g := a.env.Grid()
	seen := make(map[Position]bool, 8)
	for _, d := range a.tuning.directions() {
		n := g.Clamp(a.pos.Add(d))
		if n == a.pos {
			continue
		}
		if g.At(n) == Obstacle {
			a.encounters = append(a.encounters, ObstacleEncounter{Direction: d.Name, Position: n, Iteration: iteration})
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		c := candidate{dir: directionBetween(a.pos, n, d), pos: n}
		switch g.At(n) {
		case Dirt:
			dirty = append(dirty, c)
		case Clean:
			clean = append(clean, c)
		}
	}
	return dirty, clean
}

// directionBetween returns the direction matching the actual offset. A
// clamped diagonal that lands on an orthogonal neighbour is a straight move.
func directionBetween(from, to Position, hint Direction) Direction {
	dx, dy := to.X-from.X, to.Y-from.Y
	if dx == hint.DX && dy == hint.DY {
		return hint
	}
	for _, d := range Compass() {
		if d.DX == dx && d.DY == dy {
			return d
		}
	}
	return hint
}

func (a *Agent) partition(cs []candidate) (fresh, explored []candidate) {
	for _, c := range cs {
		if _, ok := a.visited[c.pos]; ok {
			explored = append(explored, c)
		} else {
			fresh = append(fresh, c)
		}
	}
	return fresh, explored
}

func (a *Agent) pick(cs []candidate) candidate {
	return cs[a.rng.IntN(len(cs))]
}

// Step runs one sense, decide, move and spend cycle
func (a *Agent) Step() StepResult {
	iteration := a.steps + 1
	dirty, clean := a.scan(iteration)
	freshDirty, exploredDirty := a.partition(dirty)
	freshClean, exploredClean := a.partition(clean)

	res := StepResult{From: a.pos, To: a.pos, Direction: Stay}
	var choice *candidate

	switch {
	case len(freshDirty) > 0:
		c := a.pick(freshDirty)
		choice, res.DirtFound = &c, true
	case len(exploredDirty) > 0:
		c := a.pick(exploredDirty)
		choice, res.DirtFound = &c, true
	}

	if choice == nil && a.tuning.PathSearch {
		if c, reached, ok := a.searchTowardDirt(); ok {
			choice, res.Targeted, res.DirtFound = &c, true, reached
		}
	}

	if choice == nil {
		switch {
		case len(freshClean) > 0:
			c := a.pick(freshClean)
			choice = &c
		case len(exploredClean) > 0:
			c := a.pick(exploredClean)
			choice = &c
		}
	}

	if choice != nil {
		a.env.Vacate(a.pos)
		a.pos = choice.pos
		// in-bounds by construction
		_ = a.env.Occupy(a.pos)
		res.To, res.Direction, res.Moved = a.pos, choice.dir, true
	}
	a.path = append(a.path, a.pos)
	a.visited[a.pos] = struct{}{}

	res.Cost = a.tuning.moveCost(res.Direction, res.Moved) +
		a.tuning.Scan +
		a.tuning.CleanBase*uniform(a.rng, a.tuning.CleanEffortMin, a.tuning.CleanEffortMax)
	a.energy -= res.Cost
	if a.energy < 0 {
		a.energy = 0
	}
	res.Energy = a.energy
	a.steps++
	return res
}

// searchTowardDirt plans a bounded path to the nearest dirt in sensor range
// and returns its first step. reached is false for a corrective step taken
// after a failed search; the target is dropped in that case.
func (a *Agent) searchTowardDirt() (c candidate, reached bool, ok bool) {
	g := a.env.Grid()
	if a.target != nil && (g.At(*a.target) != Dirt || chebyshev(a.pos, *a.target) > a.sensorRange) {
		a.target = nil
	}
	if a.target == nil {
		t, found := a.env.NearestDirt(a.pos, a.sensorRange)
		if !found {
			return candidate{}, false, false
		}
		a.target = &t
	}

	path := FindPath(g, a.pos, *a.target, a.sensorRange, a.tuning.directions(), a.rng)
	if !path.Reached {
		a.target = nil
	}
	if len(path.Steps) == 0 {
		return candidate{}, false, false
	}
	first := path.Steps[0]
	return candidate{dir: first.Direction, pos: first.To}, path.Reached, true
}

// Position returns the current cell
func (a *Agent) Position() Position { return a.pos }

// Energy returns the remaining energy
func (a *Agent) Energy() float64 { return a.energy }

// InitialEnergy returns the starting budget
func (a *Agent) InitialEnergy() float64 { return a.initialEnergy }

// Steps returns how many steps the agent has taken
func (a *Agent) Steps() int { return a.steps }

// Path returns a copy of the path history, start included
func (a *Agent) Path() []Position { return append([]Position(nil), a.path...) }

// VisitedCount returns the number of distinct cells visited
func (a *Agent) VisitedCount() int { return len(a.visited) }

// HasVisited reports whether p is in the visited set
func (a *Agent) HasVisited(p Position) bool {
	_, ok := a.visited[p]
	return ok
}

// ObstacleEncounters returns a copy of every obstacle sighting
func (a *Agent) ObstacleEncounters() []ObstacleEncounter {
	return append([]ObstacleEncounter(nil), a.encounters...)
}

// Target returns the current path-search target, if any
func (a *Agent) Target() (Position, bool) {
	if a.target == nil {
		return Position{}, false
	}
	return *a.target, true
}
