package engine

// Marker is the content of a single grid cell
type Marker uint8

const (
	Clean         Marker = 0
	Obstacle      Marker = 1
	Dirt          Marker = 2
	AgentOccupied Marker = 8
)

// String returns the lowercase marker name used in JSON output and logs
func (m Marker) String() string {
	switch m {
	case Clean:
		return "clean"
	case Obstacle:
		return "obstacle"
	case Dirt:
		return "dirt"
	case AgentOccupied:
		return "agent"
	default:
		return "unknown"
	}
}

// Glyph returns the single character used when rendering a grid as text
func (m Marker) Glyph() byte {
	switch m {
	case Clean:
		return '.'
	case Obstacle:
		return '#'
	case Dirt:
		return '*'
	case AgentOccupied:
		return 'A'
	default:
		return '?'
	}
}

// Position represents x,y coordinates. X is the column, Y the row.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Add returns p shifted by the direction offset
func (p Position) Add(d Direction) Position {
	return Position{X: p.X + d.DX, Y: p.Y + d.DY}
}

// Less orders positions row-major (Y first, then X)
func (p Position) Less(o Position) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.X < o.X
}

// Direction is one of the eight compass moves
type Direction struct {
	Name     string `json:"name"`
	DX       int    `json:"dx"`
	DY       int    `json:"dy"`
	Diagonal bool   `json:"diagonal"`
}

// Stay is the zero-offset direction reported when the agent does not move
var Stay = Direction{Name: "STAY"}

// Compass returns the eight movement directions. A fresh slice is returned
// on every call so callers may shuffle it freely.
func Compass() []Direction {
	return []Direction{
		{Name: "LEFT", DX: -1, DY: 0},
		{Name: "RIGHT", DX: 1, DY: 0},
		{Name: "UP", DX: 0, DY: -1},
		{Name: "DOWN", DX: 0, DY: 1},
		{Name: "UP_LEFT", DX: -1, DY: -1, Diagonal: true},
		{Name: "UP_RIGHT", DX: 1, DY: -1, Diagonal: true},
		{Name: "DOWN_LEFT", DX: -1, DY: 1, Diagonal: true},
		{Name: "DOWN_RIGHT", DX: 1, DY: 1, Diagonal: true},
	}
}

// Outcome is the terminal classification of a run
type Outcome string

const (
	Running      Outcome = "running"
	GoalComplete Outcome = "goal_complete"
	Idle         Outcome = "idle"
	BatteryDead  Outcome = "battery_dead"
)

// Code returns the numeric termination code (IDLE=0, BATTERY_DEAD=1,
// GOAL_COMPLETE=2). Running reports -1.
func (o Outcome) Code() int {
	switch o {
	case Idle:
		return 0
	case BatteryDead:
		return 1
	case GoalComplete:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether the outcome ends a run
func (o Outcome) Terminal() bool {
	return o == GoalComplete || o == Idle || o == BatteryDead
}

// ObstacleEncounter is one obstacle sighting during a local scan.
// The same obstacle may be recorded many times.
type ObstacleEncounter struct {
	Direction string   `json:"direction"`
	Position  Position `json:"position"`
	Iteration int      `json:"iteration"`
}

// StepResult describes what a single agent step did
type StepResult struct {
	From      Position  `json:"from"`
	To        Position  `json:"to"`
	Direction Direction `json:"direction"`
	Moved     bool      `json:"moved"`
	DirtFound bool      `json:"dirt_found"`
	// Targeted is set when the move came from a bounded path search
	Targeted bool    `json:"targeted"`
	Cost     float64 `json:"cost"`
	Energy   float64 `json:"energy"`
}

// StepRecord is the per-iteration telemetry entry
type StepRecord struct {
	Iteration        int      `json:"iteration" yaml:"iteration"`
	From             Position `json:"from" yaml:"from"`
	To               Position `json:"to" yaml:"to"`
	Direction        string   `json:"direction" yaml:"direction"`
	Moved            bool     `json:"moved" yaml:"moved"`
	DirtFound        bool     `json:"dirt_found" yaml:"dirt_found"`
	Targeted         bool     `json:"targeted,omitempty" yaml:"targeted,omitempty"`
	StepCost         float64  `json:"step_cost" yaml:"step_cost"`
	Energy           float64  `json:"energy" yaml:"energy"`
	CumulativeEnergy float64  `json:"cumulative_energy" yaml:"cumulative_energy"`
	RemainingDirt    int      `json:"remaining_dirt" yaml:"remaining_dirt"`
	IdleCounter      int      `json:"idle_counter" yaml:"idle_counter"`
}
