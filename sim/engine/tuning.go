package engine

// Tuning holds the energy cost table and the direction set. It is passed
// into each simulation so runs with different tuning can share a process.
type Tuning struct {
	MoveStraight   float64 `json:"move_straight" yaml:"move_straight"`
	MoveDiagonal   float64 `json:"move_diagonal" yaml:"move_diagonal"`
	Scan           float64 `json:"scan" yaml:"scan"`
	CleanBase      float64 `json:"clean_base" yaml:"clean_base"`
	CleanEffortMin float64 `json:"clean_effort_min" yaml:"clean_effort_min"`
	CleanEffortMax float64 `json:"clean_effort_max" yaml:"clean_effort_max"`
	// PathSearch enables the bounded BFS toward the nearest dirt in sensor
	// range when no neighbour is dirty.
	PathSearch bool        `json:"path_search" yaml:"path_search"`
	Directions []Direction `json:"-" yaml:"-"`
}

// DefaultTuning returns the standard cost table
func DefaultTuning() Tuning {
	return Tuning{
		MoveStraight:   1,
		MoveDiagonal:   1.5,
		Scan:           2,
		CleanBase:      5,
		CleanEffortMin: 1.0,
		CleanEffortMax: 3.0,
		PathSearch:     true,
		Directions:     Compass(),
	}
}

// moveCost returns the energy for moving in d; staying costs nothing
func (t Tuning) moveCost(d Direction, moved bool) float64 {
	if !moved {
		return 0
	}
	if d.Diagonal {
		return t.MoveDiagonal
	}
	return t.MoveStraight
}

// MinStepCost is the cheapest possible step: scan plus minimum cleaning effort without moving
func (t Tuning) MinStepCost() float64 {
	return t.Scan + t.CleanBase*t.CleanEffortMin
}

func (t Tuning) directions() []Direction {
	if len(t.Directions) == 0 {
		return Compass()
	}
	out := make([]Direction, len(t.Directions))
	copy(out, t.Directions)
	return out
}
