package engine

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// loopState is the statechart context: the inputs to the termination checks
type loopState struct {
	InitialDirt   int
	RemainingDirt int
	IdleCounter   int
	IdleLimit     int
	Energy        float64
	Outcome       Outcome
}

const (
	stateRunning      statekit.StateID = statekit.StateID(Running)
	stateGoalComplete statekit.StateID = statekit.StateID(GoalComplete)
	stateIdle         statekit.StateID = statekit.StateID(Idle)
	stateBatteryDead  statekit.StateID = statekit.StateID(BatteryDead)

	eventGoalComplete statekit.EventType = "GOAL_COMPLETE"
	eventIdle         statekit.EventType = "IDLE"
	eventBatteryDead  statekit.EventType = "BATTERY_DEAD"
)

// A run with no dirt to begin with can never complete its goal; it ends idle or dead.
func guardDirtCleared(s *loopState, _ statekit.Event) bool {
	return s != nil && s.InitialDirt > 0 && s.RemainingDirt == 0
}

func guardIdleLimit(s *loopState, _ statekit.Event) bool {
	return s != nil && s.IdleCounter >= s.IdleLimit
}

func guardBatteryEmpty(s *loopState, _ statekit.Event) bool {
	return s != nil && s.Energy <= 0
}

func recordOutcome(s **loopState, e statekit.Event) {
	if s == nil || *s == nil {
		return
	}
	switch e.Type {
	case eventGoalComplete:
		(*s).Outcome = GoalComplete
	case eventIdle:
		(*s).Outcome = Idle
	case eventBatteryDead:
		(*s).Outcome = BatteryDead
	}
}

// newTerminationMachine builds the Running -> {GoalComplete, Idle, BatteryDead} chart
func newTerminationMachine() (*statekit.MachineConfig[*loopState], error) {
	return statekit.NewMachine[*loopState]("run").
		WithInitial(stateRunning).
		WithContext(&loopState{Outcome: Running}).
		WithAction("recordOutcome", recordOutcome).
		WithGuard("dirtCleared", guardDirtCleared).
		WithGuard("idleLimit", guardIdleLimit).
		WithGuard("batteryEmpty", guardBatteryEmpty).
		State(stateRunning).
			On(eventGoalComplete).Target(stateGoalComplete).Guard("dirtCleared").Do("recordOutcome").
			On(eventIdle).Target(stateIdle).Guard("idleLimit").Do("recordOutcome").
			On(eventBatteryDead).Target(stateBatteryDead).Guard("batteryEmpty").Do("recordOutcome").
			Done().
		State(stateGoalComplete).Final().Done().
		State(stateIdle).Final().Done().
		State(stateBatteryDead).Final().Done().
		Build()
}

// termination wraps the interpreter and the shared loop state
type termination struct {
	interp *statekit.Interpreter[*loopState]
	state  *loopState
}

func newTermination(initialDirt, idleLimit int, energy float64) (*termination, error) {
	machine, err := newTerminationMachine()
	if err != nil {
		return nil, fmt.Errorf("build termination machine: %w", err)
	}
	state := &loopState{
		InitialDirt:   initialDirt,
		RemainingDirt: initialDirt,
		IdleLimit:     idleLimit,
		Energy:        energy,
		Outcome:       Running,
	}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **loopState) {
		*c = state
	})
	interp.Start()
	return &termination{interp: interp, state: state}, nil
}

// priority is the order terminal events are offered to the chart
var priority = []statekit.EventType{eventGoalComplete, eventIdle, eventBatteryDead}

// check offers each terminal event in priority order and lets the guards
// decide. The first transition taken wins.
func (t *termination) check() Outcome {
	for _, ev := range priority {
		if t.interp.Done() {
			break
		}
		t.interp.Send(statekit.Event{Type: ev})
	}
	if t.interp.Done() {
		t.state.Outcome = Outcome(t.interp.State().Value)
	}
	return t.state.Outcome
}

func (t *termination) stop() {
	t.interp.Stop()
}
