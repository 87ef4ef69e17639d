package engine

import (
	"fmt"
	"time"
)

// Observer receives telemetry as a run progresses. snap is nil unless the
// run was configured with CaptureFrames.
type Observer interface {
	OnStep(rec StepRecord, snap *Snapshot)
	OnFinish(outcome Outcome)
}

// Option configures a Simulation
type Option func(*Simulation)

// WithRandom replaces the seeded source built from RunConfig.Seed
func WithRandom(r Random) Option {
	return func(s *Simulation) { s.rng = r }
}

// WithObserver attaches an observer. Several may be attached.
func WithObserver(o Observer) Option {
	return func(s *Simulation) { s.observers = append(s.observers, o) }
}

// Result is the per-run record handed to aggregation and reporting
type Result struct {
	Outcome     Outcome       `json:"outcome" yaml:"outcome"`
	OutcomeCode int           `json:"outcome_code" yaml:"outcome_code"`
	Iterations  int           `json:"iterations" yaml:"iterations"`
	Elapsed     time.Duration `json:"elapsed_ns" yaml:"elapsed_ns"`
	Metrics     *Metrics      `json:"metrics" yaml:"metrics"`
	// MetricsErr wraps ErrDivisionUndefined when any ratio has a zero denominator
	MetricsErr error `json:"-" yaml:"-"`
	// Undefined names the metric ratios whose denominator was zero
	Undefined []string     `json:"undefined_metrics,omitempty" yaml:"undefined_metrics,omitempty"`
	Telemetry []StepRecord `json:"telemetry" yaml:"telemetry"`
	Path      []Position   `json:"path" yaml:"path"`
}

// Simulation drives one environment and one agent to a terminal outcome
type Simulation struct {
	cfg       RunConfig
	tuning    Tuning
	rng       Random
	env       *Environment
	agent     *Agent
	term      *termination
	observers []Observer

	iteration int
	consumed  float64
	telemetry []StepRecord
	outcome   Outcome
	started   time.Time
	elapsed   time.Duration
}

// NewSimulation validates cfg, builds and populates the environment and
// places the agent
func NewSimulation(cfg RunConfig, opts ...Option) (*Simulation, error) {
	if err := ValidateRunConfig(cfg); err != nil {
		return nil, err
	}
	s := &Simulation{cfg: cfg, tuning: cfg.EffectiveTuning(), outcome: Running}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = NewRandom(cfg.Seed)
	}

	env, err := buildEnvironment(cfg, s.rng)
	if err != nil {
		return nil, err
	}
	agent, err := NewAgent(env, cfg.Start, cfg.InitialEnergy, cfg.SensorRange, s.tuning, s.rng)
	if err != nil {
		return nil, err
	}
	term, err := newTermination(len(env.initialDirt), cfg.IdleLimit, agent.Energy())
	if err != nil {
		return nil, err
	}
	term.state.RemainingDirt = env.GlobalDirtyCount()

	s.env, s.agent, s.term = env, agent, term
	return s, nil
}

func buildEnvironment(cfg RunConfig, rng Random) (*Environment, error) {
	if len(cfg.Layout) > 0 {
		return FromLayout(cfg.Layout)
	}
	env, err := Generate(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	if err := env.Populate(cfg.ObstacleDensity, cfg.DirtDensity, rng); err != nil {
		return nil, err
	}
	return env, nil
}

// Tick runs one loop iteration: termination checks first, then one agent
// step if none fired. It reports whether the run is finished.
func (s *Simulation) Tick() bool {
	if s.Settle() {
		return true
	}

	res := s.agent.Step()
	s.iteration++
	s.consumed = s.agent.InitialEnergy() - s.agent.Energy()

	st := s.term.state
	if res.DirtFound {
		st.IdleCounter = 0
	} else {
		st.IdleCounter++
	}
	st.Energy = s.agent.Energy()
	st.RemainingDirt = s.env.GlobalDirtyCount()

	rec := StepRecord{
		Iteration:        s.iteration,
		From:             res.From,
		To:               res.To,
		Direction:        res.Direction.Name,
		Moved:            res.Moved,
		DirtFound:        res.DirtFound,
		Targeted:         res.Targeted,
		StepCost:         res.Cost,
		Energy:           res.Energy,
		CumulativeEnergy: s.consumed,
		RemainingDirt:    st.RemainingDirt,
		IdleCounter:      st.IdleCounter,
	}
	s.telemetry = append(s.telemetry, rec)

	var snap *Snapshot
	if s.cfg.CaptureFrames {
		snap = s.Snapshot()
	}
	for _, o := range s.observers {
		o.OnStep(rec, snap)
	}
	return false
}

// Settle runs the termination checks without stepping the agent and reports
// whether the run is finished. A run whose last step met a terminal
// condition is settled here before the next Tick would have stepped.
func (s *Simulation) Settle() bool {
	if s.outcome.Terminal() {
		return true
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if out := s.term.check(); out.Terminal() {
		s.finish(out)
		return true
	}
	return false
}

func (s *Simulation) finish(out Outcome) {
	s.outcome = out
	s.elapsed = time.Since(s.started)
	s.term.stop()
	for _, o := range s.observers {
		o.OnFinish(out)
	}
}

// Run ticks until a terminal outcome and evaluates the metrics
func (s *Simulation) Run() Result {
	for !s.Tick() {
	}
	return s.Result()
}

// Result assembles the run record. Calling it before the run finishes
// returns the partial state with Outcome Running.
func (s *Simulation) Result() Result {
	m, err := Evaluate(s.env, s.agent)
	return Result{
		Outcome:     s.outcome,
		OutcomeCode: s.outcome.Code(),
		Iterations:  s.iteration,
		Elapsed:     s.elapsed,
		Metrics:     m,
		MetricsErr:  err,
		Undefined:   m.Undefined(),
		Telemetry:   append([]StepRecord(nil), s.telemetry...),
		Path:        s.agent.Path(),
	}
}

// Metrics evaluates the current state, returning ErrDivisionUndefined
// alongside the record when a ratio cannot be computed
func (s *Simulation) Metrics() (*Metrics, error) {
	return Evaluate(s.env, s.agent)
}

// Snapshot copies the current grid for rendering
func (s *Simulation) Snapshot() *Snapshot {
	return s.env.Snapshot(s.iteration, s.agent.path)
}

// Outcome returns the terminal outcome, or Running
func (s *Simulation) Outcome() Outcome { return s.outcome }

// Iteration returns how many steps have been executed
func (s *Simulation) Iteration() int { return s.iteration }

// Environment exposes the environment for read-only inspection
func (s *Simulation) Environment() *Environment { return s.env }

// Agent exposes the agent for read-only inspection
func (s *Simulation) Agent() *Agent { return s.agent }

// Config returns the configuration the run was built from
func (s *Simulation) Config() RunConfig { return s.cfg }

// String summarises the run state in one line
func (s *Simulation) String() string {
	return fmt.Sprintf("iteration=%d outcome=%s energy=%.2f dirt=%d", s.iteration, s.outcome, s.agent.Energy(), s.env.GlobalDirtyCount())
}
