package logging

import (
	"strconv"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// RunID adds a run ID field.
func RunID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("run_id", id)
	}
}

// ConfigName adds the preset name.
func ConfigName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("config", name)
	}
}

// Outcome adds the terminal outcome and its numeric code.
func Outcome(o engine.Outcome) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("outcome", string(o)).Int("outcome_code", o.Code())
	}
}

// Iteration adds a loop iteration count.
func Iteration(n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("iteration", n)
	}
}

// Seed adds the random seed of a run.
func Seed(seed int64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("seed", seed)
	}
}

// Energy adds an energy reading, rendered with two decimals.
func Energy(v float64) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("energy", strconv.FormatFloat(v, 'f', 2, 64))
	}
}

// Count adds an integer field with a custom key.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
