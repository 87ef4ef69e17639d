package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/montanaflynn/stats"

	"github.com/wricardo/cleaning-agent-sim/sim/engine"
)

// Entry is one run fed into an aggregate
type Entry struct {
	Name    string
	Outcome engine.Outcome
	Metrics *engine.Metrics
}

// Stat summarises one metric across runs. Undefined counts the runs whose
// value could not be computed; they are excluded from the moments.
type Stat struct {
	N         int     `json:"n" yaml:"n"`
	Undefined int     `json:"undefined" yaml:"undefined"`
	Mean      float64 `json:"mean" yaml:"mean"`
	Median    float64 `json:"median" yaml:"median"`
	Min       float64 `json:"min" yaml:"min"`
	Max       float64 `json:"max" yaml:"max"`
	StdDev    float64 `json:"std_dev" yaml:"std_dev"`
}

// MetricStat names a Stat
type MetricStat struct {
	Name string `json:"name" yaml:"name"`
	Stat Stat   `json:"stat" yaml:"stat"`
}

// Summary is the aggregate over a set of runs
type Summary struct {
	Runs     int            `json:"runs" yaml:"runs"`
	Outcomes map[string]int `json:"outcomes" yaml:"outcomes"`
	Metrics  []MetricStat   `json:"metrics" yaml:"metrics"`
}

type extractor struct {
	name string
	get  func(m *engine.Metrics) engine.Ratio
}

func plain(f func(m *engine.Metrics) float64) func(m *engine.Metrics) engine.Ratio {
	return func(m *engine.Metrics) engine.Ratio { return engine.Ratio{Value: f(m), Defined: true} }
}

var extractors = []extractor{
	{"total_steps", plain(func(m *engine.Metrics) float64 { return float64(m.Final.TotalSteps) })},
	{"dirt_cleaned", plain(func(m *engine.Metrics) float64 { return float64(m.Final.DirtCleaned) })},
	{"pending_dirt", plain(func(m *engine.Metrics) float64 { return float64(m.Final.PendingDirt) })},
	{"unique_cells_visited", plain(func(m *engine.Metrics) float64 { return float64(m.Final.UniqueCellsVisited) })},
	{"obstacle_encounters", plain(func(m *engine.Metrics) float64 { return float64(m.Final.ObstacleEncounters) })},
	{"energy_consumed", plain(func(m *engine.Metrics) float64 { return m.Final.EnergyConsumed })},
	{"percent_dirt_cleaned", func(m *engine.Metrics) engine.Ratio { return m.Performance.PercentDirtCleaned }},
	{"percent_energy_consumed", func(m *engine.Metrics) engine.Ratio { return m.Performance.PercentEnergyConsumed }},
	{"dirt_cleaned_per_step", func(m *engine.Metrics) engine.Ratio { return m.Performance.DirtCleanedPerStep }},
	{"coverage_efficiency", func(m *engine.Metrics) engine.Ratio { return m.Performance.CoverageEfficiency }},
	{"energy_per_dirt_spot", func(m *engine.Metrics) engine.Ratio { return m.Performance.EnergyPerDirtSpot }},
	{"energy_per_step", func(m *engine.Metrics) engine.Ratio { return m.Performance.EnergyPerStep }},
}

// Aggregate counts outcomes and computes per-metric statistics.
// Entries without metrics count toward Runs and Outcomes only.
func Aggregate(entries []Entry) Summary {
	s := Summary{Runs: len(entries), Outcomes: make(map[string]int)}
	for _, e := range entries {
		s.Outcomes[string(e.Outcome)]++
	}

	for _, ex := range extractors {
		var data stats.Float64Data
		undefined := 0
		for _, e := range entries {
			if e.Metrics == nil {
				continue
			}
			r := ex.get(e.Metrics)
			if !r.Defined {
				undefined++
				continue
			}
			data = append(data, r.Value)
		}
		s.Metrics = append(s.Metrics, MetricStat{Name: ex.name, Stat: describe(data, undefined)})
	}
	return s
}

func describe(data stats.Float64Data, undefined int) Stat {
	st := Stat{N: len(data), Undefined: undefined}
	if len(data) == 0 {
		return st
	}
	st.Mean, _ = stats.Mean(data)
	st.Median, _ = stats.Median(data)
	st.Min, _ = stats.Min(data)
	st.Max, _ = stats.Max(data)
	st.StdDev, _ = stats.StandardDeviation(data)
	return st
}

// Metric looks up a metric by name
func (s Summary) Metric(name string) (Stat, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m.Stat, true
		}
	}
	return Stat{}, false
}

// WriteTable renders the summary as an aligned text table
func WriteTable(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "runs\t%d\n", s.Runs)
	outcomes := make([]string, 0, len(s.Outcomes))
	for o := range s.Outcomes {
		outcomes = append(outcomes, o)
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(tw, "outcome %s\t%d\n", o, s.Outcomes[o])
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "metric\tn\tundef\tmean\tmedian\tmin\tmax\tstd")
	for _, m := range s.Metrics {
		st := m.Stat
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			m.Name, st.N, st.Undefined, num(st.Mean), num(st.Median), num(st.Min), num(st.Max), num(st.StdDev))
	}
	return tw.Flush()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
