package NavierStokes

import (
	"fmt"
	"io"
	"time"
)

// StageTimers accumulates the wall time spent in each named stage of a time step
type StageTimers struct {
	order   []string
	elapsed map[string]time.Duration
	count   map[string]int
}

func NewStageTimers(stages ...string) (st *StageTimers) {
	st = &StageTimers{
		elapsed: make(map[string]time.Duration),
		count:   make(map[string]int),
	}
	for _, stage := range stages {
		st.register(stage)
	}
	return
}

func (st *StageTimers) register(stage string) {
	if _, ok := st.count[stage]; !ok {
		st.order = append(st.order, stage)
		st.count[stage] = 0
	}
}

// Time runs fn and charges its duration to stage
func (st *StageTimers) Time(stage string, fn func() error) (err error) {
	st.register(stage)
	start := time.Now()
	err = fn()
	st.elapsed[stage] += time.Since(start)
	st.count[stage]++
	return
}

func (st *StageTimers) Elapsed(stage string) time.Duration { return st.elapsed[stage] }
func (st *StageTimers) Count(stage string) int             { return st.count[stage] }

func (st *StageTimers) Total() (total time.Duration) {
	for _, d := range st.elapsed {
		total += d
	}
	return
}

func (st *StageTimers) Print(w io.Writer) {
	total := st.Total()
	fmt.Fprintf(w, "%-20s%8s%16s%8s\n", "stage", "calls", "time", "%")
	for _, stage := range st.order {
		if st.count[stage] == 0 {
			continue
		}
		var (
			d   = st.elapsed[stage]
			pct float64
		)
		if total > 0 {
			pct = 100 * float64(d) / float64(total)
		}
		fmt.Fprintf(w, "%-20s%8d%16s%8.2f\n", stage, st.count[stage], d.Round(time.Microsecond), pct)
	}
}
