package main

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the wall times, in seconds, of a batch of local
// commands
type Summary struct {
	N      int
	Failed int
	Total  float64
	Mean   float64
	StdDev float64
	Max    float64
}

// Summarize computes a Summary over statuses
func Summarize(statuses []RunStatus) (s Summary) {
	s.N = len(statuses)
	if s.N == 0 {
		return
	}
	times := make([]float64, 0, s.N)
	for _, st := range statuses {
		if st.Err != nil {
			s.Failed++
		}
		times = append(times, st.Elapsed.Seconds())
	}
	s.Total = floats.Sum(times)
	s.Max = floats.Max(times)
	if s.N == 1 {
		s.Mean = times[0]
		return
	}
	s.Mean, s.StdDev = stat.MeanStdDev(times, nil)
	return
}
