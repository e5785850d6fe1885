package main

import (
	"errors"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		statuses []RunStatus
		want     Summary
	}{
		{
			statuses: nil,
			want:     Summary{},
		},
		{
			statuses: []RunStatus{
				{Cmd: "a", Elapsed: 2 * time.Second},
			},
			want: Summary{N: 1, Total: 2, Mean: 2, Max: 2},
		},
		{
			statuses: []RunStatus{
				{Cmd: "a", Elapsed: 1 * time.Second},
				{Cmd: "b", Elapsed: 2 * time.Second, Err: errors.New("exit status 1")},
				{Cmd: "c", Elapsed: 3 * time.Second},
			},
			want: Summary{N: 3, Failed: 1, Total: 6, Mean: 2, StdDev: 1, Max: 3},
		},
	}
	for _, test := range tests {
		got := Summarize(test.statuses)
		if got.N != test.want.N || got.Failed != test.want.Failed {
			t.Errorf("got %+v, wanted %+v\n", got, test.want)
		}
		for _, f := range [][2]float64{
			{got.Total, test.want.Total},
			{got.Mean, test.want.Mean},
			{got.StdDev, test.want.StdDev},
			{got.Max, test.want.Max},
		} {
			if !scalar.EqualWithinAbs(f[0], f[1], 1e-12) {
				t.Errorf("got %+v, wanted %+v\n", got, test.want)
				break
			}
		}
	}
}
