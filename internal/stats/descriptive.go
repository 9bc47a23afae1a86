package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/vanderlab/textstudy/internal/model"
)

// DefaultVariables are the numeric columns of the integrated table analysed by
// default.
var DefaultVariables = []string{
	"reading_time_per_word_x",
	"reading_time",
	"naturalidade",
	"clareza",
	"compreensao",
	"d_score",
	"number_of_fixations_y",
	"number_of_regressions_y",
	"total_reading_time",
	"reading_time_per_word_y",
}

// Summary describes the non-missing values of one variable.
type Summary struct {
	N    int
	Mean float64
	SD   float64
	Min  float64
	Max  float64
}

// Summarize returns count, mean, sample standard deviation, min and max.
// Statistics of an empty sample are NaN, as is the SD of a single value.
func Summarize(values []float64) Summary {
	s := Summary{N: len(values), Mean: math.NaN(), SD: math.NaN(), Min: math.NaN(), Max: math.NaN()}
	if len(values) == 0 {
		return s
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.SD = stat.MeanStdDev(values, nil)
	return s
}

// GroupSummary is the summary of one variable within one group.
type GroupSummary struct {
	Group    string
	Variable string
	Summary
}

// Describe summarizes each variable per value of groupCol. Groups are sorted
// and variables keep the given order.
func Describe(ds *Dataset, groupCol string, vars []string) []GroupSummary {
	groups := map[string][]int{}
	for i := range ds.Rows {
		g := ds.Value(i, groupCol)
		if g == "" {
			continue
		}
		groups[g] = append(groups[g], i)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	var out []GroupSummary
	for _, g := range names {
		for _, v := range vars {
			var values []float64
			for _, row := range groups[g] {
				if n := ds.Num(row, v); n.Valid {
					values = append(values, n.Value)
				}
			}
			out = append(out, GroupSummary{Group: g, Variable: v, Summary: Summarize(values)})
		}
	}
	return out
}

// PresentVariables keeps the variables the dataset actually has.
func PresentVariables(ds *Dataset, vars []string) []string {
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		if ds.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

func validValues(nums []model.Num) []float64 {
	out := make([]float64, 0, len(nums))
	for _, n := range nums {
		if n.Valid {
			out = append(out, n.Value)
		}
	}
	return out
}
