package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/vanderlab/textstudy/internal/model"
)

// DeltaTable holds one row per participant with treated minus control
// differences for each variable.
type DeltaTable struct {
	Participants []string
	Variables    []string
	// Values[v][i] is the delta of Variables[v] for Participants[i].
	Values [][]model.Num
}

// Column returns the deltas of one variable, or nil.
func (t DeltaTable) Column(variable string) []model.Num {
	for i, v := range t.Variables {
		if v == variable {
			return t.Values[i]
		}
	}
	return nil
}

type meanAcc struct {
	sum float64
	n   int
}

func (m meanAcc) value() model.Num {
	if m.n == 0 {
		return model.Num{}
	}
	return model.NumOf(m.sum / float64(m.n))
}

// Deltas averages each variable per participant and condition, then subtracts
// the control mean from the treated mean. A delta is missing when either side
// has no values.
func Deltas(ds *Dataset, vars []string, idCol, groupCol, treated, control string) DeltaTable {
	// participant -> condition -> variable index
	acc := map[string]map[string][]meanAcc{}
	for row := range ds.Rows {
		pid := ds.Value(row, idCol)
		cond := ds.Value(row, groupCol)
		if pid == "" || (cond != treated && cond != control) {
			continue
		}
		byCond, ok := acc[pid]
		if !ok {
			byCond = map[string][]meanAcc{}
			acc[pid] = byCond
		}
		sums, ok := byCond[cond]
		if !ok {
			sums = make([]meanAcc, len(vars))
			byCond[cond] = sums
		}
		for i, v := range vars {
			if n := ds.Num(row, v); n.Valid {
				sums[i].sum += n.Value
				sums[i].n++
			}
		}
	}

	table := DeltaTable{Variables: append([]string(nil), vars...)}
	for pid := range acc {
		table.Participants = append(table.Participants, pid)
	}
	sort.Strings(table.Participants)

	table.Values = make([][]model.Num, len(vars))
	for i := range vars {
		col := make([]model.Num, len(table.Participants))
		for j, pid := range table.Participants {
			var a, b model.Num
			if sums, ok := acc[pid][treated]; ok {
				a = sums[i].value()
			}
			if sums, ok := acc[pid][control]; ok {
				b = sums[i].value()
			}
			if a.Valid && b.Valid {
				col[j] = model.NumOf(a.Value - b.Value)
			}
		}
		table.Values[i] = col
	}
	return table
}

// TTest is a one-sample t-test of the deltas against zero.
type TTest struct {
	Variable string
	N        int
	Mean     float64
	SD       float64
	T        float64
	DF       float64
	P        float64
	// DRM is the repeated-measures effect size mean/sd.
	DRM float64
}

// OneSampleT tests whether the mean of values differs from zero, two-sided.
// With fewer than two values or zero spread the test statistics are NaN.
func OneSampleT(values []float64) TTest {
	res := TTest{N: len(values), Mean: math.NaN(), SD: math.NaN(), T: math.NaN(), DF: math.NaN(), P: math.NaN(), DRM: math.NaN()}
	if len(values) == 0 {
		return res
	}
	if len(values) == 1 {
		res.Mean = values[0]
		return res
	}
	res.Mean, res.SD = stat.MeanStdDev(values, nil)
	res.DF = float64(len(values) - 1)
	if res.SD == 0 || math.IsNaN(res.SD) {
		return res
	}
	se := res.SD / math.Sqrt(float64(len(values)))
	res.T = res.Mean / se
	res.DRM = res.Mean / res.SD
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.P = math.Min(1, 2*dist.Survival(math.Abs(res.T)))
	return res
}

// WilcoxonResult is a Wilcoxon signed-rank test of the deltas against zero.
type WilcoxonResult struct {
	Variable string
	// N counts the non-zero differences that were ranked.
	N         int
	Statistic float64
	Z         float64
	P         float64
}

// Wilcoxon runs the signed-rank test. Zero differences are dropped, tied
// absolute values share their average rank, the statistic is min(W+, W-) and
// the two-sided p-value uses the normal approximation with tie correction.
func Wilcoxon(values []float64) WilcoxonResult {
	res := WilcoxonResult{Statistic: math.NaN(), Z: math.NaN(), P: math.NaN()}
	var diffs []float64
	for _, v := range values {
		if v != 0 {
			diffs = append(diffs, v)
		}
	}
	res.N = len(diffs)
	if res.N == 0 {
		return res
	}

	order := make([]int, len(diffs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(diffs[order[a]]) < math.Abs(diffs[order[b]])
	})

	ranks := make([]float64, len(diffs))
	var tieTerm float64
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && math.Abs(diffs[order[end]]) == math.Abs(diffs[order[start]]) {
			end++
		}
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[order[k]] = avg
		}
		t := float64(end - start)
		tieTerm += t*t*t - t
		start = end
	}

	var wPlus, wMinus float64
	for i, d := range diffs {
		if d > 0 {
			wPlus += ranks[i]
		} else {
			wMinus += ranks[i]
		}
	}
	res.Statistic = math.Min(wPlus, wMinus)

	n := float64(res.N)
	mean := n * (n + 1) / 4
	variance := n*(n+1)*(2*n+1)/24 - tieTerm/48
	if variance <= 0 {
		return res
	}
	res.Z = (res.Statistic - mean) / math.Sqrt(variance)
	res.P = math.Min(1, 2*distuv.UnitNormal.CDF(-math.Abs(res.Z)))
	return res
}
