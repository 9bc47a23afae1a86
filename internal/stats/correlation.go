package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderlab/textstudy/internal/model"
)

// Matrix is a square, symmetric matrix labelled by variable.
type Matrix struct {
	Labels []string
	Values [][]float64
}

// CorrelationMatrix computes Pearson correlations between the delta columns
// using pairwise-complete observations. Pairs with fewer than two shared
// values or no spread are NaN.
func CorrelationMatrix(t DeltaTable) Matrix {
	m := Matrix{Labels: append([]string(nil), t.Variables...)}
	m.Values = make([][]float64, len(t.Variables))
	for i := range m.Values {
		m.Values[i] = make([]float64, len(t.Variables))
	}
	for i := range t.Variables {
		for j := i; j < len(t.Variables); j++ {
			r := pairwisePearson(t.Values[i], t.Values[j])
			m.Values[i][j] = r
			m.Values[j][i] = r
		}
	}
	return m
}

func pairwisePearson(a, b []model.Num) float64 {
	var x, y []float64
	for k := range a {
		if k < len(b) && a[k].Valid && b[k].Valid {
			x = append(x, a[k].Value)
			y = append(y, b[k].Value)
		}
	}
	if len(x) < 2 {
		return math.NaN()
	}
	r := stat.Correlation(x, y, nil)
	if math.IsInf(r, 0) {
		return math.NaN()
	}
	return r
}
