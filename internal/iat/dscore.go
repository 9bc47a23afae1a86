// Package iat scores the Implicit Association Test.
package iat

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderlab/textstudy/internal/model"
)

// Block labels.
const (
	BlockA = "A"
	BlockB = "B"
)

// IsTrial reports whether a record is an IAT trial.
func IsTrial(rec model.Record) bool {
	return strings.Contains(rec.TrialType, "iat")
}

// Classify assigns a stimulus to block A or B by substring match. Block A is
// checked first; an empty result means the trial is not scored.
func Classify(stimulus string, settings model.Settings) string {
	switch {
	case settings.BlockALabel != "" && strings.Contains(stimulus, settings.BlockALabel):
		return BlockA
	case settings.BlockBLabel != "" && strings.Contains(stimulus, settings.BlockBLabel):
		return BlockB
	default:
		return ""
	}
}

// Compute returns one D-score per participant that has enough data, ordered
// by participant id. Participants with degenerate data are omitted.
func Compute(records []model.Record, settings model.Settings) []model.DScore {
	byParticipant := map[string][]model.Record{}
	for _, rec := range records {
		if !IsTrial(rec) {
			continue
		}
		byParticipant[rec.ParticipantID] = append(byParticipant[rec.ParticipantID], rec)
	}
	ids := make([]string, 0, len(byParticipant))
	for id := range byParticipant {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	scores := make([]model.DScore, 0, len(ids))
	for _, id := range ids {
		if score, ok := ForParticipant(id, byParticipant[id], settings); ok {
			scores = append(scores, score)
		}
	}
	return scores
}

// ForParticipant scores one participant's trials.
//
// Trials faster than IATScoreMinRT are dropped. The pooled deviation is the
// unweighted mean of the per-block sample deviations; a block whose deviation
// is undefined (a single trial) does not contribute to it.
func ForParticipant(participantID string, trials []model.Record, settings model.Settings) (model.DScore, bool) {
	var rtA, rtB []float64
	for _, rec := range trials {
		if !IsTrial(rec) || !rec.RT.Valid || rec.RT.Value < settings.IATScoreMinRT {
			continue
		}
		switch Classify(rec.Stimulus, settings) {
		case BlockA:
			rtA = append(rtA, rec.RT.Value)
		case BlockB:
			rtB = append(rtB, rec.RT.Value)
		}
	}
	if len(rtA) == 0 || len(rtB) == 0 {
		return model.DScore{}, false
	}
	meanA, sdA := meanStdDev(rtA)
	meanB, sdB := meanStdDev(rtB)
	pooled := PooledSD(sdA, sdB)
	if math.IsNaN(pooled) || pooled == 0 {
		return model.DScore{}, false
	}
	return model.DScore{
		ParticipantID: participantID,
		DScore:        (meanB - meanA) / pooled,
		MeanA:         meanA,
		MeanB:         meanB,
		NA:            len(rtA),
		NB:            len(rtB),
	}, true
}

// PooledSD averages the finite deviations. NaN when none is finite.
func PooledSD(sds ...float64) float64 {
	var sum float64
	n := 0
	for _, sd := range sds {
		if math.IsNaN(sd) || math.IsInf(sd, 0) {
			continue
		}
		sum += sd
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func meanStdDev(values []float64) (mean, sd float64) {
	if len(values) < 2 {
		return stat.Mean(values, nil), math.NaN()
	}
	return stat.MeanStdDev(values, nil)
}
