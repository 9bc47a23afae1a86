// Package integrate builds the per-segment analysis table that joins reading,
// judgment, demographic, IAT and eye-tracking data.
package integrate

import (
	"sort"
	"strconv"

	"github.com/vanderlab/textstudy/internal/iat"
	"github.com/vanderlab/textstudy/internal/model"
)

// Row is one line of the integrated table. The _x columns come from
// self-paced reading, the _y columns from whole-text eye tracking.
type Row struct {
	ParticipantID  string
	TextID         string
	TextAuthorship string
	SegmentIndex   string

	ReadingTimePerWordX  model.Num
	ReadingTime          model.Num
	NumberOfFixationsX   model.Num
	NumberOfRegressionsX model.Num

	Naturalness   model.Num
	Clarity       model.Num
	Comprehension model.Num

	AuthorshipCorrect model.OptBool

	Age       string
	Gender    string
	Education string

	DScore model.Num

	NumberOfFixationsY   model.Num
	NumberOfRegressionsY model.Num
	TotalReadingTime     model.Num
	ReadingTimePerWordY  model.Num
}

type segmentKey struct {
	participant, text, authorship, segment string
}

type textKey struct {
	participant, text, authorship string
}

type demographics struct {
	age, gender, education string
}

// Build aggregates normalized records into integrated rows sorted by
// participant, text and segment.
func Build(records []model.Record, settings model.Settings) []Row {
	reading := aggregateReading(records)
	judgments := aggregateJudgments(records)
	authorship := firstAuthorship(records)
	demog := collectDemographics(records)
	eye := aggregateEye(records)

	scores := map[string]float64{}
	for _, s := range iat.Compute(records, settings) {
		scores[s.ParticipantID] = s.DScore
	}

	rows := make([]Row, 0, len(reading))
	for key, agg := range reading {
		tk := textKey{key.participant, key.text, key.authorship}
		row := Row{
			ParticipantID:        key.participant,
			TextID:               key.text,
			TextAuthorship:       key.authorship,
			SegmentIndex:         key.segment,
			ReadingTimePerWordX:  agg.rtpw.mean(),
			ReadingTime:          agg.rt.sum(),
			NumberOfFixationsX:   agg.fixations.sum(),
			NumberOfRegressionsX: agg.regressions.sum(),
			AuthorshipCorrect:    authorship[tk],
		}
		if j, ok := judgments[tk]; ok {
			row.Naturalness = j.naturalness.mean()
			row.Clarity = j.clarity.mean()
			row.Comprehension = j.comprehension.mean()
		}
		if d, ok := demog[key.participant]; ok {
			row.Age, row.Gender, row.Education = d.age, d.gender, d.education
		}
		if score, ok := scores[key.participant]; ok {
			row.DScore = model.NumOf(score)
		}
		if e, ok := eye[tk]; ok {
			row.NumberOfFixationsY = e.fixations.sum()
			row.NumberOfRegressionsY = e.regressions.sum()
			row.TotalReadingTime = e.total.sum()
			row.ReadingTimePerWordY = e.rtpw.mean()
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ParticipantID != b.ParticipantID {
			return a.ParticipantID < b.ParticipantID
		}
		if c := compareKey(a.TextID, b.TextID); c != 0 {
			return c < 0
		}
		return compareKey(a.SegmentIndex, b.SegmentIndex) < 0
	})
	return rows
}

// accumulator follows pandas semantics: the sum of nothing is 0, the mean of
// nothing is missing.
type accumulator struct {
	total float64
	n     int
}

func (a *accumulator) add(v model.Num) {
	if !v.Valid {
		return
	}
	a.total += v.Value
	a.n++
}

func (a accumulator) sum() model.Num {
	return model.NumOf(a.total)
}

func (a accumulator) mean() model.Num {
	if a.n == 0 {
		return model.Num{}
	}
	return model.NumOf(a.total / float64(a.n))
}

type readingAgg struct {
	rtpw, rt, fixations, regressions accumulator
}

func aggregateReading(records []model.Record) map[segmentKey]*readingAgg {
	out := map[segmentKey]*readingAgg{}
	for _, rec := range records {
		if rec.Task != model.TaskSelfPacedReading {
			continue
		}
		key := segmentKey{rec.ParticipantID, rec.TextID, rec.TextAuthorship, rec.SegmentIndex}
		if key.participant == "" || key.text == "" || key.authorship == "" || key.segment == "" {
			continue
		}
		agg, ok := out[key]
		if !ok {
			agg = &readingAgg{}
			out[key] = agg
		}
		agg.rtpw.add(rec.ReadingTimePerWord)
		agg.rt.add(rec.ReadingTime)
		agg.fixations.add(rec.NumberOfFixations)
		agg.regressions.add(rec.NumberOfRegressions)
	}
	return out
}

type judgmentAgg struct {
	naturalness, clarity, comprehension accumulator
}

func aggregateJudgments(records []model.Record) map[textKey]*judgmentAgg {
	out := map[textKey]*judgmentAgg{}
	for _, rec := range records {
		if !rec.Naturalness.Valid && !rec.Clarity.Valid && !rec.Comprehension.Valid {
			continue
		}
		key, ok := textKeyOf(rec)
		if !ok {
			continue
		}
		agg, found := out[key]
		if !found {
			agg = &judgmentAgg{}
			out[key] = agg
		}
		agg.naturalness.add(rec.Naturalness)
		agg.clarity.add(rec.Clarity)
		agg.comprehension.add(rec.Comprehension)
	}
	return out
}

func firstAuthorship(records []model.Record) map[textKey]model.OptBool {
	out := map[textKey]model.OptBool{}
	for _, rec := range records {
		if !rec.AuthorshipCorrect.Valid {
			continue
		}
		key, ok := textKeyOf(rec)
		if !ok {
			continue
		}
		if _, seen := out[key]; !seen {
			out[key] = rec.AuthorshipCorrect
		}
	}
	return out
}

func collectDemographics(records []model.Record) map[string]demographics {
	out := map[string]demographics{}
	for _, rec := range records {
		if rec.ParticipantID == "" {
			continue
		}
		d := out[rec.ParticipantID]
		switch rec.Task {
		case model.TaskDemographicAge:
			if d.age == "" {
				d.age = rec.Response.Age
			}
		case model.TaskDemographicGenderEdu:
			if d.gender == "" {
				d.gender = rec.Response.Gender
			}
			if d.education == "" {
				d.education = rec.Response.Education
			}
		default:
			continue
		}
		out[rec.ParticipantID] = d
	}
	return out
}

type eyeAgg struct {
	fixations, regressions, total, rtpw accumulator
}

func aggregateEye(records []model.Record) map[textKey]*eyeAgg {
	out := map[textKey]*eyeAgg{}
	for _, rec := range records {
		if rec.Task != model.TaskEyeTracking {
			continue
		}
		key, ok := textKeyOf(rec)
		if !ok {
			continue
		}
		agg, found := out[key]
		if !found {
			agg = &eyeAgg{}
			out[key] = agg
		}
		agg.fixations.add(rec.NumberOfFixations)
		agg.regressions.add(rec.NumberOfRegressions)
		agg.total.add(rec.TotalReadingTime)
		agg.rtpw.add(rec.ReadingTimePerWord)
	}
	return out
}

func textKeyOf(rec model.Record) (textKey, bool) {
	key := textKey{rec.ParticipantID, rec.TextID, rec.TextAuthorship}
	if key.participant == "" || key.text == "" || key.authorship == "" {
		return textKey{}, false
	}
	return key, true
}

// compareKey orders numeric keys numerically and everything else as text.
func compareKey(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
