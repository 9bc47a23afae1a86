package gate

import (
	"math"
	"strings"
	"testing"

	"github.com/vanderlab/textstudy/internal/model"
)

func newTable(records ...model.Record) model.Table {
	t := model.Table{Records: records, Fields: map[string]struct{}{}}
	for _, rec := range records {
		t.Fields[model.FieldParticipantID] = struct{}{}
		if rec.Task != "" {
			t.Fields[model.FieldTask] = struct{}{}
		}
		if rec.TrialType != "" {
			t.Fields[model.FieldTrialType] = struct{}{}
		}
		if rec.RT.Valid {
			t.Fields[model.FieldRT] = struct{}{}
		}
		if rec.ReadingTimePerWord.Valid {
			t.Fields[model.FieldReadingTimePerWord] = struct{}{}
		}
	}
	return t
}

func iatTrials(rts ...float64) []model.Record {
	out := make([]model.Record, 0, len(rts))
	for _, rt := range rts {
		out = append(out, model.Record{ParticipantID: "p1", TrialType: "iat-html", RT: model.NumOf(rt)})
	}
	return out
}

func readingTrials(rtws ...float64) []model.Record {
	out := make([]model.Record, 0, len(rtws))
	for _, v := range rtws {
		out = append(out, model.Record{ParticipantID: "p1", Task: model.TaskSelfPacedReading, ReadingTimePerWord: model.NumOf(v)})
	}
	return out
}

// validationAt builds a validation record with one point whose error is the
// given visual angle under default settings.
func validationAt(angleDeg float64) model.Record {
	s := model.DefaultSettings()
	px := s.EyeDistanceCM * math.Tan(angleDeg*math.Pi/180) * s.PixelsPerCM()
	return model.Record{
		ParticipantID: "p1",
		Task:          model.TaskEyeTrackingValidate,
		RawGazeIsList: true,
		RawGaze: []model.GazePoint{{
			X: model.NumOf(100), Y: model.NumOf(100), DX: model.NumOf(100 + px), DY: model.NumOf(100),
		}},
	}
}

func goodParticipant() []model.Record {
	var recs []model.Record
	recs = append(recs, iatTrials(1400, 1500, 1600)...)
	recs = append(recs, readingTrials(240, 250, 260)...)
	recs = append(recs, validationAt(2.0))
	return recs
}

func TestEvaluateAcceptsPlausibleParticipant(t *testing.T) {
	outcome := Evaluate(newTable(goodParticipant()...), model.DefaultSettings())
	if !outcome.Accepted() {
		t.Fatalf("expected acceptance, got reasons %v", outcome.Reasons)
	}
	if outcome.ParticipantID != "p1" {
		t.Fatalf("unexpected participant %q", outcome.ParticipantID)
	}
}

func TestEvaluateSlowIAT(t *testing.T) {
	var recs []model.Record
	recs = append(recs, iatTrials(3400, 3500, 3600)...)
	recs = append(recs, readingTrials(250)...)
	recs = append(recs, validationAt(2.0))

	outcome := Evaluate(newTable(recs...), model.DefaultSettings())
	if len(outcome.Reasons) != 1 {
		t.Fatalf("expected exactly one reason, got %v", outcome.Reasons)
	}
	reason := outcome.Reasons[0]
	for _, want := range []string{"3500", "300", "3000"} {
		if !strings.Contains(reason, want) {
			t.Fatalf("expected %q in reason %q", want, reason)
		}
	}
}

func TestEvaluateIATMeanIsUnfiltered(t *testing.T) {
	var recs []model.Record
	// Mean is 300 exactly; the 300 ms scoring floor must not drop the 100.
	recs = append(recs, iatTrials(100, 500)...)
	recs = append(recs, readingTrials(250)...)
	recs = append(recs, validationAt(1.0))

	outcome := Evaluate(newTable(recs...), model.DefaultSettings())
	if !outcome.Accepted() {
		t.Fatalf("expected closed interval to accept mean 300, got %v", outcome.Reasons)
	}
}

func TestEvaluateCollectsEveryReason(t *testing.T) {
	table := newTable(model.Record{ParticipantID: "p9", Task: "consent"})
	outcome := Evaluate(table, model.DefaultSettings())
	want := []string{ReasonIATFieldsMissing, ReasonReadingFieldsMissing, ReasonNoValidationTask}
	if len(outcome.Reasons) != len(want) {
		t.Fatalf("expected %d reasons, got %v", len(want), outcome.Reasons)
	}
	for i, reason := range want {
		if outcome.Reasons[i] != reason {
			t.Fatalf("reason %d: expected %q, got %q", i, reason, outcome.Reasons[i])
		}
	}
}

func TestEvaluateInsufficientData(t *testing.T) {
	recs := []model.Record{
		{ParticipantID: "p1", TrialType: "html-keyboard-response", RT: model.NumOf(800)},
		{ParticipantID: "p1", Task: "eye_tracking", ReadingTimePerWord: model.NumOf(300)},
		{ParticipantID: "p1", Task: model.TaskEyeTrackingValidate, RawGazeIsList: true, RawGaze: []model.GazePoint{{X: model.NumOf(1)}}},
	}
	outcome := Evaluate(newTable(recs...), model.DefaultSettings())
	want := []string{ReasonNoIATTrial, ReasonNoReadingTrial, ReasonNoGazePoints}
	if len(outcome.Reasons) != len(want) {
		t.Fatalf("expected %d reasons, got %v", len(want), outcome.Reasons)
	}
	for i, reason := range want {
		if outcome.Reasons[i] != reason {
			t.Fatalf("reason %d: expected %q, got %q", i, reason, outcome.Reasons[i])
		}
	}
}

func TestEvaluateMissingNumericValues(t *testing.T) {
	recs := []model.Record{
		{ParticipantID: "p1", TrialType: "iat-html"},
		{ParticipantID: "p1", Task: model.TaskSelfPacedReading},
		validationAt(1.0),
	}
	table := newTable(recs...)
	table.Fields[model.FieldRT] = struct{}{}
	table.Fields[model.FieldReadingTimePerWord] = struct{}{}

	outcome := Evaluate(table, model.DefaultSettings())
	if len(outcome.Reasons) != 2 || outcome.Reasons[0] != ReasonNoIATRT || outcome.Reasons[1] != ReasonNoReadingRTW {
		t.Fatalf("unexpected reasons: %v", outcome.Reasons)
	}
}

func TestEvaluateFastReading(t *testing.T) {
	var recs []model.Record
	recs = append(recs, iatTrials(1500)...)
	recs = append(recs, readingTrials(140, 160)...)
	recs = append(recs, validationAt(1.0))

	outcome := Evaluate(newTable(recs...), model.DefaultSettings())
	if len(outcome.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", outcome.Reasons)
	}
	if outcome.Reasons[0] != "reading_time_per_word mean 150.0ms < 200ms" {
		t.Fatalf("unexpected reason %q", outcome.Reasons[0])
	}
}

func TestEvaluatePoorCalibration(t *testing.T) {
	var recs []model.Record
	recs = append(recs, iatTrials(1500)...)
	recs = append(recs, readingTrials(250)...)
	recs = append(recs, validationAt(5.0))

	outcome := Evaluate(newTable(recs...), model.DefaultSettings())
	if len(outcome.Reasons) != 1 {
		t.Fatalf("expected one reason, got %v", outcome.Reasons)
	}
	if outcome.Reasons[0] != "calibration mean error 5.00° > 4.0°" {
		t.Fatalf("unexpected reason %q", outcome.Reasons[0])
	}
}

func TestEvaluateOverriddenThresholds(t *testing.T) {
	settings := model.DefaultSettings()
	settings.AngleThreshold = 1.5
	settings.ReadingRTWMin = 300

	outcome := Evaluate(newTable(goodParticipant()...), settings)
	if len(outcome.Reasons) != 2 {
		t.Fatalf("expected two reasons with stricter thresholds, got %v", outcome.Reasons)
	}
}

func TestVisualAngleOneInch(t *testing.T) {
	p := model.GazePoint{X: model.NumOf(0), Y: model.NumOf(0), DX: model.NumOf(96), DY: model.NumOf(0)}
	got := VisualAngle(p, model.DefaultSettings())
	want := math.Atan(2.54/70) * 180 / math.Pi
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}
	if math.Abs(got-2.078) > 0.001 {
		t.Fatalf("expected about 2.08 degrees, got %f", got)
	}

	table := newTable(append(append(iatTrials(1500), readingTrials(250)...), model.Record{
		ParticipantID: "p1",
		Task:          model.TaskEyeTrackingValidate,
		RawGazeIsList: true,
		RawGaze:       []model.GazePoint{p},
	})...)
	if outcome := Evaluate(table, model.DefaultSettings()); !outcome.Accepted() {
		t.Fatalf("one inch of error should pass, got %v", outcome.Reasons)
	}
}

func TestEvaluateMeasuredValueStaysOutsideBound(t *testing.T) {
	var recs []model.Record
	recs = append(recs, iatTrials(3000.4)...)
	recs = append(recs, readingTrials(199.96)...)
	recs = append(recs, validationAt(4.001))
	outcome := Evaluate(newTable(recs...), model.DefaultSettings())

	want := []string{
		"IAT mean RT 3000.4ms outside [300,3000]",
		"reading_time_per_word mean 199.96ms < 200ms",
		"calibration mean error 4.001° > 4.0°",
	}
	if len(outcome.Reasons) != len(want) {
		t.Fatalf("expected %d reasons, got %v", len(want), outcome.Reasons)
	}
	for i, w := range want {
		if outcome.Reasons[i] != w {
			t.Fatalf("reason %d: got %q want %q", i, outcome.Reasons[i], w)
		}
	}
}

func TestFormatMeasuredKeepsDefaultPrecision(t *testing.T) {
	above := func(v float64) bool { return v > 3000 }
	if got := formatMeasured(3500, 0, above); got != "3500" {
		t.Fatalf("got %q", got)
	}
	if got := formatMeasured(3000.04, 0, above); got != "3000.04" {
		t.Fatalf("got %q", got)
	}
}
