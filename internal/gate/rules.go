// Package gate decides whether a participant's data is usable.
package gate

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/vanderlab/textstudy/internal/iat"
	"github.com/vanderlab/textstudy/internal/model"
)

// Reasons that do not carry a measured value.
const (
	ReasonIATFieldsMissing     = "fields 'trial_type' or 'rt' missing"
	ReasonNoIATTrial           = "no IAT trial found"
	ReasonNoIATRT              = "no IAT trial with a numeric rt"
	ReasonReadingFieldsMissing = "fields 'task' or 'reading_time_per_word' missing"
	ReasonNoReadingTrial       = "no self-paced-reading trial found"
	ReasonNoReadingRTW         = "no self-paced-reading trial with a numeric reading_time_per_word"
	ReasonNoValidationTask     = "no eye_tracking_validation task found"
	ReasonNoGazePoints         = "no usable raw_gaze points"
)

// Evaluate runs every rule against one participant's table and returns the
// outcome. Rules do not short-circuit.
func Evaluate(table model.Table, settings model.Settings) model.Outcome {
	outcome := model.Outcome{ParticipantID: table.ParticipantID()}
	for _, rule := range []func(model.Table, model.Settings) string{
		checkIAT,
		checkReading,
		checkCalibration,
	} {
		if reason := rule(table, settings); reason != "" {
			outcome.Reasons = append(outcome.Reasons, reason)
		}
	}
	return outcome
}

// checkIAT averages the raw rt of every IAT trial. The 300 ms floor used for
// scoring is not applied here.
func checkIAT(table model.Table, settings model.Settings) string {
	if !table.HasField(model.FieldTrialType) || !table.HasField(model.FieldRT) {
		return ReasonIATFieldsMissing
	}
	trials := 0
	var values []float64
	for _, rec := range table.Records {
		if !iat.IsTrial(rec) {
			continue
		}
		trials++
		if rec.RT.Valid {
			values = append(values, rec.RT.Value)
		}
	}
	if trials == 0 {
		return ReasonNoIATTrial
	}
	if len(values) == 0 {
		return ReasonNoIATRT
	}
	mean := stat.Mean(values, nil)
	if mean < settings.IATRTMin || mean > settings.IATRTMax {
		outside := func(v float64) bool { return v < settings.IATRTMin || v > settings.IATRTMax }
		return fmt.Sprintf("IAT mean RT %sms outside [%s,%s]",
			formatMeasured(mean, 0, outside), formatBound(settings.IATRTMin), formatBound(settings.IATRTMax))
	}
	return ""
}

func checkReading(table model.Table, settings model.Settings) string {
	if !table.HasField(model.FieldTask) || !table.HasField(model.FieldReadingTimePerWord) {
		return ReasonReadingFieldsMissing
	}
	trials := 0
	var values []float64
	for _, rec := range table.Records {
		if rec.Task != model.TaskSelfPacedReading {
			continue
		}
		trials++
		if rec.ReadingTimePerWord.Valid {
			values = append(values, rec.ReadingTimePerWord.Value)
		}
	}
	if trials == 0 {
		return ReasonNoReadingTrial
	}
	if len(values) == 0 {
		return ReasonNoReadingRTW
	}
	mean := stat.Mean(values, nil)
	if mean < settings.ReadingRTWMin {
		below := func(v float64) bool { return v < settings.ReadingRTWMin }
		return fmt.Sprintf("reading_time_per_word mean %sms < %sms", formatMeasured(mean, 1, below), formatBound(settings.ReadingRTWMin))
	}
	return ""
}

func checkCalibration(table model.Table, settings model.Settings) string {
	tasks := 0
	var angles []float64
	for _, rec := range table.Records {
		if rec.Task != model.TaskEyeTrackingValidate || !rec.RawGazeIsList {
			continue
		}
		tasks++
		for _, p := range rec.RawGaze {
			if !p.Complete() {
				continue
			}
			angles = append(angles, VisualAngle(p, settings))
		}
	}
	if tasks == 0 {
		return ReasonNoValidationTask
	}
	if len(angles) == 0 {
		return ReasonNoGazePoints
	}
	mean := stat.Mean(angles, nil)
	if mean > settings.AngleThreshold {
		above := func(v float64) bool { return v > settings.AngleThreshold }
		return fmt.Sprintf("calibration mean error %s° > %s°", formatMeasured(mean, 2, above), formatThreshold(settings.AngleThreshold))
	}
	return ""
}

// VisualAngle converts the pixel offset between observed and target gaze into
// degrees of visual angle at the configured viewing distance.
func VisualAngle(p model.GazePoint, settings model.Settings) float64 {
	distPX := math.Hypot(p.X.Value-p.DX.Value, p.Y.Value-p.DY.Value)
	distCM := distPX / settings.PixelsPerCM()
	return math.Atan(distCM/settings.EyeDistanceCM) * 180 / math.Pi
}

// formatMeasured prints v with the given decimals, adding more when rounding
// would put the printed value back on the passing side of the bound.
func formatMeasured(v float64, decimals int, failing func(float64) bool) string {
	for d := decimals; d <= decimals+6; d++ {
		s := strconv.FormatFloat(v, 'f', d, 64)
		if r, err := strconv.ParseFloat(s, 64); err == nil && failing(r) {
			return s
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBound(v float64) string {
	return fmt.Sprintf("%g", v)
}

func formatThreshold(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.1f", v)
	}
	return fmt.Sprintf("%g", v)
}
