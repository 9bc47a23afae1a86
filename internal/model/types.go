// Package model defines shared data structures.
package model

import "time"

// Task tags emitted by the experiment.
const (
	TaskSelfPacedReading     = "self_paced_reading"
	TaskEyeTracking          = "eye_tracking"
	TaskEyeTrackingValidate  = "eye_tracking_validation"
	TaskTextEvaluation       = "text_evaluation"
	TaskDemographicAge       = "demographic_questionnaire_age"
	TaskDemographicGenderEdu = "demographic_questionnaire_gender_education"
)

// UnknownParticipant is used when neither the record nor the source name
// carries a participant identifier.
const UnknownParticipant = "unknown"

// Num is a numeric value that may be missing.
type Num struct {
	Value float64
	Valid bool
}

// NumOf returns a valid Num.
func NumOf(v float64) Num {
	return Num{Value: v, Valid: true}
}

// OptBool is a boolean that may be missing.
type OptBool struct {
	Value bool
	Valid bool
}

// GazePoint is one calibration validation sample: the observed gaze
// position (X, Y) and the target it should have landed on (DX, DY).
type GazePoint struct {
	X, Y   Num
	DX, DY Num
}

// Complete reports whether all four coordinates are present.
func (p GazePoint) Complete() bool {
	return p.X.Valid && p.Y.Valid && p.DX.Valid && p.DY.Valid
}

// Response holds the demographic fields pulled out of a survey payload.
type Response struct {
	Age       string
	Gender    string
	Education string
}

// Record is one normalized event row. Every field exists on every record;
// absence in the source shows up as an empty string or an invalid Num.
type Record struct {
	ParticipantID string
	Task          string
	TrialType     string

	TextID         string
	TextAuthorship string
	SegmentIndex   string

	ReadingTime         Num
	ReadingTimePerWord  Num
	NumberOfFixations   Num
	NumberOfRegressions Num
	TotalReadingTime    Num

	RT       Num
	Stimulus string

	Naturalness   Num
	Clarity       Num
	Comprehension Num

	AuthorshipCorrect OptBool

	// RawGazeIsList is true when raw_gaze was a JSON array, even an empty one.
	RawGazeIsList bool
	RawGaze       []GazePoint

	Response Response
}

// Field names as they appear in the raw logs.
const (
	FieldParticipantID      = "participant_id"
	FieldTask               = "task"
	FieldTrialType          = "trial_type"
	FieldRT                 = "rt"
	FieldReadingTimePerWord = "reading_time_per_word"
)

// Table is a unified set of records plus the raw keys observed in any of
// them.
type Table struct {
	Records []Record
	Fields  map[string]struct{}
}

// HasField reports whether any source record carried the key.
func (t Table) HasField(name string) bool {
	_, ok := t.Fields[name]
	return ok
}

// ParticipantID returns the first non-empty participant id in the table.
func (t Table) ParticipantID() string {
	for _, r := range t.Records {
		if r.ParticipantID != "" {
			return r.ParticipantID
		}
	}
	return UnknownParticipant
}

// Outcome is the quality gate verdict for one source file.
type Outcome struct {
	ParticipantID string
	Source        string
	Reasons       []string
}

// Accepted reports whether the participant passed every rule.
func (o Outcome) Accepted() bool {
	return len(o.Reasons) == 0
}

// DScore is the IAT effect size for one participant. Source names the file
// it was computed from when scoring runs per file.
type DScore struct {
	ParticipantID string
	Source        string
	DScore        float64
	MeanA         float64
	MeanB         float64
	NA            int
	NB            int
}

// Settings carries every threshold and path used by the pipeline.
type Settings struct {
	InputDir      string
	QuarantineDir string
	LogFile       string

	AngleThreshold float64
	EyeDistanceCM  float64
	PPI            float64

	IATRTMin      float64
	IATRTMax      float64
	ReadingRTWMin float64
	IATScoreMinRT float64

	BlockALabel    string
	BlockBLabel    string
	FallbackPrefix string
}

// DefaultSettings returns the thresholds used by the study.
func DefaultSettings() Settings {
	return Settings{
		InputDir:       "data",
		QuarantineDir:  "data/rejected",
		LogFile:        "rejection_log.txt",
		AngleThreshold: 4.0,
		EyeDistanceCM:  70,
		PPI:            96,
		IATRTMin:       300,
		IATRTMax:       3000,
		ReadingRTWMin:  200,
		IATScoreMinRT:  300,
		BlockALabel:    "Texto Humano ou Positivo",
		BlockBLabel:    "Texto Humano ou Negativo",
		FallbackPrefix: "dados_participante_",
	}
}

// PixelsPerCM converts the configured PPI to pixels per centimeter.
func (s Settings) PixelsPerCM() float64 {
	return s.PPI / 2.54
}

// RunSummary describes one validation batch.
type RunSummary struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	InputDir    string
	Outcomes    []Outcome
	DScores     []DScore
	Unparseable []string
	MoveErrors  []string
}

// Counts returns accepted and rejected totals.
func (r RunSummary) Counts() (accepted, rejected int) {
	for _, o := range r.Outcomes {
		if o.Accepted() {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected
}

// RunAggregate is a stored run as listed by history.
type RunAggregate struct {
	ID          string
	StartedAt   time.Time
	EndedAt     time.Time
	InputDir    string
	Accepted    int
	Rejected    int
	Unparseable int
}
