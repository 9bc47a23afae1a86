package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/vanderlab/textstudy/internal/model"
)

const ndjsonLog = `{"participant_id":"p1","task":"self_paced_reading","text_id":1,"text_authorship":"AI","segment_index":0,"reading_time":"900","reading_time_per_word":"225.5"}
{"participant_id":"p1","trial_type":"iat-html","rt":512,"stimulus":"Texto Humano ou Positivo"}
{"participant_id":"p1","task":"eye_tracking_validation","raw_gaze":[[{"x":0,"y":0,"dx":96,"dy":0}]]}
`

const arrayLog = `[
  {
    "task": "demographic_questionnaire_age",
    "response": {"idade": "31"}
  },
  {
    "task": "self_paced_reading",
    "reading_time_per_word": "fast"
  }
]`

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseSourceNDJSON(t *testing.T) {
	objs, err := ParseSource([]byte(ndjsonLog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(objs) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objs))
	}
}

func TestParseSourcePrettyArray(t *testing.T) {
	objs, err := ParseSource([]byte(arrayLog))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
}

func TestParseSourceCompactArray(t *testing.T) {
	objs, err := ParseSource([]byte(`[{"task":"a"},{"task":"b"},3]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objs))
	}
}

func TestParseSourceRejectsGarbage(t *testing.T) {
	for _, input := range []string{"not json", "{broken\n", `"just a string"`, ""} {
		if _, err := ParseSource([]byte(input)); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("expected ErrUnparseable for %q, got %v", input, err)
		}
	}
}

func TestParseNumeric(t *testing.T) {
	cases := map[string]model.Num{
		"12.5":  model.NumOf(12.5),
		" 300 ": model.NumOf(300),
		"":      {},
		"abc":   {},
		"NaN":   {},
		"Inf":   {},
	}
	for input, want := range cases {
		if got := ParseNumeric(input); got != want {
			t.Fatalf("ParseNumeric(%q) = %+v, want %+v", input, got, want)
		}
	}
}

func TestFallbackID(t *testing.T) {
	cases := map[string]string{
		"data/dados_participante_ab12.json": "ab12",
		"data/other.json":                   "other",
		"data/dados_participante_.json":     model.UnknownParticipant,
	}
	for path, want := range cases {
		if got := FallbackID(path, "dados_participante_"); got != want {
			t.Fatalf("FallbackID(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDecodeTypedFields(t *testing.T) {
	table, err := Decode([]byte(ndjsonLog), "fallback")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []model.Record{
		{
			ParticipantID:      "p1",
			Task:               model.TaskSelfPacedReading,
			TextID:             "1",
			TextAuthorship:     "AI",
			SegmentIndex:       "0",
			ReadingTime:        model.NumOf(900),
			ReadingTimePerWord: model.NumOf(225.5),
		},
		{
			ParticipantID: "p1",
			TrialType:     "iat-html",
			RT:            model.NumOf(512),
			Stimulus:      "Texto Humano ou Positivo",
		},
		{
			ParticipantID: "p1",
			Task:          model.TaskEyeTrackingValidate,
			RawGazeIsList: true,
			RawGaze: []model.GazePoint{{
				X: model.NumOf(0), Y: model.NumOf(0), DX: model.NumOf(96), DY: model.NumOf(0),
			}},
		},
	}
	if diff := cmp.Diff(want, table.Records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	for _, field := range []string{"participant_id", "task", "trial_type", "rt", "raw_gaze"} {
		if !table.HasField(field) {
			t.Fatalf("expected field %q to be recorded", field)
		}
	}
	if table.HasField("naturalidade") {
		t.Fatalf("unexpected field naturalidade")
	}
}

func TestDecodeInjectsFallbackAndCoercesInvalid(t *testing.T) {
	table, err := Decode([]byte(arrayLog), "ab12")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, rec := range table.Records {
		if rec.ParticipantID != "ab12" {
			t.Fatalf("expected fallback id, got %q", rec.ParticipantID)
		}
	}
	if table.Records[0].Response.Age != "31" {
		t.Fatalf("expected age 31, got %q", table.Records[0].Response.Age)
	}
	if table.Records[1].ReadingTimePerWord.Valid {
		t.Fatalf("expected invalid reading time to become missing")
	}
	if table.ParticipantID() != "ab12" {
		t.Fatalf("unexpected participant id %q", table.ParticipantID())
	}
}

func TestLoadDirSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "dados_participante_p1.json", ndjsonLog)
	writeSource(t, dir, "dados_participante_p2.json", arrayLog)
	writeSource(t, dir, "dados_participante_bad.json", "{oops")
	writeSource(t, dir, "notes.txt", "ignored")

	table, skipped, err := LoadDir(dir, model.DefaultSettings(), zap.NewNop())
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(skipped) != 1 || !errors.Is(skipped[0], ErrUnparseable) {
		t.Fatalf("expected one unparseable source, got %v", skipped)
	}
	if len(table.Records) != 5 {
		t.Fatalf("expected 5 records, got %d", len(table.Records))
	}
}

func TestLoadDirIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "dados_participante_p1.json", ndjsonLog)
	writeSource(t, dir, "dados_participante_p2.json", arrayLog)

	first, _, err := LoadDir(dir, model.DefaultSettings(), zap.NewNop())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, _, err := LoadDir(dir, model.DefaultSettings(), zap.NewNop())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("tables differ between runs (-first +second):\n%s", diff)
	}
}
