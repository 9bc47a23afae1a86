package stats

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vanderlab/textstudy/internal/model"
)

const integrated = `participant_id;text_authorship;clareza;d_score
p1;AI;5;0,5
p1;AI;7;0,5
p1;human;4;0,5
p2;AI;6;-0,25
p2;human;3;-0,25
p3;human;2;
`

func loadFixture(t *testing.T) *Dataset {
	t.Helper()
	ds, err := ReadTable(strings.NewReader(integrated), ';')
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	return ds
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestParseLocaleNumber(t *testing.T) {
	cases := map[string]model.Num{
		"1.234,5": model.NumOf(1234.5),
		"0,25":    model.NumOf(0.25),
		"2.5":     model.NumOf(2.5),
		"":        {},
		"abc":     {},
	}
	for in, want := range cases {
		if got := ParseLocaleNumber(in); got != want {
			t.Fatalf("%q: got %+v, want %+v", in, got, want)
		}
	}
}

func TestDescribeByAuthorship(t *testing.T) {
	ds := loadFixture(t)
	got := Describe(ds, "text_authorship", []string{"clareza"})
	want := []GroupSummary{
		{Group: "AI", Variable: "clareza", Summary: Summary{N: 3, Mean: 6, SD: 1, Min: 5, Max: 7}},
		{Group: "human", Variable: "clareza", Summary: Summary{N: 3, Mean: 3, SD: 1, Min: 2, Max: 4}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("describe mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarizeSmallSamples(t *testing.T) {
	empty := Summarize(nil)
	if empty.N != 0 || !math.IsNaN(empty.Mean) {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
	one := Summarize([]float64{4})
	if one.Mean != 4 || !math.IsNaN(one.SD) || one.Min != 4 || one.Max != 4 {
		t.Fatalf("unexpected single summary %+v", one)
	}
}

func TestDeltasPerParticipant(t *testing.T) {
	ds := loadFixture(t)
	table := Deltas(ds, []string{"clareza", "d_score"}, "participant_id", "text_authorship", "AI", "human")
	if diff := cmp.Diff([]string{"p1", "p2", "p3"}, table.Participants); diff != "" {
		t.Fatalf("participants (-want +got):\n%s", diff)
	}
	want := []model.Num{model.NumOf(2), model.NumOf(3), {}}
	if diff := cmp.Diff(want, table.Column("clareza")); diff != "" {
		t.Fatalf("clareza deltas (-want +got):\n%s", diff)
	}
	if table.Column("missing") != nil {
		t.Fatalf("expected nil for an unknown variable")
	}
}

func TestOneSampleT(t *testing.T) {
	res := OneSampleT([]float64{1, 2, 3, 4, 5})
	if res.N != 5 || res.Mean != 3 || res.DF != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !near(res.T, 4.2426, 1e-3) {
		t.Fatalf("unexpected t %f", res.T)
	}
	if !near(res.P, 0.01324, 1e-4) {
		t.Fatalf("unexpected p %f", res.P)
	}
	if !near(res.DRM, 1.8974, 1e-3) {
		t.Fatalf("unexpected d_rm %f", res.DRM)
	}

	flat := OneSampleT([]float64{2, 2, 2})
	if !math.IsNaN(flat.T) || !math.IsNaN(flat.P) {
		t.Fatalf("zero spread should give NaN statistics, got %+v", flat)
	}
}

func TestWilcoxon(t *testing.T) {
	res := Wilcoxon([]float64{1, 2, 3, 4, 5})
	if res.N != 5 || res.Statistic != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !near(res.Z, -2.0226, 1e-3) || !near(res.P, 0.0431, 1e-3) {
		t.Fatalf("unexpected z/p %f/%f", res.Z, res.P)
	}
}

func TestWilcoxonTiesAndZeros(t *testing.T) {
	res := Wilcoxon([]float64{0, 1, -1, 2})
	if res.N != 3 {
		t.Fatalf("zeros must be dropped, got n=%d", res.N)
	}
	if res.Statistic != 1.5 {
		t.Fatalf("expected tied ranks to average, got %f", res.Statistic)
	}
	wantZ := (1.5 - 3) / math.Sqrt(3.375)
	if !near(res.Z, wantZ, 1e-9) {
		t.Fatalf("expected tie-corrected z %f, got %f", wantZ, res.Z)
	}

	if empty := Wilcoxon([]float64{0, 0}); empty.N != 0 || !math.IsNaN(empty.P) {
		t.Fatalf("all-zero input should give NaN, got %+v", empty)
	}
}

func TestCorrelationMatrixPairwise(t *testing.T) {
	table := DeltaTable{
		Variables: []string{"a", "b", "c"},
		Values: [][]model.Num{
			{model.NumOf(1), model.NumOf(2), model.NumOf(3), model.NumOf(4)},
			{model.NumOf(2), model.NumOf(4), model.NumOf(6), {}},
			{model.NumOf(1), {}, {}, {}},
		},
	}
	m := CorrelationMatrix(table)
	if !near(m.Values[0][1], 1, 1e-12) || m.Values[0][1] != m.Values[1][0] {
		t.Fatalf("expected symmetric perfect correlation, got %v", m.Values)
	}
	if !math.IsNaN(m.Values[0][2]) {
		t.Fatalf("a single shared observation should be NaN, got %f", m.Values[0][2])
	}
}

func TestFormatPtBR(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     string
	}{
		{1234.56, 2, "1.234,56"},
		{-1234567.891, 2, "-1.234.567,89"},
		{12, 0, "12"},
		{999, 1, "999,0"},
		{-0.001, 2, "0,00"},
		{math.NaN(), 2, ""},
	}
	for _, tc := range cases {
		if got := FormatPtBR(tc.v, tc.decimals); got != tc.want {
			t.Fatalf("FormatPtBR(%v, %d) = %q, want %q", tc.v, tc.decimals, got, tc.want)
		}
	}
}

func TestDistributionSpark(t *testing.T) {
	if got := DistributionSpark([]float64{1, 1, 1, 5}, 2); got != "@ " {
		t.Fatalf("unexpected spark %q", got)
	}
	if got := Sparkline([]float64{2, 2}); got != "++" {
		t.Fatalf("flat series should use the middle char, got %q", got)
	}
}

func TestAnalyzeAndWriteOutputs(t *testing.T) {
	ds := loadFixture(t)
	analysis, err := Analyze(ds, DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(analysis.TTests) != 2 || analysis.TTests[0].Variable != "clareza" {
		t.Fatalf("expected tests for the present variables only, got %+v", analysis.TTests)
	}

	var out bytes.Buffer
	if err := Render(&out, analysis); err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, title := range []string{"Descriptive statistics", "Paired t-tests", "Wilcoxon signed-rank", "Delta correlations"} {
		if !strings.Contains(out.String(), title) {
			t.Fatalf("missing section %q in:\n%s", title, out.String())
		}
	}

	dir := filepath.Join(t.TempDir(), "out")
	files, err := WriteOutputs(dir, analysis)
	if err != nil {
		t.Fatalf("write outputs: %v", err)
	}
	if len(files) != 6 {
		t.Fatalf("expected 6 files, got %v", files)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileDelta))
	if err != nil {
		t.Fatalf("read delta.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"participant_id;clareza;d_score",
		"p1;2,0000;0,0000",
		"p2;3,0000;0,0000",
		"p3;;",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("delta.csv mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeRequiresGroupColumn(t *testing.T) {
	ds, err := ReadTable(strings.NewReader("participant_id;clareza\np1;3\n"), ';')
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if _, err := Analyze(ds, DefaultOptions()); err == nil {
		t.Fatalf("expected an error without text_authorship")
	}
}
