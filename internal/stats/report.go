package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Options selects the columns used by Analyze.
type Options struct {
	Variables []string
	IDColumn  string
	// GroupColumn splits rows into the Treated and Control conditions.
	GroupColumn string
	Treated     string
	Control     string
}

// DefaultOptions compares AI against human texts per participant.
func DefaultOptions() Options {
	return Options{
		Variables:   DefaultVariables,
		IDColumn:    "participant_id",
		GroupColumn: "text_authorship",
		Treated:     "AI",
		Control:     "human",
	}
}

// Analysis bundles every result of a describe run.
type Analysis struct {
	Descriptive  []GroupSummary
	Deltas       DeltaTable
	DeltaSummary []GroupSummary
	TTests       []TTest
	Wilcoxon     []WilcoxonResult
	Correlations Matrix
}

// Analyze runs the descriptive and paired analyses on ds.
func Analyze(ds *Dataset, opts Options) (Analysis, error) {
	for _, col := range []string{opts.IDColumn, opts.GroupColumn} {
		if !ds.Has(col) {
			return Analysis{}, fmt.Errorf("table has no %q column", col)
		}
	}
	vars := PresentVariables(ds, opts.Variables)
	if len(vars) == 0 {
		return Analysis{}, fmt.Errorf("table has none of the analysed columns")
	}

	a := Analysis{
		Descriptive: Describe(ds, opts.GroupColumn, vars),
		Deltas:      Deltas(ds, vars, opts.IDColumn, opts.GroupColumn, opts.Treated, opts.Control),
	}
	label := opts.Treated + "-" + opts.Control
	for i, v := range vars {
		values := validValues(a.Deltas.Values[i])
		a.DeltaSummary = append(a.DeltaSummary, GroupSummary{Group: label, Variable: v, Summary: Summarize(values)})

		tt := OneSampleT(values)
		tt.Variable = v
		a.TTests = append(a.TTests, tt)

		w := Wilcoxon(values)
		w.Variable = v
		a.Wilcoxon = append(a.Wilcoxon, w)
	}
	a.Correlations = CorrelationMatrix(a.Deltas)
	return a, nil
}

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))

// Render prints the analysis as console tables.
func Render(w io.Writer, a Analysis) error {
	styled := ShouldUseColor(w)
	title := func(s string) string {
		if styled {
			return titleStyle.Render(s)
		}
		return s
	}

	sections := []struct {
		title   string
		headers []string
		rows    [][]string
		right   map[int]bool
	}{
		{"Descriptive statistics", summaryHeaders("Group"), summaryRows(a.Descriptive), numericFrom(2, 7)},
		{"Deltas (" + deltaLabel(a) + ")", append(summaryHeaders("Variable")[1:], "Distribution"), deltaRows(a), numericFrom(1, 6)},
		{"Paired t-tests", []string{"Variable", "N", "Mean", "SD", "t", "df", "p", "d_rm"}, tTestRows(a.TTests), numericFrom(1, 8)},
		{"Wilcoxon signed-rank", []string{"Variable", "N", "W", "z", "p"}, wilcoxonRows(a.Wilcoxon), numericFrom(1, 5)},
		{"Delta correlations", append([]string{""}, a.Correlations.Labels...), matrixRows(a.Correlations), numericFrom(1, len(a.Correlations.Labels)+1)},
	}
	for _, s := range sections {
		if _, err := fmt.Fprintln(w, title(s.title)); err != nil {
			return err
		}
		for _, line := range FormatTable(s.headers, s.rows, s.right) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

// ShouldUseColor reports whether w is a terminal and NO_COLOR is unset.
func ShouldUseColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func numericFrom(from, to int) map[int]bool {
	out := map[int]bool{}
	for i := from; i < to; i++ {
		out[i] = true
	}
	return out
}

func deltaLabel(a Analysis) string {
	if len(a.DeltaSummary) == 0 {
		return ""
	}
	return a.DeltaSummary[0].Group
}

func summaryHeaders(first string) []string {
	return []string{first, "Variable", "N", "Mean", "SD", "Min", "Max"}
}

func summaryCells(s Summary) []string {
	return []string{
		strconv.Itoa(s.N),
		FormatPtBR(s.Mean, 2),
		FormatPtBR(s.SD, 2),
		FormatPtBR(s.Min, 2),
		FormatPtBR(s.Max, 2),
	}
}

func summaryRows(groups []GroupSummary) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, append([]string{g.Group, g.Variable}, summaryCells(g.Summary)...))
	}
	return rows
}

func deltaRows(a Analysis) [][]string {
	rows := make([][]string, 0, len(a.DeltaSummary))
	for i, g := range a.DeltaSummary {
		spark := DistributionSpark(validValues(a.Deltas.Values[i]), 8)
		row := append([]string{g.Variable}, summaryCells(g.Summary)...)
		rows = append(rows, append(row, "["+spark+"]"))
	}
	return rows
}

func tTestRows(tests []TTest) [][]string {
	rows := make([][]string, 0, len(tests))
	for _, t := range tests {
		rows = append(rows, []string{
			t.Variable,
			strconv.Itoa(t.N),
			FormatPtBR(t.Mean, 2),
			FormatPtBR(t.SD, 2),
			FormatPtBR(t.T, 3),
			FormatPtBR(t.DF, 0),
			FormatPtBR(t.P, 4),
			FormatPtBR(t.DRM, 3),
		})
	}
	return rows
}

func wilcoxonRows(tests []WilcoxonResult) [][]string {
	rows := make([][]string, 0, len(tests))
	for _, t := range tests {
		rows = append(rows, []string{
			t.Variable,
			strconv.Itoa(t.N),
			FormatPtBR(t.Statistic, 1),
			FormatPtBR(t.Z, 3),
			FormatPtBR(t.P, 4),
		})
	}
	return rows
}

func matrixRows(m Matrix) [][]string {
	rows := make([][]string, 0, len(m.Labels))
	for i, label := range m.Labels {
		row := []string{label}
		for _, v := range m.Values[i] {
			row = append(row, FormatPtBR(v, 2))
		}
		rows = append(rows, row)
	}
	return rows
}

// Output file names written by WriteOutputs.
const (
	FileDescriptive      = "descriptive_stats.csv"
	FileDelta            = "delta.csv"
	FileDeltaDescriptive = "delta_descriptive.csv"
	FilePairedTests      = "paired_tests.csv"
	FileWilcoxon         = "wilcoxon_tests.csv"
	FileCorrelations     = "delta_correlations.csv"
)

// WriteOutputs writes the analysis as semicolon-separated CSV files with
// pt-BR numbers into dir.
func WriteOutputs(dir string, a Analysis) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	num := func(v float64) string { return FormatPtBR(v, 4) }
	summaryCSV := func(groups []GroupSummary) [][]string {
		rows := [][]string{{"group", "variable", "n", "mean", "sd", "min", "max"}}
		for _, g := range groups {
			rows = append(rows, []string{
				g.Group, g.Variable, strconv.Itoa(g.N),
				num(g.Mean), num(g.SD), num(g.Min), num(g.Max),
			})
		}
		return rows
	}

	deltaCSV := [][]string{append([]string{"participant_id"}, a.Deltas.Variables...)}
	for j, pid := range a.Deltas.Participants {
		row := []string{pid}
		for i := range a.Deltas.Variables {
			cell := a.Deltas.Values[i][j]
			if cell.Valid {
				row = append(row, num(cell.Value))
			} else {
				row = append(row, "")
			}
		}
		deltaCSV = append(deltaCSV, row)
	}

	tCSV := [][]string{{"variable", "n", "mean", "sd", "t", "df", "p", "d_rm"}}
	for _, t := range a.TTests {
		tCSV = append(tCSV, []string{t.Variable, strconv.Itoa(t.N), num(t.Mean), num(t.SD), num(t.T), num(t.DF), num(t.P), num(t.DRM)})
	}

	wCSV := [][]string{{"variable", "n", "statistic", "z", "p"}}
	for _, t := range a.Wilcoxon {
		wCSV = append(wCSV, []string{t.Variable, strconv.Itoa(t.N), num(t.Statistic), num(t.Z), num(t.P)})
	}

	corrCSV := [][]string{append([]string{""}, a.Correlations.Labels...)}
	for i, label := range a.Correlations.Labels {
		row := []string{label}
		for _, v := range a.Correlations.Values[i] {
			row = append(row, num(v))
		}
		corrCSV = append(corrCSV, row)
	}

	files := []struct {
		name string
		rows [][]string
	}{
		{FileDescriptive, summaryCSV(a.Descriptive)},
		{FileDelta, deltaCSV},
		{FileDeltaDescriptive, summaryCSV(a.DeltaSummary)},
		{FilePairedTests, tCSV},
		{FileWilcoxon, wCSV},
		{FileCorrelations, corrCSV},
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeRecords(path, f.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeRecords(path string, rows [][]string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	cw := csv.NewWriter(file)
	cw.Comma = ';'
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
