package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vanderlab/textstudy/internal/model"
	"github.com/vanderlab/textstudy/internal/stats"
)

const historyTimeLayout = "2006-01-02 15:04:05"

var (
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FB85F"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	headingStyle  = lipgloss.NewStyle().Bold(true)
)

type printer struct {
	w      io.Writer
	styled bool
	err    error
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, styled: stats.ShouldUseColor(w)}
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) table(headers []string, rows [][]string, right map[int]bool) {
	for _, l := range stats.FormatTable(headers, rows, right) {
		p.line("%s", l)
	}
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

// Table cells stay unstyled so column widths are measured correctly.
func verdict(o model.Outcome) string {
	if o.Accepted() {
		return "accepted"
	}
	return "rejected"
}

func outcomeRows(outcomes []model.Outcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o.Source, o.ParticipantID, verdict(o), strings.Join(o.Reasons, "; ")})
	}
	return rows
}

func printRunSummary(w io.Writer, summary model.RunSummary, dryRun bool, quarantineDir, logPath string) error {
	p := newPrinter(w)
	title := "Validation run " + summary.ID
	if dryRun {
		title += " (dry run)"
	}
	p.line("%s", p.style(headingStyle, title))
	if len(summary.Outcomes) > 0 {
		p.table([]string{"File", "Participant", "Verdict", "Reasons"}, outcomeRows(summary.Outcomes), nil)
	}
	accepted, rejected := summary.Counts()
	p.line("")
	p.line("%s", p.style(acceptedStyle, fmt.Sprintf("Accepted: %d", accepted)))
	p.line("%s", p.style(rejectedStyle, fmt.Sprintf("Rejected: %d", rejected)))
	if rejected > 0 && !dryRun {
		p.line("  moved to %s, logged in %s", quarantineDir, logPath)
	}
	p.line("Unparseable: %d", len(summary.Unparseable))
	for _, name := range summary.Unparseable {
		p.line("  skipped %s", name)
	}
	for _, msg := range summary.MoveErrors {
		p.line("  not quarantined: %s", msg)
	}
	if len(summary.DScores) > 0 {
		p.line("")
		p.line("%s", p.style(headingStyle, "IAT D-scores (accepted participants)"))
		p.table(dscoreHeaders, dscoreRows(summary.DScores), dscoreNumeric)
	}
	return p.err
}

var (
	dscoreHeaders = []string{"Participant", "File", "D", "Mean A", "Mean B", "n A", "n B"}
	dscoreNumeric = map[int]bool{2: true, 3: true, 4: true, 5: true, 6: true}
)

func dscoreRows(scores []model.DScore) [][]string {
	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, []string{
			s.ParticipantID,
			s.Source,
			strconv.FormatFloat(s.DScore, 'f', 3, 64),
			strconv.FormatFloat(s.MeanA, 'f', 1, 64),
			strconv.FormatFloat(s.MeanB, 'f', 1, 64),
			strconv.Itoa(s.NA),
			strconv.Itoa(s.NB),
		})
	}
	return rows
}

func printRuns(w io.Writer, runs []model.RunAggregate) error {
	p := newPrinter(w)
	if len(runs) == 0 {
		p.line("No runs recorded.")
		return p.err
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.EndedAt.In(time.Local).Format(historyTimeLayout),
			r.InputDir,
			strconv.Itoa(r.Accepted),
			strconv.Itoa(r.Rejected),
			strconv.Itoa(r.Unparseable),
		})
	}
	p.table([]string{"Run", "Finished", "Input", "Accepted", "Rejected", "Unparseable"}, rows, map[int]bool{3: true, 4: true, 5: true})
	return p.err
}

func printRunDetail(w io.Writer, outcomes []model.Outcome, scores []model.DScore) error {
	p := newPrinter(w)
	p.line("%s", p.style(headingStyle, "Outcomes"))
	p.table([]string{"File", "Participant", "Verdict", "Reasons"}, outcomeRows(outcomes), nil)
	if len(scores) > 0 {
		p.line("")
		p.line("%s", p.style(headingStyle, "IAT D-scores"))
		p.table(dscoreHeaders, dscoreRows(scores), dscoreNumeric)
	}
	return p.err
}
