package integrate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vanderlab/textstudy/internal/model"
)

// Columns is the header of the integrated CSV.
var Columns = []string{
	"participant_id",
	"text_id",
	"text_authorship",
	"segment_index",
	"reading_time_per_word_x",
	"reading_time",
	"number_of_fixations_x",
	"number_of_regressions_x",
	"naturalidade",
	"clareza",
	"compreensao",
	"authorship_correct",
	"idade",
	"genero",
	"escolaridade",
	"d_score",
	"number_of_fixations_y",
	"number_of_regressions_y",
	"total_reading_time",
	"reading_time_per_word_y",
}

// Format controls the field separator and decimal mark.
type Format struct {
	Separator rune
	Decimal   string
}

// DefaultFormat writes semicolon-separated values with a decimal comma.
func DefaultFormat() Format {
	return Format{Separator: ';', Decimal: ","}
}

// Validate rejects formats that would make numbers ambiguous.
func (f Format) Validate() error {
	if f.Separator == 0 || f.Separator == '\n' || f.Separator == '"' {
		return fmt.Errorf("invalid separator %q", f.Separator)
	}
	if f.Decimal != "." && f.Decimal != "," {
		return fmt.Errorf("decimal mark must be '.' or ',', got %q", f.Decimal)
	}
	if string(f.Separator) == f.Decimal {
		return fmt.Errorf("separator and decimal mark must differ")
	}
	return nil
}

// WriteCSV writes rows with the Columns header. Missing values are empty.
func WriteCSV(w io.Writer, rows []Row, format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = format.Separator
	if err := cw.Write(Columns); err != nil {
		return err
	}
	num := func(n model.Num) string {
		return FormatNum(n, format.Decimal)
	}
	for _, r := range rows {
		rec := []string{
			r.ParticipantID,
			r.TextID,
			r.TextAuthorship,
			r.SegmentIndex,
			num(r.ReadingTimePerWordX),
			num(r.ReadingTime),
			num(r.NumberOfFixationsX),
			num(r.NumberOfRegressionsX),
			num(r.Naturalness),
			num(r.Clarity),
			num(r.Comprehension),
			formatBool(r.AuthorshipCorrect),
			r.Age,
			r.Gender,
			r.Education,
			num(r.DScore),
			num(r.NumberOfFixationsY),
			num(r.NumberOfRegressionsY),
			num(r.TotalReadingTime),
			num(r.ReadingTimePerWordY),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatNum renders a number with the shortest exact representation.
func FormatNum(n model.Num, decimal string) string {
	if !n.Valid {
		return ""
	}
	s := strconv.FormatFloat(n.Value, 'f', -1, 64)
	if decimal != "." {
		s = strings.Replace(s, ".", decimal, 1)
	}
	return s
}

func formatBool(b model.OptBool) string {
	if !b.Valid {
		return ""
	}
	if b.Value {
		return "True"
	}
	return "False"
}

// DScoreColumns is the header written by WriteDScores.
var DScoreColumns = []string{"participant_id", "d_score", "mean_a", "mean_b", "n_a", "n_b"}

// WriteDScores writes one row per participant D-score.
func WriteDScores(w io.Writer, scores []model.DScore, format Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	cw.Comma = format.Separator
	if err := cw.Write(DScoreColumns); err != nil {
		return err
	}
	for _, s := range scores {
		rec := []string{
			s.ParticipantID,
			FormatNum(model.NumOf(s.DScore), format.Decimal),
			FormatNum(model.NumOf(s.MeanA), format.Decimal),
			FormatNum(model.NumOf(s.MeanB), format.Decimal),
			strconv.Itoa(s.NA),
			strconv.Itoa(s.NB),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
