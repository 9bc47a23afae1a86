// Package ingest reads participant logs and normalizes them into typed records.
package ingest

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/vanderlab/textstudy/internal/model"
)

// ErrUnparseable is returned when a source is neither newline-delimited JSON
// objects nor a single JSON document.
var ErrUnparseable = errors.New("source is neither newline-delimited JSON nor a JSON document")

// ParseSource splits raw log bytes into JSON objects.
//
// Lines starting with '{' are tried first as newline-delimited JSON. If any
// such line fails to parse, or none exist, the whole content is parsed as one
// document: an array of objects or a single object.
func ParseSource(data []byte) ([]gjson.Result, error) {
	if objs, ok := parseLines(data); ok {
		return objs, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrUnparseable
	}
	doc := gjson.ParseBytes(data)
	switch {
	case doc.IsArray():
		var objs []gjson.Result
		for _, item := range doc.Array() {
			if item.IsObject() {
				objs = append(objs, item)
			}
		}
		return objs, nil
	case doc.IsObject():
		return []gjson.Result{doc}, nil
	default:
		return nil, ErrUnparseable
	}
}

func parseLines(data []byte) ([]gjson.Result, bool) {
	var objs []gjson.Result
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			continue
		}
		if !gjson.ValidBytes(trimmed) {
			return nil, false
		}
		objs = append(objs, gjson.ParseBytes(trimmed))
	}
	return objs, len(objs) > 0
}

// ParseNumeric converts a string to a number. Anything that is not a finite
// number becomes missing instead of an error.
func ParseNumeric(s string) model.Num {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Num{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return model.Num{}
	}
	return model.NumOf(v)
}

func numericValue(r gjson.Result) model.Num {
	switch r.Type {
	case gjson.Number:
		if math.IsNaN(r.Num) || math.IsInf(r.Num, 0) {
			return model.Num{}
		}
		return model.NumOf(r.Num)
	case gjson.String:
		return ParseNumeric(r.Str)
	default:
		return model.Num{}
	}
}

func stringValue(r gjson.Result) string {
	if !r.Exists() || r.Type == gjson.Null {
		return ""
	}
	return r.String()
}

func boolValue(r gjson.Result) model.OptBool {
	switch r.Type {
	case gjson.True:
		return model.OptBool{Value: true, Valid: true}
	case gjson.False:
		return model.OptBool{Value: false, Valid: true}
	case gjson.String:
		v, err := strconv.ParseBool(strings.TrimSpace(r.Str))
		if err != nil {
			return model.OptBool{}
		}
		return model.OptBool{Value: v, Valid: true}
	default:
		return model.OptBool{}
	}
}

func decodeRecord(obj gjson.Result, fields map[string]struct{}) model.Record {
	obj.ForEach(func(key, _ gjson.Result) bool {
		fields[key.String()] = struct{}{}
		return true
	})

	get := func(name string) gjson.Result {
		return obj.Get(name)
	}

	rec := model.Record{
		ParticipantID:       stringValue(get(model.FieldParticipantID)),
		Task:                stringValue(get(model.FieldTask)),
		TrialType:           stringValue(get(model.FieldTrialType)),
		TextID:              stringValue(get("text_id")),
		TextAuthorship:      stringValue(get("text_authorship")),
		SegmentIndex:        stringValue(get("segment_index")),
		ReadingTime:         numericValue(get("reading_time")),
		ReadingTimePerWord:  numericValue(get(model.FieldReadingTimePerWord)),
		NumberOfFixations:   numericValue(get("number_of_fixations")),
		NumberOfRegressions: numericValue(get("number_of_regressions")),
		TotalReadingTime:    numericValue(get("total_reading_time")),
		RT:                  numericValue(get(model.FieldRT)),
		Stimulus:            stringValue(get("stimulus")),
		Naturalness:         numericValue(get("naturalidade")),
		Clarity:             numericValue(get("clareza")),
		Comprehension:       numericValue(get("compreensao")),
		AuthorshipCorrect:   boolValue(get("authorship_correct")),
	}

	if gaze := get("raw_gaze"); gaze.IsArray() {
		rec.RawGazeIsList = true
		rec.RawGaze = decodeGaze(gaze)
	}
	if resp := get("response"); resp.IsObject() {
		rec.Response = model.Response{
			Age:       stringValue(resp.Get("idade")),
			Gender:    stringValue(resp.Get("genero")),
			Education: stringValue(resp.Get("escolaridade")),
		}
	}
	return rec
}

// decodeGaze reads validation samples. Some logs wrap the point list in one
// more array; only the first inner list is used then.
func decodeGaze(gaze gjson.Result) []model.GazePoint {
	items := gaze.Array()
	if len(items) > 0 && items[0].IsArray() {
		items = items[0].Array()
	}
	points := make([]model.GazePoint, 0, len(items))
	for _, item := range items {
		if !item.IsObject() {
			continue
		}
		points = append(points, model.GazePoint{
			X:  numericValue(item.Get("x")),
			Y:  numericValue(item.Get("y")),
			DX: numericValue(item.Get("dx")),
			DY: numericValue(item.Get("dy")),
		})
	}
	return points
}
