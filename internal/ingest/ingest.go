package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/vanderlab/textstudy/internal/model"
)

// FallbackID derives a participant id from a source file name: the base name
// without extension and without the given prefix.
func FallbackID(path, prefix string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimPrefix(base, prefix)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return model.UnknownParticipant
	}
	return base
}

// Decode normalizes raw bytes from one source. Records without a participant
// id get fallbackID.
func Decode(data []byte, fallbackID string) (model.Table, error) {
	objs, err := ParseSource(data)
	if err != nil {
		return model.Table{}, err
	}
	if fallbackID == "" {
		fallbackID = model.UnknownParticipant
	}
	table := model.Table{
		Records: make([]model.Record, 0, len(objs)),
		Fields:  map[string]struct{}{},
	}
	for _, obj := range objs {
		rec := decodeRecord(obj, table.Fields)
		if rec.ParticipantID == "" {
			rec.ParticipantID = fallbackID
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// LoadFile reads and normalizes one participant file.
func LoadFile(path string, settings model.Settings) (model.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Table{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	table, err := Decode(data, FallbackID(path, settings.FallbackPrefix))
	if err != nil {
		return model.Table{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// ListSources returns the *.json files directly inside dir, sorted by name.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Merge concatenates tables in order.
func Merge(tables ...model.Table) model.Table {
	out := model.Table{Fields: map[string]struct{}{}}
	for _, t := range tables {
		out.Records = append(out.Records, t.Records...)
		for k := range t.Fields {
			out.Fields[k] = struct{}{}
		}
	}
	return out
}

// LoadDir reads every source in dir into one table. Unparseable files are
// skipped and returned as errors; they never abort the others.
func LoadDir(dir string, settings model.Settings, log *zap.Logger) (model.Table, []error, error) {
	paths, err := ListSources(dir)
	if err != nil {
		return model.Table{}, nil, err
	}
	tables := make([]model.Table, 0, len(paths))
	var skipped []error
	for _, path := range paths {
		table, err := LoadFile(path, settings)
		if err != nil {
			log.Warn("skipping source", zap.String("file", path), zap.Error(err))
			skipped = append(skipped, err)
			continue
		}
		log.Debug("loaded source", zap.String("file", path), zap.Int("records", len(table.Records)))
		tables = append(tables, table)
	}
	return Merge(tables...), skipped, nil
}
