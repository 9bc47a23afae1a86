package gate

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vanderlab/textstudy/internal/iat"
	"github.com/vanderlab/textstudy/internal/ingest"
	"github.com/vanderlab/textstudy/internal/model"
)

// Options tweak a validation run.
type Options struct {
	// DryRun evaluates every file without moving or logging anything.
	DryRun bool
	Now    func() time.Time
}

// Runner validates every source in the input directory, one at a time.
type Runner struct {
	settings   model.Settings
	quarantine *Quarantine
	rejections *RejectionLog
	logger     *zap.Logger
	dryRun     bool
	now        func() time.Time
}

// NewRunner prepares the quarantine directory and rejection log.
func NewRunner(settings model.Settings, logger *zap.Logger, opts Options) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := &Runner{
		settings: settings,
		logger:   logger,
		dryRun:   opts.DryRun,
		now:      now,
	}
	if !opts.DryRun {
		q, err := NewQuarantine(settings.QuarantineDir)
		if err != nil {
			return nil, err
		}
		r.quarantine = q
		r.rejections = NewRejectionLog(settings.LogFile, now)
	}
	return r, nil
}

// Destinations returns where rejected sources and log lines go. Both are
// empty on a dry run.
func (r *Runner) Destinations() (quarantineDir, logPath string) {
	if r.dryRun {
		return "", ""
	}
	return r.quarantine.Dir(), r.rejections.Path()
}

// Run processes the input directory. A file that cannot be parsed or moved is
// recorded in the summary and the run continues. The context is checked
// between files; work already done is not rolled back.
func (r *Runner) Run(ctx context.Context) (model.RunSummary, error) {
	summary := model.RunSummary{
		ID:        uuid.NewString(),
		StartedAt: r.now(),
		InputDir:  r.settings.InputDir,
	}
	paths, err := ingest.ListSources(r.settings.InputDir)
	if err != nil {
		return summary, err
	}
	r.logger.Info("validating participants",
		zap.String("run", summary.ID),
		zap.String("input", r.settings.InputDir),
		zap.Int("files", len(paths)),
		zap.Bool("dry_run", r.dryRun),
	)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			summary.EndedAt = r.now()
			return summary, err
		}
		r.processFile(path, &summary)
	}
	summary.EndedAt = r.now()
	return summary, nil
}

func (r *Runner) processFile(path string, summary *model.RunSummary) {
	name := filepath.Base(path)
	table, err := ingest.LoadFile(path, r.settings)
	if err != nil {
		r.logger.Warn("unparseable source", zap.String("file", name), zap.Error(err))
		summary.Unparseable = append(summary.Unparseable, name)
		return
	}

	outcome := Evaluate(table, r.settings)
	outcome.Source = name
	summary.Outcomes = append(summary.Outcomes, outcome)

	if outcome.Accepted() {
		r.logger.Debug("participant accepted", zap.String("participant", outcome.ParticipantID), zap.String("file", name))
		for _, score := range iat.Compute(table.Records, r.settings) {
			score.Source = name
			summary.DScores = append(summary.DScores, score)
		}
		return
	}

	r.logger.Info("participant rejected",
		zap.String("participant", outcome.ParticipantID),
		zap.String("file", name),
		zap.Strings("reasons", outcome.Reasons),
	)
	if r.dryRun {
		return
	}
	if _, err := r.quarantine.Move(path); err != nil {
		r.logger.Error("failed to quarantine source", zap.String("file", name), zap.Error(err))
		summary.MoveErrors = append(summary.MoveErrors, fmt.Sprintf("%s: %v", name, err))
	}
	if err := r.rejections.Append(outcome); err != nil {
		r.logger.Error("failed to append rejection log", zap.String("file", name), zap.Error(err))
	}
}
