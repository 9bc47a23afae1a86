// Package main provides the CLI entrypoint for textstudy.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vanderlab/textstudy/internal/config"
	"github.com/vanderlab/textstudy/internal/gate"
	"github.com/vanderlab/textstudy/internal/iat"
	"github.com/vanderlab/textstudy/internal/ingest"
	"github.com/vanderlab/textstudy/internal/integrate"
	"github.com/vanderlab/textstudy/internal/logging"
	"github.com/vanderlab/textstudy/internal/model"
	"github.com/vanderlab/textstudy/internal/stats"
	"github.com/vanderlab/textstudy/internal/store"
)

const (
	defaultIntegratedTable = "tabela_integrada_todos_participantes.csv"
	defaultStatsDir        = "stats"
	defaultHistoryLast     = 10
)

var (
	globalVerbose bool
	globalLogFile string

	validateInput      string
	validateQuarantine string
	validateLog        string
	validateAngle      float64
	validateEyeDist    float64
	validatePPI        float64
	validateIATMin     float64
	validateIATMax     float64
	validateReadingMin float64
	validateDryRun     bool
	validateNoHistory  bool

	dscoreInput   string
	dscoreOut     string
	dscoreSep     string
	dscoreDecimal string

	integrateInput   string
	integrateOut     string
	integrateSep     string
	integrateDecimal string

	describeTable  string
	describeOutDir string
	describeSep    string

	historyLast int
	historyRun  string
)

var (
	logger      = zap.NewNop()
	closeLogger = func() error { return nil }
)

func main() {
	rootCmd := newRootCmd()
	err := rootCmd.Execute()
	if cerr := closeLogger(); cerr != nil {
		logErrf("failed to close log: %v\n", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := model.DefaultSettings()
	format := integrate.DefaultFormat()

	rootCmd := &cobra.Command{
		Use:               "textstudy",
		Short:             "Quality gate and analysis for the human vs AI text reading study",
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: setupLogger,
	}
	rootCmd.PersistentFlags().BoolVarP(&globalVerbose, "verbose", "v", false, "debug output on stderr")
	rootCmd.PersistentFlags().StringVar(&globalLogFile, "log-file", "", "also write a rotating JSON diagnostic log to this file (bare names go to the data dir)")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Reject implausible participants and quarantine their logs",
		Args:  cobra.NoArgs,
		RunE:  runValidateCmd,
	}
	validateCmd.Flags().StringVar(&validateInput, "input", defaults.InputDir, "directory with participant logs")
	validateCmd.Flags().StringVar(&validateQuarantine, "quarantine", defaults.QuarantineDir, "directory for rejected logs")
	validateCmd.Flags().StringVar(&validateLog, "log", defaults.LogFile, "append-only rejection log")
	validateCmd.Flags().Float64Var(&validateAngle, "angle-threshold", defaults.AngleThreshold, "max mean calibration error in degrees")
	validateCmd.Flags().Float64Var(&validateEyeDist, "eye-distance", defaults.EyeDistanceCM, "eye to screen distance in cm")
	validateCmd.Flags().Float64Var(&validatePPI, "ppi", defaults.PPI, "screen pixels per inch")
	validateCmd.Flags().Float64Var(&validateIATMin, "iat-min", defaults.IATRTMin, "lowest plausible mean IAT RT in ms")
	validateCmd.Flags().Float64Var(&validateIATMax, "iat-max", defaults.IATRTMax, "highest plausible mean IAT RT in ms")
	validateCmd.Flags().Float64Var(&validateReadingMin, "reading-min", defaults.ReadingRTWMin, "lowest plausible mean reading time per word in ms")
	validateCmd.Flags().BoolVar(&validateDryRun, "dry-run", false, "evaluate without moving files or writing the rejection log")
	validateCmd.Flags().BoolVar(&validateNoHistory, "no-history", false, "do not record the run in the history database")

	dscoreCmd := &cobra.Command{
		Use:   "dscore",
		Short: "Compute IAT D-scores for every participant",
		Args:  cobra.NoArgs,
		RunE:  runDScoreCmd,
	}
	dscoreCmd.Flags().StringVar(&dscoreInput, "input", defaults.InputDir, "directory with participant logs")
	dscoreCmd.Flags().StringVar(&dscoreOut, "out", "", "output CSV (default: stdout)")
	dscoreCmd.Flags().StringVar(&dscoreSep, "sep", string(format.Separator), "field separator")
	dscoreCmd.Flags().StringVar(&dscoreDecimal, "decimal", format.Decimal, "decimal mark")

	integrateCmd := &cobra.Command{
		Use:   "integrate",
		Short: "Build the per-segment integrated table",
		Args:  cobra.NoArgs,
		RunE:  runIntegrateCmd,
	}
	integrateCmd.Flags().StringVar(&integrateInput, "input", defaults.InputDir, "directory with participant logs")
	integrateCmd.Flags().StringVar(&integrateOut, "out", defaultIntegratedTable, "output CSV")
	integrateCmd.Flags().StringVar(&integrateSep, "sep", string(format.Separator), "field separator")
	integrateCmd.Flags().StringVar(&integrateDecimal, "decimal", format.Decimal, "decimal mark")

	describeCmd := &cobra.Command{
		Use:   "describe",
		Short: "Descriptive statistics and AI vs human paired tests",
		Args:  cobra.NoArgs,
		RunE:  runDescribeCmd,
	}
	describeCmd.Flags().StringVar(&describeTable, "table", defaultIntegratedTable, "integrated table CSV")
	describeCmd.Flags().StringVar(&describeOutDir, "out-dir", defaultStatsDir, "directory for the statistics CSVs")
	describeCmd.Flags().StringVar(&describeSep, "sep", string(format.Separator), "field separator of the table")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded validation runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	historyCmd.Flags().IntVar(&historyLast, "last", defaultHistoryLast, "number of runs to list (0 = all)")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "show the outcomes of one run")

	rootCmd.AddCommand(validateCmd, dscoreCmd, integrateCmd, describeCmd, historyCmd, newConfigCmd())
	return rootCmd
}

func setupLogger(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "config" {
		// A broken config file must still be editable.
		return nil
	}
	if !cmd.Flags().Changed("log-file") && globalLogFile == "" {
		fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyStringConfig(cmd, "log-file", &globalLogFile, fileCfg.Paths.LogFile)
	}
	l, closeFn, err := logging.New(logging.Options{Verbose: globalVerbose, FilePath: config.ResolveLogPath(globalLogFile)})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger, closeLogger = l, closeFn
	return nil
}

func runValidateCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "input", &validateInput, fileCfg.Paths.Input)
	applyStringConfig(cmd, "quarantine", &validateQuarantine, fileCfg.Paths.Quarantine)
	applyStringConfig(cmd, "log", &validateLog, fileCfg.Paths.Log)
	applyFloatConfig(cmd, "angle-threshold", &validateAngle, fileCfg.Thresholds.AngleThreshold)
	applyFloatConfig(cmd, "eye-distance", &validateEyeDist, fileCfg.Thresholds.EyeDistance)
	applyFloatConfig(cmd, "ppi", &validatePPI, fileCfg.Thresholds.PPI)
	applyFloatConfig(cmd, "iat-min", &validateIATMin, fileCfg.Thresholds.IATMin)
	applyFloatConfig(cmd, "iat-max", &validateIATMax, fileCfg.Thresholds.IATMax)
	applyFloatConfig(cmd, "reading-min", &validateReadingMin, fileCfg.Thresholds.ReadingMin)

	settings := settingsFromFile(fileCfg)
	settings.InputDir = validateInput
	settings.QuarantineDir = validateQuarantine
	settings.LogFile = validateLog
	settings.AngleThreshold = validateAngle
	settings.EyeDistanceCM = validateEyeDist
	settings.PPI = validatePPI
	settings.IATRTMin = validateIATMin
	settings.IATRTMax = validateIATMax
	settings.ReadingRTWMin = validateReadingMin
	if err := validateSettings(settings); err != nil {
		return err
	}

	runner, err := gate.NewRunner(settings, logger, gate.Options{DryRun: validateDryRun})
	if err != nil {
		return fmt.Errorf("failed to prepare run: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	summary, runErr := runner.Run(ctx)
	quarantineDir, logPath := runner.Destinations()
	if err := printRunSummary(cmd.OutOrStdout(), summary, validateDryRun, quarantineDir, logPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("validation stopped: %w", runErr)
	}

	if !validateNoHistory && !validateDryRun {
		if err := recordHistory(ctx, fileCfg, summary); err != nil {
			logger.Warn("run not recorded in history", zap.Error(err))
		}
	}
	if len(summary.MoveErrors) > 0 {
		return fmt.Errorf("%d rejected file(s) could not be quarantined", len(summary.MoveErrors))
	}
	return nil
}

func recordHistory(ctx context.Context, fileCfg config.FileConfig, summary model.RunSummary) error {
	st, err := store.Open(resolveDBPath(fileCfg))
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	id, err := st.RecordRun(ctx, summary)
	if err != nil {
		return err
	}
	logger.Debug("run recorded", zap.String("run", id))
	return nil
}

func runDScoreCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "input", &dscoreInput, fileCfg.Paths.Input)
	applyStringConfig(cmd, "sep", &dscoreSep, fileCfg.Integrate.Separator)
	applyStringConfig(cmd, "decimal", &dscoreDecimal, fileCfg.Integrate.Decimal)
	format, err := parseFormat(dscoreSep, dscoreDecimal)
	if err != nil {
		return err
	}

	settings := settingsFromFile(fileCfg)
	settings.InputDir = dscoreInput
	table, skipped, err := ingest.LoadDir(settings.InputDir, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	scores := iat.Compute(table.Records, settings)
	logger.Info("computed d-scores", zap.Int("participants", len(scores)), zap.Int("skipped_files", len(skipped)))

	return writeOutput(cmd.OutOrStdout(), dscoreOut, func(w io.Writer) error {
		return integrate.WriteDScores(w, scores, format)
	})
}

func runIntegrateCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "input", &integrateInput, fileCfg.Paths.Input)
	applyStringConfig(cmd, "sep", &integrateSep, fileCfg.Integrate.Separator)
	applyStringConfig(cmd, "decimal", &integrateDecimal, fileCfg.Integrate.Decimal)
	format, err := parseFormat(integrateSep, integrateDecimal)
	if err != nil {
		return err
	}

	settings := settingsFromFile(fileCfg)
	settings.InputDir = integrateInput
	table, skipped, err := ingest.LoadDir(settings.InputDir, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	rows := integrate.Build(table.Records, settings)
	if err := writeOutput(cmd.OutOrStdout(), integrateOut, func(w io.Writer) error {
		return integrate.WriteCSV(w, rows, format)
	}); err != nil {
		return err
	}
	logger.Info("integrated table written",
		zap.String("out", integrateOut),
		zap.Int("rows", len(rows)),
		zap.Int("skipped_files", len(skipped)),
	)
	return nil
}

func runDescribeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "sep", &describeSep, fileCfg.Integrate.Separator)
	sep, err := parseSeparator(describeSep)
	if err != nil {
		return err
	}

	ds, err := stats.LoadTable(describeTable, sep)
	if err != nil {
		return fmt.Errorf("failed to load table: %w", err)
	}
	analysis, err := stats.Analyze(ds, stats.DefaultOptions())
	if err != nil {
		return fmt.Errorf("%s: %w", describeTable, err)
	}
	if err := stats.Render(cmd.OutOrStdout(), analysis); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	files, err := stats.WriteOutputs(describeOutDir, analysis)
	if err != nil {
		return fmt.Errorf("failed to write statistics: %w", err)
	}
	logger.Info("statistics written", zap.String("dir", describeOutDir), zap.Int("files", len(files)))
	return nil
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.Open(resolveDBPath(fileCfg))
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	if historyRun != "" {
		outcomes, err := st.ListOutcomes(ctx, historyRun)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				return fmt.Errorf("no run with id %s", historyRun)
			}
			return fmt.Errorf("failed to load outcomes: %w", err)
		}
		scores, err := st.ListDScores(ctx, historyRun)
		if err != nil {
			return fmt.Errorf("failed to load d-scores: %w", err)
		}
		return printRunDetail(out, outcomes, scores)
	}

	runs, err := st.ListRuns(ctx, historyLast)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return printRuns(out, runs)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := ensureConfigFile(path); err != nil {
		return err
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func ensureConfigFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.Template(model.DefaultSettings())), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}
	return nil
}

// settingsFromFile applies the config keys that have no CLI flag.
func settingsFromFile(fileCfg config.FileConfig) model.Settings {
	s := model.DefaultSettings()
	if v := fileCfg.IAT.MinRT; v != nil {
		s.IATScoreMinRT = *v
	}
	if v := fileCfg.IAT.BlockA; v != nil {
		s.BlockALabel = *v
	}
	if v := fileCfg.IAT.BlockB; v != nil {
		s.BlockBLabel = *v
	}
	return s
}

func resolveDBPath(fileCfg config.FileConfig) string {
	if fileCfg.Paths.DB != nil && *fileCfg.Paths.DB != "" {
		return *fileCfg.Paths.DB
	}
	return config.DefaultDBPath()
}

func writeOutput(stdout io.Writer, path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(stdout)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if err := write(file); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func validateSettings(s model.Settings) error {
	if s.InputDir == "" {
		return fmt.Errorf("--input must not be empty")
	}
	if s.QuarantineDir == "" {
		return fmt.Errorf("--quarantine must not be empty")
	}
	if filepath.Clean(s.QuarantineDir) == filepath.Clean(s.InputDir) {
		return fmt.Errorf("--quarantine must differ from --input")
	}
	if s.LogFile == "" {
		return fmt.Errorf("--log must not be empty")
	}
	if s.AngleThreshold <= 0 {
		return fmt.Errorf("--angle-threshold must be > 0")
	}
	if s.EyeDistanceCM <= 0 {
		return fmt.Errorf("--eye-distance must be > 0")
	}
	if s.PPI <= 0 {
		return fmt.Errorf("--ppi must be > 0")
	}
	if s.IATRTMin < 0 {
		return fmt.Errorf("--iat-min must be >= 0")
	}
	if s.IATRTMax <= s.IATRTMin {
		return fmt.Errorf("--iat-max must be greater than --iat-min")
	}
	if s.ReadingRTWMin < 0 {
		return fmt.Errorf("--reading-min must be >= 0")
	}
	if s.BlockALabel == "" || s.BlockBLabel == "" || s.BlockALabel == s.BlockBLabel {
		return fmt.Errorf("IAT block labels must be set and distinct")
	}
	return nil
}

func parseSeparator(sep string) (rune, error) {
	if utf8.RuneCountInString(sep) != 1 {
		return 0, fmt.Errorf("--sep must be a single character, got %q", sep)
	}
	r, _ := utf8.DecodeRuneInString(sep)
	return r, nil
}

func parseFormat(sep, decimal string) (integrate.Format, error) {
	r, err := parseSeparator(sep)
	if err != nil {
		return integrate.Format{}, err
	}
	format := integrate.Format{Separator: r, Decimal: decimal}
	if err := format.Validate(); err != nil {
		return integrate.Format{}, err
	}
	return format, nil
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
