package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/vanderlab/textstudy/internal/model"
)

// FileConfig represents the TOML configuration file. Unset keys keep the
// built-in defaults.
type FileConfig struct {
	Paths      PathsConfig      `toml:"paths"`
	Thresholds ThresholdsConfig `toml:"thresholds"`
	IAT        IATConfig        `toml:"iat"`
	Integrate  IntegrateConfig  `toml:"integrate"`
}

// PathsConfig maps file and directory locations.
type PathsConfig struct {
	Input      *string `toml:"input"`
	Quarantine *string `toml:"quarantine"`
	Log        *string `toml:"log"`
	DB         *string `toml:"db"`
	LogFile    *string `toml:"log-file"`
}

// ThresholdsConfig maps the quality gate limits.
type ThresholdsConfig struct {
	AngleThreshold *float64 `toml:"angle-threshold"`
	EyeDistance    *float64 `toml:"eye-distance"`
	PPI            *float64 `toml:"ppi"`
	IATMin         *float64 `toml:"iat-min"`
	IATMax         *float64 `toml:"iat-max"`
	ReadingMin     *float64 `toml:"reading-min"`
}

// IATConfig maps D-score settings.
type IATConfig struct {
	MinRT  *float64 `toml:"min-rt"`
	BlockA *string  `toml:"block-a"`
	BlockB *string  `toml:"block-b"`
}

// IntegrateConfig maps the integrated CSV format.
type IntegrateConfig struct {
	Separator *string `toml:"sep"`
	Decimal   *string `toml:"decimal"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// Template renders a commented config file with the given defaults.
func Template(s model.Settings) string {
	return fmt.Sprintf(`# textstudy configuration
# Uncomment a value to enable it. CLI flags override config values.

[paths]
# input = %q               # Directory with participant logs
# quarantine = %q  # Where rejected logs are moved
# log = %q     # Append-only rejection log
# db = ""                     # Run history database (default under $XDG_DATA_HOME)
# log-file = ""               # Rotating JSON diagnostic log

[thresholds]
# angle-threshold = %.1f      # Max mean calibration error in degrees
# eye-distance = %g          # Eye to screen distance in cm
# ppi = %g                   # Screen pixels per inch
# iat-min = %g              # Lowest plausible mean IAT RT in ms
# iat-max = %g             # Highest plausible mean IAT RT in ms
# reading-min = %g          # Lowest plausible mean reading time per word in ms

[iat]
# min-rt = %g               # Trials faster than this are dropped from the D-score
# block-a = %q
# block-b = %q

[integrate]
# sep = ";"
# decimal = ","
`,
		s.InputDir,
		s.QuarantineDir,
		s.LogFile,
		s.AngleThreshold,
		s.EyeDistanceCM,
		s.PPI,
		s.IATRTMin,
		s.IATRTMax,
		s.ReadingRTWMin,
		s.IATScoreMinRT,
		s.BlockALabel,
		s.BlockBLabel,
	)
}
