package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/patientsim/internal/domain/observation"
)

// EnvPrefix namespaces environment overrides, e.g.
// PATIENTSIM_DATA_GENERATION_UPDATES_PER_CYCLE.
const EnvPrefix = "PATIENTSIM"

type Config struct {
	Dataset           DatasetConfig           `mapstructure:"dataset"`
	PatientAttributes PatientAttributesConfig `mapstructure:"patient_attributes"`
	DataGeneration    DataGenerationConfig    `mapstructure:"data_generation"`
	Files             FilesConfig             `mapstructure:"files"`
}

type DatasetConfig struct {
	NumPatients int `mapstructure:"num_patients"`
}

type PatientAttributesConfig struct {
	AgeRange          []int     `mapstructure:"age_range"`
	HbA1cLevelRange   []float64 `mapstructure:"hba1c_level_range"`
	DiabetesTypes     []string  `mapstructure:"diabetes_types"`
	GlucoseHyperRange []float64 `mapstructure:"glucose_hyper_range_mmol_l"`
	GlucoseHypoRange  []float64 `mapstructure:"glucose_hypo_range_mmol_l"`
}

type DataGenerationConfig struct {
	PastDaysToSimulate    int     `mapstructure:"past_days_to_simulate"`
	HyperEventProbability float64 `mapstructure:"hyper_event_probability"`
	HypoEventProbability  float64 `mapstructure:"hypo_event_probability"`
	UpdatesPerCycle       int     `mapstructure:"updates_per_cycle"`
	UpdateIntervalSeconds float64 `mapstructure:"update_interval_seconds"`
}

// FilesConfig names the two channel files relative to the data directory.
type FilesConfig struct {
	Constant string `mapstructure:"constant"`
	Changing string `mapstructure:"changing"`
}

func newViper(env bool) *viper.Viper {
	v := viper.New()
	if env {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	// Defaults
	v.SetDefault("dataset.num_patients", 10)
	v.SetDefault("patient_attributes.age_range", []int{20, 80})
	v.SetDefault("patient_attributes.hba1c_level_range", []float64{5.5, 12.0})
	v.SetDefault("patient_attributes.diabetes_types", []string{"Type 1", "Type 2"})
	v.SetDefault("patient_attributes.glucose_hyper_range_mmol_l", []float64{10.0, 15.0})
	v.SetDefault("patient_attributes.glucose_hypo_range_mmol_l", []float64{3.0, 4.5})
	v.SetDefault("data_generation.past_days_to_simulate", 7)
	v.SetDefault("data_generation.hyper_event_probability", 0.2)
	v.SetDefault("data_generation.hypo_event_probability", 0.15)
	v.SetDefault("data_generation.updates_per_cycle", 5)
	v.SetDefault("data_generation.update_interval_seconds", 5)
	v.SetDefault("files.constant", "constant_patient_data.csv")
	v.SetDefault("files.changing", "changing_patient_data.csv")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present,
// including any environment overrides. Overrides that fail to decode are
// ignored.
func Default() *Config {
	if cfg, err := decode(newViper(true)); err == nil {
		return cfg
	}
	cfg, _ := decode(newViper(false))
	return cfg
}

// Load reads the YAML configuration at path. A missing, unreadable or
// malformed file is an error, as is a configuration that fails Validate.
func Load(path string) (*Config, error) {
	v := newViper(true)
	v.SetConfigFile(path)
	if ext := filepath.Ext(path); ext == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// cannot be used, logging a warning instead of failing.
func LoadOrDefault(path string, logger zerolog.Logger) *Config {
	cfg, err := Load(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("config unavailable; using defaults")
		return Default()
	}
	return cfg
}

// Validate checks ranges and probabilities for internal consistency.
func (c *Config) Validate() error {
	if c.Dataset.NumPatients <= 0 {
		return fmt.Errorf("dataset.num_patients must be positive, got %d", c.Dataset.NumPatients)
	}

	pa := c.PatientAttributes
	if len(pa.AgeRange) != 2 || pa.AgeRange[0] > pa.AgeRange[1] || pa.AgeRange[0] < 0 {
		return fmt.Errorf("patient_attributes.age_range must be [min, max], got %v", pa.AgeRange)
	}
	for key, r := range map[string][]float64{
		"patient_attributes.hba1c_level_range":          pa.HbA1cLevelRange,
		"patient_attributes.glucose_hyper_range_mmol_l": pa.GlucoseHyperRange,
		"patient_attributes.glucose_hypo_range_mmol_l":  pa.GlucoseHypoRange,
	} {
		if len(r) != 2 || r[0] > r[1] || r[0] < 0 {
			return fmt.Errorf("%s must be [min, max], got %v", key, r)
		}
	}
	if len(pa.DiabetesTypes) == 0 {
		return fmt.Errorf("patient_attributes.diabetes_types must not be empty")
	}

	dg := c.DataGeneration
	if dg.PastDaysToSimulate < 0 {
		return fmt.Errorf("data_generation.past_days_to_simulate must not be negative, got %d", dg.PastDaysToSimulate)
	}
	if dg.HyperEventProbability < 0 || dg.HyperEventProbability > 1 {
		return fmt.Errorf("data_generation.hyper_event_probability must be within [0, 1], got %v", dg.HyperEventProbability)
	}
	if dg.HypoEventProbability < 0 || dg.HypoEventProbability > 1 {
		return fmt.Errorf("data_generation.hypo_event_probability must be within [0, 1], got %v", dg.HypoEventProbability)
	}
	if dg.UpdatesPerCycle < 0 {
		return fmt.Errorf("data_generation.updates_per_cycle must not be negative, got %d", dg.UpdatesPerCycle)
	}
	if dg.UpdateIntervalSeconds <= 0 {
		return fmt.Errorf("data_generation.update_interval_seconds must be positive, got %v", dg.UpdateIntervalSeconds)
	}

	if c.Files.Constant == "" || c.Files.Changing == "" {
		return fmt.Errorf("files.constant and files.changing must be set")
	}
	if c.Files.Constant == c.Files.Changing {
		return fmt.Errorf("files.constant and files.changing must differ, both are %q", c.Files.Constant)
	}
	return nil
}

// UpdateInterval returns update_interval_seconds as a duration. Both the
// producer sleep and the dashboard tick derive from it.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.DataGeneration.UpdateIntervalSeconds * float64(time.Second))
}

// Profile maps the configuration onto the synthesizer's profile.
func (c *Config) Profile() observation.Profile {
	p := observation.DefaultProfile()
	p.NumPatients = c.Dataset.NumPatients
	p.PastDays = c.DataGeneration.PastDaysToSimulate
	p.HyperProbability = c.DataGeneration.HyperEventProbability
	p.HypoProbability = c.DataGeneration.HypoEventProbability

	pa := c.PatientAttributes
	if len(pa.AgeRange) == 2 {
		p.AgeRange = [2]int{pa.AgeRange[0], pa.AgeRange[1]}
	}
	if r, ok := pair(pa.HbA1cLevelRange); ok {
		p.HbA1cRange = r
	}
	if r, ok := pair(pa.GlucoseHyperRange); ok {
		p.HyperRange = r
	}
	if r, ok := pair(pa.GlucoseHypoRange); ok {
		p.HypoRange = r
	}
	if len(pa.DiabetesTypes) > 0 {
		p.DiabetesTypes = append([]string(nil), pa.DiabetesTypes...)
	}
	return p
}

// ConstantPath and ChangingPath resolve the channel files under dataDir.
func (c *Config) ConstantPath(dataDir string) string {
	return filepath.Join(dataDir, c.Files.Constant)
}

func (c *Config) ChangingPath(dataDir string) string {
	return filepath.Join(dataDir, c.Files.Changing)
}

func pair(r []float64) ([2]float64, bool) {
	if len(r) != 2 {
		return [2]float64{}, false
	}
	return [2]float64{r[0], r[1]}, true
}
