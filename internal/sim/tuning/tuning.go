package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	BoardWidth  int `yaml:"board_width"`
	BoardHeight int `yaml:"board_height"`

	GravityMs            int `yaml:"gravity_ms"`
	SoftDropMs           int `yaml:"soft_drop_ms"`
	SpecialSpawnPermille int `yaml:"special_spawn_permille"`
	ScorePerLine         int `yaml:"score_per_line"`
	SlotSpinMs           int `yaml:"slot_spin_ms"`

	Effects Effects  `yaml:"effects"`
	Catalog []string `yaml:"catalog"`
}

type Effects struct {
	SlowPeriodMs int `yaml:"slow_period_ms"`
	FastPeriodMs int `yaml:"fast_period_ms"`
	DurationMs   int `yaml:"duration_ms"`
}

func Defaults() Tuning {
	return Tuning{
		BoardWidth:           10,
		BoardHeight:          20,
		GravityMs:            500,
		SoftDropMs:           50,
		SpecialSpawnPermille: 500,
		ScorePerLine:         20,
		SlotSpinMs:           2000,
		Effects: Effects{
			SlowPeriodMs: 1000,
			FastPeriodMs: 100,
			DurationMs:   5000,
		},
		Catalog: []string{"HalveGameSpeed", "DoubleGameSpeed", "ClearLine", "HalveGameSpeed"},
	}
}

// Load decodes path over Defaults. Keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.BoardWidth < 4 {
		errs = append(errs, fmt.Errorf("board_width must be >= 4 (got %d)", t.BoardWidth))
	}
	if t.BoardHeight < 4 {
		errs = append(errs, fmt.Errorf("board_height must be >= 4 (got %d)", t.BoardHeight))
	}
	for name, v := range map[string]int{
		"gravity_ms":             t.GravityMs,
		"soft_drop_ms":           t.SoftDropMs,
		"effects.slow_period_ms": t.Effects.SlowPeriodMs,
		"effects.fast_period_ms": t.Effects.FastPeriodMs,
		"effects.duration_ms":    t.Effects.DurationMs,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0 (got %d)", name, v))
		}
	}
	if t.SlotSpinMs < 0 {
		errs = append(errs, fmt.Errorf("slot_spin_ms must be >= 0 (got %d)", t.SlotSpinMs))
	}
	if t.SpecialSpawnPermille < 0 || t.SpecialSpawnPermille > 1000 {
		errs = append(errs, fmt.Errorf("special_spawn_permille must be in [0,1000] (got %d)", t.SpecialSpawnPermille))
	}
	if t.ScorePerLine < 0 {
		errs = append(errs, fmt.Errorf("score_per_line must be >= 0 (got %d)", t.ScorePerLine))
	}
	if len(t.Catalog) == 0 {
		errs = append(errs, errors.New("catalog must not be empty"))
	}
	return errors.Join(errs...)
}

func (t Tuning) Gravity() time.Duration  { return ms(t.GravityMs) }
func (t Tuning) SoftDrop() time.Duration { return ms(t.SoftDropMs) }
func (t Tuning) SlotSpin() time.Duration { return ms(t.SlotSpinMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
