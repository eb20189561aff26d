package strategy

import (
	"errors"
	"fmt"
)

// Kind names a strategy family.
type Kind string

const (
	KindCCI      Kind = "cci"
	KindEMACross Kind = "ema-cross"
	KindEMATrend Kind = "ema-trend"
)

// RewardRatio is the take-profit to stop-loss ratio of the EMA strategies.
const RewardRatio = 2.0

// RiskParams drive the trailing stop in simulation. All three are fractions
// of the open price; zero Step disables trailing.
//
// For every full Step of favourable excursion from the open, the stop is
// pulled Increment in the position's favour, by at most Limit in total. A
// zero Limit leaves the pull uncapped.
type RiskParams struct {
	TrailingIncrement float64 `yaml:"trailing_increment" json:"trailing_increment"`
	TrailingStep      float64 `yaml:"trailing_step" json:"trailing_step"`
	TrailingLimit     float64 `yaml:"trailing_limit" json:"trailing_limit"`
}

// Trailing reports whether a trailing stop is configured.
func (r RiskParams) Trailing() bool { return r.TrailingStep > 0 && r.TrailingIncrement > 0 }

func (r RiskParams) validate() error {
	if r.TrailingIncrement < 0 || r.TrailingStep < 0 || r.TrailingLimit < 0 {
		return errors.New("risk parameters must be non-negative")
	}
	return nil
}

// Config is an immutable strategy definition. The concrete types are
// CCIConfig, EMACrossConfig and EMATrendConfig; the set is closed.
type Config interface {
	ID() string
	Kind() Kind
	// UpLevel is the strategy evaluated on the next coarser interval to gate
	// this one, or "".
	UpLevel() string
	Risk() RiskParams
	// MinBars is the fewest bars that yield at least one signal row.
	MinBars() int

	validate() error
}

// CCIConfig compares CCI(Length) against the band [MinValue, MaxValue].
// MinValue == MaxValue == 0 selects the zero-cross rule. Stops are ATR(Length)
// multiples.
type CCIConfig struct {
	Name     string
	Length   int
	MinValue float64
	MaxValue float64
	Upper    string
	Params   RiskParams
}

func (c CCIConfig) ID() string       { return c.Name }
func (c CCIConfig) Kind() Kind       { return KindCCI }
func (c CCIConfig) UpLevel() string  { return c.Upper }
func (c CCIConfig) Risk() RiskParams { return c.Params }

// ZeroCross reports whether the zero-cross rule applies.
func (c CCIConfig) ZeroCross() bool { return c.MinValue == 0 && c.MaxValue == 0 }

// MinBars: ATR(n) yields its first value on bar n and the rule needs the
// previous row, so n+2 bars.
func (c CCIConfig) MinBars() int { return c.Length + 2 }

func (c CCIConfig) validate() error {
	if c.Length < 2 {
		return fmt.Errorf("cci length must be >= 2, got %d", c.Length)
	}
	if c.MinValue > c.MaxValue {
		return fmt.Errorf("cci band min %.2f above max %.2f", c.MinValue, c.MaxValue)
	}
	return c.Params.validate()
}

// EMACrossConfig signals on Short/Long EMA crossovers.
type EMACrossConfig struct {
	Name      string
	Short     int
	Long      int
	StopShift float64 // fraction of the long EMA
	Upper     string
	Params    RiskParams
}

func (c EMACrossConfig) ID() string       { return c.Name }
func (c EMACrossConfig) Kind() Kind       { return KindEMACross }
func (c EMACrossConfig) UpLevel() string  { return c.Upper }
func (c EMACrossConfig) Risk() RiskParams { return c.Params }
func (c EMACrossConfig) MinBars() int     { return c.Long + 1 }

func (c EMACrossConfig) validate() error {
	if c.Short < 1 || c.Long <= c.Short {
		return fmt.Errorf("ema lengths must satisfy 1 <= short < long, got %d/%d", c.Short, c.Long)
	}
	if c.StopShift < 0 || c.StopShift >= 1 {
		return fmt.Errorf("stop shift %.4f outside [0, 1)", c.StopShift)
	}
	return c.Params.validate()
}

// EMATrendConfig classifies Short/Medium/Long EMA ordering into a trend and
// signals on entry into a strong trend.
type EMATrendConfig struct {
	Name      string
	Short     int
	Medium    int
	Long      int
	StopShift float64
	Upper     string
	Params    RiskParams
}

func (c EMATrendConfig) ID() string       { return c.Name }
func (c EMATrendConfig) Kind() Kind       { return KindEMATrend }
func (c EMATrendConfig) UpLevel() string  { return c.Upper }
func (c EMATrendConfig) Risk() RiskParams { return c.Params }
func (c EMATrendConfig) MinBars() int     { return c.Long + 1 }

func (c EMATrendConfig) validate() error {
	if c.Short < 1 || c.Medium <= c.Short || c.Long <= c.Medium {
		return fmt.Errorf("ema lengths must satisfy 1 <= short < medium < long, got %d/%d/%d", c.Short, c.Medium, c.Long)
	}
	if c.StopShift < 0 || c.StopShift >= 1 {
		return fmt.Errorf("stop shift %.4f outside [0, 1)", c.StopShift)
	}
	return c.Params.validate()
}

// Definition is the file form of a strategy, as read from YAML.
type Definition struct {
	ID        string     `yaml:"id"`
	Kind      Kind       `yaml:"kind"`
	Length    int        `yaml:"length,omitempty"`
	MinValue  float64    `yaml:"min_value,omitempty"`
	MaxValue  float64    `yaml:"max_value,omitempty"`
	Short     int        `yaml:"short,omitempty"`
	Medium    int        `yaml:"medium,omitempty"`
	Long      int        `yaml:"long,omitempty"`
	StopShift float64    `yaml:"stop_shift,omitempty"`
	UpLevel   string     `yaml:"up_level,omitempty"`
	Risk      RiskParams `yaml:"risk,omitempty"`
}

// Config converts the definition to its tagged variant.
func (d Definition) Config() (Config, error) {
	if d.ID == "" {
		return nil, errors.New("strategy definition without id")
	}
	var cfg Config
	switch d.Kind {
	case KindCCI:
		cfg = CCIConfig{Name: d.ID, Length: d.Length, MinValue: d.MinValue, MaxValue: d.MaxValue, Upper: d.UpLevel, Params: d.Risk}
	case KindEMACross:
		cfg = EMACrossConfig{Name: d.ID, Short: d.Short, Long: d.Long, StopShift: d.StopShift, Upper: d.UpLevel, Params: d.Risk}
	case KindEMATrend:
		cfg = EMATrendConfig{Name: d.ID, Short: d.Short, Medium: d.Medium, Long: d.Long, StopShift: d.StopShift, Upper: d.UpLevel, Params: d.Risk}
	default:
		return nil, fmt.Errorf("strategy %q: unknown kind %q", d.ID, d.Kind)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("strategy %q: %w", d.ID, err)
	}
	return cfg, nil
}
