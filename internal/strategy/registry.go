package strategy

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"signal-engine/internal/model"
)

// Builtins are the strategies every registry starts from.
func Builtins() []Config {
	risk := RiskParams{TrailingIncrement: 0.005, TrailingStep: 0.01, TrailingLimit: 0.05}
	return []Config{
		CCIConfig{Name: "cci4", Length: 4, MinValue: -100, MaxValue: 100},
		CCIConfig{Name: "cci20", Length: 20, MinValue: -100, MaxValue: 100, Params: risk},
		CCIConfig{Name: "cci14-zero", Length: 14},
		EMACrossConfig{Name: "ema-9-21", Short: 9, Long: 21, StopShift: 0.01},
		EMACrossConfig{Name: "ema-9-21-mtf", Short: 9, Long: 21, StopShift: 0.01, Upper: "ema-trend-9-21-50", Params: risk},
		EMATrendConfig{Name: "ema-trend-9-21-50", Short: 9, Medium: 21, Long: 50, StopShift: 0.01, Params: risk},
		EMATrendConfig{Name: "ema-trend-mtf", Short: 9, Medium: 21, Long: 50, StopShift: 0.01, Upper: "ema-trend-9-21-50", Params: risk},
	}
}

// Registry maps strategy IDs to immutable configs. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byID map[string]Config
}

// NewRegistry validates cfgs and indexes them by ID. Duplicate IDs and
// up-level references to missing strategies are rejected. An up-level chain
// may revisit a strategy; evaluation stops at the coarsest interval.
func NewRegistry(cfgs ...Config) (*Registry, error) {
	r := &Registry{byID: make(map[string]Config, len(cfgs))}
	for _, c := range cfgs {
		if c.ID() == "" {
			return nil, fmt.Errorf("strategy without id")
		}
		if _, dup := r.byID[c.ID()]; dup {
			return nil, fmt.Errorf("duplicate strategy id %q", c.ID())
		}
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("strategy %q: %w", c.ID(), err)
		}
		r.byID[c.ID()] = c
	}
	for _, c := range cfgs {
		if up := c.UpLevel(); up != "" {
			if _, ok := r.byID[up]; !ok {
				return nil, fmt.Errorf("strategy %q: up-level %w: %q", c.ID(), model.ErrUnknownStrategy, up)
			}
		}
	}
	return r, nil
}

// DefaultRegistry holds only the built-in strategies.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtins()...)
	if err != nil {
		panic(err)
	}
	return r
}

// WithDefinitions returns the built-ins plus defs.
func WithDefinitions(defs []Definition) (*Registry, error) {
	cfgs := Builtins()
	for _, d := range defs {
		c, err := d.Config()
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, c)
	}
	return NewRegistry(cfgs...)
}

// ParseDefinitions decodes a YAML list of strategy definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}
	return defs, nil
}

// Lookup returns the config for id or model.ErrUnknownStrategy.
func (r *Registry) Lookup(id string) (Config, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownStrategy, id)
	}
	return c, nil
}

// IDs returns all strategy IDs, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
