package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"signal-engine/internal/model"
	"signal-engine/internal/notification"
	"signal-engine/internal/strategy"
	"signal-engine/internal/timewindow"
)

// File is the YAML universe file.
//
//	symbols:
//	  - symbol: BABA
//	    hours: "America/New_York Mon-Fri 09:30-16:00"
//	strategies:
//	  - id: cci10
//	    kind: cci
//	    length: 10
//	    min_value: -100
//	    max_value: 100
//	watch:
//	  - {symbol: BABA, interval: 1h, strategy: cci4}
//	recipients:
//	  - {id: "123456789", symbols: [BABA]}
type File struct {
	Symbols    []model.Instrument       `yaml:"symbols"`
	Strategies []strategy.Definition    `yaml:"strategies"`
	Watch      []notification.Watch     `yaml:"watch"`
	Recipients []notification.Recipient `yaml:"recipients"`
}

// LoadFile reads and validates the universe file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFile decodes and validates a universe file. Symbols are upper-cased;
// every trading-hours spec, watch interval and watch symbol is checked.
// Strategy ids are checked by Registry.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(f.Symbols))
	for i := range f.Symbols {
		inst := &f.Symbols[i]
		inst.Symbol = strings.ToUpper(strings.TrimSpace(inst.Symbol))
		if inst.Symbol == "" {
			errs = append(errs, fmt.Errorf("symbols[%d]: empty symbol", i))
			continue
		}
		if seen[inst.Symbol] {
			errs = append(errs, fmt.Errorf("symbols[%d]: duplicate %s", i, inst.Symbol))
		}
		seen[inst.Symbol] = true
		if inst.Hours != "" {
			if _, err := timewindow.Parse(inst.Hours); err != nil {
				errs = append(errs, fmt.Errorf("symbols[%d] %s: %w", i, inst.Symbol, err))
			}
		}
	}
	for i := range f.Watch {
		w := &f.Watch[i]
		w.Symbol = strings.ToUpper(strings.TrimSpace(w.Symbol))
		if !w.Interval.Valid() {
			errs = append(errs, fmt.Errorf("watch[%d]: %w: %q", i, model.ErrUnknownInterval, w.Interval))
		}
		if !seen[w.Symbol] {
			errs = append(errs, fmt.Errorf("watch[%d]: %w: %q", i, model.ErrUnknownSymbol, w.Symbol))
		}
	}
	for i := range f.Recipients {
		r := &f.Recipients[i]
		for j, s := range r.Symbols {
			r.Symbols[j] = strings.ToUpper(strings.TrimSpace(s))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &f, nil
}

// Universe returns the symbol universe. Only universe symbols are served.
func (f *File) Universe() model.Universe {
	u := make(model.Universe, len(f.Symbols))
	for _, inst := range f.Symbols {
		u[inst.Symbol] = inst
	}
	return u
}

// Registry returns the built-in strategies plus the file's definitions and
// checks that every watched strategy resolves.
func (f *File) Registry() (*strategy.Registry, error) {
	reg, err := strategy.WithDefinitions(f.Strategies)
	if err != nil {
		return nil, err
	}
	for i, w := range f.Watch {
		if _, err := reg.Lookup(w.Strategy); err != nil {
			return nil, fmt.Errorf("watch[%d]: %w", i, err)
		}
	}
	return reg, nil
}
