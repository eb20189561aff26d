package model

// Instrument is one entry of the configured symbol universe.
type Instrument struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	// Hours is a trading-hours spec string, e.g. "America/New_York Mon-Fri 09:30-16:00".
	Hours string `json:"hours" yaml:"hours"`
}

// Universe maps symbol to instrument.
type Universe map[string]Instrument

// Lookup returns the instrument for symbol or ErrUnknownSymbol.
func (u Universe) Lookup(symbol string) (Instrument, error) {
	inst, ok := u[symbol]
	if !ok {
		return Instrument{}, unknownSymbol(symbol)
	}
	return inst, nil
}

// Symbols returns the universe symbols in no particular order.
func (u Universe) Symbols() []string {
	out := make([]string, 0, len(u))
	for s := range u {
		out = append(out, s)
	}
	return out
}
