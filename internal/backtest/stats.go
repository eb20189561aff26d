package backtest

func summarize(positions []Position) Summary {
	s := Summary{
		ByDirection: make(map[string]Stats, 2),
		ByReason:    make(map[string]Stats, 3),
	}
	for _, p := range positions {
		s.Total.add(p)

		d := s.ByDirection[p.Direction.String()]
		d.add(p)
		s.ByDirection[p.Direction.String()] = d

		r := s.ByReason[p.Reason.String()]
		r.add(p)
		s.ByReason[p.Reason.String()] = r
	}

	s.Total.finish()
	for k, v := range s.ByDirection {
		v.finish()
		s.ByDirection[k] = v
	}
	for k, v := range s.ByReason {
		v.finish()
		s.ByReason[k] = v
	}
	return s
}

func (s *Stats) add(p Position) {
	s.Count++
	s.Net += p.Profit
	if p.Profit >= 0 {
		s.Wins++
		s.Profit += p.Profit
	} else {
		s.Losses++
		s.Loss -= p.Profit
	}
	s.sumProfitPct += p.ProfitPct
	s.sumRunUp += p.RunUpPct()
	s.sumDrawdown += p.DrawdownPct()
}

// finish turns the running sums into averages; an empty group averages zero.
func (s *Stats) finish() {
	if s.Count == 0 {
		s.AvgProfitPct, s.AvgRunUpPct, s.AvgDrawdownPct = 0, 0, 0
		return
	}
	n := float64(s.Count)
	s.AvgProfitPct = s.sumProfitPct / n
	s.AvgRunUpPct = s.sumRunUp / n
	s.AvgDrawdownPct = s.sumDrawdown / n
}

// WinRate is the share of winning positions in percent, zero for an empty
// group.
func (s Stats) WinRate() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Count) * 100
}
