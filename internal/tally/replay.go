package tally

import (
	"strings"

	ledgerdomain "github.com/smallbiznis/worldpulse/internal/ledger/domain"
)

// Rebuilt is actor state derived from ledger rows.
type Rebuilt struct {
	Counters map[string]CounterState
	Global   GlobalState
}

// Replay folds votes, in ledger order, into fresh counter and aggregate state.
func Replay(votes []ledgerdomain.Vote) Rebuilt {
	out := Rebuilt{
		Counters: map[string]CounterState{},
		Global:   NewGlobalState(),
	}
	for _, v := range votes {
		country := strings.ToUpper(strings.TrimSpace(v.CountryCode))
		if country == "" {
			country = UnknownCountry
		}
		counter, ok := out.Counters[country]
		if !ok {
			counter = NewCounterState()
		}
		counter.add(v.OptionID, 1)
		out.Counters[country] = counter

		out.Global.add(v.OptionID, country, 1)
		if v.VotedAt.After(out.Global.LastUpdated) {
			out.Global.LastUpdated = v.VotedAt
		}
	}
	return out
}
