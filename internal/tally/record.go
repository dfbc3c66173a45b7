package tally

import "time"

const (
	ScopeCounter = "counter"
	ScopeGlobal  = "global"
)

// Record is the flat persisted form of actor state: one row per
// (scope, question, country, option).
type Record struct {
	Scope       string    `json:"scope"`
	QuestionID  string    `json:"questionId"`
	CountryCode string    `json:"countryCode"`
	OptionID    string    `json:"optionId"`
	Count       int64     `json:"count"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func FlattenCounter(questionID, countryCode string, s CounterState, at time.Time) []Record {
	out := make([]Record, 0, len(s.Counts))
	for optionID, count := range s.Counts {
		out = append(out, Record{
			Scope:       ScopeCounter,
			QuestionID:  questionID,
			CountryCode: countryCode,
			OptionID:    optionID,
			Count:       count,
			UpdatedAt:   at,
		})
	}
	return out
}

// ExpandCounter rebuilds the state from its records. Total is recomputed.
func ExpandCounter(records []Record) CounterState {
	s := NewCounterState()
	for _, r := range records {
		if r.Count <= 0 {
			continue
		}
		s.Counts[r.OptionID] += r.Count
		s.Total += r.Count
	}
	return s
}

// FlattenGlobal stores the per-country breakdown only. Option totals are
// derived from it on expand, so they always equal the sum over countries.
func FlattenGlobal(questionID string, s GlobalState) []Record {
	out := make([]Record, 0, len(s.Countries)*2)
	for code, country := range s.Countries {
		for optionID, count := range country.Counts {
			out = append(out, Record{
				Scope:       ScopeGlobal,
				QuestionID:  questionID,
				CountryCode: code,
				OptionID:    optionID,
				Count:       count,
				UpdatedAt:   s.LastUpdated,
			})
		}
	}
	return out
}

func ExpandGlobal(records []Record) GlobalState {
	s := NewGlobalState()
	for _, r := range records {
		if r.Count <= 0 {
			continue
		}
		s.add(r.OptionID, r.CountryCode, r.Count)
		if r.UpdatedAt.After(s.LastUpdated) {
			s.LastUpdated = r.UpdatedAt
		}
	}
	return s
}
