package tally

import (
	"sort"
	"time"
)

// CounterState is the tally of one question in one country.
type CounterState struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

func NewCounterState() CounterState {
	return CounterState{Counts: map[string]int64{}}
}

func (s CounterState) Clone() CounterState {
	out := CounterState{Counts: make(map[string]int64, len(s.Counts)), Total: s.Total}
	for k, v := range s.Counts {
		out.Counts[k] = v
	}
	return out
}

func (s *CounterState) add(optionID string, delta int64) {
	if s.Counts == nil {
		s.Counts = map[string]int64{}
	}
	next := s.Counts[optionID] + delta
	if next <= 0 {
		delete(s.Counts, optionID)
	} else {
		s.Counts[optionID] = next
	}
	s.Total += delta
}

// GlobalState is the aggregate tally of one question across all countries.
type GlobalState struct {
	Options     map[string]int64
	Countries   map[string]CounterState
	LastUpdated time.Time
}

func NewGlobalState() GlobalState {
	return GlobalState{
		Options:   map[string]int64{},
		Countries: map[string]CounterState{},
	}
}

func (s GlobalState) Clone() GlobalState {
	out := GlobalState{
		Options:     make(map[string]int64, len(s.Options)),
		Countries:   make(map[string]CounterState, len(s.Countries)),
		LastUpdated: s.LastUpdated,
	}
	for k, v := range s.Options {
		out.Options[k] = v
	}
	for k, v := range s.Countries {
		out.Countries[k] = v.Clone()
	}
	return out
}

func (s *GlobalState) add(optionID, countryCode string, delta int64) {
	if s.Options == nil {
		s.Options = map[string]int64{}
	}
	if s.Countries == nil {
		s.Countries = map[string]CounterState{}
	}
	if next := s.Options[optionID] + delta; next <= 0 {
		delete(s.Options, optionID)
	} else {
		s.Options[optionID] = next
	}
	country := s.Countries[countryCode]
	country.add(optionID, delta)
	if country.Total <= 0 {
		delete(s.Countries, countryCode)
	} else {
		s.Countries[countryCode] = country
	}
}

func (s GlobalState) Total() int64 {
	var total int64
	for _, v := range s.Options {
		total += v
	}
	return total
}

type OptionCount struct {
	OptionID string `json:"optionId"`
	Count    int64  `json:"count"`
}

type CountryTally struct {
	CountryCode string        `json:"countryCode"`
	Votes       []OptionCount `json:"votes"`
	Total       int64         `json:"total"`
}

// GlobalTally is the wire shape pushed to subscribers and returned to voters.
type GlobalTally struct {
	QuestionID  string         `json:"questionId"`
	TotalVotes  int64          `json:"totalVotes"`
	Options     []OptionCount  `json:"options"`
	ByCountry   []CountryTally `json:"byCountry"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

// Count returns the votes for optionID.
func (t GlobalTally) Count(optionID string) int64 {
	for _, o := range t.Options {
		if o.OptionID == optionID {
			return o.Count
		}
	}
	return 0
}

// Format renders state with options ordered by id and countries by code.
func Format(questionID string, s GlobalState) GlobalTally {
	out := GlobalTally{
		QuestionID:  questionID,
		TotalVotes:  s.Total(),
		Options:     sortedCounts(s.Options),
		ByCountry:   make([]CountryTally, 0, len(s.Countries)),
		LastUpdated: s.LastUpdated,
	}
	codes := make([]string, 0, len(s.Countries))
	for code := range s.Countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		country := s.Countries[code]
		out.ByCountry = append(out.ByCountry, CountryTally{
			CountryCode: code,
			Votes:       sortedCounts(country.Counts),
			Total:       country.Total,
		})
	}
	return out
}

func sortedCounts(counts map[string]int64) []OptionCount {
	out := make([]OptionCount, 0, len(counts))
	for id, count := range counts {
		out = append(out, OptionCount{OptionID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OptionID < out[j].OptionID })
	return out
}
