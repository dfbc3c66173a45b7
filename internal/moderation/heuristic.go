package moderation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/worldpulse/internal/config"
)

// Heuristic is the local prefilter run before any remote review.
type Heuristic struct {
	rules *config.ModerationRulesHolder
}

func NewHeuristic(rules *config.ModerationRulesHolder) *Heuristic {
	return &Heuristic{rules: rules}
}

func (h *Heuristic) Review(_ context.Context, text string, options []string) (Verdict, error) {
	rules := h.rules.Get()
	text = strings.TrimSpace(text)

	length := utf8.RuneCountInString(text)
	if length < rules.QuestionMinLength || length > rules.QuestionMaxLength {
		return deny(fmt.Sprintf("Question must be between %d and %d characters", rules.QuestionMinLength, rules.QuestionMaxLength)), nil
	}
	if !strings.HasSuffix(text, "?") {
		return deny("Question must end with a question mark"), nil
	}
	if len(options) < rules.MinOptions || len(options) > rules.MaxOptions {
		return deny(fmt.Sprintf("Provide between %d and %d options", rules.MinOptions, rules.MaxOptions)), nil
	}

	seen := make(map[string]struct{}, len(options))
	for _, option := range options {
		option = strings.TrimSpace(option)
		n := utf8.RuneCountInString(option)
		if n == 0 || n > rules.OptionMaxLength {
			return deny(fmt.Sprintf("Options must be between 1 and %d characters", rules.OptionMaxLength)), nil
		}
		key := strings.ToLower(option)
		if _, dup := seen[key]; dup {
			return deny("Options must be unique"), nil
		}
		seen[key] = struct{}{}
	}

	for _, content := range append([]string{text}, options...) {
		for _, re := range rules.Patterns {
			if re.MatchString(content) {
				return deny("Content contains inappropriate or disallowed language"), nil
			}
		}
		if longestRun(content) >= rules.RepeatedRunLimit {
			return deny("Content contains too many repeated characters"), nil
		}
	}
	return allow(), nil
}

// longestRun returns the length of the longest run of one repeated rune.
func longestRun(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
