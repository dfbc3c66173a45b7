package config

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ModerationRules tunes the heuristic submission prefilter. It is read from
// moderation.yml and reloaded when the file changes.
type ModerationRules struct {
	BlockedPatterns   []string `mapstructure:"blockedPatterns"`
	QuestionMinLength int      `mapstructure:"questionMinLength"`
	QuestionMaxLength int      `mapstructure:"questionMaxLength"`
	OptionMaxLength   int      `mapstructure:"optionMaxLength"`
	MinOptions        int      `mapstructure:"minOptions"`
	MaxOptions        int      `mapstructure:"maxOptions"`
	// RepeatedRunLimit rejects text containing this many identical characters in a row.
	RepeatedRunLimit int `mapstructure:"repeatedRunLimit"`
}

func DefaultModerationRules() ModerationRules {
	return ModerationRules{
		BlockedPatterns: []string{
			`(?i)\b(n[i1]gg|f[a4]g|k[i1]ke|sp[i1]c|ch[i1]nk)\w*`,
			`(?i)\b(porn|xxx|nude|naked)\b`,
			`(?i)\b(http|www\.)\S+`,
			`[A-Z]{10,}`,
		},
		QuestionMinLength: 10,
		QuestionMaxLength: 100,
		OptionMaxLength:   30,
		MinOptions:        2,
		MaxOptions:        4,
		RepeatedRunLimit:  6,
	}
}

// CompiledModerationRules carries the validated rules with their patterns compiled.
type CompiledModerationRules struct {
	ModerationRules
	Patterns []*regexp.Regexp
}

type ModerationRulesHolder struct {
	current atomic.Value // holds CompiledModerationRules
}

// NewStaticModerationRulesHolder serves fixed rules without watching any file.
func NewStaticModerationRulesHolder(rules ModerationRules) (*ModerationRulesHolder, error) {
	compiled, err := compileModerationRules(rules)
	if err != nil {
		return nil, err
	}
	holder := &ModerationRulesHolder{}
	holder.current.Store(compiled)
	return holder, nil
}

func NewModerationRulesHolder() (*ModerationRulesHolder, error) {
	v := viper.New()

	v.SetConfigName("moderation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/worldpulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WORLDPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	defaults := DefaultModerationRules()
	v.SetDefault("moderation.blockedPatterns", defaults.BlockedPatterns)
	v.SetDefault("moderation.questionMinLength", defaults.QuestionMinLength)
	v.SetDefault("moderation.questionMaxLength", defaults.QuestionMaxLength)
	v.SetDefault("moderation.optionMaxLength", defaults.OptionMaxLength)
	v.SetDefault("moderation.minOptions", defaults.MinOptions)
	v.SetDefault("moderation.maxOptions", defaults.MaxOptions)
	v.SetDefault("moderation.repeatedRunLimit", defaults.RepeatedRunLimit)

	rules := defaults
	if err := v.UnmarshalKey("moderation", &rules); err != nil {
		return nil, err
	}
	compiled, err := compileModerationRules(rules)
	if err != nil {
		return nil, err
	}

	holder := &ModerationRulesHolder{}
	holder.current.Store(compiled)

	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := DefaultModerationRules()
		if err := v.UnmarshalKey("moderation", &updated); err != nil {
			log.Printf("[moderation-config] reload failed: %v", err)
			return
		}
		next, err := compileModerationRules(updated)
		if err != nil {
			log.Printf("[moderation-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(next)
		log.Printf("[moderation-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ModerationRulesHolder) Get() CompiledModerationRules {
	return h.current.Load().(CompiledModerationRules)
}

func compileModerationRules(rules ModerationRules) (CompiledModerationRules, error) {
	if rules.QuestionMinLength <= 0 || rules.QuestionMaxLength < rules.QuestionMinLength {
		return CompiledModerationRules{}, errors.New("moderation question length bounds are invalid")
	}
	if rules.OptionMaxLength <= 0 {
		return CompiledModerationRules{}, errors.New("moderation.optionMaxLength must be positive")
	}
	if rules.RepeatedRunLimit < 2 {
		return CompiledModerationRules{}, errors.New("moderation.repeatedRunLimit must be at least 2")
	}
	if rules.MinOptions < 2 || rules.MaxOptions < rules.MinOptions {
		return CompiledModerationRules{}, errors.New("moderation option count bounds are invalid")
	}

	patterns := make([]*regexp.Regexp, 0, len(rules.BlockedPatterns))
	for _, raw := range rules.BlockedPatterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return CompiledModerationRules{}, fmt.Errorf("moderation pattern %q: %w", raw, err)
		}
		patterns = append(patterns, re)
	}
	return CompiledModerationRules{ModerationRules: rules, Patterns: patterns}, nil
}
