// Package trigger resolves what an inbound message should start when no
// session is active: a flow (keyword or button trigger) or a static
// keyword reply rule.
package trigger

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"WhatsFlow/bot/flow"
	"WhatsFlow/entity"
	"WhatsFlow/internal/lib/sl"
)

// RuleStore provides enabled keyword rules.
type RuleStore interface {
	ListRules(ctx context.Context) ([]entity.KeywordRule, error)
}

// ConditionEvaluator gates a rule with an authored boolean script. The
// script sees the inbound text as `data.message`.
type ConditionEvaluator interface {
	EvalCondition(script string, vars map[string]any) (bool, error)
}

// Matcher resolves flow triggers and keyword rules.
type Matcher struct {
	flows   flow.Store
	rules   RuleStore
	scripts ConditionEvaluator
	log     *slog.Logger
}

// NewMatcher creates a trigger matcher.
func NewMatcher(flows flow.Store, rules RuleStore, scripts ConditionEvaluator, log *slog.Logger) *Matcher {
	return &Matcher{
		flows:   flows,
		rules:   rules,
		scripts: scripts,
		log:     log.With(sl.Module("trigger")),
	}
}

// ResolveFlow returns the flow triggered by the message, or nil. A
// button payload matches a flow's button trigger exactly; text matches
// the comma-separated trigger keywords case-insensitively.
func (m *Matcher) ResolveFlow(ctx context.Context, text, buttonPayload, account string) (*flow.Definition, error) {
	flows, err := m.flows.ListEnabled(ctx, account)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(text))
	for i := range flows {
		d := &flows[i]
		if buttonPayload != "" && d.TriggerButton != "" && buttonPayload == d.TriggerButton {
			return d, nil
		}
		if needle == "" || d.TriggerKeywords == "" {
			continue
		}
		for _, keyword := range strings.Split(d.TriggerKeywords, ",") {
			if k := strings.ToLower(strings.TrimSpace(keyword)); k != "" && k == needle {
				return d, nil
			}
		}
	}
	return nil, nil
}

// MatchRule returns the highest-priority keyword rule matching the
// message, or nil.
func (m *Matcher) MatchRule(ctx context.Context, text, account string) (*entity.KeywordRule, error) {
	if text == "" {
		return nil, nil
	}

	rules, err := m.rules.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	now := time.Now()
	for i := range rules {
		rule := &rules[i]
		if rule.Account != "" && rule.Account != account {
			continue
		}
		if rule.ActiveFrom != nil && now.Before(*rule.ActiveFrom) {
			continue
		}
		if rule.ActiveUntil != nil && now.After(*rule.ActiveUntil) {
			continue
		}
		if !m.ruleMatches(rule, text) {
			continue
		}
		if rule.Condition != "" {
			ok, err := m.scripts.EvalCondition(rule.Condition, map[string]any{"message": text})
			if err != nil {
				m.log.With(slog.String("rule", rule.Name), sl.Err(err)).Warn("rule condition failed")
				continue
			}
			if !ok {
				continue
			}
		}
		return rule, nil
	}
	return nil, nil
}

func (m *Matcher) ruleMatches(rule *entity.KeywordRule, text string) bool {
	if rule.Keywords == "" {
		return false
	}

	haystack := text
	if !rule.CaseSensitive {
		haystack = strings.ToLower(text)
	}

	for _, keyword := range strings.Split(rule.Keywords, ",") {
		k := strings.TrimSpace(keyword)
		if k == "" {
			continue
		}
		if !rule.CaseSensitive && rule.MatchType != entity.MatchRegex {
			k = strings.ToLower(k)
		}

		switch rule.MatchType {
		case entity.MatchExact:
			if haystack == k {
				return true
			}
		case entity.MatchContains:
			if strings.Contains(haystack, k) {
				return true
			}
		case entity.MatchStartsWith:
			if strings.HasPrefix(haystack, k) {
				return true
			}
		case entity.MatchRegex:
			if !rule.CaseSensitive {
				k = "(?i)" + k
			}
			re, err := regexp.Compile(k)
			if err != nil {
				m.log.With(slog.String("rule", rule.Name), sl.Err(err)).Warn("invalid rule regex")
				continue
			}
			if re.MatchString(text) {
				return true
			}
		}
	}
	return false
}
