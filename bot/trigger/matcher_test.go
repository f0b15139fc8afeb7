package trigger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"WhatsFlow/bot/flow"
	"WhatsFlow/bot/script"
	"WhatsFlow/entity"
)

type memFlows struct {
	flows []flow.Definition
}

func (s *memFlows) Get(_ context.Context, name string) (*flow.Definition, error) {
	for i := range s.flows {
		if s.flows[i].Name == name {
			return &s.flows[i], nil
		}
	}
	return nil, nil
}

func (s *memFlows) ListEnabled(_ context.Context, account string) ([]flow.Definition, error) {
	var out []flow.Definition
	for _, d := range s.flows {
		if d.Enabled && (d.Account == "" || d.Account == account) {
			out = append(out, d)
		}
	}
	return out, nil
}

type memRules struct {
	rules []entity.KeywordRule
}

func (s *memRules) ListRules(_ context.Context) ([]entity.KeywordRule, error) {
	return s.rules, nil
}

func newMatcher(flows []flow.Definition, rules []entity.KeywordRule) *Matcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	scripts := script.NewEngine(time.Second, log)
	return NewMatcher(&memFlows{flows: flows}, &memRules{rules: rules}, scripts, log)
}

func TestResolveFlowByKeyword(t *testing.T) {
	m := newMatcher([]flow.Definition{
		{Name: "Order", Enabled: true, TriggerKeywords: "order, buy now"},
		{Name: "Support", Enabled: true, TriggerKeywords: "help"},
		{Name: "Disabled", Enabled: false, TriggerKeywords: "secret"},
	}, nil)
	ctx := context.Background()

	d, err := m.ResolveFlow(ctx, "  ORDER ", "", "acc")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "Order", d.Name)

	d, err = m.ResolveFlow(ctx, "buy now", "", "acc")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "Order", d.Name)

	// partial text is not a trigger
	d, err = m.ResolveFlow(ctx, "I want to order pizza", "", "acc")
	require.NoError(t, err)
	require.Nil(t, d)

	// disabled flows never trigger
	d, err = m.ResolveFlow(ctx, "secret", "", "acc")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestResolveFlowByButton(t *testing.T) {
	m := newMatcher([]flow.Definition{
		{Name: "Feedback", Enabled: true, TriggerButton: "BTN_FEEDBACK"},
	}, nil)

	d, err := m.ResolveFlow(context.Background(), "Feedback", "BTN_FEEDBACK", "acc")
	require.NoError(t, err)
	require.NotNil(t, d)
	require.Equal(t, "Feedback", d.Name)

	d, err = m.ResolveFlow(context.Background(), "", "BTN_OTHER", "acc")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestResolveFlowAccountScope(t *testing.T) {
	m := newMatcher([]flow.Definition{
		{Name: "Shared", Enabled: true, TriggerKeywords: "hi"},
		{Name: "Scoped", Enabled: true, Account: "other", TriggerKeywords: "hi there"},
	}, nil)

	d, err := m.ResolveFlow(context.Background(), "hi there", "", "acc")
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestMatchRuleTypes(t *testing.T) {
	rules := []entity.KeywordRule{
		{Name: "exact", Enabled: true, Keywords: "price", MatchType: entity.MatchExact, ResponseType: entity.ReplyText},
		{Name: "contains", Enabled: true, Keywords: "refund", MatchType: entity.MatchContains, ResponseType: entity.ReplyText},
		{Name: "starts", Enabled: true, Keywords: "hello", MatchType: entity.MatchStartsWith, ResponseType: entity.ReplyText},
		{Name: "regex", Enabled: true, Keywords: `\border\s+\d+\b`, MatchType: entity.MatchRegex, ResponseType: entity.ReplyText},
	}
	m := newMatcher(nil, rules)
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{"PRICE", "exact"},
		{"can I get a refund?", "contains"},
		{"Hello there", "starts"},
		{"status of Order 1234 please", "regex"},
	}
	for _, tc := range tests {
		rule, err := m.MatchRule(ctx, tc.text, "acc")
		require.NoError(t, err)
		require.NotNil(t, rule, tc.text)
		require.Equal(t, tc.want, rule.Name)
	}

	rule, err := m.MatchRule(ctx, "nothing relevant", "acc")
	require.NoError(t, err)
	require.Nil(t, rule)
}

func TestMatchRulePriorityWins(t *testing.T) {
	rules := []entity.KeywordRule{
		{Name: "low", Enabled: true, Keywords: "deal", MatchType: entity.MatchContains, Priority: 1},
		{Name: "high", Enabled: true, Keywords: "deal", MatchType: entity.MatchContains, Priority: 10},
	}
	m := newMatcher(nil, rules)

	rule, err := m.MatchRule(context.Background(), "any deal today?", "acc")
	require.NoError(t, err)
	require.Equal(t, "high", rule.Name)
}

func TestMatchRuleActiveWindow(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	rules := []entity.KeywordRule{
		{Name: "expired", Enabled: true, Keywords: "promo", MatchType: entity.MatchExact, ActiveUntil: &past},
		{Name: "upcoming", Enabled: true, Keywords: "promo", MatchType: entity.MatchExact, ActiveFrom: &future},
		{Name: "live", Enabled: true, Keywords: "promo", MatchType: entity.MatchExact, ActiveFrom: &past, ActiveUntil: &future},
	}
	m := newMatcher(nil, rules)

	rule, err := m.MatchRule(context.Background(), "promo", "acc")
	require.NoError(t, err)
	require.Equal(t, "live", rule.Name)
}

func TestMatchRuleConditionGate(t *testing.T) {
	rules := []entity.KeywordRule{
		{
			Name: "gated", Enabled: true, Keywords: "vip", MatchType: entity.MatchContains,
			Condition: `data.message.length > 20`,
		},
	}
	m := newMatcher(nil, rules)
	ctx := context.Background()

	rule, err := m.MatchRule(ctx, "vip", "acc")
	require.NoError(t, err)
	require.Nil(t, rule)

	rule, err = m.MatchRule(ctx, "please enroll me in the vip program", "acc")
	require.NoError(t, err)
	require.NotNil(t, rule)
}

func TestMatchRuleCaseSensitive(t *testing.T) {
	rules := []entity.KeywordRule{
		{Name: "cs", Enabled: true, Keywords: "API", MatchType: entity.MatchExact, CaseSensitive: true},
	}
	m := newMatcher(nil, rules)

	rule, err := m.MatchRule(context.Background(), "api", "acc")
	require.NoError(t, err)
	require.Nil(t, rule)

	rule, err = m.MatchRule(context.Background(), "API", "acc")
	require.NoError(t, err)
	require.NotNil(t, rule)
}
