package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONTiers(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced code block", "here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{"prose wrapping a balanced object", `Sure, my answer is {"a":1} and that's final.`, `{"a":1}`},
		{"array", `prefix [1,2,3] suffix`, `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestExtractJSONNoneFound(t *testing.T) {
	_, err := ExtractJSON("no json here at all")
	assert.Error(t, err)
}

type scriptedProvider struct {
	replies []string
	calls   int
}

func (p *scriptedProvider) Complete(ctx context.Context, system, user string) (string, error) {
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return p.replies[i], nil
}

type payload struct {
	Ticker string `json:"ticker"`
}

func TestChatJSONSucceedsFirstTry(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"ticker":"AAPL"}`}}
	a := NewAdapter(p, NewBudget(60), 2)

	var out payload
	require.NoError(t, a.ChatJSON(context.Background(), "sys", "usr", &out))
	assert.Equal(t, "AAPL", out.Ticker)
	assert.Equal(t, 1, p.calls)
}

func TestChatJSONReasksOnUnparseableReply(t *testing.T) {
	p := &scriptedProvider{replies: []string{"not json at all", `{"ticker":"MSFT"}`}}
	a := NewAdapter(p, NewBudget(60), 2)

	var out payload
	require.NoError(t, a.ChatJSON(context.Background(), "sys", "usr", &out))
	assert.Equal(t, "MSFT", out.Ticker)
	assert.Equal(t, 2, p.calls)
}

func TestChatJSONGivesUpAfterMaxReask(t *testing.T) {
	p := &scriptedProvider{replies: []string{"nope", "still nope", "nope again"}}
	a := NewAdapter(p, NewBudget(60), 2)

	var out payload
	err := a.ChatJSON(context.Background(), "sys", "usr", &out)
	assert.Error(t, err)
	assert.Equal(t, 3, p.calls) // initial try + 2 re-asks
}

func TestChatJSONReturnsErrWhenBudgetExhausted(t *testing.T) {
	p := &scriptedProvider{replies: []string{`{"ticker":"AAPL"}`}}
	budget := NewBudget(1)
	require.True(t, budget.Acquire()) // consume the only token

	a := NewAdapter(p, budget, 2)
	var out payload
	err := a.ChatJSON(context.Background(), "sys", "usr", &out)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 0, p.calls)
}

func TestBudgetStatsTracksGrantsAndRejections(t *testing.T) {
	b := NewBudget(1)
	assert.True(t, b.Acquire())
	assert.False(t, b.Acquire())
	stats := b.Stats()
	assert.Equal(t, int64(1), stats.Granted)
	assert.Equal(t, int64(1), stats.Rejected)
}
