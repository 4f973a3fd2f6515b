package valuation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookswap/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	reply string
	err   error
	delay time.Duration
}

func (s stubModel) Complete(ctx context.Context, _ string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.reply, s.err
}

func TestRuleBasedScenarios(t *testing.T) {
	cases := []struct {
		condition       string
		similar, demand int
		want            int
	}{
		{domain.ConditionAcceptable, 12, 0, 60},
		{domain.ConditionNew, 0, 10, 340},
		{domain.ConditionGood, 6, 0, 100},
		{domain.ConditionVeryGood, 1, 1, 150},
		{domain.ConditionLikeNew, 4, 5, 190},
		{"MINT", 8, 0, 100},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%d/%d", tc.condition, tc.similar, tc.demand), func(t *testing.T) {
			assert.Equal(t, tc.want, RuleBased(tc.condition, tc.similar, tc.demand))
		})
	}
}

func TestRuleBasedIsBoundedAndDeterministic(t *testing.T) {
	conditions := append([]string{"UNKNOWN"}, domain.Conditions...)
	for _, c := range conditions {
		for similar := 0; similar <= 15; similar++ {
			for demand := 0; demand <= 15; demand++ {
				v := RuleBased(c, similar, demand)
				assert.GreaterOrEqual(t, v, domain.MinPointValue)
				assert.LessOrEqual(t, v, domain.MaxPointValue)
				assert.Zero(t, v%10)
				assert.Equal(t, v, RuleBased(c, similar, demand))
			}
		}
	}
}

func TestEstimateUsesModelReply(t *testing.T) {
	e := NewEstimator(stubModel{reply: "Sure! Here you go:\n```json\n{\"points\": 234, \"reasoning\": \"Classic in good shape\"}\n```"}, time.Second, nil)
	est := e.Estimate(context.Background(), Input{Title: "Dune", Author: "Frank Herbert", Condition: domain.ConditionGood})
	assert.Equal(t, 230, est.Points)
	assert.Equal(t, SourceModel, est.Source)
	assert.Equal(t, "Classic in good shape", est.Reasoning)
}

func TestEstimateFallsBack(t *testing.T) {
	in := Input{Title: "Emma", Author: "Jane Austen", Condition: domain.ConditionAcceptable, SimilarListings: 12}
	cases := map[string]Model{
		"no model":         nil,
		"transport error":  stubModel{err: errors.New("connection refused")},
		"no json":          stubModel{reply: "I think about 120 points."},
		"missing points":   stubModel{reply: `{"reasoning": "hard to say"}`},
		"points as string": stubModel{reply: `{"points": "120"}`},
		"too high":         stubModel{reply: `{"points": 900}`},
		"too low":          stubModel{reply: `{"points": 10}`},
		"timeout":          stubModel{reply: `{"points": 200}`, delay: time.Second},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			e := NewEstimator(m, 20*time.Millisecond, nil)
			est := e.Estimate(context.Background(), in)
			assert.Equal(t, 60, est.Points)
			assert.Equal(t, SourceFallback, est.Source)
		})
	}
}

func TestParseReplyTakesFirstWellFormedObject(t *testing.T) {
	points, reasoning, err := ParseReply(`noise {broken {"points": 55, "reasoning": "worn"} {"points": 400}`)
	require.NoError(t, err)
	assert.Equal(t, 60, points)
	assert.Equal(t, "worn", reasoning)

	points, _, err = ParseReply(`{"points": 500}`)
	require.NoError(t, err)
	assert.Equal(t, 500, points)

	_, _, err = ParseReply(`{"points": 1e999}`)
	assert.Error(t, err)
}

func TestOpenAIModelComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"cmpl-1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"points\": 180, \"reasoning\": \"ok\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	m := NewOpenAIModel("sk-test", srv.URL+"/v1", "gpt-4o-mini")
	require.NotNil(t, m)
	e := NewEstimator(m, time.Second, nil)
	est := e.Estimate(context.Background(), Input{Title: "Dune", Author: "Frank Herbert", Condition: domain.ConditionNew})
	assert.Equal(t, 180, est.Points)
	assert.Equal(t, SourceModel, est.Source)
}

func TestNewOpenAIModelWithoutKey(t *testing.T) {
	assert.Nil(t, NewOpenAIModel("", "", "gpt-4o-mini"))
}
