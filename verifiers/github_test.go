package verifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pact-oracle/config"
	"pact-oracle/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var asOf = time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)

func calendar(date string, count int) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"contributionsCollection": map[string]interface{}{
					"contributionCalendar": map[string]interface{}{
						"weeks": []interface{}{map[string]interface{}{
							"contributionDays": []interface{}{
								map[string]interface{}{"date": date, "contributionCount": count},
							},
						}},
					},
				},
			},
		},
	}
}

func newTestGitHub(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitHub(
		config.GitHubConfig{Endpoint: srv.URL, Token: "secret"},
		config.OracleConfig{VerifyTimeout: timeout},
		srv.Client(),
		zerolog.Nop(),
	)
}

func TestGitHubGoalMet(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "octocat", req.Variables["login"])
		assert.Equal(t, "2024-03-05T00:00:00Z", req.Variables["from"])
		assert.Equal(t, "2024-03-05T23:59:59Z", req.Variables["to"])
		json.NewEncoder(w).Encode(calendar("2024-03-05", 3))
	}, time.Second)

	out, err := g.GoalMet(context.Background(), "octocat", 3, asOf)
	require.NoError(t, err)
	assert.Equal(t, Met, out)

	out, err = g.GoalMet(context.Background(), "octocat", 4, asOf)
	require.NoError(t, err)
	assert.Equal(t, NotMet, out)
}

func TestGitHubMissingDayIsNotMet(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(calendar("2024-03-04", 9))
	}, time.Second)

	out, err := g.GoalMet(context.Background(), "octocat", 1, asOf)
	require.NoError(t, err)
	assert.Equal(t, NotMet, out)
}

func TestGitHubFailuresAreUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"graphql error", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"errors": []interface{}{map[string]interface{}{"message": "Could not resolve to a User"}},
			})
		}},
		{"unknown user", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"user": nil}})
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGitHub(t, tt.handler, 50*time.Millisecond)
			out, err := g.GoalMet(context.Background(), "octocat", 1, asOf)
			assert.Error(t, err)
			assert.Equal(t, Unavailable, out)
		})
	}
}

func TestGitHubEmptyIdentity(t *testing.T) {
	g := newTestGitHub(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, time.Second)
	out, err := g.GoalMet(context.Background(), "  ", 1, asOf)
	assert.Error(t, err)
	assert.Equal(t, Unavailable, out)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(models.GoalDailySteps, VerifierFunc(func(context.Context, string, uint64, time.Time) (Outcome, error) {
		return Met, nil
	}))
	r.Register(models.GoalDailyGithubContribution, VerifierFunc(func(context.Context, string, uint64, time.Time) (Outcome, error) {
		return NotMet, nil
	}))

	v, ok := r.Lookup(models.GoalDailySteps)
	require.True(t, ok)
	out, _ := v.GoalMet(context.Background(), "x", 1, asOf)
	assert.Equal(t, Met, out)

	_, ok = r.Lookup(models.GoalTotalSteps)
	assert.False(t, ok)
	assert.Equal(t, []models.GoalType{models.GoalDailyGithubContribution, models.GoalDailySteps}, r.GoalTypes())
	assert.Equal(t, "not_met", NotMet.String())
}
