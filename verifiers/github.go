// verifiers/github.go
package verifiers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pact-oracle/config"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const contributionsQuery = `query($login: String!, $from: DateTime!, $to: DateTime!) {
  user(login: $login) {
    contributionsCollection(from: $from, to: $to) {
      contributionCalendar {
        weeks {
          contributionDays {
            date
            contributionCount
          }
        }
      }
    }
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type contributionsResponse struct {
	Data struct {
		User *struct {
			ContributionsCollection struct {
				ContributionCalendar struct {
					Weeks []struct {
						ContributionDays []struct {
							Date              string `json:"date"`
							ContributionCount uint64 `json:"contributionCount"`
						} `json:"contributionDays"`
					} `json:"weeks"`
				} `json:"contributionCalendar"`
			} `json:"contributionsCollection"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GitHub checks daily contribution counts through the GraphQL API.
type GitHub struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	log      zerolog.Logger
}

func NewGitHub(cfg config.GitHubConfig, oracle config.OracleConfig, client *http.Client, log zerolog.Logger) *GitHub {
	limit := rate.Inf
	burst := 1
	if oracle.VerifyRate > 0 {
		limit = rate.Limit(oracle.VerifyRate)
		if b := int(oracle.VerifyRate); b > 1 {
			burst = b
		}
	}
	return &GitHub{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  oracle.VerifyTimeout,
		log:      log,
	}
}

func (g *GitHub) GoalMet(ctx context.Context, identity string, threshold uint64, asOf time.Time) (Outcome, error) {
	if strings.TrimSpace(identity) == "" {
		return Unavailable, errors.New("no github username on profile")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Unavailable, errors.Wrap(err, "github rate limiter")
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	day := asOf.UTC().Truncate(24 * time.Hour)
	count, err := g.contributions(ctx, identity, day)
	if err != nil {
		return Unavailable, err
	}
	g.log.Debug().Str("identity", identity).Uint64("contributions", count).Uint64("threshold", threshold).Msg("github contributions")
	if count >= threshold {
		return Met, nil
	}
	return NotMet, nil
}

// contributions returns the contribution count for day; a day absent from
// the calendar counts as zero.
func (g *GitHub) contributions(ctx context.Context, login string, day time.Time) (uint64, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: contributionsQuery,
		Variables: map[string]interface{}{
			"login": login,
			"from":  day.Format(time.RFC3339),
			"to":    day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
		},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "github request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("github returned %d", resp.StatusCode)
	}

	var out contributionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, errors.Wrap(err, "decode github response")
	}
	if len(out.Errors) > 0 {
		return 0, fmt.Errorf("github: %s", out.Errors[0].Message)
	}
	if out.Data.User == nil {
		return 0, fmt.Errorf("github user %q not found", login)
	}

	date := day.Format("2006-01-02")
	for _, w := range out.Data.User.ContributionsCollection.ContributionCalendar.Weeks {
		for _, d := range w.ContributionDays {
			if d.Date == date {
				return d.ContributionCount, nil
			}
		}
	}
	return 0, nil
}
