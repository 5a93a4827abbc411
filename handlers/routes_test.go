package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"pact-oracle/config"
	"pact-oracle/database"
	"pact-oracle/ledger/ledgertest"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/services"
	"pact-oracle/store"

	"github.com/gagliardetto/solana-go"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "admin-s3cret"

type testApp struct {
	app     *fiber.App
	store   *store.Store
	ledger  *ledgertest.Ledger
	prog    *program.Program
	sponsor solana.PrivateKey
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	return newLimitedTestApp(t, 100)
}

func newLimitedTestApp(t *testing.T, limit int) *testApp {
	t.Helper()
	db, err := database.Open("sqlite://" + filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	prog, err := program.Parse(program.DefaultProgramID)
	require.NoError(t, err)
	ta := &testApp{
		app:     fiber.New(),
		store:   store.New(db),
		ledger:  ledgertest.New(),
		prog:    prog,
		sponsor: solana.NewWallet().PrivateKey,
	}

	relayCfg := config.RelayConfig{RateLimitMax: limit, RateLimitWindow: time.Minute, IdempotencyTTL: time.Minute, IdempotencySize: 16}
	relay := services.NewRelayService(ta.ledger, ta.store, prog, ta.sponsor, relayCfg, zerolog.Nop())

	SetupOpsRoutes(ta.app)
	SetupPactRoutes(ta.app, services.NewPactService(ta.store, zerolog.Nop()))
	relayLimit := NewRelayLimit(relayCfg, zerolog.Nop())
	SetupPlayerRoutes(ta.app, services.NewPlayerService(ta.store, relay, zerolog.Nop()), relayLimit, adminToken, zerolog.Nop())
	SetupRelayRoutes(ta.app, relay, relayLimit)
	return ta
}

func (ta *testApp) do(t *testing.T, method, path string, body interface{}, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

// profileTx is a base64 client-signed initializePlayerProfile paid by payer.
func (ta *testApp) profileTx(t *testing.T, payer solana.PublicKey, player solana.PrivateKey, name string) string {
	t.Helper()
	profile, err := ta.prog.ProfileAddress(player.PublicKey())
	require.NoError(t, err)
	ix, err := ta.prog.Build(program.InitializePlayerProfile{
		PlayerProfile: profile,
		AppVault:      ta.sponsor.PublicKey(),
		Player:        player.PublicKey(),
		Name:          name,
	})
	require.NoError(t, err)
	tx, err := program.NewTransaction(payer, solana.Hash{1}, ix)
	require.NoError(t, err)
	_, err = program.Sign(tx, player)
	require.NoError(t, err)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func TestHealthAndMetrics(t *testing.T) {
	ta := newTestApp(t)

	code, body := ta.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = ta.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestPactRoutes(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	code, body := ta.do(t, http.MethodGet, "/api/pacts/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "pact not found", body["error"])

	pact, err := ta.store.CreatePact(ctx, models.Pact{
		Address:            "PACT1",
		Slug:               "ship-daily",
		Name:               "Ship Daily",
		Creator:            "ALICE",
		GoalType:           models.GoalDailyGithubContribution,
		GoalValue:          1,
		VerificationType:   models.VerificationGitHubAPI,
		ComparisonOperator: models.ComparisonGreaterThanOrEqual,
		PactVault:          "VAULT1",
	})
	require.NoError(t, err)
	require.NoError(t, ta.store.AddParticipant(ctx, "PACT1", "BOB"))

	code, body = ta.do(t, http.MethodGet, "/api/pacts/PACT1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Ship Daily", body["name"])
	assert.Len(t, body["participants"], 2)

	code, body = ta.do(t, http.MethodGet, "/api/pacts/code/"+pact.JoinCode, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PACT1", body["address"])

	req := httptest.NewRequest(http.MethodGet, "/api/players/BOB/pacts", nil)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	var pacts []models.Pact
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pacts))
	require.Len(t, pacts, 1)
	assert.Equal(t, "PACT1", pacts[0].Address)
}

func TestCreatePlayer(t *testing.T) {
	ta := newTestApp(t)
	alice := solana.NewWallet().PrivateKey
	txB64 := ta.profileTx(t, ta.sponsor.PublicKey(), alice, "alice")

	code, _ := ta.do(t, http.MethodPost, "/api/players", map[string]string{"address": alice.PublicKey().String()})
	assert.Equal(t, http.StatusBadRequest, code)

	// transaction for somebody else
	code, _ = ta.do(t, http.MethodPost, "/api/players", map[string]string{
		"address":     solana.NewWallet().PublicKey().String(),
		"name":        "alice",
		"transaction": txB64,
	})
	assert.Equal(t, http.StatusBadRequest, code)

	req := map[string]string{
		"address":           alice.PublicKey().String(),
		"name":              "alice",
		"external_identity": "alice-gh",
		"transaction":       txB64,
	}
	code, body := ta.do(t, http.MethodPost, "/api/players", req)
	require.Equal(t, http.StatusOK, code, body)
	assert.NotEmpty(t, body["signature"])

	code, body = ta.do(t, http.MethodGet, "/api/players/"+alice.PublicKey().String(), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", body["name"])
	assert.Equal(t, "alice-gh", body["external_identity"])

	code, _ = ta.do(t, http.MethodPost, "/api/players", req)
	assert.Equal(t, http.StatusConflict, code)
	assert.Len(t, ta.ledger.Submitted(), 1)
}

func TestRelayTransactionRoute(t *testing.T) {
	ta := newTestApp(t)
	alice := solana.NewWallet().PrivateKey

	code, _ := ta.do(t, http.MethodPost, "/api/relay-transaction", map[string]string{"transaction": "%%%"})
	assert.Equal(t, http.StatusBadRequest, code)

	// the client tries to make itself the fee payer
	code, body := ta.do(t, http.MethodPost, "/api/relay-transaction", map[string]string{
		"transaction": ta.profileTx(t, alice.PublicKey(), alice, "alice"),
	})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, body["error"], "unauthorized fee payer")
	assert.Empty(t, ta.ledger.Submitted())

	code, body = ta.do(t, http.MethodPost, "/api/relay-transaction", map[string]interface{}{
		"transaction": ta.profileTx(t, ta.sponsor.PublicKey(), alice, "alice"),
		"metadata":    map[string]string{"external_identity": "alice-gh"},
	})
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["signature"])
}

func TestDeletePlayer(t *testing.T) {
	ta := newTestApp(t)
	require.NoError(t, ta.store.UpsertProfile(context.Background(), "ALICE", "alice", ""))

	code, _ := ta.do(t, http.MethodPost, "/api/delete", map[string]string{"address": "ALICE"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ta.do(t, http.MethodPost, "/api/delete", map[string]string{"address": "ALICE"}, "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusOK, code)

	code, _ = ta.do(t, http.MethodGet, "/api/players/ALICE", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ta.do(t, http.MethodPost, "/api/delete", map[string]string{"address": "ALICE"}, "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRelayLimitIsSharedAcrossSponsoredRoutes(t *testing.T) {
	ta := newLimitedTestApp(t, 2)

	var codes []int
	for _, path := range []string{"/api/players", "/api/relay-transaction", "/api/players", "/api/relay-transaction"} {
		code, _ := ta.do(t, http.MethodPost, path, map[string]string{})
		codes = append(codes, code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)

	// reads are not limited
	code, _ := ta.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}
