// services/player_service.go
package services

import (
	"encoding/base64"
	"errors"
	"strings"

	"pact-oracle/program"
	"pact-oracle/store"

	"github.com/gagliardetto/solana-go"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type PlayerService struct {
	Store *store.Store
	Relay *RelayService
	log   zerolog.Logger
}

func NewPlayerService(st *store.Store, relay *RelayService, log zerolog.Logger) *PlayerService {
	return &PlayerService{Store: st, Relay: relay, log: log}
}

type createPlayerRequest struct {
	Address          string `json:"address"`
	Name             string `json:"name"`
	ExternalIdentity string `json:"external_identity"`
	Transaction      string `json:"transaction"`
}

// CreatePlayer relays the client-signed initializePlayerProfile transaction
// for address and attaches the external identity to the new profile.
func (s *PlayerService) CreatePlayer(c *fiber.Ctx) error {
	var req createPlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.Address = strings.TrimSpace(req.Address)
	req.Name = strings.TrimSpace(req.Name)
	if req.Address == "" || req.Name == "" || req.Transaction == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "address, name and transaction are required"})
	}
	player, err := solana.PublicKeyFromBase58(req.Address)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "address is not a valid public key"})
	}

	ctx := c.UserContext()
	existing, err := s.Store.GetProfile(ctx, req.Address)
	switch {
	case err == nil && existing.Name != "":
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "profile already exists"})
	case err != nil && !errors.Is(err, store.ErrNotFound):
		s.log.Error().Err(err).Msg("load profile")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load profile"})
	}

	raw, err := base64.StdEncoding.DecodeString(req.Transaction)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "transaction must be base64"})
	}
	if err := expectProfileInit(raw, player); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sig, err := s.Relay.Relay(ctx, raw, Metadata{ExternalIdentity: req.ExternalIdentity})
	if err != nil {
		return c.Status(StatusCode(err)).JSON(fiber.Map{"error": PublicMessage(err)})
	}
	s.log.Info().Str("player", req.Address).Str("signature", sig.String()).Msg("👤 Profile created")
	return c.JSON(fiber.Map{"signature": sig.String()})
}

// expectProfileInit checks raw is a single initializePlayerProfile for player.
func expectProfileInit(raw []byte, player solana.PublicKey) error {
	tx, err := program.DecodeTransaction(raw)
	if err != nil {
		return errors.New("transaction could not be decoded")
	}
	ixs, err := program.DecodeInstructions(tx)
	if err != nil || len(ixs) != 1 {
		return errors.New("transaction must contain exactly one initializePlayerProfile instruction")
	}
	ix, ok := ixs[0].(program.InitializePlayerProfile)
	if !ok {
		return errors.New("transaction must contain exactly one initializePlayerProfile instruction")
	}
	if !ix.Player.Equals(player) {
		return errors.New("transaction initializes a different player")
	}
	return nil
}

func (s *PlayerService) GetPlayer(c *fiber.Ctx) error {
	profile, err := s.Store.GetProfile(c.UserContext(), c.Params("address"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "player not found"})
	}
	if err != nil {
		s.log.Error().Err(err).Msg("load profile")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load player"})
	}
	return c.JSON(profile)
}

func (s *PlayerService) GetPlayerPacts(c *fiber.Ctx) error {
	pacts, err := s.Store.ListPactsForPlayer(c.UserContext(), c.Params("address"))
	if err != nil {
		s.log.Error().Err(err).Msg("list player pacts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load pacts"})
	}
	return c.JSON(pacts)
}

// DeletePlayer removes a profile and its participant rows from the mirror.
// Admin only; the ledger account is untouched.
func (s *PlayerService) DeletePlayer(c *fiber.Ctx) error {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Address) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "address is required"})
	}
	err := s.Store.DeleteProfile(c.UserContext(), strings.TrimSpace(req.Address))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "player not found"})
	}
	if err != nil {
		s.log.Error().Err(err).Msg("delete profile")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete player"})
	}
	s.log.Warn().Str("player", req.Address).Msg("🗑️ Profile deleted from mirror")
	return c.JSON(fiber.Map{"deleted": req.Address})
}
