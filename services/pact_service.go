// services/pact_service.go
package services

import (
	"errors"

	"pact-oracle/store"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type PactService struct {
	Store *store.Store
	log   zerolog.Logger
}

func NewPactService(st *store.Store, log zerolog.Logger) *PactService {
	return &PactService{Store: st, log: log}
}

// GetAllPacts lists every mirrored pact. Debug surface.
func (s *PactService) GetAllPacts(c *fiber.Ctx) error {
	pacts, err := s.Store.ListPacts(c.UserContext())
	if err != nil {
		s.log.Error().Err(err).Msg("list pacts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load pacts"})
	}
	return c.JSON(pacts)
}

func (s *PactService) GetPact(c *fiber.Ctx) error {
	pact, err := s.Store.GetPact(c.UserContext(), c.Params("address"))
	return s.respond(c, pact, err)
}

func (s *PactService) GetPactByCode(c *fiber.Ctx) error {
	pact, err := s.Store.GetPactByCode(c.UserContext(), c.Params("code"))
	return s.respond(c, pact, err)
}

func (s *PactService) respond(c *fiber.Ctx, v interface{}, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pact not found"})
	}
	if err != nil {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("load pact")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load pact"})
	}
	return c.JSON(v)
}
