package cli

import (
	"context"
	"strings"

	"pact-oracle/config"
	"pact-oracle/database"
	"pact-oracle/ledger"
	"pact-oracle/logger"
	"pact-oracle/models"
	"pact-oracle/program"
	"pact-oracle/services"
	"pact-oracle/store"
	"pact-oracle/utils"
	"pact-oracle/verifiers"
	"pact-oracle/workers"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// components is the wired service graph shared by every command that
// touches the ledger or the mirror.
type components struct {
	cfg     *config.Config
	store   *store.Store
	program *program.Program
	ledger  ledger.Client
	relay   *services.RelayService
	oracle  *services.OracleService
	indexer *workers.Indexer
	close   func()
}

func build(ctx context.Context, cfg *config.Config, root zerolog.Logger) (*components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := database.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	prog, err := program.Parse(cfg.Ledger.ProgramID)
	if err != nil {
		closeDB()
		return nil, err
	}
	sponsor, err := solana.PrivateKeyFromBase58(strings.TrimSpace(cfg.Ledger.SponsorKey))
	if err != nil {
		closeDB()
		return nil, errors.New("APP_VAULT_PRIVATE_KEY is not a valid base58 secret key")
	}

	st := store.New(db)
	client := ledger.NewRPCClient(cfg.Ledger, cfg.Retry, prog, logger.Component(root, "ledger"))

	registry := verifiers.NewRegistry()
	registry.Register(models.GoalDailyGithubContribution,
		verifiers.NewGitHub(cfg.GitHub, cfg.Oracle, utils.HTTPClient, logger.Component(root, "verifier")))

	indexer := workers.NewIndexer(client, st, cfg.Indexer.FetchTimeout, logger.Component(root, "indexer"))
	if cfg.Archive.ArchiveEnabled() {
		archive, err := utils.NewR2Archive(ctx, cfg.Archive)
		if err != nil {
			closeDB()
			return nil, errors.Wrap(err, "failed to initialize snapshot archive")
		}
		indexer.WithArchive(archive)
	}

	relay := services.NewRelayService(client, st, prog, sponsor, cfg.Relay, logger.Component(root, "relay"))
	oracle := services.NewOracleService(st, relay, registry, cfg.Oracle.UnavailablePolicy, logger.Component(root, "oracle"))

	root.Info().
		Str("program", prog.ID.String()).
		Str("sponsor", relay.Sponsor().String()).
		Str("rpc", cfg.Ledger.RPCURL).
		Bool("archive", cfg.Archive.ArchiveEnabled()).
		Msg("🔧 Components ready")

	return &components{
		cfg:     cfg,
		store:   st,
		program: prog,
		ledger:  client,
		relay:   relay,
		oracle:  oracle,
		indexer: indexer,
		close:   closeDB,
	}, nil
}
