// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pact-oracle/config"
	"pact-oracle/metrics"
	"pact-oracle/program"
	"pact-oracle/workers"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Duty names.
const (
	DutyRefresh = "refresh"
	DutyVerify  = "verify"
	DutySettle  = "settle"
)

// ErrDutyRunning is returned when a duty is invoked while its previous
// invocation has not finished.
var ErrDutyRunning = errors.New("duty already running")

type duty struct {
	name     string
	def      gocron.JobDefinition
	startNow bool
	run      func(ctx context.Context) error
	mu       sync.Mutex
}

// Scheduler owns the periodic duties. Each duty runs on its own timer and
// never overlaps itself; different duties may run concurrently.
type Scheduler struct {
	sched  gocron.Scheduler
	duties map[string]*duty
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(indexer *workers.Indexer, oracle *OracleService, idx config.IndexerConfig, orc config.OracleConfig, log zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	s := &Scheduler{sched: sched, duties: make(map[string]*duty), log: log}

	s.add(DutyRefresh, gocron.DurationJob(idx.RefreshInterval), true, func(ctx context.Context) error {
		_, err := indexer.Reconcile(ctx)
		return err
	})

	perKind := map[program.AccountKind]time.Duration{
		program.KindPact:       idx.PactsInterval,
		program.KindProfile:    idx.ProfilesInterval,
		program.KindPlayerGoal: idx.ParticipantsInterval,
	}
	for _, kind := range program.Kinds {
		kind := kind
		if perKind[kind] <= 0 {
			continue
		}
		s.add(DutyRefresh+":"+string(kind), gocron.DurationJob(perKind[kind]), false, func(ctx context.Context) error {
			_, err := indexer.ReconcileKinds(ctx, kind)
			return err
		})
	}

	s.add(DutyVerify, gocron.DurationJob(orc.VerificationInterval), false, func(ctx context.Context) error {
		// Verify against a fresh mirror when we can; a busy or failed
		// refresh still leaves the last good state to work from.
		if err := s.RunDuty(ctx, DutyRefresh); err != nil {
			s.log.Warn().Err(err).Msg("pre-verification refresh did not run")
		}
		report, err := oracle.RunVerification(ctx)
		if err == nil {
			s.log.Info().Interface("report", report).Msg("verification duty finished")
		}
		return err
	})

	settleDef := gocron.DurationJob(orc.SettlementInterval)
	if orc.SettlementAt != "" {
		h, m, err := orc.SettlementClock()
		if err != nil {
			return nil, err
		}
		settleDef = gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(h, m, 0)))
	}
	s.add(DutySettle, settleDef, false, func(ctx context.Context) error {
		report, err := oracle.RunSettlement(ctx)
		if err == nil {
			s.log.Info().Interface("report", report).Msg("settlement duty finished")
		}
		return err
	})
	return s, nil
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, startNow bool, run func(ctx context.Context) error) {
	s.duties[name] = &duty{name: name, def: def, startNow: startNow, run: run}
}

// Duties lists the registered duty names.
func (s *Scheduler) Duties() []string {
	out := make([]string, 0, len(s.duties))
	for name := range s.duties {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start registers every duty with gocron and starts the timers. Duties run
// with ctx until Shutdown or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.Duties() {
		d := s.duties[name]
		opts := []gocron.JobOption{
			gocron.WithName(d.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if d.startNow {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}
		_, err := s.sched.NewJob(d.def, gocron.NewTask(func() {
			_ = s.RunDuty(s.ctx, name)
		}), opts...)
		if err != nil {
			return errors.Wrapf(err, "schedule %s", name)
		}
	}
	s.sched.Start()
	s.log.Info().Strs("duties", s.Duties()).Msg("⏰ Scheduler started")
	return nil
}

func (s *Scheduler) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.sched.Shutdown()
}

// RunDuty runs one invocation of the named duty now, unless it is already
// running, in which case ErrDutyRunning is returned and the tick is skipped.
func (s *Scheduler) RunDuty(ctx context.Context, name string) error {
	d, ok := s.duties[name]
	if !ok {
		return fmt.Errorf("unknown duty %q", name)
	}
	if !d.mu.TryLock() {
		metrics.DutyRuns.WithLabelValues(name, "skipped").Inc()
		s.log.Warn().Str("duty", name).Msg("⏭️ Duty still running, skipping tick")
		return ErrDutyRunning
	}
	defer d.mu.Unlock()

	start := time.Now()
	err := d.run(ctx)
	if err != nil {
		metrics.DutyRuns.WithLabelValues(name, "error").Inc()
		s.log.Error().Err(err).Str("duty", name).Dur("took", time.Since(start)).Msg("❌ Duty failed")
		return err
	}
	metrics.DutyRuns.WithLabelValues(name, "ok").Inc()
	s.log.Debug().Str("duty", name).Dur("took", time.Since(start)).Msg("duty finished")
	return nil
}
