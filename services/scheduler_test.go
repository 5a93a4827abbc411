package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"pact-oracle/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bareScheduler() *Scheduler {
	return &Scheduler{duties: make(map[string]*duty), log: zerolog.Nop()}
}

func TestRunDutyRejectsOverlap(t *testing.T) {
	s := bareScheduler()
	started := make(chan struct{})
	release := make(chan struct{})
	s.add(DutyVerify, nil, false, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunDuty(context.Background(), DutyVerify) }()
	<-started

	assert.ErrorIs(t, s.RunDuty(context.Background(), DutyVerify), ErrDutyRunning)

	close(release)
	require.NoError(t, <-done)

	// free again once the first run returned
	started = make(chan struct{})
	release = make(chan struct{})
	close(release)
	assert.NoError(t, s.RunDuty(context.Background(), DutyVerify))
}

func TestRunDutyDifferentDutiesRunConcurrently(t *testing.T) {
	s := bareScheduler()
	release := make(chan struct{})
	started := make(chan struct{})
	s.add(DutyVerify, nil, false, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	s.add(DutySettle, nil, false, func(ctx context.Context) error { return nil })

	done := make(chan error, 1)
	go func() { done <- s.RunDuty(context.Background(), DutyVerify) }()
	<-started

	assert.NoError(t, s.RunDuty(context.Background(), DutySettle))
	close(release)
	require.NoError(t, <-done)
}

func TestRunDutyPropagatesErrors(t *testing.T) {
	s := bareScheduler()
	boom := errors.New("boom")
	s.add(DutySettle, nil, false, func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, s.RunDuty(context.Background(), DutySettle), boom)
	assert.Error(t, s.RunDuty(context.Background(), "nope"))
}

func TestNewSchedulerRegistersDuties(t *testing.T) {
	s, err := NewScheduler(nil, nil, config.IndexerConfig{
		RefreshInterval:  time.Minute,
		ProfilesInterval: 10 * time.Second,
	}, config.OracleConfig{
		VerificationInterval: time.Hour,
		SettlementAt:         "00:05",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"refresh", "refresh:profiles", "settle", "verify"}, s.Duties())

	_, err = NewScheduler(nil, nil, config.IndexerConfig{RefreshInterval: time.Minute}, config.OracleConfig{
		VerificationInterval: time.Hour,
		SettlementAt:         "25:99",
	}, zerolog.Nop())
	assert.Error(t, err)
}
