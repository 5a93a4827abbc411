package ledger

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"pact-oracle/config"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Strategy runs a read against the ledger with some retry policy.
type Strategy interface {
	Execute(ctx context.Context, op func() error) error
	Name() string
}

// NewStrategy picks the retry strategy for cfg.
func NewStrategy(cfg config.RetryConfig, log zerolog.Logger) Strategy {
	if !cfg.Enabled {
		return NoRetry{}
	}
	return &ExponentialBackoff{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Log:          log,
	}
}

// NoRetry runs the operation exactly once.
type NoRetry struct{}

func (NoRetry) Execute(_ context.Context, op func() error) error { return op() }
func (NoRetry) Name() string                                     { return "NoRetry" }

// ExponentialBackoff retries recoverable errors, doubling the delay up to
// MaxDelay. Non-recoverable errors fail immediately.
type ExponentialBackoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Log          zerolog.Logger
}

func (s *ExponentialBackoff) Name() string { return "ExponentialBackoff" }

func (s *ExponentialBackoff) Execute(ctx context.Context, op func() error) error {
	var lastErr error
	delay := s.InitialDelay

	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			if attempt > 0 {
				s.Log.Info().Int("attempt", attempt+1).Msg("ledger read succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !isRecoverableError(err) {
			return err
		}
		if attempt >= s.MaxRetries {
			break
		}

		s.Log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", s.MaxRetries+1).
			Dur("retry_in", delay).
			Msg("ledger read failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if delay > s.MaxDelay {
				delay = s.MaxDelay
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", s.MaxRetries+1, lastErr)
}

// Solana node error codes that clear up once the node catches up or the
// cluster moves on. Anything else from the node is a real answer.
var recoverableRPCCodes = map[int]bool{
	-32001: true, // block cleaned up
	-32004: true, // block not available for slot
	-32005: true, // node is unhealthy / behind
	-32014: true, // block status not yet available
	-32016: true, // minimum context slot not reached
	-32603: true, // internal error
}

var recoverableHTTPStatus = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// isRecoverableError reports whether err is a transient transport failure,
// a rate limit, or a node-side code that a later attempt can get past.
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return recoverableRPCCodes[rpcErr.Code]
	}
	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return recoverableHTTPStatus[httpErr.Code]
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
