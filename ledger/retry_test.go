package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(retries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Log:          zerolog.Nop(),
	}
}

func nodeBehind() error {
	return &jsonrpc.RPCError{Code: -32005, Message: "Node is behind by 42 slots"}
}

func TestExponentialBackoffSuccessAfterRetries(t *testing.T) {
	attempts := 0
	err := fastBackoff(5).Execute(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return nodeBehind()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExponentialBackoffNonRecoverable(t *testing.T) {
	attempts := 0
	err := fastBackoff(5).Execute(context.Background(), func() error {
		attempts++
		return &jsonrpc.RPCError{Code: -32602, Message: "Invalid param: WrongSize"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExponentialBackoffMaxRetries(t *testing.T) {
	attempts := 0
	err := fastBackoff(3).Execute(context.Background(), func() error {
		attempts++
		return jsonrpc.NewHTTPError(503, errors.New("service unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
}

func TestExponentialBackoffContextCancelled(t *testing.T) {
	s := &ExponentialBackoff{MaxRetries: 10, InitialDelay: time.Second, MaxDelay: time.Second, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Execute(ctx, func() error { return syscall.ECONNRESET })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoRetry(t *testing.T) {
	attempts := 0
	err := NoRetry{}.Execute(context.Background(), func() error {
		attempts++
		return syscall.ECONNREFUSED
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestIsRecoverableError(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("network is unreachable")}
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"node behind", nodeBehind(), true},
		{"min context slot", &jsonrpc.RPCError{Code: -32016}, true},
		{"wrapped node behind", pkgerrors.Wrap(nodeBehind(), "fetch pacts"), true},
		{"invalid params", &jsonrpc.RPCError{Code: -32602}, false},
		{"preflight failure", &jsonrpc.RPCError{Code: -32002}, false},
		{"rate limited", jsonrpc.NewHTTPError(429, errors.New("too many requests")), true},
		{"unauthorized", jsonrpc.NewHTTPError(401, errors.New("unauthorized")), false},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"truncated body", io.ErrUnexpectedEOF, true},
		{"deadline", context.DeadlineExceeded, true},
		{"dial failure", dial, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "rpc.invalid"}, true},
		{"plain error", errors.New("connection reset by peer"), false},
		{"decode failure", errors.New("invalid data format"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRecoverableError(tt.err))
		})
	}
}
