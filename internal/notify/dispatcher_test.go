package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Message
}

func (n *flakyNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.calls <= n.failures {
		return errors.New("smtp: connection refused")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *flakyNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, SendTimeout: time.Second}
}

var msg = Message{Recipient: "ada@example.com", Subject: "Your order", Body: "thanks", Reference: "ORD-1"}

func TestDeliver_RetriesUntilSuccess(t *testing.T) {
	n := &flakyNotifier{failures: 2}
	d := NewDispatcher(n, fastPolicy(3), zap.NewNop())

	require.NoError(t, d.Deliver(context.Background(), msg))
	assert.Equal(t, 3, n.Calls())
	assert.Len(t, n.sent, 1)
}

func TestDeliver_GivesUpAfterMaxAttempts(t *testing.T) {
	n := &flakyNotifier{failures: 10}
	d := NewDispatcher(n, fastPolicy(3), zap.NewNop())

	err := d.Deliver(context.Background(), msg)
	assert.Error(t, err)
	assert.Equal(t, 3, n.Calls())
}

func TestDeliver_RequiresRecipient(t *testing.T) {
	n := &flakyNotifier{}
	d := NewDispatcher(n, fastPolicy(3), nil)

	assert.Error(t, d.Deliver(context.Background(), Message{Subject: "x"}))
	assert.Equal(t, 0, n.Calls())
}

func TestDeliver_BreakerOpensOnRepeatedFailure(t *testing.T) {
	n := &flakyNotifier{failures: 100}
	d := NewDispatcher(n, fastPolicy(1), zap.NewNop())

	for i := 0; i < 5; i++ {
		_ = d.Deliver(context.Background(), msg)
	}
	callsBefore := n.Calls()

	err := d.Deliver(context.Background(), msg)
	assert.Error(t, err)
	assert.Equal(t, callsBefore, n.Calls(), "open breaker must not reach the transport")
}

func TestDispatch_LogsDroppedMessage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := &flakyNotifier{failures: 10}
	d := NewDispatcher(n, fastPolicy(2), zap.New(core))

	d.Dispatch(context.Background(), msg)
	d.Wait()

	assert.Equal(t, 2, n.Calls())
	assert.Equal(t, 1, logs.FilterMessage("notification dropped").Len())
}

func TestDispatch_SurvivesCancelledRequestContext(t *testing.T) {
	n := &flakyNotifier{}
	d := NewDispatcher(n, fastPolicy(3), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, msg)
	d.Wait()

	assert.Len(t, n.sent, 1)
}
