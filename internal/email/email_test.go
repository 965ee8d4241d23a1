package email

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillswap/swapd/internal/cache"
)

func newTestService(rec *Recorder) *Service {
	return New(rec, cache.New(), "http://localhost:3000", false)
}

func TestService_SendWelcome(t *testing.T) {
	rec := &Recorder{}
	svc := newTestService(rec)

	svc.SendWelcome("alice@example.com", "Alice")

	sends := rec.Sent()
	require.Len(t, sends, 1)
	assert.Equal(t, "alice@example.com", sends[0].To)
	assert.Contains(t, sends[0].Subject, "Welcome")
	assert.Contains(t, sends[0].HTML, "Alice")
}

func TestService_NilSenderSkips(t *testing.T) {
	svc := New(nil, cache.New(), "http://localhost:3000", false)
	// Must not panic or block.
	svc.SendWelcome("a@example.com", "A")
	svc.SendSwapCompleted("a@example.com", "A", 10, 10)
}

func TestService_MessageDebounce(t *testing.T) {
	rec := &Recorder{}
	svc := newTestService(rec)

	svc.SendNewMessage("bob@example.com", "bob", "Alice", "conv_1", "hey")
	svc.SendNewMessage("bob@example.com", "bob", "Alice", "conv_1", "are you there?")
	svc.SendNewMessage("bob@example.com", "bob", "Alice", "conv_2", "other conversation")

	assert.Equal(t, 2, rec.CountTo("bob@example.com"),
		"second email for the same conversation inside the window must be debounced")
}

func TestService_MatchDedupe(t *testing.T) {
	rec := &Recorder{}
	svc := newTestService(rec)

	svc.SendMatchFound("alice@example.com", "Alice", "Bob", 0.8, "alice:bob")
	svc.SendMatchFound("alice@example.com", "Alice", "Bob", 0.8, "alice:bob")

	assert.Equal(t, 1, rec.CountTo("alice@example.com"),
		"match emails for the same pair inside the window must be deduped")
}

func TestService_CompletionPendingNamesDeadline(t *testing.T) {
	rec := &Recorder{}
	svc := newTestService(rec)

	deadline := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	svc.SendCompletionPending("bob@example.com", "Bob", "Alice", deadline)

	sends := rec.Sent()
	require.Len(t, sends, 1)
	assert.Contains(t, sends[0].HTML, "Mar 14, 2026", "deadline must appear in the body")
	assert.Contains(t, sends[0].HTML, "Alice")
}

func TestService_InstrumentCountsDeliveries(t *testing.T) {
	rec := &Recorder{}
	sent := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "emails_sent_total"}, []string{"kind"})
	svc := newTestService(rec).Instrument(sent)

	svc.SendWelcome("alice@example.com", "Alice")
	svc.SendWelcome("bob@example.com", "Bob")
	svc.SendSwapCompleted("alice@example.com", "Alice", 19, 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(sent.WithLabelValues("welcome")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sent.WithLabelValues("swap_completed")))
}

func TestService_ContentEscaped(t *testing.T) {
	rec := &Recorder{}
	svc := newTestService(rec)

	svc.SendNewMessage("bob@example.com", "bob", `<script>x</script>`, "conv_9", `<b>hi</b>`)

	sends := rec.Sent()
	require.Len(t, sends, 1)
	assert.NotContains(t, sends[0].HTML, "<script>", "user content must be escaped")
	assert.Contains(t, sends[0].HTML, "&lt;b&gt;hi&lt;/b&gt;")
}
