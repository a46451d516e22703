package coordinator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/message"
)

func newTestFutures(t *testing.T) *processFutures {
	t.Helper()
	p, err := newProcessFutures(context.Background(), 30*time.Minute, 5*time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.close() })
	return p
}

func newTestBulk(t *testing.T) *bulkRequests {
	t.Helper()
	b, err := newBulkRequests(context.Background(), 30*time.Minute, 5*time.Minute, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.close() })
	return b
}

func TestProcessFutureRoundTrip(t *testing.T) {
	p := newTestFutures(t)
	f := p.register("req-1")

	assert.True(t, p.resolve(&message.ProcessResult{RequestKey: "req-1", ResultArtifact: "a1"}))

	res, err := f.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a1", res.ResultArtifact)
}

func TestProcessFutureUnknownKey(t *testing.T) {
	p := newTestFutures(t)
	assert.False(t, p.resolve(&message.ProcessResult{RequestKey: "never-registered"}))
}

func TestProcessFutureResolvedOnce(t *testing.T) {
	p := newTestFutures(t)
	p.register("req-1")

	assert.True(t, p.resolve(&message.ProcessResult{RequestKey: "req-1"}))
	// The entry is consumed; a redelivered reply finds nothing.
	assert.False(t, p.resolve(&message.ProcessResult{RequestKey: "req-1"}))
}

func TestProcessFutureDuplicateStartOverwrites(t *testing.T) {
	p := newTestFutures(t)
	first := p.register("req-1")
	second := p.register("req-1")

	// The superseded waiter is released with nil.
	res, err := first.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, res)

	assert.True(t, p.resolve(&message.ProcessResult{RequestKey: "req-1", ResultArtifact: "a2"}))
	res, err = second.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "a2", res.ResultArtifact)
}

func bulkReply(resultKey, plugin string, cases ...string) *message.DatasetPrescriptionResult {
	res := &message.DatasetPrescriptionResult{
		ProjectID:  "p1",
		PluginKey:  plugin,
		ResultKey:  resultKey,
		Applicable: true,
		Results:    make(map[string]message.Prescription),
	}
	for _, c := range cases {
		res.Results[c] = message.Prescription{Plugin: plugin, Output: "advice for " + c}
	}
	return res
}

func TestBulkCompletionCounting(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A", "B"})

	complete, err := b.add(bulkReply("r1", "A", "c1"))
	require.NoError(t, err)
	assert.False(t, complete, "incomplete after only A")

	st, err := b.status("r1")
	require.NoError(t, err)
	assert.False(t, st.Complete)
	assert.Equal(t, []string{"A", "B"}, st.Expected)
	assert.Equal(t, []string{"A"}, st.Finished)

	complete, err = b.add(bulkReply("r1", "B", "c1"))
	require.NoError(t, err)
	assert.True(t, complete, "complete once both replied")
}

func TestBulkArrivalOrderIrrelevant(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A", "B"})
	b.create("r2", "p1", []string{"A", "B"})

	c1, err := b.add(bulkReply("r1", "A"))
	require.NoError(t, err)
	c2, err := b.add(bulkReply("r1", "B"))
	require.NoError(t, err)

	d1, err := b.add(bulkReply("r2", "B"))
	require.NoError(t, err)
	d2, err := b.add(bulkReply("r2", "A"))
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, []bool{c1, c2})
	assert.Equal(t, []bool{false, true}, []bool{d1, d2})
}

func TestBulkDuplicateReplyCountedOnce(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A", "B"})

	complete, err := b.add(bulkReply("r1", "A", "c1"))
	require.NoError(t, err)
	assert.False(t, complete)

	// Redelivered reply does not complete the request on its own.
	complete, err = b.add(bulkReply("r1", "A", "c1"))
	require.NoError(t, err)
	assert.False(t, complete)
}

func TestBulkUnexpectedPluginIgnored(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A"})

	complete, err := b.add(bulkReply("r1", "Z", "c1"))
	require.NoError(t, err)
	assert.False(t, complete)

	st, err := b.status("r1")
	require.NoError(t, err)
	assert.Empty(t, st.Results, "unexpected plugin's results are not merged")
}

func TestBulkResultsMergedByCase(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A", "B"})

	_, err := b.add(bulkReply("r1", "A", "c1", "c2"))
	require.NoError(t, err)
	_, err = b.add(bulkReply("r1", "B", "c1"))
	require.NoError(t, err)

	st, err := b.status("r1")
	require.NoError(t, err)
	require.True(t, st.Complete)
	assert.Len(t, st.Results["c1"], 2)
	assert.Len(t, st.Results["c2"], 1)
	assert.Equal(t, "advice for c1", st.Results["c1"]["B"].Output)
}

func TestBulkUnknownKey(t *testing.T) {
	b := newTestBulk(t)

	_, err := b.add(bulkReply("missing", "A"))
	assert.True(t, errors.Is(err, errors.ErrRequestNotFound))

	_, err = b.status("missing")
	assert.True(t, errors.Is(err, errors.ErrRequestNotFound))
}

func TestBulkRemove(t *testing.T) {
	b := newTestBulk(t)
	b.create("r1", "p1", []string{"A"})
	b.remove("r1")

	_, err := b.status("r1")
	assert.True(t, errors.Is(err, errors.ErrRequestNotFound))
}
