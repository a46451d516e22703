package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prcore/prcore/errors"
	"github.com/prcore/prcore/message"
	"github.com/prcore/prcore/pkg/cache"
	"github.com/prcore/prcore/pkg/future"
)

// processFutures correlates PROCESS_REQUEST round trips: one future per
// request key, completed by the PROCESS_RESULT handler. Entries live in a TTL
// cache so an orphaned wait (processor never replies) is garbage collected;
// eviction completes the future with nil so a straggling waiter unblocks with
// a hard failure instead of hanging on its own timer.
type processFutures struct {
	entries cache.Cache[processFuture]
}

// processFuture is the one-shot slot a pre-processing wait blocks on.
type processFuture = *future.Future[*message.ProcessResult]

func newProcessFutures(ctx context.Context, ttl, sweep time.Duration) (*processFutures, error) {
	c, err := cache.NewTTL[processFuture](ctx, ttl, sweep,
		cache.WithEvictCallback(func(_ string, f processFuture) {
			f.Complete(nil)
		}))
	if err != nil {
		return nil, errors.Wrap(err, "coordinator", "newProcessFutures", "create cache")
	}
	return &processFutures{entries: c}, nil
}

// register creates the future for a request key. A duplicate start for the
// same key overwrites the previous entry; the superseded waiter is released
// with nil.
func (p *processFutures) register(key string) processFuture {
	if prev, ok := p.entries.Get(key); ok {
		prev.Complete(nil)
	}
	f := future.New[*message.ProcessResult]()
	p.entries.Set(key, f)
	return f
}

// resolve completes the future for a reply. Unknown keys (expired or never
// registered) report false.
func (p *processFutures) resolve(result *message.ProcessResult) bool {
	f, ok := p.entries.Get(result.RequestKey)
	if !ok {
		return false
	}
	p.entries.Delete(result.RequestKey)
	return f.Complete(result)
}

func (p *processFutures) close() error {
	return p.entries.Close()
}

// bulkRequest is one outstanding dataset prescription fan-out.
type bulkRequest struct {
	projectID string
	// expected maps plugin key to whether its reply arrived.
	expected map[string]bool
	// results merges per-case prescriptions: case id -> plugin key -> value.
	results   map[string]map[string]message.Prescription
	createdAt time.Time
}

// BulkStatus is the poll answer for a bulk request. Polling before
// completion is normal, not an error: the caller sees expected vs finished.
type BulkStatus struct {
	Complete bool
	Expected []string
	Finished []string
	// Results holds the merged per-case prescriptions; meaningful once
	// Complete, populated incrementally before that.
	Results map[string]map[string]message.Prescription
}

// bulkRequests tracks completion counting for dataset prescriptions. Each
// reply refreshes the entry's TTL, so only abandoned requests expire. The
// mutex makes "merge reply, then check completion" atomic; the cache's own
// lock only covers entry lookup.
type bulkRequests struct {
	mu      sync.Mutex
	entries cache.Cache[*bulkRequest]
	logger  *slog.Logger
}

func newBulkRequests(ctx context.Context, ttl, sweep time.Duration, logger *slog.Logger) (*bulkRequests, error) {
	c, err := cache.NewTTL[*bulkRequest](ctx, ttl, sweep,
		cache.WithEvictCallback(func(key string, _ *bulkRequest) {
			logger.Warn("bulk request expired", "result_key", key)
		}))
	if err != nil {
		return nil, errors.Wrap(err, "coordinator", "newBulkRequests", "create cache")
	}
	return &bulkRequests{entries: c, logger: logger}, nil
}

// create registers a fan-out awaiting one reply per expected plugin.
func (b *bulkRequests) create(resultKey, projectID string, expectedPlugins []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req := &bulkRequest{
		projectID: projectID,
		expected:  make(map[string]bool, len(expectedPlugins)),
		results:   make(map[string]map[string]message.Prescription),
		createdAt: time.Now(),
	}
	for _, key := range expectedPlugins {
		req.expected[key] = false
	}
	b.entries.Set(resultKey, req)
}

// add merges one plugin's reply and reports whether the request is now
// complete. Replies from unexpected plugins and duplicate replies are
// ignored; completion requires exactly the expected set, whatever the
// arrival order. The merged entry is re-Set to refresh its TTL.
func (b *bulkRequests) add(res *message.DatasetPrescriptionResult) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req, ok := b.entries.Get(res.ResultKey)
	if !ok {
		return false, errors.WrapInvalid(errors.ErrRequestNotFound, "coordinator", "bulkRequests.add",
			"result key "+res.ResultKey)
	}
	done, seen := req.expected[res.PluginKey]
	if !seen {
		b.logger.Warn("reply from unexpected plugin", "result_key", res.ResultKey, "plugin", res.PluginKey)
		return b.complete(req), nil
	}
	if done {
		return b.complete(req), nil
	}
	req.expected[res.PluginKey] = true
	for caseID, p := range res.Results {
		if req.results[caseID] == nil {
			req.results[caseID] = make(map[string]message.Prescription)
		}
		req.results[caseID][res.PluginKey] = p
	}
	b.entries.Set(res.ResultKey, req)
	return b.complete(req), nil
}

func (b *bulkRequests) complete(req *bulkRequest) bool {
	for _, done := range req.expected {
		if !done {
			return false
		}
	}
	return true
}

// status answers a poll for the request's progress.
func (b *bulkRequests) status(resultKey string) (BulkStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	req, ok := b.entries.Get(resultKey)
	if !ok {
		return BulkStatus{}, errors.WrapInvalid(errors.ErrRequestNotFound, "coordinator", "bulkRequests.status",
			"result key "+resultKey)
	}

	results := make(map[string]map[string]message.Prescription, len(req.results))
	for caseID, byPlugin := range req.results {
		cp := make(map[string]message.Prescription, len(byPlugin))
		for k, v := range byPlugin {
			cp[k] = v
		}
		results[caseID] = cp
	}
	st := BulkStatus{
		Complete: b.complete(req),
		Results:  results,
	}
	for key, done := range req.expected {
		st.Expected = append(st.Expected, key)
		if done {
			st.Finished = append(st.Finished, key)
		}
	}
	sort.Strings(st.Expected)
	sort.Strings(st.Finished)
	return st, nil
}

// remove drops a served request.
func (b *bulkRequests) remove(resultKey string) {
	b.entries.Delete(resultKey)
}

func (b *bulkRequests) close() error {
	return b.entries.Close()
}
