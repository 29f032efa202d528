// Package purgatory implements the background TTL reaper shared by every
// worker: terminal job records and their artifact blobs are deleted once
// they age past the retention window.
//
// The reaper avoids the self-referential handle-inside-shared-state shape
// the source sketch reached for (a NonNull<JoinHandle> written back into the
// very struct its owning task closes over, guarded by unsafe impl Send):
// here the shared state is constructed first, New spawns the sweep
// goroutine closing over a plain pointer to it, and the returned Handle
// carries only a pointer to that same state plus a context.CancelFunc.
package purgatory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NethermindEth/zksync-contract-worker/internal/adapter/observability"
	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
)

type entry struct {
	id        domain.JobID
	expiresAt time.Time
}

type state struct {
	mu          sync.Mutex
	retention   time.Duration
	expirations []entry
	results     map[domain.JobID]domain.TaskResult
}

func (s *state) add(id domain.JobID, result domain.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = result
	s.expirations = append(s.expirations, entry{id: id, expiresAt: time.Now().Add(s.retention)})
}

func (s *state) seed(id domain.JobID, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expirations = append(s.expirations, entry{id: id, expiresAt: expiresAt})
}

// partitionExpired removes and returns every entry whose expiration is at
// or before now, leaving the rest in place.
func (s *state) partitionExpired(now time.Time) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired, kept []entry
	for _, e := range s.expirations {
		if !e.expiresAt.After(now) {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	s.expirations = kept
	return expired
}

func (s *state) forget(id domain.JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, id)
}

func (s *state) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expirations)
}

// Handle is a cloneable-by-sharing reference to the reaper: cheap to pass
// around, and Close stops the background sweep without tearing down
// anything the caller still holds a pointer to.
type Handle struct {
	state  *state
	cancel context.CancelFunc
}

// New constructs the reaper, seeds it from a bootstrap KV scan so restarts
// don't leak records stuck past their retention window, and spawns the
// periodic sweep. The returned Handle's Close stops the sweep; it does not
// block waiting for an in-flight sweep to finish.
func New(ctx context.Context, kv domain.KVClient, blob domain.BlobClient, retention, sweepInterval time.Duration, log *slog.Logger) (*Handle, error) {
	if log == nil {
		log = slog.Default()
	}
	st := &state{retention: retention, results: map[domain.JobID]domain.TaskResult{}}

	if err := bootstrap(ctx, kv, st, retention, log); err != nil {
		return nil, err
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	go sweepLoop(sweepCtx, st, kv, blob, sweepInterval, log)

	return &Handle{state: st, cancel: cancel}, nil
}

// Close stops the background sweep goroutine.
func (h *Handle) Close() { h.cancel() }

// AddRecord registers a terminal job for reaping after the retention
// window. Called by the Processor immediately after a job reaches Done.
func (h *Handle) AddRecord(id domain.JobID, result domain.TaskResult) {
	h.state.add(id, result)
}

// Pending reports how many jobs are currently tracked for reaping.
func (h *Handle) Pending() int { return h.state.len() }

func bootstrap(ctx context.Context, kv domain.KVClient, st *state, retention time.Duration, log *slog.Logger) error {
	cutoff := time.Now().Add(-retention)
	cursor := ""
	seeded := 0
	for {
		records, next, err := kv.ScanPriorTo(ctx, cutoff, cursor)
		if err != nil {
			return err
		}
		for _, rec := range records {
			st.seed(rec.ID, rec.CreatedAt.Add(retention))
			seeded++
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if seeded > 0 {
		log.Info("purgatory bootstrap seeded expired records", slog.Int("count", seeded))
	}
	return nil
}

func sweepLoop(ctx context.Context, st *state, kv domain.KVClient, blob domain.BlobClient, sweepInterval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepOnce(ctx, st, kv, blob, now, log)
		}
	}
}

func sweepOnce(ctx context.Context, st *state, kv domain.KVClient, blob domain.BlobClient, now time.Time, log *slog.Logger) {
	expired := st.partitionExpired(now)
	for _, e := range expired {
		if err := reap(ctx, kv, blob, e.id); err != nil {
			log.Warn("purgatory reap failed, will retry next sweep", slog.String("job_id", e.id.String()), slog.Any("err", err))
			observability.RecordPurgatoryReap("retry")
			// Re-seed so a transient failure doesn't drop the job from
			// future sweeps; expiration already elapsed, so retry at once.
			st.seed(e.id, now)
			continue
		}
		observability.RecordPurgatoryReap("ok")
		st.forget(e.id)
	}
}

func reap(ctx context.Context, kv domain.KVClient, blob domain.BlobClient, id domain.JobID) error {
	if err := kv.Delete(ctx, id); err != nil {
		return err
	}
	if err := blob.DeletePrefix(ctx, "artifacts/"+id.String()+"/"); err != nil {
		return err
	}
	return nil
}
