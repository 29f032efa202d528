// Package engine assembles the Queue listener and worker pool: a single
// goroutine polls the Queue and fans received messages out over a shared
// channel; N worker goroutines drain it and hand each message to the
// Processor.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
	"github.com/NethermindEth/zksync-contract-worker/internal/processor"
)

// mailboxCapacity bounds the shared channel between the listener and the
// worker pool, matching the source's bounded(1000) channel.
const mailboxCapacity = 1000

// receiveBatchSize is the max messages requested per long-poll.
const receiveBatchSize = 10

// pollInterval paces the listener between receives once a batch (possibly
// empty) has been fully delivered to the mailbox.
const pollInterval = 500 * time.Millisecond

// Builder collects the dependencies a RunningEngine needs and defers
// spawning anything until Start.
type Builder struct {
	queue         domain.QueueClient
	kv            domain.KVClient
	blob          domain.BlobClient
	purgatory     processor.Purgatory
	sem           *semaphore.Weighted
	workspaceRoot string
	log           *slog.Logger
}

// NewBuilder constructs a Builder from the three reliable clients and the
// shared purgatory handle.
func NewBuilder(queue domain.QueueClient, kv domain.KVClient, blob domain.BlobClient, purgatory processor.Purgatory, sem *semaphore.Weighted, workspaceRoot string, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{queue: queue, kv: kv, blob: blob, purgatory: purgatory, sem: sem, workspaceRoot: workspaceRoot, log: log}
}

// RunningEngine is a started listener plus its worker pool.
type RunningEngine struct {
	cancel  context.CancelFunc
	workers sync.WaitGroup
	log     *slog.Logger
}

// Start spawns the listener and numWorkers worker goroutines, each with
// its own Processor instance (Processor is not required to be safe for
// concurrent use across goroutines; each worker owns one).
func (b *Builder) Start(ctx context.Context, numWorkers int) *RunningEngine {
	runCtx, cancel := context.WithCancel(ctx)
	mailbox := make(chan domain.QueueMessageEnvelope, mailboxCapacity)

	re := &RunningEngine{cancel: cancel, log: b.log}

	go listen(runCtx, b.queue, mailbox, b.log)

	re.workers.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		proc := processor.New(b.queue, b.kv, b.blob, b.purgatory, b.sem, b.workspaceRoot, b.log)
		go func() {
			defer re.workers.Done()
			worker(runCtx, mailbox, proc)
		}()
	}

	return re
}

// Stop signals the listener and workers to wind down. It does not block;
// call Wait to join them.
func (re *RunningEngine) Stop() { re.cancel() }

// Wait blocks until every worker goroutine has exited.
func (re *RunningEngine) Wait() { re.workers.Wait() }

func listen(ctx context.Context, queue domain.QueueClient, mailbox chan<- domain.QueueMessageEnvelope, log *slog.Logger) {
	for {
		if ctx.Err() != nil {
			return
		}
		envelopes, err := queue.Receive(ctx, receiveBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("queue receive failed", slog.Any("err", err))
			continue
		}
		for _, env := range envelopes {
			select {
			case mailbox <- env:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return
		}
	}
}

func worker(ctx context.Context, mailbox <-chan domain.QueueMessageEnvelope, proc *processor.Processor) {
	for {
		select {
		case env, ok := <-mailbox:
			if !ok {
				return
			}
			proc.ProcessMessage(ctx, env.Message, env.ReceiptHandle)
		case <-ctx.Done():
			return
		}
	}
}
