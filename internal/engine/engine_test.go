package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/NethermindEth/zksync-contract-worker/internal/domain"
	"github.com/NethermindEth/zksync-contract-worker/internal/processor"
)

type fakeQueue struct {
	mu        sync.Mutex
	toDeliver []domain.QueueMessageEnvelope
	delivered bool
	deleted   int32
}

func (f *fakeQueue) Receive(ctx context.Context, maxMessages int32) ([]domain.QueueMessageEnvelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delivered {
		return nil, nil
	}
	f.delivered = true
	return f.toDeliver, nil
}

func (f *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	atomic.AddInt32(&f.deleted, 1)
	return nil
}

func (f *fakeQueue) deleteCount() int32 { return atomic.LoadInt32(&f.deleted) }

type fakeKV struct{}

func (fakeKV) Get(ctx context.Context, id domain.JobID) (domain.Record, error) {
	return domain.Record{}, domain.ErrNotFound
}
func (fakeKV) UpdateStatusConditional(ctx context.Context, id domain.JobID, from, to domain.Status) error {
	return nil
}
func (fakeKV) Complete(ctx context.Context, id domain.JobID, result domain.TaskResult) error {
	return nil
}
func (fakeKV) Delete(ctx context.Context, id domain.JobID) error { return nil }
func (fakeKV) ScanPriorTo(ctx context.Context, cutoff time.Time, cursor string) ([]domain.Record, string, error) {
	return nil, "", nil
}

type fakeBlob struct{}

func (fakeBlob) ListPrefix(ctx context.Context, prefix string) ([]string, error) { return nil, nil }
func (fakeBlob) GetObject(ctx context.Context, key string) ([]byte, error)       { return nil, nil }
func (fakeBlob) PutObject(ctx context.Context, key string, data []byte) error    { return nil }
func (fakeBlob) PresignGet(ctx context.Context, key string, ttlSeconds int64) (string, error) {
	return "", nil
}
func (fakeBlob) Delete(ctx context.Context, key string) error         { return nil }
func (fakeBlob) DeletePrefix(ctx context.Context, prefix string) error { return nil }

type fakePurgatory struct{}

func (fakePurgatory) AddRecord(id domain.JobID, result domain.TaskResult) {}

func TestListenDeliversEnvelopesThenStopsOnCancel(t *testing.T) {
	env := domain.QueueMessageEnvelope{
		Message:       domain.QueueMessage{Type: domain.MessageKind("Bogus"), ID: "x"},
		ReceiptHandle: "rh-1",
	}
	queue := &fakeQueue{toDeliver: []domain.QueueMessageEnvelope{env}}
	mailbox := make(chan domain.QueueMessageEnvelope, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		listen(ctx, queue, mailbox, nil)
		close(done)
	}()

	select {
	case got := <-mailbox:
		assert.Equal(t, "rh-1", got.ReceiptHandle)
	case <-time.After(2 * time.Second):
		t.Fatal("listener never delivered the envelope")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestWorkerAcksPoisonMessageTypeViaProcessor(t *testing.T) {
	queue := &fakeQueue{}
	proc := processor.New(queue, fakeKV{}, fakeBlob{}, fakePurgatory{}, semaphore.NewWeighted(1), t.TempDir(), nil)
	mailbox := make(chan domain.QueueMessageEnvelope, 1)
	mailbox <- domain.QueueMessageEnvelope{
		Message:       domain.QueueMessage{Type: domain.MessageKind("Bogus"), ID: "x"},
		ReceiptHandle: "rh-2",
	}
	close(mailbox)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	worker(ctx, mailbox, proc)

	assert.Equal(t, int32(1), queue.deleteCount())
}

func TestBuilderStartAndStop(t *testing.T) {
	queue := &fakeQueue{}
	builder := NewBuilder(queue, fakeKV{}, fakeBlob{}, fakePurgatory{}, semaphore.NewWeighted(1), t.TempDir(), nil)

	re := builder.Start(context.Background(), 2)
	re.Stop()

	waitDone := make(chan struct{})
	go func() {
		re.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("workers never exited after Stop")
	}
	require.NotNil(t, re)
}
