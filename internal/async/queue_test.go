package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finparse-io/docinbox/internal/common"
)

type countingProcessor struct {
	mu    sync.Mutex
	seen  map[uuid.UUID]int
	delay time.Duration
}

func (p *countingProcessor) ProcessFile(ctx context.Context, fileID uuid.UUID) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seen == nil {
		p.seen = make(map[uuid.UUID]int)
	}
	p.seen[fileID]++
	return nil
}

func (p *countingProcessor) count(fileID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[fileID]
}

func TestParseQueue_ProcessesEveryJob(t *testing.T) {
	proc := &countingProcessor{}
	q := NewParseQueue(proc, nil, WithWorkers(3), WithQueueSize(16))

	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.Enqueue(context.Background(), Job{FileID: ids[i], SubmittedAt: time.Now()}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	for _, id := range ids {
		assert.Equal(t, 1, proc.count(id), "file %s", id)
	}
}

func TestParseQueue_ShutdownIsIdempotent(t *testing.T) {
	q := NewParseQueue(&countingProcessor{}, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)

	// Enqueue after shutdown is a no-op, not a panic.
	assert.NoError(t, q.Enqueue(context.Background(), Job{FileID: uuid.New()}))
}

type gatedProcessor struct {
	countingProcessor
	gate chan struct{}
}

func (p *gatedProcessor) ProcessFile(ctx context.Context, fileID uuid.UUID) error {
	select {
	case <-p.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.countingProcessor.ProcessFile(ctx, fileID)
}

func TestParseQueue_FullBufferFailsFast(t *testing.T) {
	proc := &gatedProcessor{gate: make(chan struct{})}
	q := NewParseQueue(proc, nil, WithWorkers(1), WithQueueSize(1))

	// First job occupies the worker, second fills the buffer.
	first, second := uuid.New(), uuid.New()
	require.NoError(t, q.Enqueue(context.Background(), Job{FileID: first}))
	require.Eventually(t, func() bool {
		return q.Enqueue(context.Background(), Job{FileID: second}) == nil
	}, time.Second, time.Millisecond)

	err := q.Enqueue(context.Background(), Job{FileID: uuid.New()})
	require.Error(t, err)
	assert.True(t, common.IsCode(err, common.CodeQueueFull))

	// A saturated queue must not block shutdown either.
	close(proc.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 1, proc.count(first))
	assert.Equal(t, 1, proc.count(second))
}

func TestParseQueue_DrainsBeforeStopping(t *testing.T) {
	proc := &countingProcessor{delay: 20 * time.Millisecond}
	q := NewParseQueue(proc, nil, WithWorkers(2), WithQueueSize(32))

	id := uuid.New()
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{FileID: id}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 8, proc.count(id))
}
