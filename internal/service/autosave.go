package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"docflow/internal/fields"
)

// ErrQueueClosed 队列已 Flush，不再接受新的草稿。
var ErrQueueClosed = errors.New("autosave queue is closed")

// WriteFunc 持久化一个字段值。
type WriteFunc func(ctx context.Context, documentID, fieldID uint, in fields.ValueInput) error

type draftKey struct {
	documentID uint
	fieldID    uint
}

type draft struct {
	ctx      context.Context
	pending  *fields.ValueInput
	timer    *time.Timer
	gen      uint64
	inFlight bool
}

// AutosaveQueue 合并同一 (文档, 字段) 的连续编辑。
//
// 每个键最多一个进行中的写入；静默窗口内的新值替换尚未写出的旧值，
// 写入进行中到达的值在其完成后再写。
type AutosaveQueue struct {
	write    WriteFunc
	debounce time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	drafts map[draftKey]*draft
	seq    uint64
	closed bool
	wg     sync.WaitGroup
}

// NewAutosaveQueue 构造队列，debounce 为 0 时在下一次调度时立即写出。
func NewAutosaveQueue(write WriteFunc, debounce time.Duration, logger *slog.Logger) *AutosaveQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutosaveQueue{
		write:    write,
		debounce: debounce,
		logger:   logger,
		drafts:   make(map[draftKey]*draft),
	}
}

// Submit 登记一个待写值并重置该键的静默计时。
func (q *AutosaveQueue) Submit(ctx context.Context, documentID, fieldID uint, in fields.ValueInput) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	key := draftKey{documentID: documentID, fieldID: fieldID}
	d, ok := q.drafts[key]
	if !ok {
		d = &draft{}
		q.drafts[key] = d
	}
	d.ctx = context.WithoutCancel(ctx)
	d.pending = &in
	if d.timer != nil {
		d.timer.Stop()
	}
	q.seq++
	d.gen = q.seq
	gen := d.gen
	d.timer = time.AfterFunc(q.debounce, func() { q.fire(key, gen) })
	return nil
}

// Pending 返回尚有未写出值或写入进行中的键数量。
func (q *AutosaveQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.drafts)
}

func (q *AutosaveQueue) fire(key draftKey, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.drafts[key]
	if !ok || d.gen != gen {
		return
	}
	d.timer = nil
	if d.inFlight {
		return
	}
	q.start(key, d)
}

// start 要求持有 q.mu。
func (q *AutosaveQueue) start(key draftKey, d *draft) {
	in := *d.pending
	ctx := d.ctx
	d.pending = nil
	d.inFlight = true
	q.wg.Add(1)
	go q.run(ctx, key, in)
}

func (q *AutosaveQueue) run(ctx context.Context, key draftKey, in fields.ValueInput) {
	defer q.wg.Done()

	if err := q.write(ctx, key.documentID, key.fieldID, in); err != nil {
		q.logger.ErrorContext(ctx, "autosave write failed",
			"document_id", key.documentID, "field_id", key.fieldID, "error", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	d := q.drafts[key]
	d.inFlight = false
	switch {
	case d.pending != nil && d.timer == nil:
		q.start(key, d)
	case d.pending == nil && d.timer == nil:
		delete(q.drafts, key)
	}
}

// Flush 立即写出全部待写值并等待完成，之后队列拒绝新的提交。
func (q *AutosaveQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	for key, d := range q.drafts {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
			q.seq++
			d.gen = q.seq
		}
		if d.pending != nil && !d.inFlight {
			q.start(key, d)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
