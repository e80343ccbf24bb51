package storage

import (
	"context"
	"time"

	"github.com/aanand-mishra/records-api/internal/metrics"
	"github.com/aanand-mishra/records-api/internal/types"
)

// Instrumented wraps a Storage and records the outcome and latency of
// every call. It works for any backend.
type Instrumented struct {
	next    Storage
	metrics *metrics.Manager
}

// NewInstrumented returns next wrapped with metrics. A nil manager
// disables recording but keeps the wrapper usable.
func NewInstrumented(next Storage, m *metrics.Manager) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

// observe must be deferred with a pointer to the named error result so it
// sees the value actually returned.
func (i *Instrumented) observe(op string, start time.Time, err *error) {
	i.metrics.ObserveStoreOp(op, *err, time.Since(start))
}

func (i *Instrumented) Exists(ctx context.Context, id string) (ok bool, err error) {
	defer i.observe("exists", time.Now(), &err)
	return i.next.Exists(ctx, id)
}

func (i *Instrumented) Save(ctx context.Context, s types.Student) (err error) {
	defer i.observe("save", time.Now(), &err)
	return i.next.Save(ctx, s)
}

func (i *Instrumented) Update(ctx context.Context, s types.Student) (err error) {
	defer i.observe("update", time.Now(), &err)
	return i.next.Update(ctx, s)
}

func (i *Instrumented) Remove(ctx context.Context, id string) (err error) {
	defer i.observe("remove", time.Now(), &err)
	return i.next.Remove(ctx, id)
}

func (i *Instrumented) ListPage(ctx context.Context, pageNum, pageSize int) (page types.PageInfo[types.Student], err error) {
	defer i.observe("list_page", time.Now(), &err)
	return i.next.ListPage(ctx, pageNum, pageSize)
}

func (i *Instrumented) Ping(ctx context.Context) (err error) {
	defer i.observe("ping", time.Now(), &err)
	return i.next.Ping(ctx)
}

func (i *Instrumented) Close() error { return i.next.Close() }

var _ Storage = (*Instrumented)(nil)
