package tabular

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

type pendingWrite struct {
	table Table
	row   Row
}

// Buffered wraps a Store with a bounded write-ahead buffer. Appends that the
// backend rejects are kept in memory, in order, and replayed before the next
// operation that reaches the backend. Reads that fail return the buffered rows
// of the table instead of an error; such a table is partial until the backend
// answers a read again, and Overwrite refuses it meanwhile. The buffer is lost
// on restart.
type Buffered struct {
	next     Store
	logger   zerolog.Logger
	capacity int

	mu      sync.Mutex
	pending []pendingWrite
	// tables whose last read was served from the buffer alone
	partial map[string]bool
}

func NewBuffered(next Store, capacity int, logger zerolog.Logger) *Buffered {
	if capacity <= 0 {
		capacity = 256
	}
	return &Buffered{
		next:     next,
		logger:   logger.With().Str("component", "tabular").Logger(),
		capacity: capacity,
		partial:  make(map[string]bool),
	}
}

// Pending returns the number of buffered rows not yet written.
func (b *Buffered) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush replays buffered rows. It stops at the first failure and keeps the
// remainder.
func (b *Buffered) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

func (b *Buffered) flushLocked(ctx context.Context) error {
	for len(b.pending) > 0 {
		w := b.pending[0]
		if err := b.next.AppendRow(ctx, w.table, w.row); err != nil {
			return err
		}
		b.pending = b.pending[1:]
		b.logger.Info().Str("table", w.table.Name).Int("remaining", len(b.pending)).Msg("flushed buffered row")
	}
	b.pending = nil
	return nil
}

func (b *Buffered) Read(ctx context.Context, t Table) ([]Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.flushLocked(ctx); err != nil {
		b.logger.Warn().Err(err).Int("pending", len(b.pending)).Msg("buffer flush failed")
	}

	rows, err := b.next.Read(ctx, t)
	if err != nil {
		b.logger.Warn().Err(err).Str("table", t.Name).Msg("store read failed, serving buffered rows")
		b.partial[t.Name] = true
		return b.bufferedRowsLocked(t), nil
	}
	delete(b.partial, t.Name)
	return append(rows, b.bufferedRowsLocked(t)...), nil
}

func (b *Buffered) AppendRow(ctx context.Context, t Table, row Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.flushLocked(ctx); err == nil {
		err = b.next.AppendRow(ctx, t, row)
		if err == nil {
			return nil
		}
		b.logger.Warn().Err(err).Str("table", t.Name).Msg("store append failed, buffering row")
	}

	if len(b.pending) >= b.capacity {
		b.logger.Error().Str("table", t.Name).Int("capacity", b.capacity).Msg("write buffer full, dropping row")
		return ErrBufferFull
	}
	b.pending = append(b.pending, pendingWrite{table: t, row: project(t, row)})
	return nil
}

// Overwrite replaces the table in the backend. Rows handed in are expected
// to come from Read and therefore already include buffered rows, so buffered
// appends for the same table are dropped once the overwrite lands. While the
// last Read of t was partial the rows cannot stand for the whole table, so
// the overwrite fails with ErrPartialRead and the table is left untouched.
func (b *Buffered) Overwrite(ctx context.Context, t Table, rows []Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.partial[t.Name] {
		b.logger.Warn().Str("table", t.Name).Msg("overwrite refused, last read was partial")
		return persistErr("overwrite", t, ErrPartialRead)
	}

	if err := b.flushLocked(ctx); err != nil {
		b.logger.Warn().Err(err).Int("pending", len(b.pending)).Msg("buffer flush failed")
	}
	if err := b.next.Overwrite(ctx, t, rows); err != nil {
		return err
	}

	kept := b.pending[:0]
	for _, w := range b.pending {
		if w.table.Name != t.Name {
			kept = append(kept, w)
		}
	}
	b.pending = kept
	return nil
}

// Ping forwards to the backend when it supports it.
func (b *Buffered) Ping(ctx context.Context) error {
	if p, ok := b.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (b *Buffered) bufferedRowsLocked(t Table) []Row {
	var out []Row
	for _, w := range b.pending {
		if w.table.Name == t.Name {
			out = append(out, w.row)
		}
	}
	return cloneRows(out)
}
