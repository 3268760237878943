package progress

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// CursorKey is the only key the dispatcher task uses.
const CursorKey = "progress"

// TaskID scopes state to one scheduled instance, so re-runs of the same
// execution date share a cursor.
func TaskID(prefix string, executionDate time.Time) string {
	return prefix + "/" + executionDate.Format("2006-01-02")
}

// Harness reads and writes the resume cursor.
type Harness struct {
	store Store
}

// NewHarness wraps a Store.
func NewHarness(store Store) *Harness {
	return &Harness{store: store}
}

// LoadCursor returns the persisted cursor, or 0 when none was stored.
func (h *Harness) LoadCursor(ctx context.Context, taskID string) (int, error) {
	raw, ok, err := h.store.Get(ctx, taskID, CursorKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.Mark(errors.Newf("task %s: cursor %q", taskID, raw), ErrBadCursor)
	}
	return v, nil
}

// StoreCursor persists v for taskID.
func (h *Harness) StoreCursor(ctx context.Context, taskID string, v int) error {
	if v < 0 {
		return errors.Mark(errors.Newf("task %s: cursor %d", taskID, v), ErrBadCursor)
	}
	return h.store.Put(ctx, taskID, CursorKey, strconv.Itoa(v))
}

// InitCursor resets the cursor to zero before a fresh run.
func (h *Harness) InitCursor(ctx context.Context, taskID string) error {
	return h.StoreCursor(ctx, taskID, 0)
}
