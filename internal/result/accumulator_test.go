package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorCounts(t *testing.T) {
	a := New("trade_calendar")
	a.AddInserted(3)
	a.AddModified(1)
	a.AddSkipped(2)
	a.AddError(errors.New("boom"))
	a.Complete()

	assert.Equal(t, 3, a.Inserted())
	assert.Equal(t, 1, a.Modified())
	assert.Equal(t, 2, a.Skipped())
	require.Len(t, a.Errors(), 1)
	assert.NotEmpty(t, a.RunID())
}

func TestToMapIncludesMetadata(t *testing.T) {
	a := New("future_daily")
	a.SetMetadata("skip_reason_SHFE", "already current")
	a.Complete()

	m := a.ToMap()
	meta, ok := m["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "already current", meta["skip_reason_SHFE"])
}

func TestCompleteIsIdempotent(t *testing.T) {
	a := New("stock_list")
	a.Complete()
	d1 := a.Duration()
	a.Complete()
	d2 := a.Duration()
	assert.Equal(t, d1, d2)
}
