package api

import (
	"testing"

	"github.com/rustyeddy/sentinel/risk"
	"github.com/stretchr/testify/assert"
)

func TestVerdictCacheEvictsOldest(t *testing.T) {
	t.Parallel()
	vc := newVerdictCache(2)
	for _, id := range []string{"a", "b", "c"} {
		vc.put(risk.Verdict{Outcome: risk.Approved, Intent: risk.TradeIntent{ID: id}})
	}

	_, ok := vc.get("a")
	assert.False(t, ok)
	for _, id := range []string{"b", "c"} {
		v, ok := vc.get(id)
		assert.True(t, ok)
		assert.Equal(t, id, v.Intent.ID)
	}

	// Re-evaluating an intent replaces its verdict without growing the cache.
	vc.put(risk.Verdict{Outcome: risk.Blocked, Intent: risk.TradeIntent{ID: "c"}})
	v, _ := vc.get("c")
	assert.Equal(t, risk.Blocked, v.Outcome)
	assert.Len(t, vc.order, 2)
}
