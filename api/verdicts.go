package api

import (
	"sync"

	"github.com/rustyeddy/sentinel/risk"
)

// verdictCache remembers the verdicts this server issued so follow-up
// requests refer to them by intent id instead of sending them back.
type verdictCache struct {
	mu    sync.Mutex
	max   int
	byID  map[string]risk.Verdict
	order []string
}

func newVerdictCache(max int) *verdictCache {
	if max <= 0 {
		max = 1024
	}
	return &verdictCache{max: max, byID: make(map[string]risk.Verdict)}
}

func (vc *verdictCache) put(v risk.Verdict) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	id := v.Intent.ID
	if _, ok := vc.byID[id]; !ok {
		vc.order = append(vc.order, id)
	}
	vc.byID[id] = v
	for len(vc.order) > vc.max {
		delete(vc.byID, vc.order[0])
		vc.order = vc.order[1:]
	}
}

func (vc *verdictCache) get(intentID string) (risk.Verdict, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	v, ok := vc.byID[intentID]
	return v, ok
}
