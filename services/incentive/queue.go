package incentive

import "sync"

// claimLocks serializes syncs per claim inside one process. The diff against
// StageAward is not safe under interleaved execution for the same claim;
// cross-process callers are additionally covered by the row lock SyncClaim
// takes on the claim.
type claimLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newClaimLocks() *claimLocks {
	return &claimLocks{locks: make(map[int64]*lockEntry)}
}

// lock blocks until the claim's slot is free and returns the release func.
func (l *claimLocks) lock(claimID int64) func() {
	l.mu.Lock()
	e := l.locks[claimID]
	if e == nil {
		e = &lockEntry{}
		l.locks[claimID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, claimID)
		}
		l.mu.Unlock()
	}
}
