package consensus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/database"
)

// Status is the outcome of a vote tally.
type Status int32

// Set of tally outcomes.
const (
	StatusUnknown Status = iota
	StatusAccepted
	StatusRejected
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

// Result is a snapshot of a tally.
type Result struct {
	Status   Status `json:"status"`
	Total    int64  `json:"total"`
	Required int64  `json:"required"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
}

// Required returns the majority threshold for the number of nodes whose
// votes are considered, the local node included.
func Required(considered int) int {
	if considered < 1 {
		considered = 1
	}
	return considered/2 + 1
}

// =============================================================================

// tally counts the votes of one phase. Votes may arrive from any goroutine.
// Once the result leaves unknown it never changes.
type tally struct {
	phase    Phase
	required int64
	yes      atomic.Int64
	no       atomic.Int64
	status   atomic.Int32
	voters   sync.Map
	members  map[database.NodeID]struct{}
	timer    *time.Timer
}

func (t *tally) init(phase Phase, considered int, timeout time.Duration) {
	t.phase = phase
	t.required = int64(Required(considered))
	t.timer = time.NewTimer(timeout)
}

// Phase returns the phase this tally counts votes for.
func (t *tally) Phase() Phase {
	return t.phase
}

// Restrict limits the tally to the listed voters, votes from any other node
// are refused. It must be called before the first vote. A tally that was
// never restricted counts every voter.
func (t *tally) Restrict(voters []database.NodeID) {
	t.members = make(map[database.NodeID]struct{}, len(voters))
	for _, id := range voters {
		t.members[id] = struct{}{}
	}
}

// Member reports whether the node may vote in this tally.
func (t *tally) Member(from database.NodeID) bool {
	if t.members == nil {
		return true
	}

	_, ok := t.members[from]
	return ok
}

// Reject counts a rejection from the node. It returns false when the node
// already voted in this phase or may not vote in it.
func (t *tally) Reject(from database.NodeID) bool {
	return t.vote(from, false)
}

// Result returns the current state of the tally.
func (t *tally) Result() Result {
	yes, no := t.yes.Load(), t.no.Load()

	status := Status(t.status.Load())
	if status == StatusUnknown {
		switch {
		case yes >= t.required:
			status = StatusAccepted
		case no >= t.required:
			status = StatusRejected
		}

		if status != StatusUnknown && !t.status.CompareAndSwap(int32(StatusUnknown), int32(status)) {
			status = Status(t.status.Load())
		}
	}

	return Result{
		Status:   status,
		Total:    yes + no,
		Required: t.required,
		Accepted: yes,
		Rejected: no,
	}
}

// Expired returns the channel that fires when the phase timeout elapses.
func (t *tally) Expired() <-chan time.Time {
	return t.timer.C
}

// Stop releases the phase timer.
func (t *tally) Stop() {
	t.timer.Stop()
}

func (t *tally) vote(from database.NodeID, yes bool) bool {
	if !t.Member(from) {
		return false
	}

	if _, dup := t.voters.LoadOrStore(from, struct{}{}); dup {
		return false
	}

	if yes {
		t.yes.Add(1)
	} else {
		t.no.Add(1)
	}

	return true
}

// =============================================================================

// Phase1Quorum counts the promises and rejections for a prepare.
type Phase1Quorum struct {
	tally
}

// NewPhase1Quorum constructs the tally for the prepare phase and starts its
// timer.
func NewPhase1Quorum(considered int, timeout time.Duration) *Phase1Quorum {
	var q Phase1Quorum
	q.init(PhasePrepare, considered, timeout)
	return &q
}

// Promise counts a promise from the node. It returns false when the node
// already voted in this phase or may not vote in it.
func (q *Phase1Quorum) Promise(from database.NodeID) bool {
	return q.vote(from, true)
}

// Phase2Quorum counts the accepts and rejections for a commit.
type Phase2Quorum struct {
	tally
}

// NewPhase2Quorum constructs the tally for the commit phase and starts its
// timer.
func NewPhase2Quorum(considered int, timeout time.Duration) *Phase2Quorum {
	var q Phase2Quorum
	q.init(PhaseCommit, considered, timeout)
	return &q
}

// Accept counts an accept from the node. It returns false when the node
// already voted in this phase or may not vote in it.
func (q *Phase2Quorum) Accept(from database.NodeID) bool {
	return q.vote(from, true)
}
