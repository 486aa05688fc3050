package incentive

import (
	"math"

	"turnover-rewards/services/ledger"
)

// AwardState is the {owner, amount} pair a stage handler computes, and the
// state a StageAward row records.
type AwardState struct {
	OwnerUserID int64
	Amount      float64
}

func (a AwardState) Equal(b AwardState) bool {
	return a.OwnerUserID == b.OwnerUserID && math.Abs(a.Amount-b.Amount) < Epsilon
}

// Op is one ledger posting produced by reconciliation.
type Op struct {
	UserID int64
	Kind   string
	Amount float64
}

// Reconcile compares the last-applied award with the freshly computed target
// and returns the ledger operations that close the gap: a reversing adjust
// of the full previous amount to the previous owner, then an earn of the new
// amount to the new owner. Equal states produce no operations, which is what
// makes repeated syncs side-effect free.
func Reconcile(previous *AwardState, target AwardState) []Op {
	if previous != nil && previous.Equal(target) {
		return nil
	}

	var ops []Op
	if previous != nil && math.Abs(previous.Amount) > Epsilon {
		ops = append(ops, Op{
			UserID: previous.OwnerUserID,
			Kind:   ledger.KindAdjust,
			Amount: -previous.Amount,
		})
	}
	if math.Abs(target.Amount) > Epsilon {
		ops = append(ops, Op{
			UserID: target.OwnerUserID,
			Kind:   ledger.KindEarn,
			Amount: target.Amount,
		})
	}

	return ops
}
