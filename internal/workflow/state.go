package workflow

import "github.com/hirewire/decree/pkg/types"

// Decision lifecycle:
//
//	pending -> approved (terminal)
//	pending -> rejected -> appealed -> appeal_reviewed (terminal)
//	pending -> rejected -> rejected+final (appeals window lapsed)
//	any non-final -> delegated (spawns a successor pending decision)
//
// Approval is final immediately; rejection finalizes only when the appeals
// window lapses or an appeal review lands.

// CanAppeal reports whether a decision is in a state that accepts an appeal.
// The deadline check is the caller's job; this is pure state.
func CanAppeal(d types.HiringDecision) bool {
	return d.DecisionType == types.DecisionRejected &&
		d.Status == types.StatusRejected &&
		!d.IsFinal
}

// CanReviewAppeal reports whether an appeal review may land.
func CanReviewAppeal(d types.HiringDecision) bool {
	return d.Status == types.StatusAppealed && !d.IsFinal
}

// CanDelegate reports whether a decision may be handed to another approver.
func CanDelegate(d types.HiringDecision) bool {
	return !d.IsFinal && d.Status != types.StatusDelegated
}

// AppealOutcome is the terminal disposition of a reviewed appeal.
type AppealOutcome string

const (
	AppealUpheld     AppealOutcome = "upheld"     // original rejection stands
	AppealOverturned AppealOutcome = "overturned" // rejection reversed
)

func ValidAppealOutcome(o AppealOutcome) bool {
	return o == AppealUpheld || o == AppealOverturned
}
