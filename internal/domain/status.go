package domain

// MilestoneStatus is the lifecycle state of a single milestone.
//
// Transitions:
//
//	PENDING            → AWAITING_REVIEW (submit_work) | DISPUTED (open_dispute)
//	AWAITING_REVIEW    → APPROVED (approve) | REVISION_REQUESTED (request_revision) | DISPUTED (open_dispute)
//	REVISION_REQUESTED → AWAITING_REVIEW (submit_work) | DISPUTED (open_dispute)
//	DISPUTED           → APPROVED | CANCELLED (resolve_dispute, external arbitration)
//
// APPROVED and CANCELLED are terminal.
type MilestoneStatus string

const (
	MilestonePending           MilestoneStatus = "PENDING"
	MilestoneAwaitingReview    MilestoneStatus = "AWAITING_REVIEW"
	MilestoneApproved          MilestoneStatus = "APPROVED"
	MilestoneRevisionRequested MilestoneStatus = "REVISION_REQUESTED"
	MilestoneDisputed          MilestoneStatus = "DISPUTED"
	MilestoneCancelled         MilestoneStatus = "CANCELLED"
)

// Terminal reports whether no further transition is defined from the status.
func (s MilestoneStatus) Terminal() bool {
	return s == MilestoneApproved || s == MilestoneCancelled
}

// TransactionStatus is the transaction-level state. It is always derived from
// the ledger and the milestone set, never stored independently.
type TransactionStatus string

const (
	TransactionPendingFunding TransactionStatus = "PENDING_FUNDING"
	TransactionInEscrow       TransactionStatus = "IN_ESCROW"
	TransactionCompleted      TransactionStatus = "COMPLETED"
	TransactionDisputed       TransactionStatus = "DISPUTED"
	TransactionClosed         TransactionStatus = "CLOSED"
)

// Terminal reports whether the transaction accepts no further actions.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionClosed
}

// Action identifies an inbound transition request.
type Action string

const (
	ActionFund            Action = "fund"
	ActionSubmitWork      Action = "submit_work"
	ActionApprove         Action = "approve"
	ActionRequestRevision Action = "request_revision"
	ActionOpenDispute     Action = "open_dispute"
	ActionResolveDispute  Action = "resolve_dispute"
)

// Role is the relation of an actor to a transaction.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleArbiter Role = "arbiter"
	RoleNone    Role = "none"
)
