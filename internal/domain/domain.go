package domain

// NodeKind discriminates the typed attribute record carried by a
// WorkflowNode. The set is closed so the validator and analyzer can
// switch exhaustively on it.
type NodeKind string

const (
	KindAccount       NodeKind = "account"
	KindTransfer      NodeKind = "transfer"
	KindSwap          NodeKind = "swap"
	KindFungibleScope NodeKind = "fungible_scope"
	KindNativeScope   NodeKind = "native_scope"
)

// IsScope reports whether the kind declares a bounded right to move
// value (fungible token or native).
func (k NodeKind) IsScope() bool {
	return k == KindFungibleScope || k == KindNativeScope
}

// WorkflowNode is one vertex of an editor-supplied graph. Identity is
// immutable; attributes may be filled in after creation (an account
// address arrives once the external creation call resolves).
type WorkflowNode struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"kind" enum:"account,transfer,swap,fungible_scope,native_scope"`
	Account  *AccountAttrs  `json:"account,omitempty"`
	Transfer *TransferAttrs `json:"transfer,omitempty"`
	Swap     *SwapAttrs     `json:"swap,omitempty"`
	Scope    *ScopeAttrs    `json:"scope,omitempty"`
}

type AccountAttrs struct {
	Address     string `json:"address,omitempty"`
	OwnerSalt   string `json:"owner_salt,omitempty"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

type TransferAttrs struct {
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

type SwapAttrs struct {
	Protocol string `json:"protocol,omitempty"`
	Slippage string `json:"slippage,omitempty"`
}

// ScopeAttrs bounds the value a scope node may move: a per-transfer
// amount, an overall limit, and an optional time window. Fungible
// scopes additionally carry the token contract, decimals, and symbol.
type ScopeAttrs struct {
	Amount          string `json:"amount,omitempty"`
	AmountLimit     string `json:"amount_limit,omitempty"`
	StartTime       *int64 `json:"start_time,omitempty"`
	EndTime         *int64 `json:"end_time,omitempty"`
	ContractAddress string `json:"contract_address,omitempty"`
	Decimals        *int   `json:"decimals,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	Recipient       string `json:"recipient,omitempty"`
}

// Edge is a directed connection between two node ids. No uniqueness is
// implied and cycles are possible; traversals must carry visited sets.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is a persisted graph snapshot.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Nodes     []WorkflowNode `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

// OperationKind classifies what a transfer node will move.
type OperationKind string

const (
	OpFungibleTransfer OperationKind = "fungible_transfer"
	OpNativeTransfer   OperationKind = "native_transfer"
	OpUnknown          OperationKind = "unknown"
)

// PermissionParameters is the canonical record extracted from the
// first scope node of a context; it is the input to a grant request.
type PermissionParameters struct {
	StartTime      *int64 `json:"start_time,omitempty"`
	EndTime        *int64 `json:"end_time,omitempty"`
	AmountLimit    string `json:"amount_limit,omitempty"`
	ScopeAddress   string `json:"scope_address,omitempty"`
	PeriodAmount   string `json:"period_amount,omitempty"`
	PeriodDuration int64  `json:"period_duration_seconds"`
	Decimals       int    `json:"decimals"`
	Symbol         string `json:"symbol,omitempty"`
	ScopeNodeID    string `json:"scope_node_id,omitempty"`
}

// ExecutionContext is derived per transfer node and never cached
// across graph edits.
type ExecutionContext struct {
	AccountNode    *WorkflowNode         `json:"account_node,omitempty"`
	ScopeNodes     []WorkflowNode        `json:"scope_nodes"`
	TransferNode   WorkflowNode          `json:"transfer_node"`
	OperationKind  OperationKind         `json:"operation_kind" enum:"fungible_transfer,native_transfer,unknown"`
	AccountAddress string                `json:"account_address,omitempty"`
	Params         *PermissionParameters `json:"permission_params,omitempty"`
}

// Step is one atomic operation of an execution plan.
type Step struct {
	OperationKind   OperationKind `json:"operation_kind"`
	AccountAddress  string        `json:"account_address"`
	Recipient       string        `json:"recipient"`
	Amount          string        `json:"amount"`
	ContractAddress string        `json:"contract_address,omitempty"`
	Symbol          string        `json:"symbol,omitempty"`
	Description     string        `json:"description"`
	TransferNodeID  string        `json:"transfer_node_id"`
}

// ExecutionPlan is the ordered output of plan synthesis. Steps keep
// the order transfer nodes were supplied in; contexts that cannot be
// executed are counted in Skipped rather than emitted as broken steps.
type ExecutionPlan struct {
	Steps      []Step `json:"steps"`
	TotalSteps int    `json:"total_steps"`
	Skipped    int    `json:"skipped"`
}

// HasExecutableSteps distinguishes "nothing to do" from "plan ready".
func (p ExecutionPlan) HasExecutableSteps() bool { return len(p.Steps) > 0 }

// SessionKeyScope optionally narrows what a session key may do.
type SessionKeyScope struct {
	AllowedTargets   []string `json:"allowed_targets,omitempty"`
	AllowedFunctions []string `json:"allowed_functions,omitempty"`
	SpendingLimit    string   `json:"spending_limit,omitempty"`
}

// SessionKey is an ephemeral signing credential identified by
// (OwnerNodeID, AccountAddress). It is created unauthorized,
// authorized exactly once, and unusable past ExpiresAt.
type SessionKey struct {
	PrivateKey     string           `json:"private_key"`
	PublicAddress  string           `json:"public_address"`
	OwnerNodeID    string           `json:"owner_node_id"`
	AccountAddress string           `json:"account_address"`
	CreatedAt      string           `json:"created_at" format:"date-time"`
	ExpiresAt      string           `json:"expires_at" format:"date-time"`
	Authorized     bool             `json:"authorized"`
	Scope          *SessionKeyScope `json:"scope,omitempty"`
}

// PermissionGrant is an externally-issued grant cached under a
// caller-chosen, case-normalized key. The record body is opaque here.
type PermissionGrant struct {
	Key        string `json:"key"`
	RecordJSON string `json:"record_json"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
