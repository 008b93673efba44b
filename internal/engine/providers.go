package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Suganthan96/NCP/internal/domain"
)

// GrantScope is the bounded right a grant request asks for.
type GrantScope struct {
	Kind            string `json:"kind" enum:"fungible,native"`
	ContractAddress string `json:"contract_address,omitempty"`
	PeriodAmount    string `json:"period_amount"`
	PeriodDuration  int64  `json:"period_duration_seconds"`
	StartTime       int64  `json:"start_time"`
	Justification   string `json:"justification,omitempty"`
}

// GrantRequest is the wallet-mediated permission request body. Amounts
// are already converted to the scope's smallest unit.
type GrantRequest struct {
	ChainID int64      `json:"chain_id"`
	Expiry  int64      `json:"expiry"`
	Signer  string     `json:"signer"`
	Scope   GrantScope `json:"scope"`
}

// AccountProvider asynchronously derives a controlled-account address
// from an owner salt. Not guaranteed idempotent under concurrent
// invocation with the same salt; the engine guards against that.
type AccountProvider interface {
	CreateAccount(ctx context.Context, ownerSalt string) (string, error)
}

// PermissionGranter performs the one-time wallet-mediated approval and
// returns the opaque grant record.
type PermissionGranter interface {
	RequestGrant(ctx context.Context, req GrantRequest) (json.RawMessage, error)
}

// Bundler submits the ordered plan steps and returns a transaction
// identifier. Encoding the steps into account-abstraction operations
// is the provider's concern, not the core's.
type Bundler interface {
	Submit(ctx context.Context, steps []domain.Step) (string, error)
}

// ExternalCallError wraps a collaborator failure with the provider
// name while preserving the provider's own message. The engine never
// retries these; retry policy belongs to the caller.
type ExternalCallError struct {
	Provider string
	Err      error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }
