package server

import (
	"encoding/json"

	"github.com/Suganthan96/NCP/internal/domain"
	"github.com/Suganthan96/NCP/internal/graph"
)

// Request payloads

type ImportWorkflowRequest struct {
	ID    *string               `json:"id,omitempty"`
	Name  string                `json:"name"`
	Nodes []domain.WorkflowNode `json:"nodes"`
	Edges []domain.Edge         `json:"edges"`
}

type EnsureSessionKeyRequest struct {
	NodeID         string                  `json:"node_id"`
	AccountAddress string                  `json:"account_address"`
	Scope          *domain.SessionKeyScope `json:"scope,omitempty"`
}

type SessionKeyRef struct {
	NodeID         string `json:"node_id"`
	AccountAddress string `json:"account_address"`
}

// Response payloads

type WorkflowResponse struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Nodes     []domain.WorkflowNode `json:"nodes"`
	Edges     []domain.Edge         `json:"edges"`
	CreatedAt string                `json:"created_at" format:"date-time"`
	UpdatedAt string                `json:"updated_at" format:"date-time"`
}

type ValidationResponse struct {
	OK         bool   `json:"ok"`
	Pattern    string `json:"pattern,omitempty" enum:"direct,routed"`
	ScopeCount int    `json:"scope_count,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Expected   string `json:"expected,omitempty"`
	Found      string `json:"found,omitempty"`
}

type ContextResponse struct {
	TransferNodeID string                       `json:"transfer_node_id"`
	OperationKind  string                       `json:"operation_kind" enum:"fungible_transfer,native_transfer,unknown"`
	AccountAddress string                       `json:"account_address,omitempty"`
	ScopeNodeIDs   []string                     `json:"scope_node_ids"`
	Params         *domain.PermissionParameters `json:"permission_params,omitempty"`
}

type GrantResponse struct {
	Key       string         `json:"key"`
	Record    map[string]any `json:"record,omitempty"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type SessionKeyResponse struct {
	NodeID         string                  `json:"node_id"`
	AccountAddress string                  `json:"account_address"`
	PublicAddress  string                  `json:"public_address"`
	CreatedAt      string                  `json:"created_at" format:"date-time"`
	ExpiresAt      string                  `json:"expires_at" format:"date-time"`
	Authorized     bool                    `json:"authorized"`
	Scope          *domain.SessionKeyScope `json:"scope,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func workflowResponse(w domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:        w.ID,
		Name:      w.Name,
		Nodes:     nonNilSlice(w.Nodes),
		Edges:     nonNilSlice(w.Edges),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

func validationResponse(res graph.ValidationResult) ValidationResponse {
	return ValidationResponse{
		OK:         res.OK,
		Pattern:    string(res.Pattern),
		ScopeCount: res.ScopeCount,
		Reason:     res.Reason,
		Expected:   res.Expected,
		Found:      res.Found,
	}
}

func contextResponse(ectx domain.ExecutionContext) ContextResponse {
	ids := make([]string, 0, len(ectx.ScopeNodes))
	for _, s := range ectx.ScopeNodes {
		ids = append(ids, s.ID)
	}
	return ContextResponse{
		TransferNodeID: ectx.TransferNode.ID,
		OperationKind:  string(ectx.OperationKind),
		AccountAddress: ectx.AccountAddress,
		ScopeNodeIDs:   ids,
		Params:         ectx.Params,
	}
}

func grantResponse(g domain.PermissionGrant) GrantResponse {
	return GrantResponse{
		Key:       g.Key,
		Record:    decodeJSONMap(g.RecordJSON),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

// sessionKeyResponse never exposes private material over the API.
func sessionKeyResponse(k domain.SessionKey) SessionKeyResponse {
	return SessionKeyResponse{
		NodeID:         k.OwnerNodeID,
		AccountAddress: k.AccountAddress,
		PublicAddress:  k.PublicAddress,
		CreatedAt:      k.CreatedAt,
		ExpiresAt:      k.ExpiresAt,
		Authorized:     k.Authorized,
		Scope:          k.Scope,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		WorkflowID: e.WorkflowID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapWorkflows(in []domain.Workflow) []WorkflowResponse {
	out := make([]WorkflowResponse, 0, len(in))
	for _, w := range in {
		out = append(out, workflowResponse(w))
	}
	return out
}

func mapGrants(in []domain.PermissionGrant) []GrantResponse {
	out := make([]GrantResponse, 0, len(in))
	for _, g := range in {
		out = append(out, grantResponse(g))
	}
	return out
}

func mapSessionKeys(in []domain.SessionKey) []SessionKeyResponse {
	out := make([]SessionKeyResponse, 0, len(in))
	for _, k := range in {
		out = append(out, sessionKeyResponse(k))
	}
	return out
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, eventResponse(e))
	}
	return out
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
