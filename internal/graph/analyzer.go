package graph

import (
	"fmt"

	"github.com/Suganthan96/NCP/internal/domain"
)

// DefaultPeriodSeconds bounds a grant whose scope declares no time
// window. An unconfigured window does not block the request but must
// not produce an unbounded grant either.
const DefaultPeriodSeconds = 86400

// DefaultDecimals applies when a fungible scope declares none.
const DefaultDecimals = 18

// Analyze computes the ExecutionContext for one transfer node. The
// result is a pure function of the graph snapshot: callers must
// recompute it after any edit rather than cache it.
//
// A transfer with no reachable account yields an empty AccountAddress
// and OperationKind unknown; one with no reachable scope yields nil
// Params. Both are expected states, not errors.
func Analyze(idx *Index, transferID string) (domain.ExecutionContext, error) {
	transfer, ok := idx.Node(transferID)
	if !ok {
		return domain.ExecutionContext{}, fmt.Errorf("transfer node %s not found", transferID)
	}
	if transfer.Kind != domain.KindTransfer {
		return domain.ExecutionContext{}, fmt.Errorf("node %s is %s, not a transfer node", transferID, transfer.Kind)
	}

	ectx := domain.ExecutionContext{
		TransferNode:  transfer,
		OperationKind: domain.OpUnknown,
		ScopeNodes:    []domain.WorkflowNode{},
	}

	// First non-placeholder account ancestor controls the transfer.
	for _, n := range idx.Ancestors(transferID) {
		if n.Kind != domain.KindAccount {
			continue
		}
		if n.Account != nil && n.Account.Placeholder {
			continue
		}
		node := n
		ectx.AccountNode = &node
		if n.Account != nil {
			ectx.AccountAddress = n.Account.Address
		}
		break
	}

	// Breadth-first descendant order keeps direct children ahead of
	// swap-routed scopes; the walk's visited set deduplicates a scope
	// reachable over both paths.
	fungible := 0
	for _, n := range idx.Descendants(transferID) {
		if !n.Kind.IsScope() {
			continue
		}
		ectx.ScopeNodes = append(ectx.ScopeNodes, n)
		if n.Kind == domain.KindFungibleScope {
			fungible++
		}
	}

	if ectx.AccountNode != nil {
		if fungible > 0 {
			ectx.OperationKind = domain.OpFungibleTransfer
		} else {
			ectx.OperationKind = domain.OpNativeTransfer
		}
	}

	if scope := primaryScope(ectx.ScopeNodes); scope != nil {
		ectx.Params = buildParams(*scope)
	}
	return ectx, nil
}

// primaryScope picks the node permission parameters come from:
// first fungible scope in traversal order, else first native scope.
func primaryScope(scopes []domain.WorkflowNode) *domain.WorkflowNode {
	for i := range scopes {
		if scopes[i].Kind == domain.KindFungibleScope {
			return &scopes[i]
		}
	}
	if len(scopes) > 0 {
		return &scopes[0]
	}
	return nil
}

func buildParams(scope domain.WorkflowNode) *domain.PermissionParameters {
	p := &domain.PermissionParameters{
		PeriodDuration: DefaultPeriodSeconds,
		Decimals:       DefaultDecimals,
		ScopeNodeID:    scope.ID,
	}
	attrs := scope.Scope
	if attrs == nil {
		return p
	}
	p.StartTime = attrs.StartTime
	p.EndTime = attrs.EndTime
	p.AmountLimit = attrs.AmountLimit
	p.PeriodAmount = attrs.AmountLimit
	if p.PeriodAmount == "" {
		p.PeriodAmount = attrs.Amount
	}
	if attrs.StartTime != nil && attrs.EndTime != nil {
		// May be non-positive for an inverted window; grant-request
		// construction rejects that, not the analyzer.
		p.PeriodDuration = *attrs.EndTime - *attrs.StartTime
	}
	if scope.Kind == domain.KindFungibleScope {
		p.ScopeAddress = attrs.ContractAddress
		if attrs.Decimals != nil {
			p.Decimals = *attrs.Decimals
		}
		p.Symbol = attrs.Symbol
	} else {
		p.Symbol = attrs.Symbol
		if p.Symbol == "" {
			p.Symbol = "ETH"
		}
	}
	return p
}

// TransferNodes returns every transfer node in input order, the unit
// plan synthesis iterates over.
func TransferNodes(idx *Index) []domain.WorkflowNode {
	var out []domain.WorkflowNode
	for _, n := range idx.Nodes() {
		if n.Kind == domain.KindTransfer {
			out = append(out, n)
		}
	}
	return out
}
