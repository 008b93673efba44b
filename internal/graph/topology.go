package graph

import (
	"fmt"
	"strings"

	"github.com/Suganthan96/NCP/internal/domain"
)

// Pattern names a sanctioned execution shape.
type Pattern string

const (
	PatternDirect Pattern = "direct"
	PatternRouted Pattern = "routed"
)

// ValidationResult reports whether a graph matches one of the two
// sanctioned shapes. Failures are values, not errors: an incomplete
// graph is an expected state while the user is still editing, and the
// reason text is shown verbatim in the UI.
type ValidationResult struct {
	OK         bool    `json:"ok"`
	Pattern    Pattern `json:"pattern,omitempty" enum:"direct,routed"`
	ScopeCount int     `json:"scope_count"`
	Reason     string  `json:"reason,omitempty"`
	// Expected and Found describe the offending edge or node in
	// "source -> target" form when the failure is structural.
	Expected string `json:"expected,omitempty"`
	Found    string `json:"found,omitempty"`
}

func failure(reason, expected, found string) ValidationResult {
	return ValidationResult{Reason: reason, Expected: expected, Found: found}
}

// ValidateTopology checks that the graph encodes either
//
//	direct : account -> transfer -> scope...
//	routed : account -> transfer -> swap -> scope...
//
// before any permission is derived from it. Placeholder account nodes
// (visual stand-ins with no interactive identity) never count as the
// controlling account. When a swap is present the scope nodes must
// hang off the swap, not off the transfer.
func ValidateTopology(nodes []domain.WorkflowNode, edges []domain.Edge) ValidationResult {
	idx := NewIndex(nodes, edges)

	var accounts, transfers, swaps, scopes []domain.WorkflowNode
	for _, n := range idx.Nodes() {
		switch {
		case n.Kind == domain.KindAccount:
			if n.Account != nil && n.Account.Placeholder {
				continue
			}
			accounts = append(accounts, n)
		case n.Kind == domain.KindTransfer:
			transfers = append(transfers, n)
		case n.Kind == domain.KindSwap:
			swaps = append(swaps, n)
		case n.Kind.IsScope():
			scopes = append(scopes, n)
		}
	}

	if len(accounts) == 0 {
		return failure("no account node found; add an account node and connect it to the transfer node",
			"account -> transfer", "no account node")
	}
	if len(accounts) > 1 {
		return failure(fmt.Sprintf("expected exactly one account node, found %d (%s)", len(accounts), nodeIDs(accounts)),
			"one account node", nodeIDs(accounts))
	}
	if len(transfers) == 0 {
		return failure("no transfer node found; add a transfer node downstream of the account node",
			"account -> transfer", "no transfer node")
	}
	if len(transfers) > 1 {
		return failure(fmt.Sprintf("expected exactly one transfer node, found %d (%s)", len(transfers), nodeIDs(transfers)),
			"one transfer node", nodeIDs(transfers))
	}

	account, transfer := accounts[0], transfers[0]
	if !idx.HasEdge(account.ID, transfer.ID) {
		return failure(
			fmt.Sprintf("account node %s is not connected to transfer node %s; draw an edge from the account to the transfer", account.ID, transfer.ID),
			fmt.Sprintf("%s -> %s", account.ID, transfer.ID),
			describeEdges(idx, account.ID))
	}

	if len(swaps) > 1 {
		return failure(fmt.Sprintf("expected at most one swap node, found %d (%s)", len(swaps), nodeIDs(swaps)),
			"at most one swap node", nodeIDs(swaps))
	}

	if len(swaps) == 1 {
		swap := swaps[0]
		if !idx.HasEdge(transfer.ID, swap.ID) {
			return failure(
				fmt.Sprintf("transfer node %s is not connected to swap node %s", transfer.ID, swap.ID),
				fmt.Sprintf("%s -> %s", transfer.ID, swap.ID),
				describeEdges(idx, transfer.ID))
		}
		count := 0
		for _, child := range idx.ChildrenOf(swap.ID) {
			if n, ok := idx.Node(child); ok && n.Kind.IsScope() {
				count++
			}
		}
		if count == 0 {
			return failure(
				fmt.Sprintf("swap node %s has no outgoing edge to a token or native scope node", swap.ID),
				fmt.Sprintf("%s -> scope", swap.ID),
				describeEdges(idx, swap.ID))
		}
		// Scope nodes attached directly to the transfer would bypass
		// the swap and are rejected.
		for _, child := range idx.ChildrenOf(transfer.ID) {
			if n, ok := idx.Node(child); ok && n.Kind.IsScope() {
				return failure(
					fmt.Sprintf("scope node %s must connect to swap node %s, not directly to transfer node %s", n.ID, swap.ID, transfer.ID),
					fmt.Sprintf("%s -> %s", swap.ID, n.ID),
					fmt.Sprintf("%s -> %s", transfer.ID, n.ID))
			}
		}
		return ValidationResult{OK: true, Pattern: PatternRouted, ScopeCount: count}
	}

	count := 0
	for _, child := range idx.ChildrenOf(transfer.ID) {
		if n, ok := idx.Node(child); ok && n.Kind.IsScope() {
			count++
		}
	}
	if count == 0 {
		if len(scopes) > 0 {
			return failure(
				fmt.Sprintf("transfer node %s is not connected to any scope node (%s exist but are not reachable)", transfer.ID, nodeIDs(scopes)),
				fmt.Sprintf("%s -> scope", transfer.ID),
				describeEdges(idx, transfer.ID))
		}
		return failure(
			fmt.Sprintf("transfer node %s has no scope node; add a token or native scope node", transfer.ID),
			fmt.Sprintf("%s -> scope", transfer.ID),
			describeEdges(idx, transfer.ID))
	}
	return ValidationResult{OK: true, Pattern: PatternDirect, ScopeCount: count}
}

func nodeIDs(nodes []domain.WorkflowNode) string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return strings.Join(ids, ", ")
}

func describeEdges(idx *Index, source string) string {
	children := idx.ChildrenOf(source)
	if len(children) == 0 {
		return fmt.Sprintf("%s has no outgoing edges", source)
	}
	return fmt.Sprintf("%s -> %s", source, strings.Join(children, ", "))
}
