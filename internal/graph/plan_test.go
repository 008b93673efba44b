package graph_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/Suganthan96/NCP/internal/domain"
	"github.com/Suganthan96/NCP/internal/graph"
)

func analyzeAll(t *testing.T, nodes []domain.WorkflowNode, es []domain.Edge) []domain.ExecutionContext {
	t.Helper()
	idx := graph.NewIndex(nodes, es)
	var out []domain.ExecutionContext
	for _, tr := range graph.TransferNodes(idx) {
		ectx, err := graph.Analyze(idx, tr.ID)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, ectx)
	}
	return out
}

func TestSynthesizeFungibleStep(t *testing.T) {
	contexts := analyzeAll(t,
		[]domain.WorkflowNode{
			accountNode("acc", "0xAccount"),
			transferNode("tr", "0xRecipient", "5"),
			fungibleScopeNode("sc", domain.ScopeAttrs{
				ContractAddress: "0xToken", Symbol: "USDC", Amount: "5",
			}),
		},
		edges([2]string{"acc", "tr"}, [2]string{"tr", "sc"}),
	)
	plan := graph.SynthesizePlan(contexts)
	if plan.TotalSteps != 1 || plan.Skipped != 0 {
		t.Fatalf("total=%d skipped=%d", plan.TotalSteps, plan.Skipped)
	}
	step := plan.Steps[0]
	if step.OperationKind != domain.OpFungibleTransfer {
		t.Fatalf("kind = %s", step.OperationKind)
	}
	want := "Transfer 5 USDC from 0xAccount to 0xRecipient via token contract 0xToken"
	if step.Description != want {
		t.Fatalf("description = %q", step.Description)
	}
}

func TestSynthesizeNativeStep(t *testing.T) {
	contexts := analyzeAll(t,
		[]domain.WorkflowNode{
			accountNode("acc", "0xAccount"),
			transferNode("tr", "0xRecipient", "0.1"),
			nativeScopeNode("sc", domain.ScopeAttrs{Amount: "0.1"}),
		},
		edges([2]string{"acc", "tr"}, [2]string{"tr", "sc"}),
	)
	plan := graph.SynthesizePlan(contexts)
	if plan.TotalSteps != 1 {
		t.Fatalf("total = %d", plan.TotalSteps)
	}
	want := "Transfer 0.1 ETH from 0xAccount to 0xRecipient"
	if plan.Steps[0].Description != want {
		t.Fatalf("description = %q", plan.Steps[0].Description)
	}
}

func TestSynthesizeSkipsUnusableContexts(t *testing.T) {
	// No account upstream: context is unknown and must be skipped, not
	// emitted broken.
	contexts := analyzeAll(t,
		[]domain.WorkflowNode{
			transferNode("tr", "0xRecipient", "1"),
			nativeScopeNode("sc", domain.ScopeAttrs{Amount: "1"}),
		},
		edges([2]string{"tr", "sc"}),
	)
	plan := graph.SynthesizePlan(contexts)
	if plan.TotalSteps != 0 || plan.Skipped != 1 {
		t.Fatalf("total=%d skipped=%d", plan.TotalSteps, plan.Skipped)
	}
	if plan.HasExecutableSteps() {
		t.Fatal("plan with no steps must report not executable")
	}
}

func TestSynthesizeSkipsFungibleWithoutContract(t *testing.T) {
	contexts := analyzeAll(t,
		[]domain.WorkflowNode{
			accountNode("acc", "0xAccount"),
			transferNode("tr", "0xRecipient", "5"),
			fungibleScopeNode("sc", domain.ScopeAttrs{Symbol: "USDC", Amount: "5"}),
		},
		edges([2]string{"acc", "tr"}, [2]string{"tr", "sc"}),
	)
	plan := graph.SynthesizePlan(contexts)
	if plan.Skipped != 1 {
		t.Fatalf("skipped = %d, want fungible scope without contract skipped", plan.Skipped)
	}
}

func TestSynthesizeAmountAndRecipientFallBackToTransfer(t *testing.T) {
	contexts := analyzeAll(t,
		[]domain.WorkflowNode{
			accountNode("acc", "0xAccount"),
			transferNode("tr", "0xFromTransfer", "7"),
			nativeScopeNode("sc", domain.ScopeAttrs{}),
		},
		edges([2]string{"acc", "tr"}, [2]string{"tr", "sc"}),
	)
	plan := graph.SynthesizePlan(contexts)
	if plan.TotalSteps != 1 {
		t.Fatalf("total = %d", plan.TotalSteps)
	}
	if plan.Steps[0].Amount != "7" || plan.Steps[0].Recipient != "0xFromTransfer" {
		t.Fatalf("step = %+v", plan.Steps[0])
	}
}

func TestSynthesizePreservesOrder(t *testing.T) {
	nodes := []domain.WorkflowNode{
		accountNode("acc", "0xAccount"),
		transferNode("t1", "0xA", "1"),
		transferNode("t2", "0xB", "2"),
		nativeScopeNode("s1", domain.ScopeAttrs{}),
		nativeScopeNode("s2", domain.ScopeAttrs{}),
	}
	contexts := analyzeAll(t, nodes, edges(
		[2]string{"acc", "t1"}, [2]string{"acc", "t2"},
		[2]string{"t1", "s1"}, [2]string{"t2", "s2"},
	))
	plan := graph.SynthesizePlan(contexts)
	if plan.TotalSteps != 2 {
		t.Fatalf("total = %d", plan.TotalSteps)
	}
	if plan.Steps[0].TransferNodeID != "t1" || plan.Steps[1].TransferNodeID != "t2" {
		t.Fatalf("order = %s, %s", plan.Steps[0].TransferNodeID, plan.Steps[1].TransferNodeID)
	}
}

func TestSummarizePlan(t *testing.T) {
	plan := domain.ExecutionPlan{
		Steps: []domain.Step{
			{Description: "Transfer 1 ETH from a to b"},
			{Description: "Transfer 2 USDC from a to c via token contract t"},
		},
		TotalSteps: 2,
	}
	out := graph.SummarizePlan(plan, []graph.StepResult{
		{TxID: "0xtx1"},
		{Err: errors.New("reverted")},
	})
	if !strings.HasPrefix(out, "Executed 2 operations:") {
		t.Fatalf("summary = %q", out)
	}
	if !strings.Contains(out, "1. Transfer 1 ETH from a to b: ok (0xtx1)") {
		t.Fatalf("summary = %q", out)
	}
	if !strings.Contains(out, "2. Transfer 2 USDC from a to c via token contract t: failed: reverted") {
		t.Fatalf("summary = %q", out)
	}
}

func TestSummarizeEmptyPlan(t *testing.T) {
	if got := graph.SummarizePlan(domain.ExecutionPlan{}, nil); got != "No operations were executed." {
		t.Fatalf("summary = %q", got)
	}
}
