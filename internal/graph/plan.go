package graph

import (
	"fmt"

	"github.com/Suganthan96/NCP/internal/domain"
)

// SynthesizePlan maps execution contexts into an ordered plan. Step
// order follows the input order, never re-sorted. A context whose
// operation kind is unknown or whose required fields are missing is
// skipped rather than emitted as a malformed step.
func SynthesizePlan(contexts []domain.ExecutionContext) domain.ExecutionPlan {
	plan := domain.ExecutionPlan{}
	for _, ectx := range contexts {
		step, ok := synthesizeStep(ectx)
		if !ok {
			plan.Skipped++
			continue
		}
		plan.Steps = append(plan.Steps, step)
	}
	plan.TotalSteps = len(plan.Steps)
	return plan
}

func synthesizeStep(ectx domain.ExecutionContext) (domain.Step, bool) {
	if ectx.OperationKind == domain.OpUnknown || ectx.AccountAddress == "" {
		return domain.Step{}, false
	}
	scope := primaryScope(ectx.ScopeNodes)
	if scope == nil || scope.Scope == nil {
		return domain.Step{}, false
	}
	attrs := scope.Scope

	amount := attrs.Amount
	if amount == "" && ectx.TransferNode.Transfer != nil {
		amount = ectx.TransferNode.Transfer.Amount
	}
	recipient := attrs.Recipient
	if recipient == "" && ectx.TransferNode.Transfer != nil {
		recipient = ectx.TransferNode.Transfer.Recipient
	}
	if amount == "" || recipient == "" {
		return domain.Step{}, false
	}

	step := domain.Step{
		OperationKind:  ectx.OperationKind,
		AccountAddress: ectx.AccountAddress,
		Recipient:      recipient,
		Amount:         amount,
		Symbol:         attrs.Symbol,
		TransferNodeID: ectx.TransferNode.ID,
	}
	switch ectx.OperationKind {
	case domain.OpFungibleTransfer:
		if attrs.ContractAddress == "" {
			return domain.Step{}, false
		}
		step.ContractAddress = attrs.ContractAddress
		if step.Symbol == "" {
			step.Symbol = "tokens"
		}
		step.Description = fmt.Sprintf("Transfer %s %s from %s to %s via token contract %s",
			amount, step.Symbol, ectx.AccountAddress, recipient, attrs.ContractAddress)
	case domain.OpNativeTransfer:
		if step.Symbol == "" {
			step.Symbol = "ETH"
		}
		step.Description = fmt.Sprintf("Transfer %s %s from %s to %s",
			amount, step.Symbol, ectx.AccountAddress, recipient)
	default:
		return domain.Step{}, false
	}
	return step, true
}

// SummarizePlan renders the human summary shown after execution, one
// numbered line per step with its outcome.
func SummarizePlan(plan domain.ExecutionPlan, results []StepResult) string {
	if plan.TotalSteps == 0 {
		return "No operations were executed."
	}
	out := fmt.Sprintf("Executed %d operations:\n", plan.TotalSteps)
	for i, step := range plan.Steps {
		status := "pending"
		if i < len(results) {
			if results[i].Err != nil {
				status = "failed: " + results[i].Err.Error()
			} else {
				status = "ok"
			}
			if results[i].TxID != "" {
				status += " (" + results[i].TxID + ")"
			}
		}
		out += fmt.Sprintf("%d. %s: %s\n", i+1, step.Description, status)
	}
	return out
}

// StepResult pairs a plan step with its submission outcome.
type StepResult struct {
	TxID string `json:"tx_id,omitempty"`
	Err  error  `json:"-"`
}
