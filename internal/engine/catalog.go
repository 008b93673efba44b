package engine

// OperationDescriptor documents one operation the planner can emit,
// with the node attributes it consumes. Served read-only so UIs can
// render builder palettes without hardcoding the vocabulary.
type OperationDescriptor struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs"`
	Outputs     []string `json:"outputs"`
}

var operationCatalog = []OperationDescriptor{
	{
		Name:        "create_account",
		Kind:        "account",
		Description: "Derive a smart account address from an owner salt. The account anchors permissions and signs execution.",
		Inputs:      []string{"owner_salt"},
		Outputs:     []string{"address"},
	},
	{
		Name:        "transfer",
		Kind:        "transfer",
		Description: "Send tokens to a recipient. The asset and limits come from the scope nodes reachable below the transfer.",
		Inputs:      []string{"recipient", "amount"},
		Outputs:     []string{"tx_id"},
	},
	{
		Name:        "swap",
		Kind:        "swap",
		Description: "Route a transfer through an exchange step. Sits between the transfer and its scopes in the routed shape.",
		Inputs:      []string{},
		Outputs:     []string{},
	},
	{
		Name:        "fungible_scope",
		Kind:        "fungible_scope",
		Description: "Bound spending of an ERC-20 token: contract address, decimals, amount limit, optional validity window.",
		Inputs:      []string{"contract_address", "decimals", "symbol", "amount_limit", "start_time", "end_time"},
		Outputs:     []string{},
	},
	{
		Name:        "native_scope",
		Kind:        "native_scope",
		Description: "Bound spending of the chain's native asset: amount limit and optional validity window.",
		Inputs:      []string{"amount_limit", "start_time", "end_time"},
		Outputs:     []string{},
	},
}

// Catalog returns the supported operation descriptors.
func Catalog() []OperationDescriptor {
	out := make([]OperationDescriptor, len(operationCatalog))
	copy(out, operationCatalog)
	return out
}
