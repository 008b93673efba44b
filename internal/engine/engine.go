package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Suganthan96/NCP/internal/config"
	"github.com/Suganthan96/NCP/internal/domain"
	"github.com/Suganthan96/NCP/internal/events"
	"github.com/Suganthan96/NCP/internal/graph"
	"github.com/Suganthan96/NCP/internal/repo"
)

// Engine orchestrates graph analysis, grant requests, session keys,
// and plan execution over the persistent stores and the external
// providers. Providers are nil-able; operations that need an unset
// provider fail with a clear error instead of panicking.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Now      func() time.Time
	Accounts AccountProvider
	Granter  PermissionGranter
	Bundler  Bundler

	mu       sync.Mutex
	inflight map[string]bool
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	e := &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Now:      time.Now,
		inflight: map[string]bool{},
	}
	e.Repo.Now = e.now
	e.Events.Now = e.now
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TopologyError carries the structured validation failure through an
// error path (API/CLI); the result inside keeps the precise
// expected-vs-found text for the user.
type TopologyError struct {
	Result graph.ValidationResult
}

func (e *TopologyError) Error() string { return e.Result.Reason }

// beginGuard marks an external call in flight under key, refusing
// re-entrant duplicates: the account-creation collaborator is not
// idempotent under concurrent invocation with the same salt.
func (e *Engine) beginGuard(key string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[key] {
		return nil, fmt.Errorf("operation already in progress: %s", key)
	}
	e.inflight[key] = true
	return func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}, nil
}

func (e *Engine) logEvent(ctx context.Context, evtType, workflowID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, workflowID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// WorkflowImportOptions are parameters for storing a graph snapshot.
type WorkflowImportOptions struct {
	ID      string
	Name    string
	Nodes   []domain.WorkflowNode
	Edges   []domain.Edge
	ActorID string
}

// ImportWorkflow validates basic node integrity and stores the graph.
// The id is deterministic from the name when omitted so re-imports
// update in place.
func (e *Engine) ImportWorkflow(ctx context.Context, opts WorkflowImportOptions) (domain.Workflow, error) {
	if opts.Name == "" {
		return domain.Workflow{}, errors.New("name is required")
	}
	seen := make(map[string]bool, len(opts.Nodes))
	for _, n := range opts.Nodes {
		if n.ID == "" {
			return domain.Workflow{}, errors.New("node with empty id")
		}
		if seen[n.ID] {
			return domain.Workflow{}, fmt.Errorf("duplicate node id %s", n.ID)
		}
		seen[n.ID] = true
	}
	for _, edge := range opts.Edges {
		if !seen[edge.Source] {
			return domain.Workflow{}, fmt.Errorf("edge references unknown source node %s", edge.Source)
		}
		if !seen[edge.Target] {
			return domain.Workflow{}, fmt.Errorf("edge references unknown target node %s", edge.Target)
		}
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("workflow|"+opts.Name)).String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	w := domain.Workflow{
		ID:        id,
		Name:      opts.Name,
		Nodes:     opts.Nodes,
		Edges:     opts.Edges,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, err := e.Repo.GetWorkflow(ctx, id); err == nil {
		w.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workflow{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Workflow{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertWorkflow(ctx, tx, w); err != nil {
		return domain.Workflow{}, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.imported", w.ID, "workflow", w.ID, opts.ActorID, events.EventPayload{
		"name":  w.Name,
		"nodes": len(w.Nodes),
		"edges": len(w.Edges),
	}); err != nil {
		return domain.Workflow{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workflow{}, err
	}
	return w, nil
}

func (e *Engine) DeleteWorkflow(ctx context.Context, id, actorID string) error {
	if err := e.Repo.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	return e.logEvent(ctx, "workflow.deleted", id, "workflow", id, actorID, nil)
}

// Validate checks a stored workflow against the sanctioned shapes.
func (e *Engine) Validate(ctx context.Context, workflowID string) (graph.ValidationResult, error) {
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return graph.ValidationResult{}, err
	}
	return graph.ValidateTopology(w.Nodes, w.Edges), nil
}

// AnalyzeTransfer derives the execution context of one transfer node.
func (e *Engine) AnalyzeTransfer(ctx context.Context, workflowID, transferID string) (domain.ExecutionContext, error) {
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.ExecutionContext{}, err
	}
	idx := graph.NewIndex(w.Nodes, w.Edges)
	return graph.Analyze(idx, transferID)
}

// AnalyzeAll derives contexts for every transfer node in input order.
func (e *Engine) AnalyzeAll(w domain.Workflow) ([]domain.ExecutionContext, error) {
	idx := graph.NewIndex(w.Nodes, w.Edges)
	var out []domain.ExecutionContext
	for _, t := range graph.TransferNodes(idx) {
		ectx, err := graph.Analyze(idx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ectx)
	}
	return out, nil
}

// Plan synthesizes the execution plan for a stored workflow.
func (e *Engine) Plan(ctx context.Context, workflowID string) (domain.ExecutionPlan, error) {
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	contexts, err := e.AnalyzeAll(w)
	if err != nil {
		return domain.ExecutionPlan{}, err
	}
	return graph.SynthesizePlan(contexts), nil
}

// BuildGrantRequest converts a context's permission parameters into
// the wallet-mediated request body. Every absent field is reported,
// and an inverted or empty time window is rejected here rather than
// passed on as a negative duration.
func (e *Engine) BuildGrantRequest(ectx domain.ExecutionContext) (GrantRequest, error) {
	var missing []string
	if ectx.AccountAddress == "" {
		missing = append(missing, "account address")
	}
	p := ectx.Params
	if p == nil {
		missing = append(missing, "scope node")
		return GrantRequest{}, &graph.MissingParameterError{Fields: missing}
	}
	fungible := ectx.OperationKind == domain.OpFungibleTransfer
	scopeAddress := p.ScopeAddress
	decimals := p.Decimals
	if fungible && scopeAddress == "" {
		if tok, ok := e.Config.Tokens[p.Symbol]; ok {
			scopeAddress = tok.Address
			decimals = tok.Decimals
		} else {
			missing = append(missing, "contract address")
		}
	}
	if p.PeriodAmount == "" {
		missing = append(missing, "amount limit")
	}
	if len(missing) > 0 {
		return GrantRequest{}, &graph.MissingParameterError{Fields: missing}
	}
	if p.StartTime != nil && p.EndTime != nil && p.PeriodDuration <= 0 {
		return GrantRequest{}, fmt.Errorf("scope %s has an end time at or before its start time", p.ScopeNodeID)
	}

	// A scope without a complete window carries the analyzer's fixed
	// fallback duration; the configured default overrides it.
	duration := p.PeriodDuration
	if (p.StartTime == nil || p.EndTime == nil) && e.Config.Permissions.DefaultPeriodSeconds > 0 {
		duration = e.Config.Permissions.DefaultPeriodSeconds
	}

	units, err := ToSmallestUnit(p.PeriodAmount, decimals)
	if err != nil {
		return GrantRequest{}, fmt.Errorf("amount limit: %w", err)
	}

	now := e.now().Unix()
	start := now
	if p.StartTime != nil {
		start = *p.StartTime
	}
	expiry := start + duration
	if p.EndTime != nil {
		expiry = *p.EndTime
	}
	kind := "native"
	if fungible {
		kind = "fungible"
	}
	return GrantRequest{
		ChainID: e.Config.Chain.ID,
		Expiry:  expiry,
		Signer:  ectx.AccountAddress,
		Scope: GrantScope{
			Kind:            kind,
			ContractAddress: scopeAddress,
			PeriodAmount:    units.String(),
			PeriodDuration:  duration,
			StartTime:       start,
			Justification:   e.Config.Permissions.Justification,
		},
	}, nil
}

// GrantKey is the store key a context's grant is cached under:
// the account address alone, or account-scopeNodeID when the context
// carries independently-grantable scopes.
func GrantKey(ectx domain.ExecutionContext) string {
	key := ectx.AccountAddress
	if len(ectx.ScopeNodes) > 1 && ectx.Params != nil {
		key = ectx.AccountAddress + "-" + ectx.Params.ScopeNodeID
	}
	return repo.NormalizeGrantKey(key)
}

// RequestPermission validates the workflow, derives the transfer's
// context, performs the external grant call, and caches the returned
// record. Nothing is persisted unless the provider call succeeds, and
// a second request for the same account while one is outstanding is
// refused.
func (e *Engine) RequestPermission(ctx context.Context, workflowID, transferID, actorID string) (domain.PermissionGrant, error) {
	if e.Granter == nil {
		return domain.PermissionGrant{}, errors.New("permission granter not configured")
	}
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.PermissionGrant{}, err
	}
	if res := graph.ValidateTopology(w.Nodes, w.Edges); !res.OK {
		return domain.PermissionGrant{}, &TopologyError{Result: res}
	}
	idx := graph.NewIndex(w.Nodes, w.Edges)
	ectx, err := graph.Analyze(idx, transferID)
	if err != nil {
		return domain.PermissionGrant{}, err
	}
	req, err := e.BuildGrantRequest(ectx)
	if err != nil {
		return domain.PermissionGrant{}, err
	}

	release, err := e.beginGuard("grant:" + repo.NormalizeGrantKey(ectx.AccountAddress))
	if err != nil {
		return domain.PermissionGrant{}, err
	}
	defer release()

	record, err := e.Granter.RequestGrant(ctx, req)
	if err != nil {
		return domain.PermissionGrant{}, &ExternalCallError{Provider: "permission granter", Err: err}
	}

	key := GrantKey(ectx)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PermissionGrant{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.SaveGrant(ctx, tx, key, string(record)); err != nil {
		return domain.PermissionGrant{}, err
	}
	if err := e.Events.Append(ctx, tx, "permission.granted", workflowID, "permission", key, actorID, events.EventPayload{
		"signer":          req.Signer,
		"scope_kind":      req.Scope.Kind,
		"period_amount":   req.Scope.PeriodAmount,
		"period_duration": req.Scope.PeriodDuration,
		"expiry":          req.Expiry,
	}); err != nil {
		return domain.PermissionGrant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PermissionGrant{}, err
	}
	return e.Repo.GetGrant(ctx, key)
}

// RemoveGrant drops a cached grant record.
func (e *Engine) RemoveGrant(ctx context.Context, key, actorID string) error {
	if err := e.Repo.RemoveGrant(ctx, key); err != nil {
		return err
	}
	return e.logEvent(ctx, "permission.removed", "", "permission", repo.NormalizeGrantKey(key), actorID, nil)
}

// CreateAccount performs the fire-once external account derivation for
// an account node and writes the address back into the stored graph.
func (e *Engine) CreateAccount(ctx context.Context, workflowID, nodeID, actorID string) (string, error) {
	if e.Accounts == nil {
		return "", errors.New("account provider not configured")
	}
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}
	nodeIdx := -1
	for i, n := range w.Nodes {
		if n.ID == nodeID {
			nodeIdx = i
			break
		}
	}
	if nodeIdx < 0 {
		return "", fmt.Errorf("node %s not found in workflow %s", nodeID, workflowID)
	}
	node := w.Nodes[nodeIdx]
	if node.Kind != domain.KindAccount || node.Account == nil {
		return "", fmt.Errorf("node %s is not an account node", nodeID)
	}
	if node.Account.Placeholder {
		return "", fmt.Errorf("node %s is a placeholder account", nodeID)
	}
	if node.Account.Address != "" {
		return node.Account.Address, nil
	}

	release, err := e.beginGuard("account:" + workflowID + ":" + nodeID)
	if err != nil {
		return "", err
	}
	defer release()

	address, err := e.Accounts.CreateAccount(ctx, node.Account.OwnerSalt)
	if err != nil {
		return "", &ExternalCallError{Provider: "account provider", Err: err}
	}

	w.Nodes[nodeIdx].Account.Address = address
	w.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertWorkflow(ctx, tx, w); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, "account.created", workflowID, "node", nodeID, actorID, events.EventPayload{
		"address": address,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return address, nil
}

// ExecutionReceipt is the result of submitting a plan.
type ExecutionReceipt struct {
	Plan    domain.ExecutionPlan `json:"plan"`
	TxID    string               `json:"tx_id,omitempty"`
	Summary string               `json:"summary"`
}

// ExecutePlan synthesizes and submits the workflow's plan. A plan with
// no executable steps is returned without touching the bundler, and a
// failed submission leaves no state behind.
func (e *Engine) ExecutePlan(ctx context.Context, workflowID, actorID string) (ExecutionReceipt, error) {
	w, err := e.Repo.GetWorkflow(ctx, workflowID)
	if err != nil {
		return ExecutionReceipt{}, err
	}
	if res := graph.ValidateTopology(w.Nodes, w.Edges); !res.OK {
		return ExecutionReceipt{}, &TopologyError{Result: res}
	}
	contexts, err := e.AnalyzeAll(w)
	if err != nil {
		return ExecutionReceipt{}, err
	}
	plan := graph.SynthesizePlan(contexts)
	if !plan.HasExecutableSteps() {
		return ExecutionReceipt{Plan: plan, Summary: graph.SummarizePlan(plan, nil)}, nil
	}
	if e.Bundler == nil {
		return ExecutionReceipt{}, errors.New("bundler not configured")
	}
	txID, err := e.Bundler.Submit(ctx, plan.Steps)
	if err != nil {
		return ExecutionReceipt{}, &ExternalCallError{Provider: "bundler", Err: err}
	}
	results := make([]graph.StepResult, len(plan.Steps))
	for i := range results {
		results[i] = graph.StepResult{TxID: txID}
	}
	summary := graph.SummarizePlan(plan, results)
	if err := e.logEvent(ctx, "plan.executed", workflowID, "plan", txID, actorID, events.EventPayload{
		"steps": plan.TotalSteps,
		"tx_id": txID,
	}); err != nil {
		return ExecutionReceipt{}, err
	}
	return ExecutionReceipt{Plan: plan, TxID: txID, Summary: summary}, nil
}

// sessionKeyTTL returns the configured lifetime.
func (e *Engine) sessionKeyTTL() time.Duration {
	if e.Config != nil && e.Config.SessionKeys.TTLDays > 0 {
		return time.Duration(e.Config.SessionKeys.TTLDays) * 24 * time.Hour
	}
	return SessionKeyTTL
}

// EnsureSessionKey returns a usable session key for the pair, or
// generates and persists a fresh unauthorized one. created=true means
// the caller must obtain the one-time external approval and then call
// AuthorizeSessionKey before the key is usable.
func (e *Engine) EnsureSessionKey(ctx context.Context, nodeID, account string, scope *domain.SessionKeyScope, actorID string) (domain.SessionKey, bool, error) {
	if nodeID == "" || account == "" {
		return domain.SessionKey{}, false, errors.New("node id and account address required")
	}
	existing, err := e.Repo.GetSessionKey(ctx, nodeID, account)
	if err != nil {
		return domain.SessionKey{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}
	// GetSessionKey hides unauthorized records; a pending key that is
	// still within its lifetime must be returned, not regenerated, or
	// a second call would invalidate the approval in flight.
	if pending, err := e.Repo.PeekSessionKey(ctx, nodeID, account); err == nil {
		exp, perr := time.Parse(time.RFC3339, pending.ExpiresAt)
		if perr == nil && e.now().Before(exp) {
			return pending, false, nil
		}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.SessionKey{}, false, err
	}
	key, err := newSessionKey(nodeID, account, e.now(), e.sessionKeyTTL(), scope)
	if err != nil {
		return domain.SessionKey{}, false, err
	}
	if err := e.Repo.PersistSessionKey(ctx, key); err != nil {
		return domain.SessionKey{}, false, err
	}
	if err := e.logEvent(ctx, "sessionkey.generated", "", "session_key", nodeID, actorID, events.EventPayload{
		"account": repo.NormalizeGrantKey(account),
		"address": key.PublicAddress,
		"expires": key.ExpiresAt,
	}); err != nil {
		return domain.SessionKey{}, false, err
	}
	return key, true, nil
}

// AuthorizeSessionKey marks the key authorized after exactly one
// successful external approval. false means no such key exists.
func (e *Engine) AuthorizeSessionKey(ctx context.Context, nodeID, account, actorID string) (bool, error) {
	ok, err := e.Repo.AuthorizeSessionKey(ctx, nodeID, account)
	if err != nil || !ok {
		return ok, err
	}
	return true, e.logEvent(ctx, "sessionkey.authorized", "", "session_key", nodeID, actorID, events.EventPayload{
		"account": repo.NormalizeGrantKey(account),
	})
}

// RevokeSessionKey deletes the key unconditionally.
func (e *Engine) RevokeSessionKey(ctx context.Context, nodeID, account, actorID string) error {
	if err := e.Repo.RevokeSessionKey(ctx, nodeID, account); err != nil {
		return err
	}
	return e.logEvent(ctx, "sessionkey.revoked", "", "session_key", nodeID, actorID, events.EventPayload{
		"account": repo.NormalizeGrantKey(account),
	})
}

// SweepSessionKeys removes every expired key, typically at startup.
func (e *Engine) SweepSessionKeys(ctx context.Context, actorID string) (int, error) {
	n, err := e.Repo.SweepExpiredSessionKeys(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.logEvent(ctx, "sessionkey.swept", "", "session_key", "", actorID, events.EventPayload{
			"removed": n,
		}); err != nil {
			return n, err
		}
	}
	return n, nil
}
