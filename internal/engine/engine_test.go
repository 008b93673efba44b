package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Suganthan96/NCP/internal/config"
	"github.com/Suganthan96/NCP/internal/db"
	"github.com/Suganthan96/NCP/internal/domain"
	"github.com/Suganthan96/NCP/internal/engine"
	"github.com/Suganthan96/NCP/internal/graph"
	"github.com/Suganthan96/NCP/internal/migrate"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
	Now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		Ctx: context.Background(),
		Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	env.Engine = engine.New(conn, config.Default())
	env.Engine.Now = func() time.Time { return env.Now }
	return env
}

type fakeGranter struct {
	calls   int
	fail    bool
	lastReq engine.GrantRequest
	entered chan struct{}
	release chan struct{}
}

func (g *fakeGranter) RequestGrant(ctx context.Context, req engine.GrantRequest) (json.RawMessage, error) {
	g.calls++
	g.lastReq = req
	if g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}
	if g.fail {
		return nil, errors.New("wallet rejected the request")
	}
	return json.RawMessage(`{"permission_id":"perm-1","signer":"` + req.Signer + `"}`), nil
}

type fakeAccounts struct {
	calls   int
	address string
}

func (a *fakeAccounts) CreateAccount(ctx context.Context, ownerSalt string) (string, error) {
	a.calls++
	if a.address == "" {
		return "", errors.New("factory unavailable")
	}
	return a.address, nil
}

type fakeBundler struct {
	calls int
	fail  bool
	steps []domain.Step
}

func (b *fakeBundler) Submit(ctx context.Context, steps []domain.Step) (string, error) {
	b.calls++
	b.steps = steps
	if b.fail {
		return "", errors.New("bundle dropped")
	}
	return "0xtxhash", nil
}

func fungibleWorkflow(account string) ([]domain.WorkflowNode, []domain.Edge) {
	nodes := []domain.WorkflowNode{
		{ID: "acc", Kind: domain.KindAccount, Account: &domain.AccountAttrs{Address: account, OwnerSalt: "salt-1"}},
		{ID: "tr", Kind: domain.KindTransfer, Transfer: &domain.TransferAttrs{Recipient: "0xRecipient", Amount: "5"}},
		{ID: "sc", Kind: domain.KindFungibleScope, Scope: &domain.ScopeAttrs{
			ContractAddress: "0xToken",
			Symbol:          "USDC",
			Decimals:        intp(6),
			Amount:          "5",
			AmountLimit:     "100",
		}},
	}
	es := []domain.Edge{{Source: "acc", Target: "tr"}, {Source: "tr", Target: "sc"}}
	return nodes, es
}

func intp(v int) *int { return &v }

func importFungible(t *testing.T, env *testEnv, account string) domain.Workflow {
	t.Helper()
	nodes, es := fungibleWorkflow(account)
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "payroll", Nodes: nodes, Edges: es, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	return w
}

func TestImportWorkflowDeterministicID(t *testing.T) {
	env := newTestEnv(t)
	first := importFungible(t, env, "0xAbC")
	second := importFungible(t, env, "0xAbC")
	if first.ID != second.ID {
		t.Fatalf("re-import under the same name produced a new id: %s vs %s", first.ID, second.ID)
	}
	items, err := env.Engine.Repo.ListWorkflows(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("workflows = %d, want 1", len(items))
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, first.ID, "workflow.imported", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 {
		t.Fatalf("imported events = %d, want 2", len(evts))
	}
}

func TestImportWorkflowRejectsDanglingEdge(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name:  "broken",
		Nodes: []domain.WorkflowNode{{ID: "a", Kind: domain.KindAccount}},
		Edges: []domain.Edge{{Source: "a", Target: "ghost"}},
	})
	if err == nil || !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected dangling edge error, got %v", err)
	}
}

func TestRequestPermission(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	w := importFungible(t, env, "0xAbC")

	g, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	if err != nil {
		t.Fatalf("request permission: %v", err)
	}
	if granter.calls != 1 {
		t.Fatalf("granter calls = %d", granter.calls)
	}
	req := granter.lastReq
	if req.ChainID != env.Engine.Config.Chain.ID {
		t.Fatalf("chain id = %d", req.ChainID)
	}
	if req.Signer != "0xAbC" {
		t.Fatalf("signer = %q", req.Signer)
	}
	if req.Scope.Kind != "fungible" || req.Scope.ContractAddress != "0xToken" {
		t.Fatalf("scope = %+v", req.Scope)
	}
	// 100 USDC at 6 decimals.
	if req.Scope.PeriodAmount != "100000000" {
		t.Fatalf("period amount = %s", req.Scope.PeriodAmount)
	}
	if req.Scope.PeriodDuration != graph.DefaultPeriodSeconds {
		t.Fatalf("period duration = %d", req.Scope.PeriodDuration)
	}
	if req.Expiry != env.Now.Unix()+graph.DefaultPeriodSeconds {
		t.Fatalf("expiry = %d", req.Expiry)
	}

	if g.Key != "0xabc" {
		t.Fatalf("grant key = %q, want lower-cased account", g.Key)
	}
	// Lookups are case-insensitive.
	ok, err := env.Engine.Repo.HasGrant(env.Ctx, "0XABC")
	if err != nil || !ok {
		t.Fatalf("HasGrant(0XABC) = %v, %v", ok, err)
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(g.RecordJSON), &record); err != nil {
		t.Fatalf("record not stored verbatim: %v", err)
	}
	if record["permission_id"] != "perm-1" {
		t.Fatalf("record = %v", record)
	}
}

func TestRequestPermissionMissingContract(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	nodes, es := fungibleWorkflow("0xAbC")
	// Unknown symbol so the token catalog cannot fill the gap.
	nodes[2].Scope.ContractAddress = ""
	nodes[2].Scope.Symbol = "FOO"
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "no-contract", Nodes: nodes, Edges: es,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	var me *graph.MissingParameterError
	if !errors.As(err, &me) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	found := false
	for _, f := range me.Fields {
		if f == "contract address" {
			found = true
		}
	}
	if !found {
		t.Fatalf("fields = %v, want contract address named", me.Fields)
	}
	if granter.calls != 0 {
		t.Fatal("provider must not be called for an incomplete context")
	}
}

func TestRequestPermissionTokenCatalogFallback(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	nodes, es := fungibleWorkflow("0xAbC")
	nodes[2].Scope.ContractAddress = ""
	nodes[2].Scope.Decimals = nil
	nodes[2].Scope.Symbol = "USDC" // present in the default catalog
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "catalog", Nodes: nodes, Edges: es,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester"); err != nil {
		t.Fatalf("request: %v", err)
	}
	tok := env.Engine.Config.Tokens["USDC"]
	if granter.lastReq.Scope.ContractAddress != tok.Address {
		t.Fatalf("contract = %q, want catalog address", granter.lastReq.Scope.ContractAddress)
	}
	if granter.lastReq.Scope.PeriodAmount != "100000000" {
		t.Fatalf("period amount = %s, want catalog decimals applied", granter.lastReq.Scope.PeriodAmount)
	}
}

func TestGrantUsesConfiguredDefaultPeriod(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Permissions.DefaultPeriodSeconds = 3600
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	w := importFungible(t, env, "0xAbC") // scope declares no time window

	if _, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if granter.lastReq.Scope.PeriodDuration != 3600 {
		t.Fatalf("period duration = %d, want configured 3600", granter.lastReq.Scope.PeriodDuration)
	}
	if granter.lastReq.Expiry != env.Now.Unix()+3600 {
		t.Fatalf("expiry = %d", granter.lastReq.Expiry)
	}
}

func TestGrantExplicitWindowBeatsConfiguredDefault(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Permissions.DefaultPeriodSeconds = 3600
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	nodes, es := fungibleWorkflow("0xAbC")
	start, end := int64(1000), int64(8200)
	nodes[2].Scope.StartTime = &start
	nodes[2].Scope.EndTime = &end
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "windowed", Nodes: nodes, Edges: es,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if granter.lastReq.Scope.PeriodDuration != 7200 {
		t.Fatalf("period duration = %d, want the scope's own window", granter.lastReq.Scope.PeriodDuration)
	}
	if granter.lastReq.Expiry != end {
		t.Fatalf("expiry = %d", granter.lastReq.Expiry)
	}
}

func TestRequestPermissionInvalidTopology(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "no-scope",
		Nodes: []domain.WorkflowNode{
			{ID: "acc", Kind: domain.KindAccount, Account: &domain.AccountAttrs{Address: "0xAbC"}},
			{ID: "tr", Kind: domain.KindTransfer, Transfer: &domain.TransferAttrs{Recipient: "0xR", Amount: "1"}},
		},
		Edges: []domain.Edge{{Source: "acc", Target: "tr"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	var te *engine.TopologyError
	if !errors.As(err, &te) {
		t.Fatalf("expected TopologyError, got %v", err)
	}
	if te.Result.OK {
		t.Fatal("topology error must carry the failed result")
	}
	if granter.calls != 0 {
		t.Fatal("provider must not be called for an invalid graph")
	}
}

func TestRequestPermissionProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Granter = &fakeGranter{fail: true}
	w := importFungible(t, env, "0xAbC")

	_, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	var ee *engine.ExternalCallError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExternalCallError, got %v", err)
	}
	if !strings.Contains(ee.Error(), "wallet rejected the request") {
		t.Fatalf("provider message lost: %v", ee)
	}
	ok, err := env.Engine.Repo.HasGrant(env.Ctx, "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("failed provider call must leave no stored grant")
	}
}

func TestRequestPermissionInFlightGuard(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	env.Engine.Granter = granter
	w := importFungible(t, env, "0xAbC")

	done := make(chan error, 1)
	go func() {
		_, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
		done <- err
	}()
	<-granter.entered

	_, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("expected in-flight conflict, got %v", err)
	}

	close(granter.release)
	if err := <-done; err != nil {
		t.Fatalf("first request: %v", err)
	}
	// Guard released: a later request succeeds.
	granter.entered = nil
	if _, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester"); err != nil {
		t.Fatalf("request after release: %v", err)
	}
}

func TestGrantRejectsInvertedWindow(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Granter = &fakeGranter{}
	nodes, es := fungibleWorkflow("0xAbC")
	start, end := int64(2000), int64(1000)
	nodes[2].Scope.StartTime = &start
	nodes[2].Scope.EndTime = &end
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "inverted", Nodes: nodes, Edges: es,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	if err == nil || !strings.Contains(err.Error(), "end time") {
		t.Fatalf("expected window rejection, got %v", err)
	}
}

func TestCreateAccount(t *testing.T) {
	env := newTestEnv(t)
	accounts := &fakeAccounts{address: "0xDerived"}
	env.Engine.Accounts = accounts
	w := importFungible(t, env, "") // account node without an address

	address, err := env.Engine.CreateAccount(env.Ctx, w.ID, "acc", "tester")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if address != "0xDerived" {
		t.Fatalf("address = %q", address)
	}
	stored, err := env.Engine.Repo.GetWorkflow(env.Ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Nodes[0].Account.Address != "0xDerived" {
		t.Fatal("address not written back to the stored graph")
	}
	// Fire once: a second call returns the stored address without a
	// provider round trip.
	again, err := env.Engine.CreateAccount(env.Ctx, w.ID, "acc", "tester")
	if err != nil || again != "0xDerived" {
		t.Fatalf("second call: %q, %v", again, err)
	}
	if accounts.calls != 1 {
		t.Fatalf("provider calls = %d, want 1", accounts.calls)
	}
}

func TestCreateAccountRejectsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Accounts = &fakeAccounts{address: "0xDerived"}
	w, err := env.Engine.ImportWorkflow(env.Ctx, engine.WorkflowImportOptions{
		Name: "ph",
		Nodes: []domain.WorkflowNode{
			{ID: "ph", Kind: domain.KindAccount, Account: &domain.AccountAttrs{Placeholder: true}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateAccount(env.Ctx, w.ID, "ph", "tester"); err == nil {
		t.Fatal("expected placeholder rejection")
	}
}

func TestExecutePlan(t *testing.T) {
	env := newTestEnv(t)
	bundler := &fakeBundler{}
	env.Engine.Bundler = bundler
	w := importFungible(t, env, "0xAbC")

	receipt, err := env.Engine.ExecutePlan(env.Ctx, w.ID, "tester")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if bundler.calls != 1 || len(bundler.steps) != 1 {
		t.Fatalf("bundler calls=%d steps=%d", bundler.calls, len(bundler.steps))
	}
	if receipt.TxID != "0xtxhash" {
		t.Fatalf("tx = %q", receipt.TxID)
	}
	if !strings.HasPrefix(receipt.Summary, "Executed 1 operations:") {
		t.Fatalf("summary = %q", receipt.Summary)
	}
	if !strings.Contains(receipt.Summary, "0xtxhash") {
		t.Fatalf("summary should carry the tx id: %q", receipt.Summary)
	}
}

func TestExecutePlanNoExecutableSteps(t *testing.T) {
	env := newTestEnv(t)
	bundler := &fakeBundler{}
	env.Engine.Bundler = bundler
	// Valid topology but the account has no address yet, so the single
	// context cannot become a step.
	w := importFungible(t, env, "")

	receipt, err := env.Engine.ExecutePlan(env.Ctx, w.ID, "tester")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if bundler.calls != 0 {
		t.Fatal("bundler must not be called for an empty plan")
	}
	if receipt.TxID != "" || receipt.Plan.Skipped != 1 {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestExecutePlanBundlerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Bundler = &fakeBundler{fail: true}
	w := importFungible(t, env, "0xAbC")

	_, err := env.Engine.ExecutePlan(env.Ctx, w.ID, "tester")
	var ee *engine.ExternalCallError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExternalCallError, got %v", err)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, w.ID, "plan.executed", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 0 {
		t.Fatal("failed submission must not log an execution event")
	}
}

func TestSessionKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	key, created, err := env.Engine.EnsureSessionKey(env.Ctx, "node-1", "0xAbC", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if !created || key.Authorized {
		t.Fatalf("fresh key: created=%v authorized=%v", created, key.Authorized)
	}
	if !strings.HasPrefix(key.PrivateKey, "0x") || !strings.HasPrefix(key.PublicAddress, "0x") {
		t.Fatalf("key material = %q / %q", key.PrivateKey, key.PublicAddress)
	}

	// Unauthorized keys are invisible to usable-key reads.
	got, err := env.Engine.Repo.GetSessionKey(env.Ctx, "node-1", "0xAbC")
	if err != nil || got != nil {
		t.Fatalf("unauthorized key visible: %v, %v", got, err)
	}

	// A second ensure returns the same pending key, not a new one.
	again, created, err := env.Engine.EnsureSessionKey(env.Ctx, "node-1", "0xAbC", nil, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if created || again.PublicAddress != key.PublicAddress {
		t.Fatalf("pending key rotated: created=%v", created)
	}

	ok, err := env.Engine.AuthorizeSessionKey(env.Ctx, "node-1", "0xAbC", "tester")
	if err != nil || !ok {
		t.Fatalf("authorize: %v, %v", ok, err)
	}
	// Case-insensitive account lookup.
	got, err = env.Engine.Repo.GetSessionKey(env.Ctx, "node-1", "0XABC")
	if err != nil || got == nil || !got.Authorized {
		t.Fatalf("authorized key not readable: %v, %v", got, err)
	}

	if err := env.Engine.RevokeSessionKey(env.Ctx, "node-1", "0xAbC", "tester"); err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.Repo.GetSessionKey(env.Ctx, "node-1", "0xAbC")
	if err != nil || got != nil {
		t.Fatalf("revoked key still readable: %v, %v", got, err)
	}
}

func TestAuthorizeUnknownKeyReturnsFalse(t *testing.T) {
	env := newTestEnv(t)
	ok, err := env.Engine.AuthorizeSessionKey(env.Ctx, "ghost", "0x1", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("authorize must not create keys")
	}
}

func TestSessionKeyExpiry(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.EnsureSessionKey(env.Ctx, "node-1", "0xAbC", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.Engine.AuthorizeSessionKey(env.Ctx, "node-1", "0xAbC", "tester"); !ok {
		t.Fatal("authorize failed")
	}

	// Advance past the configured lifetime.
	env.Now = env.Now.Add(time.Duration(env.Engine.Config.SessionKeys.TTLDays)*24*time.Hour + time.Hour)

	got, err := env.Engine.Repo.GetSessionKey(env.Ctx, "node-1", "0xAbC")
	if err != nil || got != nil {
		t.Fatalf("expired key still usable: %v, %v", got, err)
	}
	// The lazy read already deleted the row, so the sweep finds none.
	n, err := env.Engine.SweepSessionKeys(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("sweep after lazy delete = %d, want 0", n)
	}
}

func TestSweepExpiredSessionKeys(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		if _, _, err := env.Engine.EnsureSessionKey(env.Ctx, fmt.Sprintf("node-%d", i), "0xAbC", nil, "tester"); err != nil {
			t.Fatal(err)
		}
	}
	env.Now = env.Now.Add(time.Duration(env.Engine.Config.SessionKeys.TTLDays)*24*time.Hour + time.Hour)

	n, err := env.Engine.SweepSessionKeys(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("swept = %d, want 3", n)
	}
	keys, err := env.Engine.Repo.ListSessionKeys(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys after sweep = %d", len(keys))
	}
}

func TestSessionKeyMaterialUnique(t *testing.T) {
	env := newTestEnv(t)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		key, _, err := env.Engine.EnsureSessionKey(env.Ctx, fmt.Sprintf("node-%d", i), "0xAbC", nil, "tester")
		if err != nil {
			t.Fatal(err)
		}
		if seen[key.PrivateKey] || seen[key.PublicAddress] {
			t.Fatalf("duplicate key material at iteration %d", i)
		}
		seen[key.PrivateKey] = true
		seen[key.PublicAddress] = true
	}
}

func TestListSessionKeysHidesPrivateMaterial(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.Engine.EnsureSessionKey(env.Ctx, "node-1", "0xAbC", nil, "tester"); err != nil {
		t.Fatal(err)
	}
	keys, err := env.Engine.Repo.ListSessionKeys(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0].PrivateKey != "" {
		t.Fatalf("listing leaked private material: %+v", keys)
	}
}

func TestGrantLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	granter := &fakeGranter{}
	env.Engine.Granter = granter
	w := importFungible(t, env, "0xAbC")

	first, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	if err != nil {
		t.Fatal(err)
	}
	env.Now = env.Now.Add(time.Hour)
	second, err := env.Engine.RequestPermission(env.Ctx, w.ID, "tr", "tester")
	if err != nil {
		t.Fatal(err)
	}
	if second.CreatedAt != first.CreatedAt {
		t.Fatal("upsert must preserve created_at")
	}
	if second.UpdatedAt == first.UpdatedAt {
		t.Fatal("upsert must refresh updated_at")
	}
	items, err := env.Engine.Repo.ListGrants(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("grants = %d, want 1", len(items))
	}
}
