package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Suganthan96/NCP/internal/app"
	"github.com/Suganthan96/NCP/internal/config"
	"github.com/Suganthan96/NCP/internal/db"
	"github.com/Suganthan96/NCP/internal/domain"
	"github.com/Suganthan96/NCP/internal/engine"
	"github.com/Suganthan96/NCP/internal/graph"
	"github.com/Suganthan96/NCP/internal/repo"
	"github.com/Suganthan96/NCP/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ncp",
	Short: "NCP CLI",
	Long: `NCP compiles workflow graphs into delegated spending permissions.
- Workspace: the .ncp directory holding the local database; ncp.yml holds chain and token settings.
- Workflow: an imported node/edge graph (accounts, transfers, swaps, scopes).
- Validate: check the graph against the sanctioned account->transfer->scopes shapes.
- Analyze/Plan: derive per-transfer execution contexts and an ordered execution plan.
- Permissions: request spending grants from the wallet provider and cache the records.
- Session keys: ephemeral signing credentials with a one-time authorize step and lazy expiry.
- Event log: every mutation is recorded, view with 'ncp log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NCP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("provider-url", "", "base URL of the wallet provider API")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("provider-url", rootCmd.PersistentFlags().Lookup("provider-url"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(workflowCmd())
	rootCmd.AddCommand(permissionCmd())
	rootCmd.AddCommand(grantsCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default ncp.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

func workflowCmd() *cobra.Command {
	wf := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflow graphs",
		Long:  "Workflows are node/edge graphs built in the editor. Import one as JSON, then validate, analyze, plan, and execute it.",
	}
	wf.AddCommand(workflowImportCmd())
	wf.AddCommand(workflowListCmd())
	wf.AddCommand(workflowShowCmd())
	wf.AddCommand(workflowDeleteCmd())
	wf.AddCommand(workflowValidateCmd())
	wf.AddCommand(workflowAnalyzeCmd())
	wf.AddCommand(workflowPlanCmd())
	wf.AddCommand(workflowExecuteCmd())
	return wf
}

// workflowFile is the JSON shape 'workflow import' reads.
type workflowFile struct {
	ID    string                `json:"id,omitempty"`
	Name  string                `json:"name,omitempty"`
	Nodes []domain.WorkflowNode `json:"nodes"`
	Edges []domain.Edge         `json:"edges"`
}

func workflowImportCmd() *cobra.Command {
	var filePath, name string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a workflow graph from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var wf workflowFile
			if err := json.Unmarshal(data, &wf); err != nil {
				return fmt.Errorf("parse %s: %w", filePath, err)
			}
			if name != "" {
				wf.Name = name
			}
			if wf.Name == "" {
				return fmt.Errorf("workflow has no name; use --name")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.ImportWorkflow(ctx, engine.WorkflowImportOptions{
					ID:      wf.ID,
					Name:    wf.Name,
					Nodes:   wf.Nodes,
					Edges:   wf.Edges,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to workflow JSON")
	cmd.Flags().StringVar(&name, "name", "", "workflow name (overrides file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func workflowListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListWorkflows(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Nodes", "Edges", "Updated"})
				for _, w := range items {
					tw.AppendRow(table.Row{w.ID, w.Name, len(w.Nodes), len(w.Edges), w.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func workflowShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <workflow-id>",
		Short: "Show a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				w, err := a.Engine.Repo.GetWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func workflowDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <workflow-id>",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.DeleteWorkflow(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
}

func workflowValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow-id>",
		Short: "Check the graph against the sanctioned shapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.Validate(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.OK {
					fmt.Printf("OK: %s pattern, %d scope node(s)\n", res.Pattern, res.ScopeCount)
					return nil
				}
				fmt.Printf("INVALID: %s\n", res.Reason)
				if res.Expected != "" {
					fmt.Printf("  expected: %s\n", res.Expected)
				}
				if res.Found != "" {
					fmt.Printf("  found:    %s\n", res.Found)
				}
				return nil
			})
		},
	}
}

func workflowAnalyzeCmd() *cobra.Command {
	var transferID string
	cmd := &cobra.Command{
		Use:   "analyze <workflow-id>",
		Short: "Derive execution contexts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if transferID != "" {
					ectx, err := a.Engine.AnalyzeTransfer(ctx, args[0], transferID)
					if err != nil {
						return err
					}
					return printJSONOrTable(ectx)
				}
				w, err := a.Engine.Repo.GetWorkflow(ctx, args[0])
				if err != nil {
					return err
				}
				contexts, err := a.Engine.AnalyzeAll(w)
				if err != nil {
					return err
				}
				return printJSONOrTable(contexts)
			})
		},
	}
	cmd.Flags().StringVar(&transferID, "transfer", "", "restrict to one transfer node id")
	return cmd
}

func workflowPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <workflow-id>",
		Short: "Synthesize the execution plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				plan, err := a.Engine.Plan(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				fmt.Println(graph.SummarizePlan(plan, nil))
				return nil
			})
		},
	}
}

func workflowExecuteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute <workflow-id>",
		Short: "Submit the workflow's plan to the bundler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				receipt, err := a.Engine.ExecutePlan(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(receipt)
				}
				fmt.Println(receipt.Summary)
				if receipt.TxID != "" {
					fmt.Printf("tx: %s\n", receipt.TxID)
				}
				return nil
			})
		},
	}
}

func permissionCmd() *cobra.Command {
	var workflowID, transferID string
	perm := &cobra.Command{Use: "permission", Short: "Request spending permissions"}
	req := &cobra.Command{
		Use:   "request",
		Short: "Request a grant for a transfer node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" || transferID == "" {
				return fmt.Errorf("--workflow and --transfer required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				g, err := a.Engine.RequestPermission(ctx, workflowID, transferID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	req.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	req.Flags().StringVar(&transferID, "transfer", "", "transfer node id")
	perm.AddCommand(req)
	return perm
}

func grantsCmd() *cobra.Command {
	grants := &cobra.Command{Use: "grants", Short: "Inspect cached permission grants"}
	grants.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListGrants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Created", "Updated"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.Key, g.CreatedAt, g.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	grants.AddCommand(&cobra.Command{
		Use:   "show <key>",
		Short: "Show a grant record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				g, err := a.Engine.Repo.GetGrant(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	})
	grants.AddCommand(&cobra.Command{
		Use:   "remove <key>",
		Short: "Remove a cached grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RemoveGrant(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	})
	return grants
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{
		Use:   "keys",
		Short: "Manage session keys",
		Long:  "Session keys are ephemeral signing credentials keyed by (node, account). A fresh key is unauthorized until 'keys authorize' is run once; expired keys vanish on read or via 'keys sweep'.",
	}
	keys.AddCommand(keysListCmd())
	keys.AddCommand(keysGenerateCmd())
	keys.AddCommand(keysAuthorizeCmd())
	keys.AddCommand(keysRevokeCmd())
	keys.AddCommand(keysSweepCmd())
	return keys
}

func keysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List session keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListSessionKeys(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Node", "Account", "Address", "Authorized", "Expires"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.OwnerNodeID, k.AccountAddress, k.PublicAddress, k.Authorized, k.ExpiresAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func keysGenerateCmd() *cobra.Command {
	var nodeID, account string
	var targets []string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Get or generate a session key for (node, account)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodeID == "" || account == "" {
				return fmt.Errorf("--node and --account required")
			}
			var scope *domain.SessionKeyScope
			if len(targets) > 0 {
				scope = &domain.SessionKeyScope{AllowedTargets: targets}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key, created, err := a.Engine.EnsureSessionKey(ctx, nodeID, account, scope, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if created {
					fmt.Printf("Generated new key %s (unauthorized; run 'ncp keys authorize' after wallet approval)\n", key.PublicAddress)
				}
				key.PrivateKey = ""
				return printJSONOrTable(key)
			})
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "owner node id")
	cmd.Flags().StringVar(&account, "account", "", "account address")
	cmd.Flags().StringArrayVar(&targets, "target", []string{}, "allowed target contract (repeatable)")
	return cmd
}

func keysAuthorizeCmd() *cobra.Command {
	var nodeID, account string
	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Mark a session key authorized",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodeID == "" || account == "" {
				return fmt.Errorf("--node and --account required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ok, err := a.Engine.AuthorizeSessionKey(ctx, nodeID, account, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no session key for node %s and account %s", nodeID, account)
				}
				fmt.Println("authorized")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "owner node id")
	cmd.Flags().StringVar(&account, "account", "", "account address")
	return cmd
}

func keysRevokeCmd() *cobra.Command {
	var nodeID, account string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a session key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if nodeID == "" || account == "" {
				return fmt.Errorf("--node and --account required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.RevokeSessionKey(ctx, nodeID, account, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&nodeID, "node", "", "owner node id")
	cmd.Flags().StringVar(&account, "account", "", "account address")
	return cmd
}

func keysSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired session keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Engine.SweepSessionKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("removed %d expired key(s)\n", n)
				return nil
			})
		},
	}
}

func accountCmd() *cobra.Command {
	var workflowID, nodeID string
	acct := &cobra.Command{Use: "account", Short: "Smart account operations"}
	create := &cobra.Command{
		Use:   "create",
		Short: "Create the smart account for an account node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workflowID == "" || nodeID == "" {
				return fmt.Errorf("--workflow and --node required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				address, err := a.Engine.CreateAccount(ctx, workflowID, nodeID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Println(address)
				return nil
			})
		},
	}
	create.Flags().StringVar(&workflowID, "workflow", "", "workflow id")
	create.Flags().StringVar(&nodeID, "node", "", "account node id")
	acct.AddCommand(create)
	return acct
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List supported operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			items := engine.Catalog()
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Name", "Kind", "Description"})
			for _, op := range items {
				tw.AppendRow(table.Row{op.Name, op.Kind, op.Description})
			}
			tw.Render()
			return nil
		},
	}
}

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys for the HTTP server"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (the secret is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			secretBytes := make([]byte, 24)
			if _, err := rand.Read(secretBytes); err != nil {
				return err
			}
			secret := "ncp_" + hex.EncodeToString(secretBytes)
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor-id"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := a.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := a.Engine.Repo.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				fmt.Println("Store the key now; only its hash is kept.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var workflowID, evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				events, err := a.Engine.Repo.LatestEvents(ctx, n, workflowID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "workflow id filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("NCP_JWT_SECRET")}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("NCP_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving NCP API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	if url := strings.TrimSpace(viper.GetString("provider-url")); url != "" {
		providers := engine.NewHTTPProviders(url)
		a.Engine.Accounts = providers
		a.Engine.Granter = providers
		a.Engine.Bundler = providers
	}
	return fn(ctx, a)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
