package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Suganthan96/NCP/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) exec(ctx context.Context, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.DB.ExecContext(ctx, query, args...)
}

// UpsertWorkflow stores a graph snapshot, replacing any previous one
// under the same id.
func (r Repo) UpsertWorkflow(ctx context.Context, tx *sql.Tx, w domain.Workflow) error {
	if w.ID == "" {
		return errors.New("workflow id required")
	}
	nodes, err := json.Marshal(w.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(w.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	_, err = r.exec(ctx, tx, `INSERT INTO workflows(id,name,nodes_json,edges_json,created_at,updated_at) VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, nodes_json=excluded.nodes_json, edges_json=excluded.edges_json, updated_at=excluded.updated_at`,
		w.ID, w.Name, string(nodes), string(edges), w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,nodes_json,edges_json,created_at,updated_at FROM workflows WHERE id=?`, id)
	var w domain.Workflow
	var nodes, edges string
	err := row.Scan(&w.ID, &w.Name, &nodes, &edges, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal([]byte(nodes), &w.Nodes); err != nil {
		return w, fmt.Errorf("workflow %s nodes: %w", id, err)
	}
	if err := json.Unmarshal([]byte(edges), &w.Edges); err != nil {
		return w, fmt.Errorf("workflow %s edges: %w", id, err)
	}
	return w, nil
}

func (r Repo) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,nodes_json,edges_json,created_at,updated_at FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workflow
	for rows.Next() {
		var w domain.Workflow
		var nodes, edges string
		if err := rows.Scan(&w.ID, &w.Name, &nodes, &edges, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(nodes), &w.Nodes); err != nil {
			return nil, fmt.Errorf("workflow %s nodes: %w", w.ID, err)
		}
		if err := json.Unmarshal([]byte(edges), &w.Edges); err != nil {
			return nil, fmt.Errorf("workflow %s edges: %w", w.ID, err)
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (r Repo) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM workflows WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns recent audit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int, workflowID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,COALESCE(workflow_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v string) {
		if v != "" {
			conds = append(conds, cond)
			args = append(args, v)
		}
	}
	add("workflow_id=?", workflowID)
	add("type=?", evtType)
	add("entity_kind=?", entityKind)
	add("entity_id=?", entityID)
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.WorkflowID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
