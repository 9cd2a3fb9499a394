package consistency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/pkg/graph"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStatusStore keeps driver state in the ecc_graphs and ecc_runs tables.
type PgStatusStore struct {
	db dbConn
}

var _ StatusStore = (*PgStatusStore)(nil)

func NewPgStatusStore(db dbConn) *PgStatusStore {
	return &PgStatusStore{db: db}
}

func (s *PgStatusStore) SetInitialized(ctx context.Context, name string, initialized bool) error {
	_, err := s.db.Exec(ctx, setInitializedSQL, name, initialized)
	return err
}

func (s *PgStatusStore) SaveRun(ctx context.Context, run graph.ReportData) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", run.RequestID, err)
	}
	correlations := run.CorrelationIDs
	if correlations == nil {
		correlations = []string{}
	}
	_, err = s.db.Exec(ctx, saveRunSQL,
		run.RequestID, run.Graph, run.Kind, string(run.Status), run.StartedAt, run.FinishedAt, string(payload), correlations)
	return err
}

func scanRun(row pgx.Row) (graph.ReportData, bool, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return graph.ReportData{}, false, nil
		}
		return graph.ReportData{}, false, err
	}
	var run graph.ReportData
	if err := json.Unmarshal(raw, &run); err != nil {
		return graph.ReportData{}, false, fmt.Errorf("decode run: %w", err)
	}
	return run, true, nil
}

func (s *PgStatusStore) GetRun(ctx context.Context, id string) (graph.ReportData, bool, error) {
	return scanRun(s.db.QueryRow(ctx, getRunSQL, id))
}

func (s *PgStatusStore) LatestRun(ctx context.Context, name, kind string) (graph.ReportData, bool, error) {
	return scanRun(s.db.QueryRow(ctx, latestRunSQL, name, kind))
}

func (s *PgStatusStore) GetGraph(ctx context.Context, name string) (GraphState, bool, error) {
	var st GraphState
	err := s.db.QueryRow(ctx, getGraphSQL, name).Scan(&st.Graph, &st.Initialized, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GraphState{}, false, nil
	}
	if err != nil {
		return GraphState{}, false, err
	}
	return st, true, nil
}

func (s *PgStatusStore) ListGraphs(ctx context.Context) ([]GraphState, error) {
	rows, err := s.db.Query(ctx, listGraphsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[GraphState])
}

const setInitializedSQL = `
INSERT INTO ecc_graphs (graph, initialized, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (graph) DO UPDATE
SET initialized = EXCLUDED.initialized,
    updated_at  = EXCLUDED.updated_at;
`

const saveRunSQL = `
INSERT INTO ecc_runs (request_id, graph, kind, status, started_at, finished_at, report, correlation_ids)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::text[])
ON CONFLICT (request_id) DO UPDATE
SET status          = EXCLUDED.status,
    finished_at     = EXCLUDED.finished_at,
    report          = EXCLUDED.report,
    correlation_ids = EXCLUDED.correlation_ids;
`

const getRunSQL = `
SELECT report FROM ecc_runs
WHERE request_id = $1 OR correlation_ids @> ARRAY[$1]::text[]
ORDER BY (request_id = $1) DESC, started_at DESC
LIMIT 1;
`

const latestRunSQL = `
SELECT report FROM ecc_runs
WHERE graph = $1 AND kind = $2
ORDER BY started_at DESC
LIMIT 1;
`

const getGraphSQL = `
SELECT graph, initialized, updated_at FROM ecc_graphs WHERE graph = $1;
`

const listGraphsSQL = `
SELECT graph, initialized, updated_at FROM ecc_graphs ORDER BY graph;
`
