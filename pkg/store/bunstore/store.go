package bunstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/taskweave/taskweave/pkg/domain/errors"
	"github.com/taskweave/taskweave/pkg/domain/workflow"
	"github.com/taskweave/taskweave/pkg/store"
)

const bunModule = "bunstore"

// Store implements store.Store on Postgres.
type Store struct {
	db  *bun.DB
	log zerolog.Logger
}

// Open connects to Postgres, creates the tables when missing, and returns
// the store.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	s := &Store{db: db, log: log.With().Str("component", "bunstore").Logger()}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	models := []interface{}{
		(*workflowRow)(nil),
		(*nodeRow)(nil),
		(*signatureRow)(nil),
		(*resolutionRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return errors.Persistence(bunModule, err)
		}
	}
	return nil
}

func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Execution) error {
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(toWorkflowRow(wf)).Exec(ctx)
		return err
	})
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Execution) error {
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(toWorkflowRow(wf)).WherePK().Exec(ctx)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Execution, error) {
	row := new(workflowRow)
	err := s.db.NewSelect().Model(row).Where("we.id = ?", id).Scan(ctx)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListUnfinishedWorkflows(ctx context.Context) ([]*workflow.Execution, error) {
	var rows []workflowRow
	err := s.db.NewSelect().Model(&rows).
		Where("we.status IN (?)", bun.In([]string{string(workflow.StatusPending), string(workflow.StatusRunning)})).
		Order("we.id").
		Scan(ctx)
	if err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	out := make([]*workflow.Execution, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) CreateNode(ctx context.Context, node *workflow.NodeExecution) error {
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(toNodeRow(node)).Exec(ctx)
		return err
	})
}

func (s *Store) UpdateNode(ctx context.Context, node *workflow.NodeExecution) error {
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(toNodeRow(node)).WherePK().Exec(ctx)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *Store) ListNodes(ctx context.Context, workflowID string) ([]*workflow.NodeExecution, error) {
	var rows []nodeRow
	err := s.db.NewSelect().Model(&rows).
		Where("ne.workflow_id = ?", workflowID).
		Order("ne.created_at").
		Scan(ctx)
	if err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	out := make([]*workflow.NodeExecution, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) ListUnfinishedNodes(ctx context.Context) ([]*workflow.NodeExecution, error) {
	var rows []nodeRow
	err := s.db.NewSelect().Model(&rows).
		Where("ne.status IN (?)", bun.In([]string{string(workflow.StatusPending), string(workflow.StatusRunning)})).
		Order("ne.id").
		Scan(ctx)
	if err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	out := make([]*workflow.NodeExecution, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) RecordErrorSignature(ctx context.Context, tool, kind, message string) error {
	now := time.Now().UTC()
	row := &signatureRow{
		ID:              uuid.NewString(),
		Tool:            tool,
		ErrorKind:       kind,
		Message:         message,
		Hash:            store.Signature(tool, kind, message),
		OccurrenceCount: 1,
		FirstSeen:       now,
		LastSeen:        now,
	}
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (hash) DO UPDATE").
			Set("occurrence_count = es.occurrence_count + 1").
			Set("last_seen = EXCLUDED.last_seen").
			Exec(ctx)
		return err
	})
}

func (s *Store) ListErrorSignatures(ctx context.Context) ([]*store.ErrorSignature, error) {
	var rows []signatureRow
	if err := s.db.NewSelect().Model(&rows).Order("es.hash").Scan(ctx); err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	out := make([]*store.ErrorSignature, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) CreateResolution(ctx context.Context, res *store.Resolution) error {
	row := &resolutionRow{
		ID:            res.ID,
		SignatureHash: res.SignatureHash,
		Kind:          res.Kind,
		Data:          res.Data,
		AppliedCount:  res.AppliedCount,
		SuccessCount:  res.SuccessCount,
		CreatedAt:     res.CreatedAt,
	}
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(row).Exec(ctx)
		return err
	})
}

func (s *Store) MarkResolutionApplied(ctx context.Context, id string, success bool) error {
	return s.inTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().Model((*resolutionRow)(nil)).
			Set("applied_count = applied_count + 1").
			Where("id = ?", id)
		if success {
			q = q.Set("success_count = success_count + 1")
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *Store) ListResolutions(ctx context.Context, signatureHash string) ([]*store.Resolution, error) {
	var rows []resolutionRow
	err := s.db.NewSelect().Model(&rows).
		Where("res.signature_hash = ?", signatureHash).
		Order("res.created_at").
		Scan(ctx)
	if err != nil {
		return nil, errors.Persistence(bunModule, err)
	}
	out := make([]*store.Resolution, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, fn)
	if err != nil {
		return errors.Persistence(bunModule, err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
