package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"script_console/internal/common"
	"script_console/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ScriptRepository interface {
	Create(ctx context.Context, script *model.Script) error
	Update(ctx context.Context, script *model.Script) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*model.Script, error)
	List(ctx context.Context, filter model.ScriptFilter) ([]model.Script, int, error)

	// SaveExecution writes the execution fields of a script. When no record
	// exists for seed.ID one is created from seed first.
	SaveExecution(ctx context.Context, seed *model.Script, state model.ExecutionState) error
}

type pgScriptRepository struct {
	db *sql.DB
}

func NewPgScriptRepository(db *sql.DB) ScriptRepository {
	return &pgScriptRepository{db: db}
}

const scriptColumns = `id, name, slug, description, type, content, category, status, progress, output,
	inputs, last_run, started_at, finished_at, created_by, created_at, updated_at`

func (r *pgScriptRepository) Create(ctx context.Context, s *model.Script) error {
	inputs, err := marshalInputs(s.Inputs)
	if err != nil {
		return err
	}
	query := `INSERT INTO scripts (id, name, slug, description, type, content, category, status, progress, output, inputs, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query,
		s.ID, s.Name, s.Slug, s.Description, s.Type, s.Content, s.Category, s.Status, s.Progress, s.Output, inputs, s.CreatedByID,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("script with this id already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgScriptRepository.Create: %w", err)
	}
	return nil
}

func (r *pgScriptRepository) Update(ctx context.Context, s *model.Script) error {
	inputs, err := marshalInputs(s.Inputs)
	if err != nil {
		return err
	}
	query := `UPDATE scripts SET
                name = $1, slug = $2, description = $3, type = $4, content = $5,
                category = $6, inputs = $7, updated_at = CURRENT_TIMESTAMP
              WHERE id = $8
              RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query,
		s.Name, s.Slug, s.Description, s.Type, s.Content, s.Category, inputs, s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("pgScriptRepository.Update: %w", err)
	}
	return nil
}

func (r *pgScriptRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("pgScriptRepository.Delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgScriptRepository.Delete: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgScriptRepository) FindByID(ctx context.Context, id string) (*model.Script, error) {
	query := `SELECT ` + scriptColumns + ` FROM scripts WHERE id = $1`
	s, err := scanScript(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgScriptRepository.FindByID: %w", err)
	}
	return s, nil
}

func (r *pgScriptRepository) List(ctx context.Context, f model.ScriptFilter) ([]model.Script, int, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if f.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argID))
		args = append(args, f.Category)
		argID++
	}
	if f.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argID))
		args = append(args, f.Type)
		argID++
	}
	if f.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argID))
		args = append(args, f.Status)
		argID++
	}
	if f.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argID, argID))
		args = append(args, "%"+f.Search+"%")
		argID++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scripts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgScriptRepository.List count: %w", err)
	}

	query := `SELECT ` + scriptColumns + ` FROM scripts` + where + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1)
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgScriptRepository.List: %w", err)
	}
	defer rows.Close()

	scripts := []model.Script{}
	for rows.Next() {
		s, err := scanScript(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("pgScriptRepository.List scan: %w", err)
		}
		scripts = append(scripts, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgScriptRepository.List rows: %w", err)
	}
	return scripts, total, nil
}

func (r *pgScriptRepository) SaveExecution(ctx context.Context, seed *model.Script, st model.ExecutionState) error {
	query := `INSERT INTO scripts (id, name, slug, type, content, status, progress, output, last_run, started_at, finished_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (id) DO UPDATE SET
	            status = EXCLUDED.status,
	            progress = EXCLUDED.progress,
	            output = EXCLUDED.output,
	            last_run = COALESCE(EXCLUDED.last_run, scripts.last_run),
	            started_at = COALESCE(EXCLUDED.started_at, scripts.started_at),
	            finished_at = EXCLUDED.finished_at,
	            updated_at = CURRENT_TIMESTAMP`
	_, err := r.db.ExecContext(ctx, query,
		seed.ID, seed.Name, seed.Slug, seed.Type, seed.Content,
		st.Status, st.Progress, st.Output, st.LastRun, st.StartedAt, st.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("pgScriptRepository.SaveExecution: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScript(row rowScanner) (*model.Script, error) {
	s := &model.Script{}
	var inputs []byte
	err := row.Scan(
		&s.ID, &s.Name, &s.Slug, &s.Description, &s.Type, &s.Content, &s.Category, &s.Status, &s.Progress, &s.Output,
		&inputs, &s.LastRun, &s.StartedAt, &s.FinishedAt, &s.CreatedByID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &s.Inputs); err != nil {
			return nil, fmt.Errorf("decode inputs: %w", err)
		}
	}
	return s, nil
}

func marshalInputs(inputs []model.ScriptInput) (string, error) {
	if inputs == nil {
		return "[]", nil
	}
	b, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("encode inputs: %w", err)
	}
	return string(b), nil
}
