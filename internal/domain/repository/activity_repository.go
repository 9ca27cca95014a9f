package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"script_console/internal/domain/model"
)

const defaultActivityLimit = 100

type ActivityRepository interface {
	Create(ctx context.Context, entry *model.ActivityLog) error
	List(ctx context.Context, filter model.ActivityFilter) ([]model.ActivityLog, error)
}

type pgActivityRepository struct {
	db *sql.DB
}

func NewPgActivityRepository(db *sql.DB) ActivityRepository {
	return &pgActivityRepository{db: db}
}

func (r *pgActivityRepository) Create(ctx context.Context, e *model.ActivityLog) error {
	var details []byte
	if e.Details != nil {
		var err error
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode activity details: %w", err)
		}
	}
	query := `INSERT INTO activity_logs (id, timestamp, user_id, user_name, user_role, action, level, message, details)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, e.UserID, e.UserName, e.UserRole, e.Action, e.Level, e.Message, nullableJSON(details),
	)
	if err != nil {
		return fmt.Errorf("pgActivityRepository.Create: %w", err)
	}
	return nil
}

func (r *pgActivityRepository) List(ctx context.Context, f model.ActivityFilter) ([]model.ActivityLog, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if f.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argID))
		args = append(args, f.Action)
		argID++
	}
	if f.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argID))
		args = append(args, f.Level)
		argID++
	}
	if f.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argID))
		args = append(args, f.UserID)
		argID++
	}

	query := `SELECT id, timestamp, user_id, user_name, user_role, action, level, message, details FROM activity_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", argID)
	args = append(args, activityLimit(f.Limit))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgActivityRepository.List: %w", err)
	}
	defer rows.Close()

	entries := []model.ActivityLog{}
	for rows.Next() {
		var e model.ActivityLog
		var details []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.UserID, &e.UserName, &e.UserRole, &e.Action, &e.Level, &e.Message, &details); err != nil {
			return nil, fmt.Errorf("pgActivityRepository.List scan: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode activity details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgActivityRepository.List rows: %w", err)
	}
	return entries, nil
}

func nullableJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func activityLimit(n int) int {
	if n <= 0 {
		return defaultActivityLimit
	}
	return n
}

type memActivityRepository struct {
	mu      sync.RWMutex
	entries []model.ActivityLog
}

func NewMemoryActivityRepository() ActivityRepository {
	return &memActivityRepository{}
}

func (r *memActivityRepository) Create(_ context.Context, e *model.ActivityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *memActivityRepository) List(_ context.Context, f model.ActivityFilter) ([]model.ActivityLog, error) {
	r.mu.RLock()
	out := []model.ActivityLog{}
	for _, e := range r.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := activityLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
