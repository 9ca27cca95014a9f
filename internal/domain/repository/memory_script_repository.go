package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"script_console/internal/common"
	"script_console/internal/domain/model"
)

// memScriptRepository keeps scripts in process memory. Used with
// STORE_DRIVER=memory and in tests.
type memScriptRepository struct {
	mu      sync.RWMutex
	scripts map[string]model.Script
}

func NewMemoryScriptRepository() ScriptRepository {
	return &memScriptRepository{scripts: make(map[string]model.Script)}
}

func (r *memScriptRepository) Create(_ context.Context, s *model.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scripts[s.ID]; ok {
		return fmt.Errorf("script with this id already exists: %w", common.ErrConflict)
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if s.Status == "" {
		s.Status = model.ScriptStatusIdle
	}
	r.scripts[s.ID] = cloneScript(*s)
	return nil
}

func (r *memScriptRepository) Update(_ context.Context, s *model.Script) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.scripts[s.ID]
	if !ok {
		return common.ErrNotFound
	}
	cur.Name = s.Name
	cur.Slug = s.Slug
	cur.Description = s.Description
	cur.Type = s.Type
	cur.Content = s.Content
	cur.Category = s.Category
	cur.Inputs = append([]model.ScriptInput(nil), s.Inputs...)
	cur.UpdatedAt = time.Now().UTC()
	s.UpdatedAt = cur.UpdatedAt
	r.scripts[s.ID] = cur
	return nil
}

func (r *memScriptRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scripts[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.scripts, id)
	return nil
}

func (r *memScriptRepository) FindByID(_ context.Context, id string) (*model.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scripts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := cloneScript(s)
	return &out, nil
}

func (r *memScriptRepository) List(_ context.Context, f model.ScriptFilter) ([]model.Script, int, error) {
	r.mu.RLock()
	matched := []model.Script{}
	search := strings.ToLower(f.Search)
	for _, s := range r.scripts {
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		if f.Type != "" && s.Type != f.Type {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(s.Name), search) &&
			!strings.Contains(strings.ToLower(s.Description), search) {
			continue
		}
		matched = append(matched, cloneScript(s))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []model.Script{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *memScriptRepository) SaveExecution(_ context.Context, seed *model.Script, st model.ExecutionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	cur, ok := r.scripts[seed.ID]
	if !ok {
		cur = model.Script{
			ID:        seed.ID,
			Name:      seed.Name,
			Slug:      seed.Slug,
			Type:      seed.Type,
			Content:   seed.Content,
			CreatedAt: now,
		}
	}
	cur.Status = st.Status
	cur.Progress = st.Progress
	cur.Output = st.Output
	if st.LastRun != nil {
		cur.LastRun = copyTime(st.LastRun)
	}
	if st.StartedAt != nil {
		cur.StartedAt = copyTime(st.StartedAt)
	}
	cur.FinishedAt = copyTime(st.FinishedAt)
	cur.UpdatedAt = now
	r.scripts[seed.ID] = cur
	return nil
}

func cloneScript(s model.Script) model.Script {
	s.Inputs = append([]model.ScriptInput(nil), s.Inputs...)
	s.LastRun = copyTime(s.LastRun)
	s.StartedAt = copyTime(s.StartedAt)
	s.FinishedAt = copyTime(s.FinishedAt)
	if s.CreatedByID != nil {
		id := *s.CreatedByID
		s.CreatedByID = &id
	}
	return s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
