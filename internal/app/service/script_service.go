package service

import (
	"context"
	"fmt"

	"script_console/internal/common"
	"script_console/internal/common/security"
	"script_console/internal/domain/model"
	"script_console/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// RunningChecker reports whether a script currently has a live execution.
type RunningChecker interface {
	IsRunning(scriptID string) bool
}

type ScriptService struct {
	repo     repository.ScriptRepository
	activity *ActivityService
	running  RunningChecker
}

func NewScriptService(repo repository.ScriptRepository, activity *ActivityService, running RunningChecker) *ScriptService {
	return &ScriptService{repo: repo, activity: activity, running: running}
}

type CreateScriptRequest struct {
	Name        string              `json:"name" validate:"required,min=1,max=100"`
	Description string              `json:"description" validate:"max=1000"`
	Type        model.ScriptType    `json:"type" validate:"required,oneof=powershell bash batch"`
	Content     string              `json:"content" validate:"required"`
	Category    string              `json:"category" validate:"required,max=100"`
	Inputs      []model.ScriptInput `json:"inputs"`
}

type UpdateScriptRequest struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=1000"`
	Type        *model.ScriptType    `json:"type,omitempty" validate:"omitempty,oneof=powershell bash batch"`
	Content     *string              `json:"content,omitempty" validate:"omitempty,min=1"`
	Category    *string              `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Inputs      *[]model.ScriptInput `json:"inputs,omitempty"`
}

func (s *ScriptService) Create(ctx context.Context, actor security.Identity, req CreateScriptRequest) (*model.Script, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	script := &model.Script{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		Type:        req.Type,
		Content:     req.Content,
		Category:    req.Category,
		Status:      model.ScriptStatusIdle,
		Inputs:      req.Inputs,
	}
	if actor.UserID != "" {
		createdBy := actor.UserID
		script.CreatedByID = &createdBy
	}

	if err := s.repo.Create(ctx, script); err != nil {
		return nil, fmt.Errorf("failed to create script: %w", err)
	}

	s.activity.Record(ctx, model.ActionScriptUpload, model.LevelInfo,
		fmt.Sprintf("Uploaded script %q", script.Name), actor,
		map[string]any{"scriptId": script.ID, "scriptName": script.Name, "scriptType": script.Type})
	return script, nil
}

func (s *ScriptService) Update(ctx context.Context, actor security.Identity, id string, req UpdateScriptRequest) (*model.Script, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	script, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		script.Name = *req.Name
		script.Slug = slug.Make(*req.Name)
	}
	if req.Description != nil {
		script.Description = *req.Description
	}
	if req.Type != nil {
		script.Type = *req.Type
	}
	if req.Content != nil {
		script.Content = *req.Content
	}
	if req.Category != nil {
		script.Category = *req.Category
	}
	if req.Inputs != nil {
		script.Inputs = *req.Inputs
	}

	if err := s.repo.Update(ctx, script); err != nil {
		return nil, fmt.Errorf("failed to update script: %w", err)
	}

	s.activity.Record(ctx, model.ActionScript, model.LevelInfo,
		fmt.Sprintf("Updated script %q", script.Name), actor,
		map[string]any{"scriptId": script.ID, "scriptName": script.Name})
	return script, nil
}

// Delete refuses to remove a script while it is executing.
func (s *ScriptService) Delete(ctx context.Context, actor security.Identity, id string) error {
	script, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if s.running != nil && s.running.IsRunning(id) {
		return common.Errorf("cannot delete a running script: %w", common.ErrConflict)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}

	s.activity.Record(ctx, model.ActionScriptDelete, model.LevelWarning,
		fmt.Sprintf("Deleted script %q", script.Name), actor,
		map[string]any{"scriptId": script.ID, "scriptName": script.Name})
	return nil
}

func (s *ScriptService) Get(ctx context.Context, id string) (*model.Script, error) {
	return s.repo.FindByID(ctx, id)
}

type ScriptList struct {
	Scripts []model.Script `json:"scripts"`
	Total   int            `json:"total"`
}

func (s *ScriptService) List(ctx context.Context, filter model.ScriptFilter) (*ScriptList, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	scripts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ScriptList{Scripts: scripts, Total: total}, nil
}
