package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"script_console/internal/api/middleware"
	"script_console/internal/app/execution"
	"script_console/internal/app/service"
	"script_console/internal/common"
	"script_console/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ScriptHandler struct {
	scriptService *service.ScriptService
	controller    *execution.Controller
	logger        *zap.Logger
}

func NewScriptHandler(scriptService *service.ScriptService, controller *execution.Controller, logger *zap.Logger) *ScriptHandler {
	return &ScriptHandler{scriptService: scriptService, controller: controller, logger: logger}
}

func (h *ScriptHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listScripts)
	r.Post("/", h.createScript)
	r.Get("/{scriptID}", h.getScript)
	r.Put("/{scriptID}", h.updateScript)
	r.Delete("/{scriptID}", h.deleteScript)
	r.Post("/{scriptID}/execute", h.executeScript)
	r.Post("/{scriptID}/stop", h.stopScript)
}

func (h *ScriptHandler) listScripts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	list, err := h.scriptService.List(r.Context(), model.ScriptFilter{
		Category: q.Get("category"),
		Type:     model.ScriptType(q.Get("type")),
		Status:   model.ScriptStatus(q.Get("status")),
		Search:   q.Get("search"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, list)
}

func (h *ScriptHandler) createScript(w http.ResponseWriter, r *http.Request) {
	var req service.CreateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	actor, _ := middleware.SessionFromContext(r.Context()).CurrentUser()
	script, err := h.scriptService.Create(r.Context(), actor, req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, script)
}

func (h *ScriptHandler) getScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.scriptService.Get(r.Context(), chi.URLParam(r, "scriptID"))
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, script)
}

func (h *ScriptHandler) updateScript(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	actor, _ := middleware.SessionFromContext(r.Context()).CurrentUser()
	script, err := h.scriptService.Update(r.Context(), actor, chi.URLParam(r, "scriptID"), req)
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, script)
}

func (h *ScriptHandler) deleteScript(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.SessionFromContext(r.Context()).CurrentUser()
	if err := h.scriptService.Delete(r.Context(), actor, chi.URLParam(r, "scriptID")); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"success": true})
}

type ExecuteRequest struct {
	Content string           `json:"content"`
	Type    model.ScriptType `json:"type"`
	Name    string           `json:"name,omitempty"`
}

type ExecuteResponse struct {
	Success       bool               `json:"success"`
	Status        model.ScriptStatus `json:"status"`
	Output        string             `json:"output"`
	ExecutionTime int64              `json:"executionTime"`
	ExitCode      int                `json:"exitCode"`
	Error         string             `json:"error,omitempty"`
}

// executeScript runs the posted body under the script id. When the body
// omits content and type the stored script is run. With ?wait=false the
// call returns as soon as the run is admitted.
func (h *ScriptHandler) executeScript(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "scriptID")
	var req ExecuteRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
			return
		}
	}

	if req.Content == "" && req.Type == "" {
		stored, err := h.scriptService.Get(r.Context(), scriptID)
		switch {
		case err == nil:
			req.Content, req.Type, req.Name = stored.Content, stored.Type, stored.Name
		case !errors.Is(err, common.ErrNotFound):
			common.RespondWithErr(w, err)
			return
		}
	}

	sess := middleware.SessionFromContext(r.Context())
	runReq := execution.RunRequest{JobID: scriptID, Name: req.Name, Type: req.Type, Content: req.Content}

	if r.URL.Query().Get("wait") == "false" {
		if _, err := h.controller.Start(r.Context(), sess, runReq); err != nil {
			common.RespondWithErr(w, err)
			return
		}
		common.RespondWithJSON(w, http.StatusAccepted, map[string]any{
			"success": true,
			"jobId":   scriptID,
			"status":  model.ScriptStatusRunning,
		})
		return
	}

	res, err := h.controller.Run(r.Context(), sess, runReq)
	if res == nil {
		if err == nil {
			err = common.ErrInternalServer
		}
		common.RespondWithErr(w, err)
		return
	}

	resp := ExecuteResponse{
		Success:       res.Success,
		Status:        res.Status,
		Output:        res.Output,
		ExecutionTime: res.ExecutionTime,
		ExitCode:      res.ExitCode,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	common.RespondWithJSON(w, common.HTTPStatusFromError(err), resp)
}

func (h *ScriptHandler) stopScript(w http.ResponseWriter, r *http.Request) {
	scriptID := chi.URLParam(r, "scriptID")
	if err := h.controller.Stop(r.Context(), middleware.SessionFromContext(r.Context()), scriptID); err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Script stopped successfully",
	})
}
