package handler

import (
	"net/http"

	"script_console/internal/app/execution"
	"script_console/internal/common"

	"github.com/go-chi/chi/v5"
)

type ExecutionHandler struct {
	controller *execution.Controller
}

func NewExecutionHandler(controller *execution.Controller) *ExecutionHandler {
	return &ExecutionHandler{controller: controller}
}

func (h *ExecutionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listExecutions)
}

func (h *ExecutionHandler) listExecutions(w http.ResponseWriter, r *http.Request) {
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"executions": h.controller.Executions()})
}
