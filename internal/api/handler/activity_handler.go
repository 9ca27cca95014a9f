package handler

import (
	"net/http"
	"strconv"

	"script_console/internal/app/service"
	"script_console/internal/common"
	"script_console/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ActivityHandler struct {
	activityService *service.ActivityService
}

func NewActivityHandler(activityService *service.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listActivity)
}

func (h *ActivityHandler) listActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	logs, err := h.activityService.List(r.Context(), model.ActivityFilter{
		Action: model.ActivityAction(q.Get("action")),
		Level:  model.ActivityLevel(q.Get("level")),
		UserID: q.Get("userId"),
		Limit:  limit,
	})
	if err != nil {
		common.RespondWithErr(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
