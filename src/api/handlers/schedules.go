package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"reportserver/src/schemas"
	"reportserver/src/utils"
)

const requestTimeout = 10 * time.Second

func (h *Handler) GetAllSchedules(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	schedules, err := h.Schedules.GetAllSchedules(ctx)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, schedules, http.StatusOK)
}

func (h *Handler) GetScheduleByID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := parseID(r, "id")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid schedule id"))
		return
	}

	schedule, err := h.Schedules.GetScheduleByID(ctx, id)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, schemas.NewScheduleResponse(schedule), http.StatusOK)
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req schemas.CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid request body"))
		return
	}
	req.CreatedBy = r.Header.Get("X-User")

	schedule, err := h.Schedules.CreateSchedule(ctx, &req)
	if err != nil {
		h.HandleErrors(w, utils.UnprocessableEntity(err.Error()))
		return
	}
	h.respond(w, r, schemas.NewScheduleResponse(schedule), http.StatusCreated)
}

func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := parseID(r, "id")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid schedule id"))
		return
	}

	var req schemas.UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid request body"))
		return
	}
	req.ID = id
	req.UpdatedBy = r.Header.Get("X-User")

	schedule, err := h.Schedules.UpdateSchedule(ctx, &req)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, schemas.NewScheduleResponse(schedule), http.StatusOK)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := parseID(r, "id")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid schedule id"))
		return
	}

	if err := h.Schedules.DeleteSchedule(ctx, id); err != nil {
		h.HandleErrors(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunScheduleNow marks the schedule due immediately; the next worker poll
// claims and executes it. This is the recovery action for failed or lost
// occurrences.
func (h *Handler) RunScheduleNow(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := parseID(r, "id")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid schedule id"))
		return
	}

	if err := h.Schedules.RunNow(ctx, id); err != nil {
		h.HandleErrors(w, err)
		return
	}
	h.respond(w, r, map[string]string{"status": "scheduled"}, http.StatusAccepted)
}

func parseID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
