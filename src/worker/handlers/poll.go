package handlers

import (
	"net/http"

	"reportserver/src/utils"
)

// PollNow triggers an immediate claim batch outside the regular interval,
// mainly for operators poking a stuck deployment.
func (h *Handler) PollNow(w http.ResponseWriter, r *http.Request) {
	claimed, err := h.Controller.Poll()
	if err != nil {
		utils.WriteError(w, utils.InternalServerError(err.Error()))
		return
	}
	h.respond(w, r, map[string]int{"claimed": claimed}, http.StatusOK)
}
