package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"reportserver/src/repositories"
	"reportserver/src/schemas"
	"reportserver/src/utils"
)

func (h *Handler) ListScheduleRuns(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id, err := parseID(r, "id")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid schedule id"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.Runs.ListRuns(ctx, id, limit)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}

	now := time.Now().UTC()
	responses := make([]*schemas.RunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, schemas.NewRunResponse(run, now))
	}
	h.respond(w, r, responses, http.StatusOK)
}

// DownloadRunArtifact releases a run's output after validating the presented
// token against the stored hash. The comparison is constant-time and the
// token is single-use: the hash is cleared on a successful download.
func (h *Handler) DownloadRunArtifact(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	runID, err := parseID(r, "runID")
	if err != nil {
		h.HandleErrors(w, utils.BadRequest("invalid run id"))
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		h.HandleErrors(w, utils.Unauthorized("missing download token"))
		return
	}

	run, err := h.Runs.ReadRunForDownload(ctx, runID)
	if err != nil {
		h.HandleErrors(w, err)
		return
	}

	if run.DownloadTokenHash == nil || run.DownloadExpiresAt == nil || len(run.OutputBytes) == 0 {
		h.HandleErrors(w, utils.Gone("no downloadable artifact for this run"))
		return
	}
	if time.Now().After(*run.DownloadExpiresAt) {
		h.HandleErrors(w, utils.Gone("download token expired"))
		return
	}
	if !utils.VerifyDownloadToken(token, *run.DownloadTokenHash) {
		h.HandleErrors(w, utils.Unauthorized("invalid download token"))
		return
	}

	// Consuming the token is the serialization point: when two requests race
	// with the same valid token, only the one whose clear lands serves bytes.
	if err := h.Runs.ClearDownloadToken(ctx, runID); err != nil {
		if errors.Is(err, repositories.ErrDownloadTokenUsed) {
			h.HandleErrors(w, utils.Gone("download token already used"))
			return
		}
		h.HandleErrors(w, err)
		return
	}

	contentType := "application/octet-stream"
	if run.OutputContentType != nil {
		contentType = *run.OutputContentType
	}
	w.Header().Set("Content-Type", contentType)
	if run.OutputFilename != nil {
		w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(*run.OutputFilename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(run.OutputBytes)
}
