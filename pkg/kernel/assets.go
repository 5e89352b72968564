package kernel

import (
	"errors"
	"net/http"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Videos == nil {
		writeError(w, http.StatusServiceUnavailable, "video rendering is disabled")
		return
	}
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	job, err := s.deps.Videos.Status(r.Context(), domain.AssetJobID(id))
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			writeError(w, http.StatusNotFound, "asset job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelAsset stops the background poll. The render on the host keeps going.
func (s *Server) handleCancelAsset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Videos == nil {
		writeError(w, http.StatusServiceUnavailable, "video rendering is disabled")
		return
	}
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return
	}
	jobID := domain.AssetJobID(id)
	if err := s.deps.Videos.Cancel(jobID); err != nil {
		if job, statusErr := s.deps.Videos.Status(r.Context(), jobID); statusErr == nil && job.State.IsTerminal() {
			writeError(w, http.StatusConflict, "asset job already "+string(job.State))
			return
		}
		writeError(w, http.StatusNotFound, "asset job is not being polled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "job_id": id})
}
