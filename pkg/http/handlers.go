package http

import (
	"io"
	"net/http"

	"audiopipe-server/pkg/errors"
)

// uploadFieldName is the multipart form field carrying the audio file
const uploadFieldName = "file"

// readUpload extracts the audio bytes and declared content type from a
// multipart request. The body is capped slightly above the configured
// file-size limit so multipart framing overhead does not reject valid
// uploads; the validator enforces the exact limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	maxBody := s.cfg.Ingest.MaxFileSize + (64 << 10)
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		return nil, "", errors.NewValidation("request must carry an audio file in the \"file\" field",
			map[string]interface{}{"error": err.Error()})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.NewValidation("failed to read uploaded file",
			map[string]interface{}{"error": err.Error()})
	}

	declaredMIME := header.Header.Get("Content-Type")
	return data, declaredMIME, nil
}

// processHandler runs one job synchronously and returns the assembled
// analysis result.
func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	data, declaredMIME, err := s.readUpload(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	result, err := s.orchestrator.Process(r.Context(), data, declaredMIME)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// submitJobHandler enqueues a job and returns immediately; clients
// poll GET /api/jobs/{id} for the outcome.
func (s *Server) submitJobHandler(w http.ResponseWriter, r *http.Request) {
	data, declaredMIME, err := s.readUpload(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	job, err := s.orchestrator.Submit(data, declaredMIME)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"state":  string(job.State()),
	})
}

// getJobHandler returns the current snapshot of a job. Terminal jobs
// carry the full result; running jobs report their state only.
func (s *Server) getJobHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.GetJob(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	if !job.State().IsTerminal() {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"job_id": job.ID,
			"state":  string(job.State()),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, job.Result())
}
