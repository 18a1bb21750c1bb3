package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/txn2/bi-proxy/pkg/ingest"
)

// upload loads a multipart CSV.
//
// @Summary      Upload a CSV
// @Description  Validates the CSV against the dataset, upserts it for the tenant and invalidates the tenant's cache.
// @Tags         Uploads
// @Accept       multipart/form-data
// @Produce      json
// @Param        dataset  path      string  true   "Dataset name or alias"
// @Param        file     formData  file    true   "CSV file with a header row"
// @Param        tenant   formData  string  false  "Tenant"
// @Success      200      {object}  ingest.Report
// @Failure      400      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      422      {object}  errorResponse
// @Failure      500      {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /uploads/{dataset} [post]
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only

	tenant := h.resolveTenant(r, r.FormValue("tenant"))
	if !authorizeTenant(w, r, tenant) {
		return
	}

	report, err := h.deps.Ingest.Ingest(r.Context(), r.PathValue("dataset"), tenant, file)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// s3UploadRequest names an object to load.
type s3UploadRequest struct {
	Tenant string `json:"tenant,omitempty"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// uploadFromS3 loads a CSV object from S3.
//
// @Summary      Load a CSV from S3
// @Tags         Uploads
// @Accept       json
// @Produce      json
// @Param        dataset  path      string           true  "Dataset name or alias"
// @Param        body     body      s3UploadRequest  true  "Object location"
// @Success      200      {object}  ingest.Report
// @Failure      400      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      422      {object}  errorResponse
// @Failure      501      {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /uploads/{dataset}/s3 [post]
func (h *Handler) uploadFromS3(w http.ResponseWriter, r *http.Request) {
	var req s3UploadRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	tenant := h.resolveTenant(r, req.Tenant)
	if !authorizeTenant(w, r, tenant) {
		return
	}

	report, err := h.deps.Ingest.IngestObject(r.Context(), r.PathValue("dataset"), tenant, req.Bucket, req.Key)
	if err != nil {
		writeIngestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// jobListResponse wraps recent ingestion jobs.
type jobListResponse struct {
	Data  []ingest.Job `json:"data"`
	Total int          `json:"total"`
}

// listJobs returns recent ingestion jobs.
//
// @Summary      List ingestion jobs
// @Tags         Uploads
// @Produce      json
// @Param        tenant  query     string   false  "Filter by tenant"
// @Param        limit   query     integer  false  "Maximum jobs (default: 50)"
// @Success      200     {object}  jobListResponse
// @Failure      500     {object}  errorResponse
// @Security     ApiKeyAuth
// @Security     BearerAuth
// @Router       /uploads/jobs [get]
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if !authorizeTenant(w, r, tenant) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.deps.Ingest.Jobs(r.Context(), tenant, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []ingest.Job{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Data: jobs, Total: len(jobs)})
}

func writeIngestError(w http.ResponseWriter, err error) {
	var verr *ingest.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Details: verr})
	case errors.Is(err, ingest.ErrUnknownDataset):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingest.ErrNoObjectSource):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, ingest.ErrTenantRequired),
		errors.Is(err, ingest.ErrObjectLocation),
		errors.Is(err, ingest.ErrEmptyUpload),
		errors.Is(err, ingest.ErrInvalidCSV):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
