package handler

import (
	"strconv"
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReconHandler exposes the reconciliation ops surface.
type ReconHandler struct {
	reconSvc ports.ReconService
}

// NewReconHandler creates a new ReconHandler.
func NewReconHandler(reconSvc ports.ReconService) *ReconHandler {
	return &ReconHandler{reconSvc: reconSvc}
}

// CreateRun handles POST /v1/recon/runs. Registering a window that
// already has a run returns that run; a freshly queued run is executed
// synchronously before responding.
func (h *ReconHandler) CreateRun(c *gin.Context) {
	var req dto.CreateReconRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	start, err := time.Parse(time.RFC3339, req.WindowStart)
	if err != nil {
		response.Error(c, apperror.Validation("window_start must be RFC 3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, req.WindowEnd)
	if err != nil {
		response.Error(c, apperror.Validation("window_end must be RFC 3339"))
		return
	}

	run, err := h.reconSvc.CreateRun(c.Request.Context(), req.Provider, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}

	if run.Status == domain.RunStatusQueued {
		run, err = h.reconSvc.Execute(c.Request.Context(), run.ID)
		if err != nil && run == nil {
			response.Error(c, err)
			return
		}
		// A failed run is still a created run; the status and reason on
		// the response tell the operator what happened.
	}

	response.Created(c, toReconRunResponse(run))
}

// ListFindings handles GET /v1/recon/findings.
func (h *ReconHandler) ListFindings(c *gin.Context) {
	params := ports.FindingListParams{
		Provider: c.Query("provider"),
	}

	if raw := c.Query("run_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation("run_id must be a UUID"))
			return
		}
		params.RunID = &id
	}
	if raw := c.Query("finding_type"); raw != "" {
		ft := domain.FindingType(raw)
		params.Type = &ft
	}
	if raw := c.Query("status"); raw != "" {
		fs := domain.FindingStatus(raw)
		params.Status = &fs
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(c, apperror.Validation("limit must be a non-negative integer"))
			return
		}
		params.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(c, apperror.Validation("offset must be a non-negative integer"))
			return
		}
		params.Offset = n
	}

	findings, err := h.reconSvc.ListFindings(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.FindingResponse, 0, len(findings))
	for i := range findings {
		items = append(items, toFindingResponse(&findings[i]))
	}
	response.OK(c, dto.FindingListResponse{
		Items:  items,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// ResolveFinding handles POST /v1/recon/findings/:id/resolve.
func (h *ReconHandler) ResolveFinding(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("finding id must be a UUID"))
		return
	}

	finding, err := h.reconSvc.ResolveFinding(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toFindingResponse(finding))
}

func toReconRunResponse(run *domain.ReconRun) dto.ReconRunResponse {
	resp := dto.ReconRunResponse{
		ID:           run.ID.String(),
		Provider:     run.Provider,
		WindowStart:  run.WindowStart.UTC().Format(time.RFC3339),
		WindowEnd:    run.WindowEnd.UTC().Format(time.RFC3339),
		Status:       string(run.Status),
		FindingCount: run.FindingCount,
		Reason:       run.Reason,
		CreatedAt:    run.CreatedAt.UTC().Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		s := run.StartedAt.UTC().Format(time.RFC3339)
		resp.StartedAt = &s
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.UTC().Format(time.RFC3339)
		resp.FinishedAt = &s
	}
	return resp
}

func toFindingResponse(f *domain.Finding) dto.FindingResponse {
	resp := dto.FindingResponse{
		ID:              f.ID.String(),
		RunID:           f.RunID.String(),
		Provider:        f.Provider,
		ProviderEventID: f.ProviderEventID,
		Type:            string(f.Type),
		Severity:        string(f.Severity),
		Status:          string(f.Status),
		Message:         f.Message,
		CreatedAt:       f.CreatedAt.UTC().Format(time.RFC3339),
	}
	if f.TenantID != nil {
		s := f.TenantID.String()
		resp.TenantID = &s
	}
	if f.AccountID != nil {
		s := f.AccountID.String()
		resp.AccountID = &s
	}
	return resp
}
