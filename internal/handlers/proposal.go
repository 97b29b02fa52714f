package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/requestdata"
	"github.com/yungbote/atlasgraph-backend/internal/services"
)

type ProposalHandler struct {
	log             *logger.Logger
	proposalService services.ProposalService
}

func NewProposalHandler(baseLog *logger.Logger, proposalService services.ProposalService) *ProposalHandler {
	return &ProposalHandler{
		log:             baseLog.With("handler", "ProposalHandler"),
		proposalService: proposalService,
	}
}

type createProposalRequest struct {
	BaseGraphVersion int64           `json:"base_graph_version"`
	Operations       json.RawMessage `json:"operations"`
}

func (h *ProposalHandler) Create(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	prop, err := h.proposalService.Create(c.Request.Context(), rd.TenantID, req.BaseGraphVersion, req.Operations, rd.CorrelationID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_operations", err)
			return
		}
		h.log.Error("Create failed", "error", err, "tenant_id", rd.TenantID.String())
		RespondError(c, http.StatusInternalServerError, "create_proposal_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"proposal": prop})
}

func (h *ProposalHandler) Get(c *gin.Context) {
	rd, proposalID, ok := h.scope(c)
	if !ok {
		return
	}
	prop, err := h.proposalService.Get(c.Request.Context(), rd.TenantID, proposalID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrNotFound) {
			RespondError(c, http.StatusNotFound, "not_found", err)
			return
		}
		h.log.Error("Get failed", "error", err, "proposal_id", proposalID.String())
		RespondError(c, http.StatusInternalServerError, "load_proposal_failed", err)
		return
	}
	RespondOK(c, gin.H{"proposal": prop})
}

func (h *ProposalHandler) Approve(c *gin.Context) {
	rd, proposalID, ok := h.scope(c)
	if !ok {
		return
	}
	res, err := h.proposalService.Approve(c.Request.Context(), rd.TenantID, proposalID)
	if err != nil {
		h.respondServiceError(c, "approve_failed", proposalID, err)
		return
	}
	RespondOK(c, res)
}

func (h *ProposalHandler) Reject(c *gin.Context) {
	rd, proposalID, ok := h.scope(c)
	if !ok {
		return
	}
	if err := h.proposalService.Reject(c.Request.Context(), rd.TenantID, proposalID); err != nil {
		h.respondServiceError(c, "reject_failed", proposalID, err)
		return
	}
	RespondOK(c, gin.H{"status": "REJECTED"})
}

func (h *ProposalHandler) Commit(c *gin.Context) {
	rd, proposalID, ok := h.scope(c)
	if !ok {
		return
	}
	res, err := h.proposalService.Commit(c.Request.Context(), rd.TenantID, proposalID)
	if err != nil {
		h.respondServiceError(c, "commit_failed", proposalID, err)
		return
	}
	RespondOK(c, res)
}

func (h *ProposalHandler) scope(c *gin.Context) (*requestdata.RequestData, uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.TenantID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return nil, uuid.Nil, false
	}
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_proposal_id", err)
		return nil, uuid.Nil, false
	}
	return rd, proposalID, true
}

func (h *ProposalHandler) respondServiceError(c *gin.Context, code string, proposalID uuid.UUID, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		RespondError(c, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, pkgerrors.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "bad_request", err)
	default:
		h.log.Error("proposal request failed", "error", err, "proposal_id", proposalID.String())
		RespondError(c, http.StatusInternalServerError, code, err)
	}
}
