package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/atlasgraph-backend/internal/domain"
	pkgerrors "github.com/yungbote/atlasgraph-backend/internal/pkg/errors"
	"github.com/yungbote/atlasgraph-backend/internal/platform/logger"
	"github.com/yungbote/atlasgraph-backend/internal/requestdata"
	"github.com/yungbote/atlasgraph-backend/internal/services"
)

type fakeProposalService struct {
	createErr error
	getErr    error
	commitRes *services.CommitResult
	commitErr error
}

func (f *fakeProposalService) Create(ctx context.Context, tenantID uuid.UUID, baseVersion int64, rawOps []byte, correlationID string) (*types.Proposal, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &types.Proposal{
		ID:               uuid.New(),
		TenantID:         tenantID,
		BaseGraphVersion: baseVersion,
		Status:           types.ProposalStatusDraft,
	}, nil
}

func (f *fakeProposalService) Get(ctx context.Context, tenantID, proposalID uuid.UUID) (*types.Proposal, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &types.Proposal{ID: proposalID, TenantID: tenantID, Status: types.ProposalStatusDraft}, nil
}

func (f *fakeProposalService) Approve(ctx context.Context, tenantID, proposalID uuid.UUID) (*services.CommitResult, error) {
	return f.commitRes, f.commitErr
}

func (f *fakeProposalService) Reject(ctx context.Context, tenantID, proposalID uuid.UUID) error {
	return f.commitErr
}

func (f *fakeProposalService) Commit(ctx context.Context, tenantID, proposalID uuid.UUID) (*services.CommitResult, error) {
	return f.commitRes, f.commitErr
}

func newHandlerRouter(t *testing.T, svc services.ProposalService, tenantID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	h := NewProposalHandler(log, svc)

	scoped := func(c *gin.Context) {
		rd := &requestdata.RequestData{TenantID: tenantID}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}

	r := gin.New()
	api := r.Group("/api", scoped)
	api.POST("/proposals", h.Create)
	api.GET("/proposals/:id", h.Get)
	api.POST("/proposals/:id/commit", h.Commit)
	return r
}

func TestProposalHandler_CreateReturns201(t *testing.T) {
	r := newHandlerRouter(t, &fakeProposalService{}, uuid.New())

	body := `{"base_graph_version":3,"operations":[{"op_id":"op-1","op_type":"CREATE_NODE","properties_delta":{"type":"Topic"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/proposals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Proposal types.Proposal `json:"proposal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Proposal.Status != types.ProposalStatusDraft || resp.Proposal.BaseGraphVersion != 3 {
		t.Fatalf("unexpected proposal: %+v", resp.Proposal)
	}
}

func TestProposalHandler_CreateRejectsBadOperations(t *testing.T) {
	svc := &fakeProposalService{createErr: fmt.Errorf("%w: bad op", pkgerrors.ErrInvalidArgument)}
	r := newHandlerRouter(t, svc, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/proposals", strings.NewReader(`{"operations":[]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestProposalHandler_GetMissingIs404(t *testing.T) {
	svc := &fakeProposalService{getErr: pkgerrors.ErrNotFound}
	r := newHandlerRouter(t, svc, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/proposals/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProposalHandler_BadProposalIDIs400(t *testing.T) {
	r := newHandlerRouter(t, &fakeProposalService{}, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/proposals/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestProposalHandler_CommitSurfacesVerdict(t *testing.T) {
	version := int64(4)
	svc := &fakeProposalService{commitRes: &services.CommitResult{
		OK:           true,
		Status:       types.ProposalStatusDone,
		GraphVersion: &version,
	}}
	r := newHandlerRouter(t, svc, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/proposals/"+uuid.NewString()+"/commit", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res services.CommitResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK || res.Status != types.ProposalStatusDone || res.GraphVersion == nil || *res.GraphVersion != 4 {
		t.Fatalf("unexpected verdict: %+v", res)
	}
}

func TestProposalHandler_InvalidTransitionIs409(t *testing.T) {
	svc := &fakeProposalService{commitErr: fmt.Errorf("%w: cannot commit from DRAFT", pkgerrors.ErrInvalidTransition)}
	r := newHandlerRouter(t, svc, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/proposals/"+uuid.NewString()+"/commit", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}
