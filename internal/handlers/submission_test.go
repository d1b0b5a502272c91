package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scriptdeck/greenlight-backend/internal/pkg/apperr"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/dbctx"
	"github.com/scriptdeck/greenlight-backend/internal/pkg/logger"
	"github.com/scriptdeck/greenlight-backend/internal/types"
)

type fakeSubmissionRepo struct {
	err  error
	subs []*types.Submission
}

func (f *fakeSubmissionRepo) Create(dbc dbctx.Context, subs []*types.Submission) ([]*types.Submission, error) {
	if f.err != nil {
		return nil, f.err
	}
	return subs, nil
}
func (f *fakeSubmissionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Submission, error) {
	return f.subs, f.err
}
func (f *fakeSubmissionRepo) List(dbc dbctx.Context, status string) ([]*types.Submission, error) {
	return f.subs, f.err
}
func (f *fakeSubmissionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return f.err
}
func (f *fakeSubmissionRepo) ClaimForProcessing(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	return false, f.err
}

func newTestSubmissionHandler(t *testing.T, repo *fakeSubmissionRepo) *SubmissionHandler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return NewSubmissionHandler(log, repo, nil, nil)
}

// A classified error surfacing from the repo layer must keep its
// kind-to-status mapping instead of flattening to 500.
func TestGetMapsClassifiedRepoError(t *testing.T) {
	h := newTestSubmissionHandler(t, &fakeSubmissionRepo{
		err: apperr.Newf(apperr.KindFailedPrecondition, "submission table not migrated"),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/submissions/x", nil)
	c.Params = gin.Params{{Key: "id", Value: uuid.New().String()}}

	h.Get(c)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d", http.StatusUnprocessableEntity, w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error.Code != string(apperr.KindFailedPrecondition) {
		t.Fatalf("code: want=%s got=%s", apperr.KindFailedPrecondition, env.Error.Code)
	}
}

func TestListMapsPlainRepoErrorToInternal(t *testing.T) {
	h := newTestSubmissionHandler(t, &fakeSubmissionRepo{
		err: apperr.Newf(apperr.KindInternal, "connection reset"),
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/submissions", nil)

	h.List(c)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: want=%d got=%d", http.StatusInternalServerError, w.Code)
	}
}
