package transaction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	e, err := middleware.NewEnforcer(cfg)
	require.NoError(t, err)

	engine := httpapi.NewEngine(cfg)
	RegisterRoutes(httpapi.NewRouter(engine, e), NewHandler(svc))
	return engine
}

func request(r http.Handler, path, user, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type listBody struct {
	Data     []Transaction       `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

func TestListOwnTransactions(t *testing.T) {
	svc := newTestService(t)
	r := newTestRouter(t, svc)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, typ := range []Type{TypeRewardEarned, TypeRewardEarned, TypeRewardEarned, TypePayout} {
		row, err := svc.Record(ctx, nil, RecordParams{UserID: "creator", Type: typ, Amount: 300})
		require.NoError(t, err)
		require.NoError(t, svc.db.Model(row).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	_, err := svc.Record(ctx, nil, RecordParams{UserID: "someone-else", Type: TypeRewardEarned, Amount: 300})
	require.NoError(t, err)

	w := request(r, "/v1/transactions", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(r, "/v1/transactions?limit=2", "creator", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.True(t, body.PageInfo.HasMore)
	for _, txn := range body.Data {
		require.Equal(t, "creator", txn.UserID)
	}

	w = request(r, "/v1/transactions?limit=2&cursor="+body.PageInfo.NextCursor, "creator", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = listBody{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.False(t, body.PageInfo.HasMore)

	w = request(r, "/v1/transactions?type=payout", "creator", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = listBody{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, TypePayout, body.Data[0].Type)

	w = request(r, "/v1/transactions?type=gift", "creator", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = request(r, "/v1/transactions?limit=1000", "creator", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminListsUserTransactions(t *testing.T) {
	svc := newTestService(t)
	r := newTestRouter(t, svc)

	_, err := svc.Record(context.Background(), nil, RecordParams{UserID: "creator", Type: TypeRewardEarned, Amount: 300})
	require.NoError(t, err)

	w := request(r, "/v1/admin/users/creator/transactions", "viewer", "user")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = request(r, "/v1/admin/users/creator/transactions", "ops", "support")
	require.Equal(t, http.StatusOK, w.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
}
