package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Dungyy/Gerz-platform-sub000/internal/database"
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/internal/services"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/config"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/jwt"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	engine *gin.Engine
	auth   *services.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithBus(t, nil)
}

func newTestServerWithBus(t *testing.T, bus *queue.RedisBus) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	limiter := services.NewUsageLimiter(db)
	auth := services.NewAuthService(db, jwt.NewJWTManager("router-test-secret", time.Hour))
	deps := &Dependencies{
		DB:            db,
		Bus:           bus,
		CORS:          config.CORSConfig{AllowOrigins: []string{"*"}, AllowMethods: []string{"GET", "POST", "PUT", "DELETE"}},
		Organizations: services.NewOrganizationService(db, limiter, 0),
		Auth:          auth,
		Invitations:   services.NewInvitationService(db, limiter, nil, nil, services.InvitationOptions{ShareLinkBase: "https://app.test/join/"}),
		Requests:      services.NewRequestService(db, nil),
		Accounts:      services.NewAccountService(db, limiter),
		Properties:    services.NewPropertyService(db, limiter),
		Notifications: services.NewNotificationService(db, nil),
	}
	return &testServer{t: t, db: db, engine: SetupRouter(deps), auth: auth}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	}
	return rec, resp
}

func (s *testServer) tokenFor(actor *models.Actor) string {
	s.t.Helper()
	session, err := s.auth.IssueSession(actor)
	require.NoError(s.t, err)
	return session.Token
}

type signupResult struct {
	Organization models.Organization `json:"organization"`
	Token        string              `json:"token"`
	Actor        models.Actor        `json:"actor"`
}

func (s *testServer) signup(orgName, email string) signupResult {
	s.t.Helper()
	rec, resp := s.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"organization_name": orgName,
		"name":              "Owner",
		"email":             email,
		"password":          "owner-password",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out signupResult
	require.NoError(s.t, json.Unmarshal(resp.Data, &out))
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec, resp := s.do(http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"redis":"disabled"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupLoginAndMe(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")
	assert.Equal(t, models.PlanFree, owner.Organization.PlanTier)
	assert.NotEmpty(t, owner.Token)

	rec, resp := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"organization_code": owner.Organization.Code,
		"email":             "owner@birch.test",
		"password":          "owner-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &session))

	rec, resp = s.do(http.MethodGet, "/api/v1/auth/me", session.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.Actor
	require.NoError(t, json.Unmarshal(resp.Data, &me))
	assert.Equal(t, models.RoleOwner, me.Role)
	assert.NotContains(t, string(resp.Data), "password")

	rec, resp = s.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", resp.Reason)

	rec, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"organization_code": owner.Organization.Code,
		"email":             "owner@birch.test",
		"password":          "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvitationRedemptionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")

	rec, resp := s.do(http.MethodPost, "/api/v1/invitations", owner.Token, map[string]string{
		"email": "worker@birch.test",
		"role":  "worker",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var issued struct {
		Token     string `json:"token"`
		ShareLink string `json:"share_link"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &issued))
	assert.Equal(t, "https://app.test/join/"+issued.Token, issued.ShareLink)

	rec, resp = s.do(http.MethodPost, "/api/v1/invitations", owner.Token, map[string]string{
		"email": "worker@birch.test",
		"role":  "worker",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_pending", resp.Reason)

	rec, resp = s.do(http.MethodPost, "/api/v1/invitations", owner.Token, map[string]string{
		"email": "boss@birch.test",
		"role":  "owner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", resp.Reason)

	rec, resp = s.do(http.MethodGet, "/api/v1/invitations/preview/"+issued.Token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), "Birch Lane")

	redeem := map[string]string{
		"token":    issued.Token,
		"email":    "worker@birch.test",
		"password": "worker-password",
		"name":     "Sam",
	}
	rec, resp = s.do(http.MethodPost, "/api/v1/auth/redeem", "", redeem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session struct {
		Token string       `json:"token"`
		Actor models.Actor `json:"actor"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Equal(t, models.RoleWorker, session.Actor.Role)

	rec, resp = s.do(http.MethodPost, "/api/v1/auth/redeem", "", redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "already_redeemed", resp.Reason)

	rec, resp = s.do(http.MethodGet, "/api/v1/invitations", session.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "workers cannot list invitations")
	assert.Equal(t, "role_insufficient", resp.Reason)

	rec, resp = s.do(http.MethodGet, "/api/v1/invitations?status=accepted", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted []map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &accepted))
	assert.Len(t, accepted, 1)
	assert.NotContains(t, string(resp.Data), "token_hash")
}

func TestRedeemFailuresAreBadRequest(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")
	orgID := owner.Organization.ID

	rec, resp := s.do(http.MethodPost, "/api/v1/invitations", owner.Token, map[string]string{
		"email": "third@birch.test",
		"role":  "worker",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &issued))

	// 邀请发出后降级为免费套餐并占满维修人员名额
	require.NoError(t, s.db.Model(&models.Organization{}).Where("id = ?", orgID).Updates(map[string]interface{}{
		"plan_tier":           models.PlanFree,
		"subscription_status": models.SubscriptionActive,
	}).Error)
	for _, email := range []string{"w1@birch.test", "w2@birch.test"} {
		require.NoError(t, s.db.Create(&models.Actor{OrganizationID: orgID, Role: models.RoleWorker, Email: email, Name: "W"}).Error)
	}

	redeem := map[string]string{
		"token":    issued.Token,
		"email":    "third@birch.test",
		"password": "worker-password",
		"name":     "Tess",
	}
	rec, resp = s.do(http.MethodPost, "/api/v1/auth/redeem", "", redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "limit_exceeded", resp.Reason)

	redeem["email"] = "someone.else@birch.test"
	rec, resp = s.do(http.MethodPost, "/api/v1/auth/redeem", "", redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email_mismatch", resp.Reason)

	redeem["token"] = "not-a-real-token"
	rec, resp = s.do(http.MethodPost, "/api/v1/auth/redeem", "", redeem)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "token_not_found", resp.Reason)
}

func TestRequestUpdateDispatch(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")
	orgID := owner.Organization.ID

	property := &models.Property{OrganizationID: orgID, Name: "Birch Lane"}
	require.NoError(t, s.db.Create(property).Error)
	tenant := &models.Actor{OrganizationID: orgID, Role: models.RoleTenant, Email: "tenant@birch.test", Name: "Tia"}
	worker := &models.Actor{OrganizationID: orgID, Role: models.RoleWorker, Email: "worker@birch.test", Name: "Wes"}
	require.NoError(t, s.db.Create(tenant).Error)
	require.NoError(t, s.db.Create(worker).Error)
	unit := &models.Unit{OrganizationID: orgID, PropertyID: property.ID, Label: "1A", TenantID: &tenant.ID}
	require.NoError(t, s.db.Create(unit).Error)

	tenantToken := s.tokenFor(tenant)
	workerToken := s.tokenFor(worker)

	rec, resp := s.do(http.MethodPost, "/api/v1/requests", tenantToken, map[string]interface{}{
		"unit_id":  unit.ID,
		"title":    "Dripping faucet",
		"category": "plumbing",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.MaintenanceRequest
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	path := fmt.Sprintf("/api/v1/requests/%d", created.ID)

	rec, resp = s.do(http.MethodPut, path, workerToken, map[string]interface{}{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_assignee", resp.Reason)

	rec, _ = s.do(http.MethodPut, path, owner.Token, map[string]interface{}{"assigned_to": worker.ID, "priority": "high"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "one change per update")

	rec, resp = s.do(http.MethodPut, path, owner.Token, map[string]interface{}{"assigned_to": worker.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, resp = s.do(http.MethodPut, path, workerToken, map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_transition", resp.Reason)

	rec, _ = s.do(http.MethodPut, path, workerToken, map[string]interface{}{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, resp = s.do(http.MethodPut, path, workerToken, map[string]interface{}{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.MaintenanceRequest
	require.NoError(t, json.Unmarshal(resp.Data, &updated))
	assert.Equal(t, models.StatusCompleted, updated.Status)

	rec, resp = s.do(http.MethodPut, path, workerToken, map[string]interface{}{"status": "in_progress"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_transition", resp.Reason)

	rec, _ = s.do(http.MethodPost, path+"/comments", tenantToken, map[string]interface{}{"text": "Thanks!"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(http.MethodPost, path+"/comments", tenantToken, map[string]interface{}{"text": "secret", "is_internal": true})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, resp = s.do(http.MethodGet, "/api/v1/requests?status=completed", tenantToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.MaintenanceRequest
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list, 1)

	rec, _ = s.do(http.MethodGet, "/api/v1/requests/abc", tenantToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountEndpoints(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")
	other := s.signup("Cedar Row", "owner@cedar.test")

	worker := &models.Actor{OrganizationID: owner.Organization.ID, Role: models.RoleWorker, Email: "worker@birch.test", Name: "Wes"}
	require.NoError(t, s.db.Create(worker).Error)
	workerToken := s.tokenFor(worker)
	workerPath := fmt.Sprintf("/api/v1/workers/%d", worker.ID)

	rec, _ := s.do(http.MethodGet, workerPath, owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, workerPath, other.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other organizations see nothing")

	rec, _ = s.do(http.MethodGet, workerPath, workerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "workers can read their own account")

	rec, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/managers/%d", owner.Actor.ID), workerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "owners are not managers")

	rec, resp := s.do(http.MethodGet, "/api/v1/managers", workerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "role_insufficient", resp.Reason)

	rec, _ = s.do(http.MethodDelete, workerPath, owner.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/auth/me", workerToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "removed actors lose their session")
}

func TestLimitExceededOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := s.signup("Birch Lane", "owner@birch.test")

	rec, _ := s.do(http.MethodPost, "/api/v1/properties", owner.Token, map[string]string{"name": "First"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := s.do(http.MethodPost, "/api/v1/properties", owner.Token, map[string]string{"name": "Second"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "limit_exceeded", resp.Reason)
	assert.JSONEq(t, `{"resource":"properties","current":1,"max":1}`, string(resp.Data))

	rec, resp = s.do(http.MethodGet, "/api/v1/organization/usage", owner.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(resp.Data), `"effective_tier":"free"`)
}

func TestNotificationStream(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	bus := queue.NewRedisBus(&queue.Config{Host: mr.Host(), Port: port, Prefix: "test"})
	t.Cleanup(func() { _ = bus.Close() })

	s := newTestServerWithBus(t, bus)
	owner := s.signup("Birch Lane", "owner@birch.test")
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/stream?token=" + owner.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first queue.UnreadMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, owner.Actor.ID, first.ActorID)
	assert.Zero(t, first.Unread)

	ctx := context.Background()
	require.NoError(t, bus.PublishUnread(ctx, queue.UnreadMessage{ActorID: owner.Actor.ID + 1, Unread: 9}))
	require.NoError(t, bus.PublishUnread(ctx, queue.UnreadMessage{ActorID: owner.Actor.ID, Unread: 2, Type: "request.created"}))

	var pushed queue.UnreadMessage
	require.NoError(t, conn.ReadJSON(&pushed))
	assert.Equal(t, owner.Actor.ID, pushed.ActorID, "only the actor's own channel is forwarded")
	assert.Equal(t, int64(2), pushed.Unread)
	assert.Equal(t, "request.created", pushed.Type)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/notifications/stream", nil)
	assert.Error(t, err, "the stream requires a token")
}
