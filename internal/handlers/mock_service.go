package handlers

import (
	"context"
	"net/http"
	"time"

	"helmbridge"
	"helmbridge/internal/service"
	"helmbridge/internal/store"

	"github.com/gin-gonic/gin"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockControls struct {
	result    service.ControlResult
	err       error
	lastSend  service.SendParams
	sendCalls int
	overrides map[string]any
}

func (m *mockControls) Send(ctx context.Context, p service.SendParams) (service.ControlResult, error) {
	m.sendCalls++
	m.lastSend = p
	return m.result, m.err
}
func (m *mockControls) DisplayValue(path string) (any, bool) {
	v, ok := m.overrides[path]
	return v, ok
}
func (m *mockControls) OverrideValue(path string) (any, bool) {
	v, ok := m.overrides[path]
	return v, ok
}
func (m *mockControls) RecordConnection(connected bool, detail string) {}
func (m *mockControls) Close() {}

type mockMonitoring struct {
	points []helmbridge.DataPoint
	value  helmbridge.DisplayValue
	err    error

	lastPath  string
	lastUnits string
}

func (m *mockMonitoring) List(ctx context.Context) []helmbridge.DataPoint {
	return m.points
}
func (m *mockMonitoring) Get(ctx context.Context, path, unitSystem string) (helmbridge.DisplayValue, error) {
	m.lastPath = path
	m.lastUnits = unitSystem
	return m.value, m.err
}

type mockEventLog struct {
	resp     []helmbridge.ControlEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]helmbridge.ControlEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	return newTestRouterWithStore(s, store.New())
}

func newTestRouterWithStore(s *service.Service, st *store.Store) *gin.Engine {
	h := NewHandler(s, st, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
