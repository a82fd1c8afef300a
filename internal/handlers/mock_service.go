package handlers

import (
	"context"
	"net/http"
	"time"

	"blerelay"
	"blerelay/internal/diag"
	"blerelay/internal/service"

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

type mockSession struct {
	connectErr error
	sendErr    error
	state      blerelay.ConnState

	connectCalls    int
	disconnectCalls int
	sentCommands    []blerelay.Command
}

func (m *mockSession) Connect(ctx context.Context) error {
	m.connectCalls++
	return m.connectErr
}
func (m *mockSession) Disconnect() {
	m.disconnectCalls++
}
func (m *mockSession) Send(ctx context.Context, cmd blerelay.Command) error {
	m.sentCommands = append(m.sentCommands, cmd)
	return m.sendErr
}
func (m *mockSession) State() blerelay.ConnState { return m.state }

type mockMonitoring struct {
	status  service.Status
	entries []diag.Entry
}

func (m *mockMonitoring) Status() service.Status { return m.status }
func (m *mockMonitoring) Recent() []diag.Entry   { return m.entries }

type mockEventLog struct {
	resp     []blerelay.SessionEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]blerelay.SessionEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
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
