package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/models"
	"fleettrack/internal/notification"
)

type fakeUsers struct {
	users map[int64]*models.User
}

func (f *fakeUsers) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	return f.users[userID], nil
}

type recordingNotificator struct {
	typ string

	mu    sync.Mutex
	sends []*models.Event
}

func (n *recordingNotificator) Type() string { return n.typ }
func (n *recordingNotificator) Send(ctx context.Context, user *models.User, event *models.Event, position *models.Position) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, event)
	return nil
}

func newTestServer(t *testing.T) (*Server, *recordingNotificator, *recordingNotificator) {
	users := &fakeUsers{users: map[int64]*models.User{5: {ID: 5, Name: "ops"}}}
	webhook := &recordingNotificator{typ: "webhook"}
	web := &recordingNotificator{typ: "web"}
	registry := notification.NewRegistry(webhook, web)
	srv := NewServer(":0", users, registry, nil, prometheus.NewRegistry(), zap.NewNop())
	return srv, webhook, web
}

func TestEventTypes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/types", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var types []models.Typed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	names := make([]string, len(types))
	for i, typ := range types {
		names[i] = typ.Type
	}
	assert.Contains(t, names, models.TypeAlarm)
	assert.Contains(t, names, models.TypeDeviceOffline)
}

func TestNotificators(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/notificators", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var types []models.Typed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &types))
	assert.Equal(t, []models.Typed{{Type: "web"}, {Type: "webhook"}}, types)
}

func TestTestNotification_SentToCallingUserOnAllChannels(t *testing.T) {
	srv, webhook, web := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/test",
		strings.NewReader(`{"userId": 5}`))
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	for _, channel := range []*recordingNotificator{webhook, web} {
		channel.mu.Lock()
		require.Len(t, channel.sends, 1)
		assert.Equal(t, models.TypeTestNotification, channel.sends[0].Type)
		channel.mu.Unlock()
	}
}

func TestTestNotification_UnknownUser(t *testing.T) {
	srv, webhook, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/test",
		strings.NewReader(`{"userId": 99}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	webhook.mu.Lock()
	defer webhook.mu.Unlock()
	assert.Empty(t, webhook.sends)
}

func TestTestNotification_BadRequest(t *testing.T) {
	srv, webhook, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/test", strings.NewReader(`{}`))
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	webhook.mu.Lock()
	defer webhook.mu.Unlock()
	assert.Empty(t, webhook.sends)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
