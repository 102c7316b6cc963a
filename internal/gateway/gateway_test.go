package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocodealone/taskrecur/internal/apperr"
	"github.com/gocodealone/taskrecur/internal/applog"
	"github.com/gocodealone/taskrecur/internal/auth"
	"github.com/gocodealone/taskrecur/internal/calendar"
	"github.com/gocodealone/taskrecur/internal/ids"
	"github.com/gocodealone/taskrecur/internal/messaging"
	"github.com/gocodealone/taskrecur/internal/sidecar"
	"github.com/gocodealone/taskrecur/internal/store"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)      {}
func (nopLogger) Info(string, ...any)       {}
func (nopLogger) Warn(string, ...any)       {}
func (nopLogger) Error(string, ...any)      {}
func (nopLogger) With(...any) applog.Logger { return nopLogger{} }

// newTestGateway wires a Gateway to a sqlmock-backed store and a bus that
// publishes against a sidecar stub accepting everything, mirroring the
// integration seam rather than faking Gateway's collaborators directly.
func newTestGateway(t *testing.T) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sidecarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sidecarServer.Close)
	u, err := url.Parse(sidecarServer.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	t.Setenv("SIDECAR_HTTP_PORT", strconv.Itoa(port))

	bus := messaging.New(sidecar.New(port), "pubsub", nopLogger{})
	return New(store.NewTaskStore(db), store.NewReminderStore(db), bus, nopLogger{}), mock
}

// publishRecorder captures the topic path segment of every /publish/<component>/<topic>
// request the sidecar receives, so a test can assert which topics a mutation reached.
type publishRecorder struct {
	mu     sync.Mutex
	topics []string
}

func (p *publishRecorder) record(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, path)
}

func (p *publishRecorder) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.topics))
	copy(out, p.topics)
	return out
}

// newTestGatewayWithRecorder is like newTestGateway but the sidecar stub also
// records which /publish/<component>/<topic> paths it saw.
func newTestGatewayWithRecorder(t *testing.T) (*Gateway, sqlmock.Sqlmock, *publishRecorder) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &publishRecorder{}
	sidecarServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sidecarServer.Close)
	u, err := url.Parse(sidecarServer.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	t.Setenv("SIDECAR_HTTP_PORT", strconv.Itoa(port))

	bus := messaging.New(sidecar.New(port), "pubsub", nopLogger{})
	return New(store.NewTaskStore(db), store.NewReminderStore(db), bus, nopLogger{}), mock, rec
}

func withPrincipal(r *http.Request, userID ids.ID) *http.Request {
	ctx := auth.WithPrincipal(r.Context(), auth.Principal{UserID: userID, Subject: userID.String()})
	return r.WithContext(ctx)
}

func TestHandleCreate_RejectsMismatchedPathUser(t *testing.T) {
	gw, _ := newTestGateway(t)
	r := chi.NewRouter()
	gw.Mount(r)

	body, _ := json.Marshal(CreateTaskRequest{Title: "Water plants"})
	req := httptest.NewRequest(http.MethodPost, "/users/"+ids.New().String()+"/tasks/", bytes.NewReader(body))
	req = withPrincipal(req, ids.New())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleCreate_RejectsMissingToken(t *testing.T) {
	gw, _ := newTestGateway(t)
	r := chi.NewRouter()
	gw.Mount(r)

	body, _ := json.Marshal(CreateTaskRequest{Title: "Water plants"})
	req := httptest.NewRequest(http.MethodPost, "/users/"+ids.New().String()+"/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleCreate_InsertsAndPublishes(t *testing.T) {
	gw, mock := newTestGateway(t)
	userID := ids.New()

	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 1))

	r := chi.NewRouter()
	gw.Mount(r)
	body, _ := json.Marshal(CreateTaskRequest{Title: "Water plants"})
	req := httptest.NewRequest(http.MethodPost, "/users/"+userID.String()+"/tasks/", bytes.NewReader(body))
	req = withPrincipal(req, userID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTask_PublishesToBothTaskEventsAndTaskUpdates(t *testing.T) {
	gw, mock, recorder := newTestGatewayWithRecorder(t)
	userID := ids.New()

	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := gw.CreateTask(context.Background(), userID, CreateTaskRequest{Title: "Water plants"})
	require.NoError(t, err)

	topics := recorder.Topics()
	require.Len(t, topics, 2)
	assert.Contains(t, topics, "/publish/pubsub/task-events")
	assert.Contains(t, topics, "/publish/pubsub/task-updates")
}

func TestHandleCreate_RejectsInvalidPayload(t *testing.T) {
	gw, _ := newTestGateway(t)
	userID := ids.New()

	r := chi.NewRouter()
	gw.Mount(r)
	body, _ := json.Marshal(CreateTaskRequest{Title: ""}) // required
	req := httptest.NewRequest(http.MethodPost, "/users/"+userID.String()+"/tasks/", bytes.NewReader(body))
	req = withPrincipal(req, userID)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

var taskColumnNames = []string{
	"task_id", "user_id", "title", "description", "priority", "tags", "is_completed",
	"created_at", "updated_at", "due_date", "remind_at", "is_recurring", "recurrence_pattern",
	"parent_task_id", "next_occurrence_id", "deleted",
}

func TestGetTask_MissReturnsNotFound(t *testing.T) {
	gw, mock := newTestGateway(t)
	userID, taskID := ids.New(), ids.New()

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WillReturnRows(sqlmock.NewRows(taskColumnNames))

	_, err := gw.GetTask(context.Background(), userID, taskID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrTaskNotFound)
}

func TestGetTask_WrongOwnerReturnsSameKindAsMiss(t *testing.T) {
	gw, mock := newTestGateway(t)
	owner, otherUser, taskID := ids.New(), ids.New(), ids.New()
	now := calendar.Now().Std()

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			taskID, owner, "Water plants", "", "medium", pq.StringArray{}, false,
			now, now, nil, nil, false, nil, nil, nil, false,
		))

	_, err := gw.GetTask(context.Background(), otherUser, taskID)
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
}

func TestSetCompleted_RejectsNoOpTransition(t *testing.T) {
	gw, mock := newTestGateway(t)
	userID, taskID := ids.New(), ids.New()
	now := calendar.Now().Std()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			taskID, userID, "Water plants", "", "medium", pq.StringArray{}, true,
			now, now, nil, nil, false, nil, nil, nil, false,
		))
	mock.ExpectRollback()

	_, err := gw.SetCompleted(context.Background(), userID, taskID, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrAlreadyInState)
}

func TestReplay_RepublishesCurrentState(t *testing.T) {
	gw, mock := newTestGateway(t)
	userID, taskID := ids.New(), ids.New()
	now := calendar.Now().Std()

	mock.ExpectQuery("SELECT .* FROM tasks WHERE task_id").
		WillReturnRows(sqlmock.NewRows(taskColumnNames).AddRow(
			taskID, userID, "Water plants", "", "medium", pq.StringArray{}, true,
			now, now, nil, nil, false, nil, nil, nil, false,
		))

	task, err := gw.Replay(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
