package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/roach88/recon/internal/ir"
)

func TestReminders(t *testing.T) {
	assert.Equal(t, []int{1440, 120, 30}, Reminders(ir.PriorityHigh))
	assert.Equal(t, []int{180, 30}, Reminders(ir.PriorityMedium))
	assert.Equal(t, []int{30}, Reminders(ir.PriorityLow))
	assert.Equal(t, []int{180, 30}, Reminders(""))
}

func TestMemoryCalendarLifecycle(t *testing.T) {
	ctx := context.Background()
	cal := NewMemoryCalendar()

	ref, err := cal.CreateEvent(ctx, EventSpec{Title: "standup"})
	require.NoError(t, err)
	assert.Equal(t, ir.Ref("evt-1"), ref)

	require.NoError(t, cal.UpdateEvent(ctx, ref, EventSpec{Title: "standup (moved)"}))
	got, ok := cal.Event(ref)
	require.True(t, ok)
	assert.Equal(t, "standup (moved)", got.Title)

	require.NoError(t, cal.DeleteEvent(ctx, ref))
	assert.Equal(t, 0, cal.Len())

	err = cal.DeleteEvent(ctx, ref)
	assert.True(t, errors.Is(err, ErrNotFound))
	err = cal.UpdateEvent(ctx, "evt-404", EventSpec{})
	assert.True(t, errors.Is(err, ErrNotFound))

	calls := cal.Calls()
	require.Len(t, calls, 5)
	assert.Equal(t, Call{Op: "calendar.create", Title: "standup"}, calls[0])
	assert.Equal(t, "calendar.delete", calls[3].Op)
}

func TestMemoryTasksFailureInjection(t *testing.T) {
	ctx := context.Background()
	tasks := NewMemoryTasks()
	tasks.FailWith(func(op string, _ ir.Ref, title string) error {
		if op == "tasks.create" && title == "boom" {
			return errors.New("quota exceeded")
		}
		return nil
	})

	_, err := tasks.CreateTask(ctx, TaskSpec{Title: "boom"})
	require.Error(t, err)

	ref, err := tasks.CreateTask(ctx, TaskSpec{Title: "fine"})
	require.NoError(t, err)
	assert.Equal(t, ir.Ref("task-1"), ref, "failed create does not consume a ref")
	assert.Len(t, tasks.Calls(), 2)

	tasks.Seed("T123", TaskSpec{Title: "external"})
	require.NoError(t, tasks.UpdateTask(ctx, "T123", TaskSpec{Title: "renamed"}))
	got, ok := tasks.Task("T123")
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)
}

type recorded struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newRecorder(t *testing.T, status int, response string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			require.NoError(t, json.Unmarshal(data, &rec.Body))
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func staticClient(t *testing.T) *http.Client {
	t.Helper()
	client, err := NewHTTPClient(context.Background(), Credentials{AccessToken: "tok"}, 5*time.Second)
	require.NoError(t, err)
	return client
}

func TestGoogleCalendarCreateTimed(t *testing.T) {
	srv, reqs := newRecorder(t, http.StatusOK, `{"id":"abc123"}`)
	cal, err := NewGoogleCalendar(context.Background(), staticClient(t), srv.URL, "", "Asia/Hong_Kong")
	require.NoError(t, err)

	hk := time.FixedZone("HKT", 8*3600)
	start := time.Date(2026, 3, 10, 15, 0, 0, 0, hk)
	ref, err := cal.CreateEvent(context.Background(), EventSpec{
		Title:     "Design review",
		Location:  "Room 4",
		Start:     start,
		End:       start.Add(time.Hour),
		Reminders: []int{180, 30},
	})
	require.NoError(t, err)
	assert.Equal(t, ir.Ref("abc123"), ref)

	require.Len(t, *reqs, 1)
	r := (*reqs)[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/calendars/primary/events", r.Path)
	assert.Equal(t, "Bearer tok", r.Auth)
	assert.Equal(t, "Design review", r.Body["summary"])
	assert.Equal(t, map[string]any{"dateTime": "2026-03-10T15:00:00+08:00", "timeZone": "Asia/Hong_Kong"}, r.Body["start"])
	reminders := r.Body["reminders"].(map[string]any)
	assert.Equal(t, false, reminders["useDefault"])
	assert.Len(t, reminders["overrides"], 2)
}

func TestGoogleCalendarAllDayAndNotFound(t *testing.T) {
	srv, reqs := newRecorder(t, http.StatusGone, `{"error":"deleted"}`)
	cal, err := NewGoogleCalendar(context.Background(), staticClient(t), srv.URL, "team@example.com", "")
	require.NoError(t, err)

	day := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	err = cal.UpdateEvent(context.Background(), "ev/1", EventSpec{Title: "offsite", AllDay: true, Start: day, End: day.AddDate(0, 0, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var apiErr *googleapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusGone, apiErr.Code)

	r := (*reqs)[0]
	assert.Equal(t, http.MethodPatch, r.Method)
	assert.Equal(t, "/calendars/team@example.com/events/ev/1", r.Path)
	assert.Equal(t, map[string]any{"date": "2026-04-02"}, r.Body["start"])
	assert.Equal(t, map[string]any{"date": "2026-04-03"}, r.Body["end"])
}

func TestGoogleTasks(t *testing.T) {
	srv, reqs := newRecorder(t, http.StatusOK, `{"id":"T9"}`)
	tasks, err := NewGoogleTasks(context.Background(), staticClient(t), srv.URL, "")
	require.NoError(t, err)

	due := time.Date(2026, 2, 1, 17, 0, 0, 0, time.FixedZone("HKT", 8*3600))
	ref, err := tasks.CreateTask(context.Background(), TaskSpec{Title: "Renew passport", Notes: "n", Due: &due})
	require.NoError(t, err)
	assert.Equal(t, ir.Ref("T9"), ref)
	require.NoError(t, tasks.DeleteTask(context.Background(), ref))

	require.Len(t, *reqs, 2)
	assert.Equal(t, "/tasks/v1/lists/@default/tasks", (*reqs)[0].Path)
	assert.Equal(t, "2026-02-01T09:00:00Z", (*reqs)[0].Body["due"])
	assert.Equal(t, http.MethodDelete, (*reqs)[1].Method)
	assert.Equal(t, "/tasks/v1/lists/@default/tasks/T9", (*reqs)[1].Path)
}

func TestGoogleServerError(t *testing.T) {
	srv, _ := newRecorder(t, http.StatusInternalServerError, `backend exploded`)
	tasks, err := NewGoogleTasks(context.Background(), staticClient(t), srv.URL, "inbox")
	require.NoError(t, err)

	_, err = tasks.CreateTask(context.Background(), TaskSpec{Title: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, strings.Contains(err.Error(), "backend exploded"))
}

func TestRefreshTokenClient(t *testing.T) {
	var tokenCalls int
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	srv, reqs := newRecorder(t, http.StatusOK, `{"id":"e1"}`)
	client, err := NewHTTPClient(context.Background(), Credentials{
		RefreshToken: "r1",
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     tokenSrv.URL,
	}, 5*time.Second)
	require.NoError(t, err)

	cal, err := NewGoogleCalendar(context.Background(), client, srv.URL, "", "")
	require.NoError(t, err)
	_, err = cal.CreateEvent(context.Background(), EventSpec{Title: "x", Start: time.Now(), End: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, "Bearer fresh", (*reqs)[0].Auth)

	_, err = NewHTTPClient(context.Background(), Credentials{}, time.Second)
	assert.Error(t, err)
}
