package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasksapi "google.golang.org/api/tasks/v1"

	"github.com/roach88/recon/internal/ir"
)

// Default service roots. Request paths are resolved against them, so the
// Tasks root stops at the host.
const (
	DefaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3/"
	DefaultTasksBaseURL    = "https://tasks.googleapis.com/"
	GoogleTokenURL         = "https://oauth2.googleapis.com/token"
)

// Credentials authenticate the Google adapters. Either a static access
// token or a refresh token with client credentials.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// NewHTTPClient returns an http.Client that attaches OAuth2 bearer tokens,
// refreshing them when a refresh token is configured.
func NewHTTPClient(ctx context.Context, creds Credentials, timeout time.Duration) (*http.Client, error) {
	var ts oauth2.TokenSource
	switch {
	case creds.RefreshToken != "":
		tokenURL := creds.TokenURL
		if tokenURL == "" {
			tokenURL = GoogleTokenURL
		}
		cfg := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		}
		ts = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	case creds.AccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	default:
		return nil, errors.New("google credentials: need an access token or a refresh token")
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = timeout
	return client, nil
}

// apiError wraps a client library error, mapping 404 and 410 to
// ErrNotFound. The *googleapi.Error stays reachable through errors.As.
func apiError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func serviceOptions(client *http.Client, baseURL, fallback string) []option.ClientOption {
	if baseURL == "" {
		baseURL = fallback
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return []option.ClientOption{option.WithHTTPClient(client), option.WithEndpoint(baseURL)}
}

// GoogleCalendar implements Calendar over the Calendar v3 API.
type GoogleCalendar struct {
	events     *calendar.EventsService
	calendarID string
	timeZone   string
}

var _ Calendar = (*GoogleCalendar)(nil)

// NewGoogleCalendar targets calendarID ("primary" when empty). timeZone is
// an IANA name sent with timed events. client carries the credentials.
func NewGoogleCalendar(ctx context.Context, client *http.Client, baseURL, calendarID, timeZone string) (*GoogleCalendar, error) {
	svc, err := calendar.NewService(ctx, serviceOptions(client, baseURL, DefaultCalendarBaseURL)...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleCalendar{events: svc.Events, calendarID: calendarID, timeZone: timeZone}, nil
}

func (c *GoogleCalendar) event(spec EventSpec) *calendar.Event {
	ev := &calendar.Event{
		Summary:     spec.Title,
		Description: spec.Description,
		Location:    spec.Location,
	}
	if spec.AllDay {
		ev.Start = &calendar.EventDateTime{Date: spec.Start.Format("2006-01-02")}
		ev.End = &calendar.EventDateTime{Date: spec.End.Format("2006-01-02")}
	} else {
		ev.Start = &calendar.EventDateTime{DateTime: spec.Start.Format(time.RFC3339), TimeZone: c.timeZone}
		ev.End = &calendar.EventDateTime{DateTime: spec.End.Format(time.RFC3339), TimeZone: c.timeZone}
	}
	if len(spec.Reminders) > 0 {
		r := &calendar.EventReminders{ForceSendFields: []string{"UseDefault"}}
		for _, m := range spec.Reminders {
			r.Overrides = append(r.Overrides, &calendar.EventReminder{
				Method:          "popup",
				Minutes:         int64(m),
				ForceSendFields: []string{"Minutes"},
			})
		}
		ev.Reminders = r
	}
	return ev
}

func (c *GoogleCalendar) CreateEvent(ctx context.Context, spec EventSpec) (ir.Ref, error) {
	out, err := c.events.Insert(c.calendarID, c.event(spec)).Context(ctx).Do()
	if err != nil {
		return "", apiError("create event", err)
	}
	if out.Id == "" {
		return "", errors.New("create event: response has no id")
	}
	return ir.Ref(out.Id), nil
}

func (c *GoogleCalendar) UpdateEvent(ctx context.Context, ref ir.Ref, spec EventSpec) error {
	if _, err := c.events.Patch(c.calendarID, string(ref), c.event(spec)).Context(ctx).Do(); err != nil {
		return apiError("update event", err)
	}
	return nil
}

func (c *GoogleCalendar) DeleteEvent(ctx context.Context, ref ir.Ref) error {
	if err := c.events.Delete(c.calendarID, string(ref)).Context(ctx).Do(); err != nil {
		return apiError("delete event", err)
	}
	return nil
}

// GoogleTasks implements Tasks over the Tasks v1 API.
type GoogleTasks struct {
	tasks  *tasksapi.TasksService
	listID string
}

var _ Tasks = (*GoogleTasks)(nil)

// NewGoogleTasks targets listID ("@default" when empty).
func NewGoogleTasks(ctx context.Context, client *http.Client, baseURL, listID string) (*GoogleTasks, error) {
	svc, err := tasksapi.NewService(ctx, serviceOptions(client, baseURL, DefaultTasksBaseURL)...)
	if err != nil {
		return nil, fmt.Errorf("tasks service: %w", err)
	}
	if listID == "" {
		listID = "@default"
	}
	return &GoogleTasks{tasks: svc.Tasks, listID: listID}, nil
}

func taskPayload(spec TaskSpec) *tasksapi.Task {
	t := &tasksapi.Task{Title: spec.Title, Notes: spec.Notes}
	if spec.Due != nil {
		t.Due = spec.Due.UTC().Format(time.RFC3339)
	}
	return t
}

func (t *GoogleTasks) CreateTask(ctx context.Context, spec TaskSpec) (ir.Ref, error) {
	out, err := t.tasks.Insert(t.listID, taskPayload(spec)).Context(ctx).Do()
	if err != nil {
		return "", apiError("create task", err)
	}
	if out.Id == "" {
		return "", errors.New("create task: response has no id")
	}
	return ir.Ref(out.Id), nil
}

func (t *GoogleTasks) UpdateTask(ctx context.Context, ref ir.Ref, spec TaskSpec) error {
	if _, err := t.tasks.Patch(t.listID, string(ref), taskPayload(spec)).Context(ctx).Do(); err != nil {
		return apiError("update task", err)
	}
	return nil
}

func (t *GoogleTasks) DeleteTask(ctx context.Context, ref ir.Ref) error {
	if err := t.tasks.Delete(t.listID, string(ref)).Context(ctx).Do(); err != nil {
		return apiError("delete task", err)
	}
	return nil
}
