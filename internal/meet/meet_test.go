package meet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func newTestScheduler(t *testing.T, h http.HandlerFunc) *GoogleScheduler {
	t.Helper()

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	srv, err := calendar.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)

	return &GoogleScheduler{events: srv.Events, calendarID: "primary"}
}

func TestGoogleSchedulerReturnsHangoutLink(t *testing.T) {
	g := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "1", r.URL.Query().Get("conferenceDataVersion"))

		var ev calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "hangoutsMeet", ev.ConferenceData.CreateRequest.ConferenceSolutionKey.Type)
		require.Len(t, ev.Attendees, 1)

		ev.HangoutLink = "https://meet.google.com/abc-defg-hij"
		_ = json.NewEncoder(w).Encode(ev)
	})

	link, err := g.CreateMeeting(context.Background(), "Support call", time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC), time.Hour, "investor@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", link)
}

func TestGoogleSchedulerFallsBackToEntryPoint(t *testing.T) {
	g := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(calendar.Event{
			ConferenceData: &calendar.ConferenceData{
				EntryPoints: []*calendar.EntryPoint{
					{EntryPointType: "phone", Uri: "tel:+1"},
					{EntryPointType: "video", Uri: "https://meet.google.com/xyz"},
				},
			},
		})
	})

	link, err := g.CreateMeeting(context.Background(), "Support call", time.Now(), time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/xyz", link)
}

func TestGoogleSchedulerError(t *testing.T) {
	g := newTestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
	})

	_, err := g.CreateMeeting(context.Background(), "Support call", time.Now(), time.Hour, "")
	assert.Error(t, err)
}

func TestNoopScheduler(t *testing.T) {
	link, err := NoopScheduler{}.CreateMeeting(context.Background(), "x", time.Now(), time.Hour, "")
	assert.NoError(t, err)
	assert.Empty(t, link)
}
