// Package meet создаёт ссылки на видеовстречи для звонков в поддержку.
package meet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Scheduler создаёт встречу и возвращает ссылку для подключения.
type Scheduler interface {
	CreateMeeting(ctx context.Context, summary string, start time.Time, duration time.Duration, attendee string) (string, error)
}

// NoopScheduler используется, когда календарь не настроен, и возвращает пустую ссылку.
type NoopScheduler struct{}

// CreateMeeting ничего не создаёт.
func (NoopScheduler) CreateMeeting(context.Context, string, time.Time, time.Duration, string) (string, error) {
	return "", nil
}

// GoogleScheduler создаёт события в Google Calendar с конференцией Google Meet.
type GoogleScheduler struct {
	events     *calendar.EventsService
	calendarID string
}

// NewGoogleScheduler создаёт клиента календаря по файлу учётных данных сервисного аккаунта.
func NewGoogleScheduler(ctx context.Context, credentialsFile, calendarID string) (*GoogleScheduler, error) {
	srv, err := calendar.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(calendar.CalendarEventsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &GoogleScheduler{
		events:     srv.Events,
		calendarID: calendarID,
	}, nil
}

// CreateMeeting создаёт событие с конференцией и возвращает ссылку Google Meet.
func (g *GoogleScheduler) CreateMeeting(ctx context.Context, summary string, start time.Time, duration time.Duration, attendee string) (string, error) {
	event := &calendar.Event{
		Summary: summary,
		Start: &calendar.EventDateTime{
			DateTime: start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &calendar.EventDateTime{
			DateTime: start.Add(duration).UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: uuid.NewString(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		},
	}
	if attendee != "" {
		event.Attendees = []*calendar.EventAttendee{{Email: attendee}}
	}

	created, err := g.events.Insert(g.calendarID, event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}

	if created.HangoutLink != "" {
		return created.HangoutLink, nil
	}
	if created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri, nil
			}
		}
	}

	return "", errors.New("calendar event has no meet link")
}
