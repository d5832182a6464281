// Package calendar creates meeting events on the participants' Google calendars.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Provider is the oauth_accounts provider key for Google.
const Provider = "google"

type Event struct {
	RequestID   string // idempotency key for the conference request
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

type CreatedEvent struct {
	ID          string
	MeetingLink string
}

// Google creates events with a Meet link. Expired access tokens are refreshed from the stored grant.
type Google struct {
	oauth *oauth2.Config
}

func NewGoogle(clientID, clientSecret string) *Google {
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope},
		},
	}
}

// CreateEvent returns the event and the token actually used, which differs from the input after a refresh.
func (g *Google) CreateEvent(ctx context.Context, token *model.OAuthToken, ev Event) (*CreatedEvent, *model.OAuthToken, error) {
	src := g.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	})

	svc, err := gcal.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, nil, fmt.Errorf("calendar service: %w", err)
	}

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.Timezone},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: ev.Timezone},
		ConferenceData: &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             ev.RequestID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := svc.Events.Insert("primary", body).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("insert calendar event: %w", err)
	}

	used := *token
	if fresh, err := src.Token(); err == nil && fresh.AccessToken != token.AccessToken {
		used.AccessToken = fresh.AccessToken
		used.Expiry = fresh.Expiry
		if fresh.RefreshToken != "" {
			used.RefreshToken = fresh.RefreshToken
		}
	}

	return &CreatedEvent{ID: created.Id, MeetingLink: created.HangoutLink}, &used, nil
}
