package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	// TokenURL and Endpoint override Google's defaults (tests, proxies).
	TokenURL string
	Endpoint string
	// RequestsPerSecond throttles calls from this instance.
	RequestsPerSecond float64
	Burst             int
}

type Google struct {
	oauth    *oauth2.Config
	limiter  *rate.Limiter
	endpoint string
}

func NewGoogle(cfg GoogleConfig) *Google {
	endpoint := googleoauth.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		endpoint: cfg.Endpoint,
	}
}

// RefreshCredentials exchanges the subject's stored refresh token for a
// fresh access token.
func (g *Google) RefreshCredentials(ctx context.Context, subject model.Subject) (Credentials, error) {
	if subject.CalendarRefreshToken == "" {
		return Credentials{}, fmt.Errorf("%w: subject %s has no google refresh token", ErrUnavailable, subject.ID)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return Credentials{}, err
	}
	tok, err := g.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: subject.CalendarRefreshToken}).Token()
	if err != nil {
		return Credentials{}, fmt.Errorf("refresh google token: %w", err)
	}
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = subject.CalendarRefreshToken
	}
	return Credentials{AccessToken: tok.AccessToken, RefreshToken: refresh, Expiry: tok.Expiry}, nil
}

func (g *Google) service(ctx context.Context, creds Credentials) (*gcal.Service, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrUnavailable)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer", Expiry: creds.Expiry})
	opts := []option.ClientOption{option.WithTokenSource(src)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return gcal.NewService(ctx, opts...)
}

func (g *Google) FetchBusyBlocks(ctx context.Context, subject model.Subject, window model.Interval, creds Credentials) ([]model.BusyBlock, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	svc, err := g.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	calID := calendarID(subject)
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.UTC().Format(time.RFC3339),
		TimeMax: window.End.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: calID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google freebusy: %w", err)
	}
	return busyFromFreeBusy(resp, calID, window)
}

func busyFromFreeBusy(resp *gcal.FreeBusyResponse, calID string, window model.Interval) ([]model.BusyBlock, error) {
	cal, ok := resp.Calendars[calID]
	if !ok {
		return nil, fmt.Errorf("google freebusy: calendar %q missing from response", calID)
	}
	if len(cal.Errors) > 0 {
		reasons := make([]string, 0, len(cal.Errors))
		for _, e := range cal.Errors {
			reasons = append(reasons, e.Reason)
		}
		return nil, fmt.Errorf("google freebusy: %s", strings.Join(reasons, ", "))
	}
	blocks := make([]model.BusyBlock, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("google freebusy: start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("google freebusy: end %q: %w", p.End, err)
		}
		iv := model.Interval{Start: start.UTC(), End: end.UTC()}
		if !iv.Valid() {
			continue
		}
		blocks = append(blocks, model.BusyBlock{Interval: iv, Origin: model.OriginExternal, Label: "Busy (Google Calendar)"})
	}
	return clip(blocks, window), nil
}

// PushReservation inserts the reservation with a deterministic event id, so a
// retried sync finds the event already there and treats that as success.
// Cancelled reservations are deleted; completed ones stay on the calendar.
func (g *Google) PushReservation(ctx context.Context, subject model.Subject, r model.Reservation, creds Credentials) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	svc, err := g.service(ctx, creds)
	if err != nil {
		return err
	}
	if r.Status == model.StatusCancelled {
		err = svc.Events.Delete(calendarID(subject), EventID(r.ID)).Context(ctx).Do()
		if isGoogleStatus(err, http.StatusNotFound, http.StatusGone) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("google events delete: %w", err)
		}
		return nil
	}
	_, err = svc.Events.Insert(calendarID(subject), reservationEvent(subject, r)).Context(ctx).Do()
	if isGoogleStatus(err, http.StatusConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("google events insert: %w", err)
	}
	return nil
}

func isGoogleStatus(err error, codes ...int) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.Code == c {
			return true
		}
	}
	return false
}

func reservationEvent(subject model.Subject, r model.Reservation) *gcal.Event {
	summary := "Booking"
	if r.CustomerName != "" {
		summary = "Booking: " + r.CustomerName
	}
	desc := strings.TrimSpace(strings.Join([]string{r.CustomerPhone, r.CustomerEmail, r.Notes}, "\n"))
	return &gcal.Event{
		Id:          EventID(r.ID),
		Summary:     summary,
		Description: desc,
		Start:       &gcal.EventDateTime{DateTime: r.Interval.Start.UTC().Format(time.RFC3339), TimeZone: subject.Timezone},
		End:         &gcal.EventDateTime{DateTime: r.Interval.End.UTC().Format(time.RFC3339), TimeZone: subject.Timezone},
	}
}

// EventID maps a reservation id onto Google's base32hex event id alphabet.
func EventID(reservationID string) string {
	return "detailbook" + strings.ToLower(strings.ReplaceAll(reservationID, "-", ""))
}

func calendarID(subject model.Subject) string {
	if subject.CalendarID == "" {
		return "primary"
	}
	return subject.CalendarID
}
