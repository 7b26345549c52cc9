package calendar

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
)

type CalDAVConfig struct {
	Endpoint   string
	Username   string
	Password   string
	HTTPClient *http.Client
}

// CalDAV reads busy time with a calendar-query REPORT and writes each
// reservation as its own .ics object. Subject.CalendarID is the calendar
// collection path.
type CalDAV struct {
	client *caldav.Client
}

func NewCalDAV(cfg CalDAVConfig) (*CalDAV, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	var hc webdav.HTTPClient = httpClient
	if cfg.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password)
	}
	client, err := caldav.NewClient(hc, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}
	return &CalDAV{client: client}, nil
}

// RefreshCredentials is a no-op: CalDAV uses the static basic-auth account.
func (c *CalDAV) RefreshCredentials(context.Context, model.Subject) (Credentials, error) {
	return Credentials{}, nil
}

func (c *CalDAV) FetchBusyBlocks(ctx context.Context, subject model.Subject, window model.Interval, _ Credentials) ([]model.BusyBlock, error) {
	if subject.CalendarID == "" {
		return nil, fmt.Errorf("%w: subject %s has no caldav collection", ErrUnavailable, subject.ID)
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{
				Name:  "VEVENT",
				Props: []string{"SUMMARY", "DTSTART", "DTEND", "DURATION", "STATUS", "TRANSP"},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: window.Start.UTC(),
				End:   window.End.UTC(),
			}},
		},
	}
	objs, err := c.client.QueryCalendar(ctx, subject.CalendarID, query)
	if err != nil {
		return nil, fmt.Errorf("caldav query: %w", err)
	}
	loc, err := subject.Location()
	if err != nil {
		loc = time.UTC
	}
	var blocks []model.BusyBlock
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		blocks = append(blocks, busyFromICal(obj.Data, loc)...)
	}
	return clip(blocks, window), nil
}

// busyFromICal turns VEVENTs into busy blocks, skipping transparent and
// cancelled events. Floating times are read in loc.
func busyFromICal(cal *ical.Calendar, loc *time.Location) []model.BusyBlock {
	var out []model.BusyBlock
	for _, ev := range cal.Events() {
		if prop := ev.Props.Get(ical.PropTransparency); prop != nil && strings.EqualFold(prop.Value, "TRANSPARENT") {
			continue
		}
		if prop := ev.Props.Get(ical.PropStatus); prop != nil && strings.EqualFold(prop.Value, "CANCELLED") {
			continue
		}
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			continue
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil || !start.Before(end) {
			continue
		}
		label := "Busy (CalDAV)"
		if prop := ev.Props.Get(ical.PropSummary); prop != nil && prop.Value != "" {
			label = prop.Value
		}
		out = append(out, model.BusyBlock{
			Interval: model.Interval{Start: start.UTC(), End: end.UTC()},
			Origin:   model.OriginExternal,
			Label:    label,
		})
	}
	return out
}

func (c *CalDAV) PushReservation(ctx context.Context, subject model.Subject, r model.Reservation, _ Credentials) error {
	if subject.CalendarID == "" {
		return fmt.Errorf("%w: subject %s has no caldav collection", ErrUnavailable, subject.ID)
	}
	objPath := path.Join(subject.CalendarID, r.ID+".ics")
	if _, err := c.client.PutCalendarObject(ctx, objPath, reservationICal(r, time.Now().UTC())); err != nil {
		return fmt.Errorf("caldav put %s: %w", objPath, err)
	}
	return nil
}

func reservationICal(r model.Reservation, stamp time.Time) *ical.Calendar {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, r.ID)
	ev.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ev.Props.SetDateTime(ical.PropDateTimeStart, r.Interval.Start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, r.Interval.End.UTC())
	summary := "Booking"
	if r.CustomerName != "" {
		summary = "Booking: " + r.CustomerName
	}
	ev.Props.SetText(ical.PropSummary, summary)
	if r.Notes != "" {
		ev.Props.SetText(ical.PropDescription, r.Notes)
	}
	if r.Status == model.StatusCancelled {
		ev.Props.SetText(ical.PropStatus, "CANCELLED")
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//detailbook//booking-service//EN")
	cal.Children = append(cal.Children, ev.Component)
	return cal
}
