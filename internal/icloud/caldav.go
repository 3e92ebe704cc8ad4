package icloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"schedai/internal/models"
)

const (
	ICloudCalDAVEndpoint = "https://caldav.icloud.com/"

	productID = "-//schedai//EN"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "schedai/1.0")
	return t.Transport.RoundTrip(req)
}

// CalDAVClient is a session against one CalDAV calendar (iCloud by default).
type CalDAVClient struct {
	caldavClient *caldav.Client
	logger       *slog.Logger
	calendarPath string
	loc          *time.Location
}

// NewClient discovers calendarName on the CalDAV server at endpoint and
// returns a session bound to it. An empty endpoint selects iCloud.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string, loc *time.Location) (*CalDAVClient, error) {
	if endpoint == "" {
		endpoint = ICloudCalDAVEndpoint
	}
	transport := &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 30 * time.Second}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := newClient(caldavClient, logger, "", loc)

	c.logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	c.logger.Info("Found CalDAV calendar", "path", calendarPath)

	return c, nil
}

func newClient(cc *caldav.Client, logger *slog.Logger, calendarPath string, loc *time.Location) *CalDAVClient {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalDAVClient{caldavClient: cc, logger: logger, calendarPath: calendarPath, loc: loc}
}

// CreateEvent stores event as a new calendar object with a fresh UID.
func (c *CalDAVClient) CreateEvent(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error) {
	uid := GenerateUID()
	cal, err := c.toICal(uid, event)
	if err != nil {
		return models.CalendarEvent{}, err
	}

	eventPath := path.Join(c.calendarPath, uid+".ics")
	if _, err := c.caldavClient.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return models.CalendarEvent{}, fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	c.logger.Info("Created CalDAV event", "summary", event.Summary, "uid", uid)
	created := event
	created.ID = uid
	return created, nil
}

// ListEvents returns events overlapping [timeMin, timeMax].
func (c *CalDAVClient) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompEvent, Start: timeMin, End: timeMax}},
		},
	}

	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query CalDAV calendar: %w", err)
	}

	var events []models.CalendarEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			converted, err := c.fromICal(ev.Component)
			if err != nil {
				c.logger.Debug("Skipping CalDAV event", "path", obj.Path, "error", err)
				continue
			}
			events = append(events, converted)
		}
	}
	c.logger.Info("Fetched events from CalDAV", "count", len(events))
	return events, nil
}

// toICal converts a calendar payload to a VCALENDAR carrying one VEVENT.
func (c *CalDAVClient) toICal(uid string, event models.CalendarEvent) (*ical.Calendar, error) {
	start, err := event.Start.Time()
	if err != nil {
		return nil, fmt.Errorf("invalid start %q: %w", event.Start.DateTime, err)
	}
	end, err := event.End.Time()
	if err != nil {
		return nil, fmt.Errorf("invalid end %q: %w", event.End.DateTime, err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.In(c.loc))
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end.In(c.loc))
	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal, nil
}

// fromICal converts a timed VEVENT back to the calendar payload.
func (c *CalDAVClient) fromICal(ve *ical.Component) (models.CalendarEvent, error) {
	start, err := ve.Props.DateTime(ical.PropDateTimeStart, c.loc)
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("invalid DTSTART: %w", err)
	}
	if start.IsZero() {
		return models.CalendarEvent{}, fmt.Errorf("missing DTSTART")
	}
	end, err := ve.Props.DateTime(ical.PropDateTimeEnd, c.loc)
	if err != nil || end.IsZero() {
		end = start
	}
	uid, _ := ve.Props.Text(ical.PropUID)
	summary, _ := ve.Props.Text(ical.PropSummary)
	description, _ := ve.Props.Text(ical.PropDescription)
	location, _ := ve.Props.Text(ical.PropLocation)

	return models.CalendarEvent{
		ID:          uid,
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       models.NewEventTime(start, c.loc),
		End:         models.NewEventTime(end, c.loc),
	}, nil
}

// findCalendar discovers the user's calendars and returns the path of the one with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if strings.EqualFold(cal.Name, name) {
			return cal.Path, nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
