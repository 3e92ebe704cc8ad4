package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"schedai/internal/models"
)

const (
	credentialsFile = "credentials.json"

	// DefaultCalendarID addresses the signed-in account's main calendar.
	DefaultCalendarID = "primary"

	maxListResults = 250
)

// oauthScopes grants event read/write and calendar discovery.
var oauthScopes = []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope}

// UpstreamError reports a Google Calendar API error response.
type UpstreamError struct {
	Code    int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("google calendar: %d %s", e.Code, e.Message)
}

// CalendarClient is an authenticated session against one Google calendar.
// It is created once by the application and passed to whatever needs it.
type CalendarClient struct {
	service    *calendar.Service
	logger     *slog.Logger
	calendarID string
}

// NewClient creates a Google Calendar session for accountName.
// It loads the OAuth token saved by the auth command from token-<account>.json.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName, calendarID string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := TokenFile(accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return NewClientFromService(service, logger, calendarID), nil
}

// NewClientFromService wraps an existing calendar service.
func NewClientFromService(service *calendar.Service, logger *slog.Logger, calendarID string) *CalendarClient {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarClient{service: service, logger: logger, calendarID: calendarID}
}

// ListEvents returns timed events overlapping [timeMin, timeMax], ordered by start.
func (c *CalendarClient) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	c.logger.Debug("Fetching events", "calendarID", c.calendarID, "timeMin", timeMin, "timeMax", timeMax)

	call := c.service.Events.List(c.calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(timeMin.Format(time.RFC3339)).
		OrderBy("startTime").
		MaxResults(maxListResults)
	if !timeMax.IsZero() {
		call = call.TimeMax(timeMax.Format(time.RFC3339))
	}

	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", wrapAPIError(err))
	}

	c.logger.Info("Fetched events from Google Calendar", "count", len(events.Items), "calendarID", c.calendarID)
	return toInternalEvents(events.Items), nil
}

// CreateEvent inserts event into the calendar and returns the stored copy.
func (c *CalendarClient) CreateEvent(ctx context.Context, event models.CalendarEvent) (models.CalendarEvent, error) {
	created, err := c.service.Events.Insert(c.calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return models.CalendarEvent{}, fmt.Errorf("failed to create event %q: %w", event.Summary, wrapAPIError(err))
	}
	c.logger.Info("Created Google Calendar event", "summary", created.Summary, "id", created.Id)
	return toInternalEvent(created), nil
}

// DiscoverCalendars lists the calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverCalendars(ctx context.Context) ([]string, error) {
	list, err := c.service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", wrapAPIError(err))
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}

func toGoogleEvent(e models.CalendarEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       &calendar.EventDateTime{DateTime: e.Start.DateTime, TimeZone: e.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: e.End.DateTime, TimeZone: e.End.TimeZone},
	}
}

// toInternalEvents converts Google Calendar events, skipping all-day events.
func toInternalEvents(items []*calendar.Event) []models.CalendarEvent {
	out := make([]models.CalendarEvent, 0, len(items))
	for _, item := range items {
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}
		out = append(out, toInternalEvent(item))
	}
	return out
}

func toInternalEvent(item *calendar.Event) models.CalendarEvent {
	ev := models.CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		HTMLLink:    item.HtmlLink,
	}
	if item.Start != nil {
		ev.Start = models.EventTime{DateTime: item.Start.DateTime, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		ev.End = models.EventTime{DateTime: item.End.DateTime, TimeZone: item.End.TimeZone}
	}
	return ev
}

func wrapAPIError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &UpstreamError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes explicit client credentials over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       oauthScopes,
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the working directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, oauthScopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return config, nil
}

// TokenFromWeb exchanges an authorization code for a token.
func TokenFromWeb(ctx context.Context, config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(ctx, authCode)
}

// TokenFile is the file the token of accountName is stored in.
func TokenFile(accountName string) string {
	return fmt.Sprintf("token-%s.json", accountName)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// GetTokenAccounts lists the accounts with a saved token in dir.
func GetTokenAccounts(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}
