package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"schedai/internal/agent"
	"schedai/internal/config"
	"schedai/internal/extract"
	"schedai/internal/gemini"
	"schedai/internal/google"
	"schedai/internal/httpapi"
	"schedai/internal/icloud"
	"schedai/internal/logging"
	"schedai/internal/models"
	"schedai/internal/syncer"
	"schedai/internal/tasks"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "schedai",
		Usage: "Turn free text into calendar events and let an assistant schedule your tasks.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", EnvVars: []string{"SCHEDAI_CONFIG"}, Usage: "Optional YAML config file."},
		},
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
			parseCommand(),
			extractCommand(),
			tasksCommand(),
			scheduleCommand(),
			suggestCommand(),
			syncCommand(),
			serveCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err, "kind", logging.ErrorKind(err))
		os.Exit(1)
	}
}

// runtime holds the configuration and logger shared by a command.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRuntime(c *cli.Context) (*runtime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &runtime{cfg: cfg, logger: logging.New(os.Stderr, cfg.LogLevel)}, nil
}

func (r *runtime) generator() (agent.Generator, error) {
	if r.cfg.Gemini.UseMock {
		r.logger.Info("Using the offline demo generator.")
		return demoGenerator{}, nil
	}
	client, err := gemini.NewClient(r.logger, r.cfg.Gemini.APIKey,
		gemini.WithEndpoint(r.cfg.Gemini.Endpoint),
		gemini.WithModel(r.cfg.Gemini.Model),
		gemini.WithTimeout(r.cfg.Gemini.Timeout),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *runtime) extractor() (*extract.Extractor, error) {
	gen, err := r.generator()
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	return extract.NewExtractor(r.logger, gen), nil
}

// calendarBackend is what both the agent and the syncer write to.
type calendarBackend interface {
	agent.Calendar
	syncer.Calendar
}

func (r *runtime) calendar(ctx context.Context) (calendarBackend, error) {
	switch r.cfg.CalendarBackend {
	case config.BackendICloud:
		client, err := icloud.NewClient(ctx, r.logger, icloud.ICloudCalDAVEndpoint,
			r.cfg.ICloud.Username, r.cfg.ICloud.Password, r.cfg.ICloud.CalendarName, r.cfg.Location())
		if err != nil {
			return nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		return client, nil
	default:
		client, err := google.NewClient(ctx, r.logger, r.cfg.Google.ClientID, r.cfg.Google.ClientSecret,
			r.cfg.Google.Account, r.cfg.Google.CalendarID)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client for account %s (did you run auth?): %w", r.cfg.Google.Account, err)
		}
		return client, nil
	}
}

// store opens the configured task store. The returned func releases it.
func (r *runtime) store(ctx context.Context) (tasks.Store, func(), error) {
	if r.cfg.TasksBackend == config.TasksPostgres {
		st, err := tasks.NewPostgresStore(ctx, r.cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil
	}
	st, err := tasks.NewFileStore(r.logger, r.cfg.TasksFile)
	if err != nil {
		return nil, nil, err
	}
	return st, func() {}, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := logging.New(os.Stderr, "info")
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			if accountName == "" {
				accountName = "default"
			}
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List authenticated Google accounts and the calendars of the configured one.",
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			accounts, err := google.GetTokenAccounts(".")
			if err != nil {
				return fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
			}
			if len(accounts) == 0 {
				return fmt.Errorf("no google accounts found. Run the 'auth' command first")
			}
			client, err := google.NewClient(c.Context, rt.logger, rt.cfg.Google.ClientID, rt.cfg.Google.ClientSecret,
				rt.cfg.Google.Account, rt.cfg.Google.CalendarID)
			if err != nil {
				return err
			}
			calendars, err := client.DiscoverCalendars(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list calendars: %w", err)
			}
			return printJSON(c.App.Writer, map[string][]string{"accounts": accounts, "calendars": calendars})
		},
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Extract one event from a short phrase, e.g. \"rapat tim besok pagi\".",
		ArgsUsage: "<phrase>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "Current date (YYYY-MM-DD) used to resolve relative expressions."},
			&cli.StringFlag{Name: "time", Usage: "Current time (HH:mm) used to resolve relative expressions."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			ex, err := rt.extractor()
			if err != nil {
				return err
			}
			event, err := ex.ExtractOne(c.Context, strings.Join(c.Args().Slice(), " "), rt.nowContext(c))
			if err != nil {
				return fmt.Errorf("failed to extract event: %w", err)
			}
			return printJSON(c.App.Writer, event)
		},
	}
}

func (r *runtime) nowContext(c *cli.Context) extract.NowContext {
	now := extract.NowContextFrom(time.Now().In(r.cfg.Location()))
	if v := c.String("date"); v != "" {
		now.Date = v
	}
	if v := c.String("time"); v != "" {
		now.Time = v
	}
	return now
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Extract every event from a document's text (reads stdin when no file is given).",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instruction", Usage: "Narrow the extraction, e.g. \"only class III RPLK\"."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			ex, err := rt.extractor()
			if err != nil {
				return err
			}

			var data []byte
			if path := c.Args().First(); path != "" {
				data, err = os.ReadFile(path)
			} else {
				data, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			text, placeholder := extract.PrepareDocument(string(data), rt.cfg.MinDocumentLength)
			if placeholder {
				rt.logger.Warn("Document text too short, using the placeholder document.", "min_length", rt.cfg.MinDocumentLength)
			}
			result, err := ex.ExtractMany(c.Context, text, c.String("instruction"))
			if err != nil {
				return fmt.Errorf("failed to extract events: %w", err)
			}
			rt.logger.Info("Extraction finished.", "events", len(result.Events), "rejected", len(result.Rejected))
			return printJSON(c.App.Writer, result)
		},
	}
}

func tasksCommand() *cli.Command {
	userFlag := &cli.StringFlag{Name: "user", Required: true, Usage: "Owner of the tasks."}
	return &cli.Command{
		Name:  "tasks",
		Usage: "Manage the pending tasks the scheduler works on.",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Create a task from a phrase.",
				ArgsUsage: "<phrase>",
				Flags:     []cli.Flag{userFlag},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					ex, err := rt.extractor()
					if err != nil {
						return err
					}
					st, closeStore, err := rt.store(c.Context)
					if err != nil {
						return err
					}
					defer closeStore()

					event, err := ex.ExtractOne(c.Context, strings.Join(c.Args().Slice(), " "), extract.NowContextFrom(time.Now().In(rt.cfg.Location())))
					if err != nil {
						return fmt.Errorf("failed to extract event: %w", err)
					}
					data, err := models.TaskFromEvent(c.String("user"), event, rt.cfg.Location())
					if err != nil {
						return err
					}
					task, err := st.CreateTask(c.Context, data)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, task)
				},
			},
			{
				Name:  "list",
				Usage: "List a user's tasks.",
				Flags: []cli.Flag{userFlag, &cli.BoolFlag{Name: "pending", Usage: "Only incomplete tasks."}},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					st, closeStore, err := rt.store(c.Context)
					if err != nil {
						return err
					}
					defer closeStore()

					var list []models.Task
					if c.Bool("pending") {
						list, err = st.PendingTasks(c.Context, c.String("user"))
					} else {
						list, err = st.ListTasks(c.Context, c.String("user"))
					}
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, list)
				},
			},
			{
				Name:      "update",
				Usage:     "Edit a task; only the given flags change.",
				ArgsUsage: "<task id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "start", Usage: "New start, \"YYYY-MM-DD HH:mm\" in the configured time zone."},
					&cli.StringFlag{Name: "end", Usage: "New end, \"YYYY-MM-DD HH:mm\" in the configured time zone."},
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "location"},
					&cli.BoolFlag{Name: "completed"},
				},
				Action: func(c *cli.Context) error {
					rt, err := newRuntime(c)
					if err != nil {
						return err
					}
					data, err := updateFromFlags(c, rt.cfg.Location())
					if err != nil {
						return err
					}
					st, closeStore, err := rt.store(c.Context)
					if err != nil {
						return err
					}
					defer closeStore()

					task, err := st.UpdateTask(c.Context, c.Args().First(), data)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, task)
				},
			},
			{
				Name:      "done",
				Usage:     "Mark a task as completed.",
				ArgsUsage: "<task id>",
				Action: func(c *cli.Context) error {
					return withStore(c, func(st tasks.Store) error {
						task, err := st.SetCompleted(c.Context, c.Args().First(), true)
						if err != nil {
							return err
						}
						return printJSON(c.App.Writer, task)
					})
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a task.",
				ArgsUsage: "<task id>",
				Action: func(c *cli.Context) error {
					return withStore(c, func(st tasks.Store) error {
						return st.DeleteTask(c.Context, c.Args().First())
					})
				},
			},
		},
	}
}

// updateFromFlags builds a partial edit from the flags that were set.
func updateFromFlags(c *cli.Context, loc *time.Location) (models.UpdateTaskData, error) {
	var data models.UpdateTaskData
	str := func(name string) *string {
		if !c.IsSet(name) {
			return nil
		}
		v := c.String(name)
		return &v
	}
	data.Title = str("title")
	data.Description = str("description")
	data.Category = str("category")
	data.Location = str("location")
	for name, dst := range map[string]**time.Time{"start": &data.StartTime, "end": &data.EndTime} {
		if !c.IsSet(name) {
			continue
		}
		date, clock, _ := strings.Cut(c.String(name), " ")
		t, err := models.ParseDateTime(date, clock, loc)
		if err != nil {
			return models.UpdateTaskData{}, fmt.Errorf("--%s: %w", name, err)
		}
		*dst = &t
	}
	if c.IsSet("completed") {
		v := c.Bool("completed")
		data.IsCompleted = &v
	}
	return data, nil
}

func withStore(c *cli.Context, fn func(tasks.Store) error) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	st, closeStore, err := rt.store(c.Context)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(st)
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Plan a user's pending tasks and place them on the calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "User whose tasks are scheduled."},
			&cli.StringFlag{Name: "cron", Usage: "Run on this cron schedule instead of once (overrides SCHEDAI_SCHEDULE_CRON)."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			gen, err := rt.generator()
			if err != nil {
				return fmt.Errorf("failed to create generation client: %w", err)
			}
			cal, err := rt.calendar(c.Context)
			if err != nil {
				return err
			}
			st, closeStore, err := rt.store(c.Context)
			if err != nil {
				return err
			}
			defer closeStore()

			a := agent.NewAgent(rt.logger, gen, cal, rt.cfg.Location())
			userID := c.String("user")
			run := func(ctx context.Context) error {
				report, err := a.RunForUser(ctx, userID, st, rt.cfg.Horizon())
				if errors.Is(err, agent.ErrNoTasks) {
					rt.logger.Info("Nothing to schedule.", "user_id", userID)
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(c.App.Writer, report)
			}

			cronExpr := c.String("cron")
			if cronExpr == "" {
				cronExpr = rt.cfg.ScheduleCron
			}
			if cronExpr == "" {
				rt.logger.Info("Running a single scheduling pass.")
				if err := run(c.Context); err != nil {
					return fmt.Errorf("scheduling pass failed: %w", err)
				}
				return nil
			}

			sched := cron.New()
			if _, err := sched.AddFunc(cronExpr, func() {
				if err := run(c.Context); err != nil {
					rt.logger.Error("Scheduling pass failed", "error", err, "kind", logging.ErrorKind(err))
				}
			}); err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", cronExpr, err)
			}
			rt.logger.Info("Starting scheduler.", "cron", cronExpr)
			sched.Start()
			<-c.Context.Done()
			<-sched.Stop().Done()
			return nil
		},
	}
}

func suggestCommand() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Suggest a concise daily schedule for a user's pending tasks without touching the calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "User whose tasks are considered."},
			&cli.StringFlag{Name: "preferences", Usage: "Free-text preferences, e.g. \"deep work in the morning\"."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			gen, err := rt.generator()
			if err != nil {
				return fmt.Errorf("failed to create generation client: %w", err)
			}
			st, closeStore, err := rt.store(c.Context)
			if err != nil {
				return err
			}
			defer closeStore()

			a := agent.NewAgent(rt.logger, gen, nil, rt.cfg.Location())
			text, err := a.SuggestForUser(c.Context, c.String("user"), st, c.String("preferences"))
			if errors.Is(err, agent.ErrNoTasks) {
				rt.logger.Info("Nothing to suggest.", "user_id", c.String("user"))
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to suggest a schedule: %w", err)
			}
			fmt.Fprintln(c.App.Writer, text)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Push a user's upcoming tasks into the calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true, Usage: "User whose tasks are synced."},
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Sync tasks starting within the next N days."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be synced without making changes."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Run sync every N seconds."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			logger := rt.logger

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			cal, err := rt.calendar(c.Context)
			if err != nil {
				return err
			}
			st, closeStore, err := rt.store(c.Context)
			if err != nil {
				return err
			}
			defer closeStore()

			s, err := syncer.NewSyncer(logger, st, cal, rt.cfg.SyncStateFile, c.Bool("dry-run"), rt.cfg.Location())
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}
			userID, days := c.String("user"), c.Int("days")

			// --watch flag takes precedence
			if c.IsSet("watch") {
				interval := time.Duration(c.Int("watch")) * time.Second
				logger.Info("Starting watcher.", "interval", interval)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					if _, err := s.Sync(c.Context, userID, days); err != nil {
						logger.Error("Sync cycle failed", "error", err)
					}
					select {
					case <-c.Context.Done():
						return nil
					case <-ticker.C:
					}
				}
			}

			logger.Info("Running a single sync cycle.")
			res, err := s.Sync(c.Context, userID, days)
			if err != nil {
				return fmt.Errorf("single sync cycle failed: %w", err)
			}
			return printJSON(c.App.Writer, res)
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Listen address (overrides SCHEDAI_LISTEN)."},
			&cli.BoolFlag{Name: "no-calendar", Usage: "Serve extraction only, without scheduling and sync."},
		},
		Action: func(c *cli.Context) error {
			rt, err := newRuntime(c)
			if err != nil {
				return err
			}
			gen, err := rt.generator()
			if err != nil {
				return fmt.Errorf("failed to create generation client: %w", err)
			}
			st, closeStore, err := rt.store(c.Context)
			if err != nil {
				return err
			}
			defer closeStore()

			deps := httpapi.Deps{
				Logger:            rt.logger,
				Extractor:         extract.NewExtractor(rt.logger, gen),
				Suggester:         agent.NewAgent(rt.logger, gen, nil, rt.cfg.Location()),
				Tasks:             st,
				Location:          rt.cfg.Location(),
				Horizon:           rt.cfg.Horizon(),
				MinDocumentLength: rt.cfg.MinDocumentLength,
			}
			if !c.Bool("no-calendar") {
				cal, err := rt.calendar(c.Context)
				if err != nil {
					return err
				}
				s, err := syncer.NewSyncer(rt.logger, st, cal, rt.cfg.SyncStateFile, false, rt.cfg.Location())
				if err != nil {
					return fmt.Errorf("failed to create syncer: %w", err)
				}
				a := agent.NewAgent(rt.logger, gen, cal, rt.cfg.Location())
				s.ShareLocks(a.Locks())
				deps.Scheduler = a
				deps.Suggester = a
				deps.Syncer = s
			}

			addr := rt.cfg.Listen
			if v := c.String("listen"); v != "" {
				addr = v
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(deps),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("HTTP server started.", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			case <-c.Context.Done():
			}

			rt.logger.Info("Shutting down HTTP server.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
