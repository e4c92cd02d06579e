package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/example/slotbot/internal/booking"
	"github.com/example/slotbot/internal/browser"
	"github.com/example/slotbot/internal/config"
	"github.com/example/slotbot/internal/db"
	"github.com/example/slotbot/internal/history"
	"github.com/example/slotbot/internal/log"
	"github.com/example/slotbot/internal/metrics"
	"github.com/example/slotbot/internal/migrate"
	"github.com/example/slotbot/internal/notify"
	"github.com/example/slotbot/internal/portal"
	"github.com/example/slotbot/internal/web"
)

const cookieMaxAge = 24 * time.Hour

func newRunCmd(opts *globalOptions) *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the booking loop until the booking cap is reached or the process is stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := uuid.New()
			cfg, err := opts.setup(runID.String())
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, runID, migrateUp)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

func run(ctx context.Context, cfg config.Config, runID uuid.UUID, migrateUp bool) error {
	l := log.WithComponent("run")

	initial, err := browser.ParseKind(cfg.Browser.Initial)
	if err != nil {
		return err
	}
	earliest, latest, err := cfg.Window()
	if err != nil {
		return err
	}

	pacer := booking.HumanPacer{}
	auth := &portal.Authenticator{
		Launcher: &browser.Launcher{
			Profiles: map[browser.Kind]browser.Profile{
				browser.Chrome: {ExecPath: cfg.Browser.Chrome.ExecPath, UserDataDir: cfg.Browser.Chrome.ProfileDir},
				browser.Edge:   {ExecPath: cfg.Browser.Edge.ExecPath, UserDataDir: cfg.Browser.Edge.ProfileDir},
			},
			Headless: cfg.Browser.Headless,
			Log:      log.WithComponent("browser"),
		},
		Credentials:  portal.Credentials{UserID: cfg.Credentials.UserID, Password: cfg.Credentials.Password},
		StartURL:     cfg.Portal.StartURL,
		BookingURL:   cfg.Portal.BookingURL,
		TestCategory: cfg.Portal.TestCategory,
		FirstCentre:  cfg.Centres[0],
		Pacer:        pacer,
		Log:          log.WithComponent("auth"),
	}
	if cfg.Cookies.Enabled() {
		store, err := browser.NewCookieStore(cfg.Cookies.Path, cfg.Cookies.Hash, cfg.Cookies.Block, cookieMaxAge)
		if err != nil {
			return err
		}
		auth.Cookies = store
	}

	scanner := &booking.Scanner{
		Calendar: portal.Calendar(),
		Window:   booking.Window{Earliest: earliest, Latest: latest},
		Pacer:    pacer,
		Log:      log.WithComponent("scanner"),
	}
	reserver := &booking.Reserver{
		Layout:    portal.Reserve(),
		Extractor: &portal.Extractor{Log: log.WithComponent("details")},
		Log:       log.WithComponent("reserver"),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	notifiers := notify.Webhooks(cfg.Notifications.DiscordWebhook, cfg.Notifications.ClientWebhook, log.WithComponent("notify"))
	if len(notifiers) == 0 {
		l.Warn().Msg("no webhook configured, bookings will only be logged")
	}

	srv := &web.Server{Status: recorder, Gatherer: reg, Log: log.WithComponent("web")}
	if cfg.DatabaseURL != "" {
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer d.Close()
		if migrateUp {
			if _, err := migrate.Up(ctx, d, log.WithComponent("migrate")); err != nil {
				return err
			}
		}
		repo := history.NewRepo(d)
		notifiers = append(notifiers, &history.Sink{Repo: repo, RunID: runID, Log: log.WithComponent("history")})
		srv.History = repo
		srv.Ping = d.Ping
	}
	if cfg.StatusAddr != "" {
		go func() {
			if err := web.Start(ctx, cfg.StatusAddr, srv.Routes(), log.WithComponent("web")); err != nil {
				l.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	o := &booking.Orchestrator{
		Centres:          cfg.Centres,
		BatchSize:        cfg.Booking.BatchSize,
		AttemptsPerBatch: cfg.Booking.AttemptsPerBatch,
		MaxBookings:      cfg.Booking.MaxBookings,
		Cooldown:         cfg.Cooldown(),
		Rotator:          booking.NewRotator(auth, initial, cfg.Browser.SessionBudget, log.WithComponent("rotator")),
		Scanner:          scanner,
		Reserver:         reserver,
		Manager:          &portal.Centres{Pacer: pacer, Log: log.WithComponent("centres")},
		Navigator:        &portal.Navigator{Calendar: scanner, Log: log.WithComponent("navigator")},
		Notifier:         notifiers,
		Observer:         recorder,
		Pacer:            pacer,
		Log:              log.WithComponent("orchestrator"),
	}

	l.Info().
		Int("centres", len(cfg.Centres)).
		Int("batch_size", cfg.Booking.BatchSize).
		Int("max_bookings", cfg.Booking.MaxBookings).
		Str("browser", cfg.Browser.Initial).
		Msg("starting booking loop")

	counters, err := o.Run(ctx)
	if errors.Is(err, context.Canceled) {
		l.Info().Int("bookings", counters.BookingsMade).Msg("stopped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("booking loop: %w", err)
	}
	l.Info().Int("bookings", counters.BookingsMade).Int("cycles", counters.Cycles).Msg("done")
	return nil
}
