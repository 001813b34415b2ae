package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"calreport/internal/apperr"
	"calreport/internal/config"
	"calreport/internal/metrics"
	"calreport/internal/pipeline"
	"calreport/internal/source"
	"calreport/internal/window"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		attrs := []any{"error", err}
		if kind := apperr.Kind(err); kind != nil {
			attrs = append(attrs, "kind", kind.Error())
		}
		slog.Error("Application failed", attrs...)
		stop()
		os.Exit(apperr.ExitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "calreport",
		Usage: "Report time booked in a calendar as CSV, per event or per creator.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start_date", Aliases: []string{"s"}, Usage: "Start of the range, YYYY-MM-DD (required)"},
			&cli.StringFlag{Name: "end_date", Aliases: []string{"e"}, Usage: "End of the range, YYYY-MM-DD (default: now)"},
			&cli.StringFlag{Name: "output_file", Aliases: []string{"f"}, Usage: "Output CSV path (default: from_<start>_to_<end>_<calendar>.csv)"},
			&cli.StringFlag{Name: "calendar", Aliases: []string{"c"}, Usage: "Calendar alias (default: default_calendar from the config)"},
			&cli.BoolFlag{Name: "by_user", Aliases: []string{"b"}, Usage: "Aggregate hours by event creator"},
			&cli.StringFlag{Name: "config", Usage: "Config file (.yaml, .yml or .toml)"},
			&cli.StringFlag{Name: "metrics_file", Usage: "Write Prometheus textfile metrics to this path"},
			&cli.StringFlag{Name: "log_level", Value: "info", EnvVars: []string{"LOG_LEVEL"}, Usage: "debug, info, warn or error"},
		},
		Action: reportAction,
		Commands: []*cli.Command{
			authCommand(),
			calendarsCommand(),
		},
		OnUsageError: func(c *cli.Context, err error, isSubcommand bool) error {
			return fmt.Errorf("%w: %w", apperr.ErrInvalidArgument, err)
		},
	}
}

func reportAction(c *cli.Context) error {
	logger := setupLogger(c.String("log_level"))

	w, err := window.Parse(c.String("start_date"), c.String("end_date"), time.Now())
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	alias := c.String("calendar")
	if alias == "" {
		alias = cfg.DefaultCalendar
	}

	rec := metrics.New()
	client := source.NewClient(logger, cfg.Calendars, newFactory(logger, cfg))
	res, err := pipeline.NewReporter(logger, client, rec).Run(c.Context, pipeline.Request{
		Alias:      alias,
		Window:     w,
		ByUser:     c.Bool("by_user"),
		OutputFile: c.String("output_file"),
	})
	if err != nil {
		return err
	}

	if path := c.String("metrics_file"); path != "" {
		if err := rec.WriteTextfile(path); err != nil {
			return err
		}
		logger.Debug("Metrics written.", "file", path)
	}

	fmt.Fprintln(c.App.Writer, res.Summary())
	return nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
