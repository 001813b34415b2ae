package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"calreport/internal/auth"
	"calreport/internal/caldav"
	"calreport/internal/config"
	"calreport/internal/google"
	"calreport/internal/ics"
	"calreport/internal/source"
)

// newFactory wires each calendar type to its backend. Google credentials are
// only acquired when a Google calendar is actually used.
func newFactory(logger *slog.Logger, cfg *config.Config) source.Factory {
	return source.Factory{
		config.TypeGoogle: func(ctx context.Context, cal config.Calendar) (source.Source, error) {
			return newGoogleClient(ctx, logger, cfg)
		},
		config.TypeCalDAV: func(ctx context.Context, cal config.Calendar) (source.Source, error) {
			password, err := cal.GetPassword()
			if err != nil {
				return nil, err
			}
			return caldav.NewClient(logger, cal.URL, cal.Username, password, nil)
		},
		config.TypeICS: func(ctx context.Context, cal config.Calendar) (source.Source, error) {
			return ics.NewClient(logger, nil), nil
		},
	}
}

func newGoogleClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*google.CalendarClient, error) {
	httpClient, err := googleHTTPClient(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	return google.NewClient(ctx, logger, httpClient)
}

// googleHTTPClient returns an authorized HTTP client. GOOGLE_ACCESS_TOKEN,
// when set, is used as a pre-issued bearer token and skips the OAuth flow.
func googleHTTPClient(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*http.Client, error) {
	if bearer := os.Getenv("GOOGLE_ACCESS_TOKEN"); bearer != "" {
		tok, err := auth.StaticProvider{Token: &oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}}.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		logger.Debug("Using pre-issued access token.")
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
	}

	provider, oauthConfig, closeStore, err := newOAuthProvider(logger, cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	tok, err := provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return oauthConfig.Client(ctx, tok), nil
}

func newOAuthProvider(logger *slog.Logger, cfg *config.Config) (*auth.OAuthProvider, *oauth2.Config, func(), error) {
	oauthConfig, err := google.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.ClientSecretFile)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := auth.OpenStore(cfg.Token)
	if err != nil {
		return nil, nil, nil, err
	}
	closeStore := func() {
		if c, ok := store.(io.Closer); ok {
			c.Close()
		}
	}

	prompt := auth.ConsolePrompter{In: os.Stdin, Out: os.Stdout}
	return auth.NewOAuthProvider(logger, oauthConfig, store, prompt), oauthConfig, closeStore, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account and cache the API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log_level"))
			logger.Info("Starting Google authentication flow.")

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			provider, _, closeStore, err := newOAuthProvider(logger, cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			if _, err := provider.Authorize(c.Context); err != nil {
				return err
			}
			logger.Info("Successfully authenticated and saved token.", "store", cfg.Token.Store, "path", cfg.Token.Path)
			return nil
		},
	}
}

func calendarsCommand() *cli.Command {
	return &cli.Command{
		Name:  "calendars",
		Usage: "List the configured calendar aliases.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "remote", Usage: "Also list the Google calendars the account can read."},
		},
		Action: func(c *cli.Context) error {
			logger := setupLogger(c.String("log_level"))

			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ALIAS\tTYPE\tCALENDAR")
			for _, alias := range cfg.Aliases() {
				cal := cfg.Calendars[alias]
				name := alias
				if alias == cfg.DefaultCalendar {
					name += " (default)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, cal.Type, source.Target(cal))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if !c.Bool("remote") {
				return nil
			}

			client, err := newGoogleClient(c.Context, logger, cfg)
			if err != nil {
				return err
			}
			remote, err := client.DiscoverCalendars(c.Context)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.App.Writer)
			tw = tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSUMMARY\tACCESS")
			for _, info := range remote {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", info.ID, info.Summary, info.AccessRole)
			}
			return tw.Flush()
		},
	}
}
