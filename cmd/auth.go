package main

import (
	"context"
	"time"

	"github.com/glucolink/glucolink/internal/repositories"
	"github.com/glucolink/glucolink/internal/shared"
	"github.com/urfave/cli/v3"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorization helpers",
		Commands: []*cli.Command{
			{
				Name:  "url",
				Usage: "Print the upstream consent URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "open",
						Usage: "Open the URL in the system browser",
					},
				},
				Action: r.AuthURL,
			},
			{
				Name:  "status",
				Usage: "Report whether a token is stored and when it expires",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// AuthURL prints the consent URL, optionally opening it in the browser.
// Completing the flow lands on the running server's /auth/callback route.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	service, err := r.newService(config)
	if err != nil {
		return err
	}

	url := service.AuthURL(shared.GenerateID())

	if cmd.Bool("open") {
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warnf("failed to open browser: %v", err)
		}
	}

	return r.writePlain("%s\n", url)
}

// AuthStatus inspects the stored token record.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now()
	record, err := repositories.NewTokenRepository(db).Load()

	if cmd.Bool("json") {
		status := map[string]any{"authenticated": false}
		if err == nil {
			status["authenticated"] = !record.Expired(now)
			status["expires_at"] = record.ExpiresAt.Format(time.RFC3339)
			status["expires_in"] = record.ExpiresIn(now)
		}
		return r.writeJSON(status, true)
	}

	if err != nil {
		return r.writePlain("Not authenticated\n")
	}

	if record.Expired(now) {
		return r.writePlain("Token expired at %s (will refresh on next request)\n", record.ExpiresAt.Format(time.RFC3339))
	}

	return r.writePlain("Authenticated, token expires at %s\n", record.ExpiresAt.Format(time.RFC3339))
}
