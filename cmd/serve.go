package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/glucolink/glucolink/internal/repositories"
	"github.com/glucolink/glucolink/internal/server"
	"github.com/glucolink/glucolink/internal/shared"
	"github.com/glucolink/glucolink/internal/tokens"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the glucose proxy HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Action: r.Serve,
	}
}

// Serve wires the storage, token manager and upstream client together and
// runs the HTTP server until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return err
	}

	service, err := r.newService(config)
	if err != nil {
		return err
	}

	repo := repositories.NewTokenRepository(db)
	manager := tokens.NewManager(repo, service, r.logger)
	handlers := server.NewHandlers(manager, service, nil, r.logger)

	srv := server.New(config.Server.Addr(), handlers, r.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
