// Command bookingctl is the operator tool for the booking service: it
// previews time normalization, queries and books over HTTP, administers
// subjects directly in Postgres, tails domain events and checks health.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/md-rashed-zaman/detailbook/libs/runtime"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("bookingctl failed", "err", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bookingctl",
		Usage: "Operate the booking service.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Value: "http://localhost:8083", EnvVars: []string{"BOOKING_BASE_URL"}, Usage: "booking service HTTP address"},
			&cli.StringFlag{Name: "database-url", EnvVars: []string{"DATABASE_URL"}, Usage: "Postgres URL for admin commands"},
		},
		Commands: []*cli.Command{
			normalizeCommand(),
			slotsCommand(),
			bookCommand(),
			subjectCommand(),
			blockCommand(),
			migrateCommand(),
			eventsCommand(),
			healthCommand(),
			readyCommand(),
		},
	}
}

func logger() *slog.Logger {
	return runtime.NewLogger("bookingctl")
}

func printJSON(c *cli.Context, body []byte) {
	fmt.Fprintln(c.App.Writer, string(body))
}
