package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/detailbook/libs/db"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/storage"
	"github.com/urfave/cli/v2"
)

func openRepo(c *cli.Context) (*storage.BookingRepository, func(), error) {
	url := c.String("database-url")
	if url == "" {
		return nil, nil, errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(c.Context, url, db.Options{MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	return storage.NewBookingRepository(pool), pool.Close, nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations.",
		Action: func(c *cli.Context) error {
			url := c.String("database-url")
			if url == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := db.Open(c.Context, url, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := storage.Migrate(c.Context, pool); err != nil {
				return err
			}
			logger().Info("migrations applied")
			return nil
		},
	}
}

func subjectCommand() *cli.Command {
	return &cli.Command{
		Name:  "subject",
		Usage: "Manage bookable subjects.",
		Subcommands: []*cli.Command{
			{
				Name:  "upsert",
				Usage: "Create or update a subject.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "tz", Required: true, Usage: "IANA timezone"},
					&cli.StringFlag{Name: "hours", Value: "mon-fri=09:00-17:00", EnvVars: []string{"DEFAULT_BUSINESS_HOURS"}, Usage: `e.g. "mon-fri=09:00-12:00,13:00-17:00;sat=10:00-14:00"`},
					&cli.StringFlag{Name: "provider", Usage: "google or caldav"},
					&cli.StringFlag{Name: "calendar-id"},
					&cli.StringFlag{Name: "refresh-token", EnvVars: []string{"SUBJECT_REFRESH_TOKEN"}},
				},
				Action: func(c *cli.Context) error {
					hours, err := model.ParseBusinessHours(c.String("hours"))
					if err != nil {
						return err
					}
					provider := model.CalendarProvider(c.String("provider"))
					switch provider {
					case model.CalendarNone, model.CalendarGoogle, model.CalendarCalDAV:
					default:
						return fmt.Errorf("unknown provider %q", provider)
					}
					repo, closeFn, err := openRepo(c)
					if err != nil {
						return err
					}
					defer closeFn()
					err = repo.UpsertSubject(c.Context, model.Subject{
						ID:                   c.String("id"),
						Name:                 c.String("name"),
						Timezone:             c.String("tz"),
						BusinessHours:        hours,
						CalendarProvider:     provider,
						CalendarID:           c.String("calendar-id"),
						CalendarRefreshToken: c.String("refresh-token"),
					})
					if err != nil {
						return err
					}
					logger().Info("subject saved", "subject_id", c.String("id"), "hours", hours.String())
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List subjects.",
				Action: func(c *cli.Context) error {
					repo, closeFn, err := openRepo(c)
					if err != nil {
						return err
					}
					defer closeFn()
					subjects, err := repo.ListSubjects(c.Context)
					if err != nil {
						return err
					}
					for _, s := range subjects {
						fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Timezone, s.BusinessHours, s.CalendarProvider)
					}
					return nil
				},
			},
		},
	}
}

func blockCommand() *cli.Command {
	return &cli.Command{
		Name:  "block",
		Usage: "Manage internal busy blocks.",
		Subcommands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Mark a subject busy between two RFC 3339 instants.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Required: true},
					&cli.TimestampFlag{Name: "start", Layout: time.RFC3339, Required: true},
					&cli.TimestampFlag{Name: "end", Layout: time.RFC3339, Required: true},
					&cli.StringFlag{Name: "label", Value: "Blocked"},
				},
				Action: func(c *cli.Context) error {
					iv, err := model.NewInterval(*c.Timestamp("start"), *c.Timestamp("end"))
					if err != nil {
						return err
					}
					repo, closeFn, err := openRepo(c)
					if err != nil {
						return err
					}
					defer closeFn()
					id, err := repo.AddBusyBlock(c.Context, c.String("subject"), iv.UTC(), c.String("label"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, id)
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Delete a busy block by id.",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					var id int64
					if _, err := fmt.Sscan(c.Args().First(), &id); err != nil {
						return fmt.Errorf("invalid id %q", c.Args().First())
					}
					repo, closeFn, err := openRepo(c)
					if err != nil {
						return err
					}
					defer closeFn()
					return repo.DeleteBusyBlock(c.Context, id)
				},
			},
		},
	}
}
