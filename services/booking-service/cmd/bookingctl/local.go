package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/timeparse"
	"github.com/urfave/cli/v2"
)

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "normalize",
		Usage: "Show how a free-form date and time would be read.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: `"today", "tomorrow", a weekday or YYYY-MM-DD`},
			&cli.StringFlag{Name: "time", Required: true, Usage: `e.g. "10", "2:30 pm", "14:00"`},
			&cli.StringFlag{Name: "tz", Required: true, Usage: "IANA timezone"},
			&cli.IntFlag{Name: "duration", Value: 60, Usage: "minutes"},
			&cli.BoolFlag{Name: "strict", Usage: "reject bare hours without am/pm"},
		},
		Action: func(c *cli.Context) error {
			policy := timeparse.PolicyAssumeAM
			if c.Bool("strict") {
				policy = timeparse.PolicyStrict
			}
			res, err := timeparse.New(timeparse.WithPolicy(policy)).Normalize(timeparse.Request{
				Date:            c.String("date"),
				Time:            c.String("time"),
				Timezone:        c.String("tz"),
				DurationMinutes: c.Int("duration"),
			})
			if err != nil {
				return err
			}
			body, err := json.MarshalIndent(map[string]any{
				"startUtcISO":   res.Start.Format(time.RFC3339),
				"endUtcISO":     res.End.Format(time.RFC3339),
				"date":          res.Date,
				"time":          res.Time,
				"startLabel":    res.StartLabel,
				"endLabel":      res.EndLabel,
				"ambiguousTime": res.Ambiguous,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			printJSON(c, body)
			return nil
		},
	}
}
