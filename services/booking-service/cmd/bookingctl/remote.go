package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/detailbook/libs/grpcx"
	"github.com/md-rashed-zaman/detailbook/libs/runtime"
	"github.com/urfave/cli/v2"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func apiURL(c *cli.Context, path string, q url.Values) string {
	u := strings.TrimRight(c.String("base-url"), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// call prints the response body and fails on statuses other than want.
func call(c *cli.Context, req *http.Request, want ...int) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	printJSON(c, bytes.TrimSpace(body))
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}

func slotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "slots",
		Usage: "List free slots for a subject on a date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Required: true},
			&cli.StringFlag{Name: "date", Value: "today"},
			&cli.IntFlag{Name: "duration", Value: 60, Usage: "minutes"},
			&cli.IntFlag{Name: "buffer", Usage: "minutes kept free around existing bookings"},
			&cli.StringFlag{Name: "tz", Usage: "timezone for the date and labels; defaults to the subject's"},
		},
		Action: func(c *cli.Context) error {
			q := url.Values{}
			q.Set("date", c.String("date"))
			q.Set("duration_minutes", strconv.Itoa(c.Int("duration")))
			if b := c.Int("buffer"); b > 0 {
				q.Set("buffer_minutes", strconv.Itoa(b))
			}
			if tz := c.String("tz"); tz != "" {
				q.Set("timezone", tz)
			}
			req, err := http.NewRequestWithContext(c.Context, http.MethodGet,
				apiURL(c, "/api/v1/subjects/"+url.PathEscape(c.String("subject"))+"/slots", q), nil)
			if err != nil {
				return err
			}
			return call(c, req, http.StatusOK)
		},
	}
}

func bookCommand() *cli.Command {
	return &cli.Command{
		Name:  "book",
		Usage: "Book a slot. Re-running with the same --key replays the first answer.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "subject", Required: true},
			&cli.StringFlag{Name: "date", Required: true},
			&cli.StringFlag{Name: "time", Required: true},
			&cli.IntFlag{Name: "duration", Value: 60, Usage: "minutes"},
			&cli.StringFlag{Name: "tz"},
			&cli.StringFlag{Name: "key", Usage: "idempotency key; generated when empty"},
			&cli.StringFlag{Name: "name", Usage: "customer name"},
			&cli.StringFlag{Name: "phone"},
			&cli.StringFlag{Name: "email"},
			&cli.StringFlag{Name: "notes"},
		},
		Action: func(c *cli.Context) error {
			key := c.String("key")
			if key == "" {
				key = uuid.NewString()
			}
			payload, err := json.Marshal(map[string]any{
				"subjectId":       c.String("subject"),
				"date":            c.String("date"),
				"time":            c.String("time"),
				"durationMinutes": c.Int("duration"),
				"timezone":        c.String("tz"),
				"source":          "bookingctl",
				"customerName":    c.String("name"),
				"customerPhone":   c.String("phone"),
				"customerEmail":   c.String("email"),
				"notes":           c.String("notes"),
			})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(c.Context, http.MethodPost, apiURL(c, "/api/v1/bookings", nil), bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", key)
			return call(c, req, http.StatusCreated, http.StatusConflict)
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Query the gRPC health service.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "localhost:9083"},
			&cli.StringFlag{Name: "service", Value: ""},
			&cli.DurationFlag{Name: "timeout", Value: 3 * time.Second},
		},
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			status, err := grpcx.CheckHealth(ctx, c.String("addr"), c.String("service"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, status.String())
			return nil
		},
	}
}

func readyCommand() *cli.Command {
	return &cli.Command{
		Name:  "ready",
		Usage: "Report which dependencies fail the readiness check.",
		Action: func(c *cli.Context) error {
			req, err := http.NewRequestWithContext(c.Context, http.MethodGet, apiURL(c, "/readyz", nil), nil)
			if err != nil {
				return err
			}
			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var body struct {
				Status   string            `json:"status"`
				Failures map[string]string `json:"failures"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode readyz: %w", err)
			}
			failed := runtime.FailedChecks(body.Failures)
			for _, name := range failed {
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", name, body.Failures[name])
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d dependencies not ready", len(failed))
			}
			fmt.Fprintln(c.App.Writer, body.Status)
			return nil
		},
	}
}
