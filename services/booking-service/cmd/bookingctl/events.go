package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/detailbook/libs/kafkax"
	"github.com/md-rashed-zaman/detailbook/services/booking-service/internal/outbox"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/trace"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Inspect reservation events on Kafka.",
		Subcommands: []*cli.Command{
			{
				Name:  "tail",
				Usage: "Print new events from a topic until interrupted.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "brokers", EnvVars: []string{"KAFKA_BROKERS"}, Required: true},
					&cli.StringFlag{Name: "topic", Value: outbox.TopicReservationCreated},
					&cli.StringFlag{Name: "group", Usage: "consumer group; empty reads from the latest offset"},
				},
				Action: func(c *cli.Context) error {
					reader := kafkax.NewReader(c.String("brokers"), c.String("topic"), c.String("group"))
					defer reader.Close()
					for {
						msg, err := reader.ReadMessage(c.Context)
						if errors.Is(err, context.Canceled) {
							return nil
						}
						if err != nil {
							return err
						}
						meta := kafkax.ExtractEventMeta(msg)
						traceID := trace.SpanContextFromContext(kafkax.ExtractTraceContext(context.Background(), msg)).TraceID()
						fmt.Fprintf(c.App.Writer, "%s %s %s trace=%s %s\n",
							msg.Time.UTC().Format("2006-01-02T15:04:05Z"), meta.EventType, meta.EventID, traceID, msg.Value)
					}
				},
			},
			{
				Name:  "topics",
				Usage: "List the topics the booking service publishes to.",
				Action: func(c *cli.Context) error {
					for _, t := range outbox.Topics {
						fmt.Fprintln(c.App.Writer, t)
					}
					return nil
				},
			},
		},
	}
}
