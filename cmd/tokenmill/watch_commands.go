package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream live snapshot and intent events from the server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "event",
				Aliases: []string{"e"},
				Usage:   "Only show events of this type (snapshot, intent)",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true against the event payload (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			eventType := c.String("event")
			jqFilters := c.StringSlice("must-jq")
			jsonOutput := c.Bool("json")

			// Compile jq filters
			compiledJQFilters := make([]*gojq.Code, len(jqFilters))
			for i, filter := range jqFilters {
				query, err := gojq.Parse(filter)
				if err != nil {
					return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
				}
				compiledJQFilters[i], err = gojq.Compile(query)
				if err != nil {
					return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cl := newServiceClient(c)
			events, err := cl.StreamEvents(ctx)
			if err != nil {
				return fmt.Errorf("failed to open event stream: %w", err)
			}

			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Watching events from %s...\n", c.String("server-url"))
				for _, filter := range jqFilters {
					fmt.Fprintf(os.Stderr, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintln(os.Stderr)
			}

			for ev := range events {
				if ev.Type == "connected" {
					continue
				}
				if eventType != "" && ev.Type != eventType {
					continue
				}
				if !matchesFilters(ev.Data, compiledJQFilters) {
					continue
				}

				if jsonOutput {
					fmt.Printf("{\"type\":%q,\"data\":%s}\n", ev.Type, string(ev.Data))
				} else {
					fmt.Printf("[%s] %s\n", ev.Type, string(ev.Data))
				}
			}

			return fmt.Errorf("event stream closed")
		},
	}
}

// matchesFilters reports whether the event payload passes every compiled jq
// filter.
func matchesFilters(data json.RawMessage, filters []*gojq.Code) bool {
	if len(filters) == 0 {
		return true
	}

	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(payload)
		v, ok := iter.Next()
		if !ok {
			// No result means filter failed
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}
