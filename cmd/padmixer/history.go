// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ik5/padmixer/history"
	"github.com/ik5/padmixer/recorder"
)

var errNoHistory = errors.New("history.database is not configured")

func runHistory(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("history")
	limit := fs.Int("limit", 20, "newest entries to show; 0 shows all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, closeLog, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.History.Database == "" {
		return errNoHistory
	}
	store, err := history.Open(ctx, cfg.History.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tFORMAT\tDROPPED\tPATH")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%v\t%d Hz x %d, %d-bit\t%d\t%s\n",
			e.Started.Format(time.DateTime), e.Duration.Round(time.Millisecond),
			e.SampleRate, e.Channels, e.BitDepth, e.Dropped, e.Path)
	}
	return tw.Flush()
}

// remember indexes a finished recording when a database is configured.
func remember(ctx context.Context, database string, info recorder.Info) error {
	if database == "" {
		return nil
	}
	store, err := history.Open(ctx, database)
	if err != nil {
		return err
	}
	_, err = store.Add(ctx, info)
	return errors.Join(err, store.Close())
}
