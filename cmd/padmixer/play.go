// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/engine"
)

func runPlay(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("play")
	record := fs.String("record", "", "record the main mix to this WAV file")
	monitor := fs.Bool("monitor", false, "also play the clips on the monitor device")
	loop := fs.Bool("loop", false, "loop every clip until interrupted")
	timeout := fs.Duration("timeout", 0, "stop after this long; 0 waits for the clips to end")
	if err := fs.Parse(args); err != nil {
		return err
	}

	clips := fs.Args()
	switch {
	case len(clips) == 0:
		return fmt.Errorf("%w: play needs at least one clip", errUsage)
	case len(clips) > engine.Slots:
		return fmt.Errorf("%w: at most %d clips", errUsage, engine.Slots)
	case *loop && *timeout == 0:
		slog.Info("looping until interrupted")
	}

	cfg, closeLog, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer closeLog()

	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ec := cfg.Engine(slog.Default())
	ec.Library = library(cfg)
	e, err := engine.New(ec, backend)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := cfg.Apply(e); err != nil {
		return err
	}

	ended := make(chan int, 2*engine.Slots)
	notify := func(slot int) {
		select {
		case ended <- slot:
		default:
		}
	}
	e.SetClipFinishedCallback(func(slot int) {
		slog.Info("clip finished", "slot", slot, "clip", clips[slot])
		notify(slot)
	})
	e.SetClipErrorCallback(func(slot int, err error) {
		slog.Error("clip failed", "slot", slot, "err", err)
		notify(slot)
	})

	for i, path := range clips {
		if err := e.SetLoop(i, *loop); err != nil {
			return err
		}
		if err := e.LoadClip(i, path); err != nil {
			return err
		}
	}

	if err := e.StartAudioDevice(); err != nil {
		return err
	}
	if *monitor {
		if err := e.StartMonitorDevice(); err != nil {
			return err
		}
	}

	if vb, ok := backend.(*device.VirtualBackend); ok {
		pumpCtx, stopPump := context.WithCancel(ctx)
		pumped := make(chan struct{})
		go func() {
			defer close(pumped)
			pump(pumpCtx, vb, cfg.PeriodFrames, cfg.SampleRate)
		}()
		defer func() {
			stopPump()
			<-pumped
		}()
	}

	if *record != "" {
		if err := e.StartRecording(*record); err != nil {
			return err
		}
	}

	for i := range clips {
		if err := e.PlayClip(i); err != nil {
			return err
		}
	}

	waitErr := wait(ctx, ended, len(clips), *timeout)

	if *record != "" {
		info, err := e.StopRecording()
		if err != nil {
			return errors.Join(waitErr, err)
		}
		fmt.Fprintf(stdout, "recorded %s: %v, %d frames, %d dropped\n",
			info.Path, info.Duration.Round(time.Millisecond), info.Frames, info.Dropped)
		if err := remember(ctx, cfg.History.Database, info); err != nil {
			return errors.Join(waitErr, err)
		}
	}

	st := e.Stats()
	fmt.Fprintf(stdout, "callbacks main=%d monitor=%d, underrun frames main=%d monitor=%d, decode errors=%d\n",
		st.MainCallbacks, st.MonitorCallbacks, st.MainUnderruns, st.MonitorUnderruns, st.DecodeErrors)
	return waitErr
}

// wait blocks until n distinct slots have ended, ctx is done or timeout
// passes. Interrupts and timeouts are normal ends, not errors.
func wait(ctx context.Context, ended <-chan int, n int, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	seen := make(map[int]bool, n)
	for len(seen) < n {
		select {
		case slot := <-ended:
			seen[slot] = true
		case <-ctx.Done():
			slog.Info("interrupted")
			return nil
		case <-expired:
			slog.Info("timeout reached", "timeout", timeout)
			return nil
		}
	}
	return nil
}
