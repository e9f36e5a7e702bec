// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ik5/padmixer/device"
)

func runDevices(_ context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("devices")
	if err := fs.Parse(args); err != nil {
		return err
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

	catalog := device.NewCatalog(backend)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, dir := range []device.Direction{device.Playback, device.Capture} {
		infos, err := catalog.Enumerate(dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s devices (%s):\n", dir, backend.Name())
		for _, info := range infos {
			def := ""
			if info.IsDefault {
				def = "default"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", info.ID, info.Name, def)
		}
	}
	return tw.Flush()
}
