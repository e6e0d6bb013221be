package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print a summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, n := range cfg.Networks {
			state := "enabled"
			if !n.IsEnabled() {
				state = "disabled"
			}
			fmt.Fprintf(out, "network %s (%s, %s): %d servers, %d channels\n",
				n.Name, n.Type, state, len(n.Servers), len(n.Channels))
		}
		for _, b := range cfg.Binds {
			arrow := "->"
			if b.Duplex {
				arrow = "<->"
			}
			fmt.Fprintf(out, "bind %s:%s %s %s:%s\n",
				b.Source.Network, b.Source.Channel, arrow, b.Destination.Network, b.Destination.Channel)
		}
		fmt.Fprintln(out, "configuration ok")
		return nil
	},
}
