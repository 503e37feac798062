package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCarriersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "carriers",
		Short: "List the registered carriers and their capabilities.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(opts, false)
			if err != nil {
				return err
			}
			defer a.close()

			reg := a.node.Registry()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSPECIFIER\tACK\tREPLY\tCONNECTIONLESS\tLOCAL\tTEXT")
			for _, name := range reg.Names() {
				c, err := reg.ChooseByName(name)
				if err != nil {
					return err
				}
				caps := c.Capabilities()
				fmt.Fprintf(tw, "%s\t%q\t%t\t%t\t%t\t%t\t%t\n",
					caps.Name, c.Specifier().String(), caps.RequiresAck, caps.SupportsReply,
					caps.Connectionless, caps.Local, caps.TextMode)
			}
			return tw.Flush()
		},
	}
}
