package main

import (
	"github.com/spf13/cobra"
)

// options are the flags every subcommand shares.
type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "portbus",
		Short: "Named ports exchanging values over negotiated carriers.",
		Long: `portbus runs input ports that accept connections over a bootstrap ` +
			`transport and negotiate a carrier (tcp, text, local, mcast) per ` +
			`connection, and sends values to them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	root.AddCommand(newServeCmd(opts), newSendCmd(opts), newCarriersCmd(opts))
	return root
}
