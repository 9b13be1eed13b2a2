package main

import (
	"github.com/spf13/cobra"

	"ncbot/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printValue(cmd.OutOrStdout(), output, version.GetInfo(), func(p *printer) {
				p.line("ncbot %s", version.GetInfo())
			})
		},
	}
}
