package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/tatianab/devil-deal/internal/fallback"
)

func newFallbackCmd() *cobra.Command {
	var fatal, event bool
	cmd := &cobra.Command{
		Use:   "fallback",
		Short: "Print the built-in offer bundle or event as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc any = fallback.OfferBundle(fatal)
			if event {
				doc = fallback.Event()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().BoolVar(&fatal, "fatal", false, "include the fatal definition clause")
	cmd.Flags().BoolVar(&event, "event", false, "print the follow-up event instead")
	return cmd
}
