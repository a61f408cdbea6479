package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func rolloverCmd(flags *globalFlags) *cobra.Command {
	var at string

	c := &cobra.Command{
		Use:   "rollover",
		Short: "Close ended cycles and open current ones, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			when := time.Now()
			if at != "" {
				t, err := time.Parse(time.DateOnly, at)
				if err != nil {
					return fmt.Errorf("--at: expected YYYY-MM-DD: %w", err)
				}
				when = t
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			res, rollErr := a.roller.Rollover(ctx, when)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			return rollErr
		},
	}

	c.Flags().StringVar(&at, "at", "", "rollover date YYYY-MM-DD (default: now)")
	return c
}
