package main

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/agrilink/cig-engine/seed"
	"github.com/spf13/cobra"
)

func seedCmd(flags *globalFlags) *cobra.Command {
	var (
		opts      = seed.DefaultOptions()
		seedValue int64
		reset     bool
	)

	c := &cobra.Command{
		Use:   "seed",
		Short: "Generate demo data and assign it to groups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if reset {
				if err := a.store.Reset(ctx); err != nil {
					return err
				}
			}
			if seedValue != 0 {
				opts.Rand = rand.New(rand.NewSource(seedValue))
			}
			opts.ConflictRetries = a.cfg.Assignment.ConflictRetries

			rep, err := seed.New(a.store, a.assigner, opts, a.logger.Named("seed")).Run(ctx)
			if err != nil {
				return err
			}
			res, err := a.roller.Rollover(ctx, time.Now())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"report": rep, "rollover": res})
		},
	}

	c.Flags().StringVar(&opts.County, "county", opts.County, "county name")
	c.Flags().IntVar(&opts.Wards, "wards", opts.Wards, "number of wards")
	c.Flags().IntVar(&opts.LocalitiesPerWard, "localities", opts.LocalitiesPerWard, "localities per ward")
	c.Flags().IntVar(&opts.FarmsPerLocality, "farms", opts.FarmsPerLocality, "farms per locality")
	c.Flags().IntVar(&opts.HotspotFarms, "hotspot-farms", opts.HotspotFarms, "farms in the hotspot locality")
	c.Flags().IntVar(&opts.Workers, "workers", opts.Workers, "localities written concurrently")
	c.Flags().Int64Var(&seedValue, "seed", 0, "random seed (0 uses the clock)")
	c.Flags().BoolVar(&reset, "reset", false, "delete all data first")
	return c
}
