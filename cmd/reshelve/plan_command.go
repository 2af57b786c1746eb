package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reshelve/internal/pipeline"
	"reshelve/internal/services/catalog"
	"reshelve/internal/storage"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build the migration plan from the source listing and catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.buildLogger()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			client, err := storage.NewS3Client(cmd.Context(), cfg.Source.Bucket)
			if err != nil {
				return err
			}
			source := storage.NewSource(client, cfg.Source.Bucket.Bucket, cfg.Source.Prefix)
			cat := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Token)

			planner := pipeline.NewPlanner(st, source, cat, cfg.Source.Suffixes,
				pipeline.WithPlannerLogger(logger))
			summary, err := planner.Plan(cmd.Context(), refresh)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Listed %d objects, %d catalog entries\n", summary.Objects, summary.Entries)
			fmt.Fprintf(out, "Matched %d, unmatched %d, filtered %d\n", summary.Matched, summary.Unmatched, summary.Filtered)
			fmt.Fprintf(out, "Seeded %d new items\n", summary.NewItems)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refetch the source listing and catalog instead of reusing cached datasets")
	return cmd
}
