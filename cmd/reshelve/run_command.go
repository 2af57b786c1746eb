package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"reshelve/internal/download"
	"reshelve/internal/pipeline"
	"reshelve/internal/services/aria2"
	"reshelve/internal/services/catalog"
	"reshelve/internal/services/sevenzip"
	"reshelve/internal/storage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var includeSkipped bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the migration over all planned file groups",
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

			downloadsDir := filepath.Join(cfg.Paths.WorkDir, "downloads")
			extractedDir := filepath.Join(cfg.Paths.WorkDir, "extracted")
			archiveDir := filepath.Join(cfg.Paths.WorkDir, "archives")
			for _, dir := range []string{downloadsDir, extractedDir, archiveDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create work directory %q: %w", dir, err)
				}
			}

			rpc := aria2.New(cfg.Aria2.RPCURL, cfg.Aria2.Secret, aria2.WithLogger(logger))
			manager := download.NewManager(rpc, download.Settings{
				WorkDir:                 downloadsDir,
				Mirrors:                 mirrorBases(cfg),
				Split:                   cfg.Aria2.Split,
				MaxConnectionsPerServer: cfg.Aria2.MaxConnectionsPerServer,
				MinSplitSize:            cfg.Aria2.MinSplitSize,
				MaxTries:                cfg.Aria2.MaxTries,
				RetryWaitSeconds:        cfg.Aria2.RetryWaitSeconds,
				PollInterval:            time.Duration(cfg.Aria2.PollIntervalMillis) * time.Millisecond,
				StallTimeout:            time.Duration(cfg.Aria2.StallTimeoutSeconds) * time.Second,
				Retries:                 cfg.Aria2.Retries,
				RetryBackoff:            time.Duration(cfg.Aria2.RetryBackoffSeconds) * time.Second,
			}, download.WithLogger(logger))

			binary, err := sevenzip.ResolveBinary(cfg.SevenZip.Binary)
			if err != nil {
				return err
			}
			archiver, err := sevenzip.New(binary, cfg.SevenZip.Passwords, cfg.SevenZip.Format, cfg.SevenZip.Level)
			if err != nil {
				return err
			}

			cat := catalog.New(cfg.Catalog.BaseURL, cfg.Catalog.Token)
			client, err := storage.NewS3Client(cmd.Context(), cfg.Target.Bucket)
			if err != nil {
				return err
			}
			target := storage.NewTargetFromClient(client, cfg.Target.Bucket.Bucket, cfg.Target.KeyPrefix, cfg.Catalog.UploaderID)
			fmt.Fprintf(cmd.OutOrStdout(), "Uploading repacked archives to s3://%s/%s\n",
				cfg.Target.Bucket.Bucket, target.KeyPrefix())

			runner := pipeline.NewRunner(pipeline.RunnerConfig{
				Store:        st,
				Downloads:    manager,
				Archiver:     archiver,
				Catalog:      cat,
				Target:       target,
				ExtractedDir: extractedDir,
				ArchiveDir:   archiveDir,
				Languages:    cfg.Catalog.Languages,
				Format:       cfg.SevenZip.Format,
			},
				pipeline.WithRunnerLogger(logger),
				pipeline.WithProgress(newProgressSink(cmd.OutOrStdout())))

			summary, err := runner.Run(cmd.Context(), includeSkipped)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Processed %d groups: %d completed, %d already done, %d skipped, %d failed\n",
				summary.Groups, summary.Completed, summary.AlreadyDone, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d groups failed; rerun to retry", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeSkipped, "include-skipped", false, "Re-examine groups whose every item was previously skipped")
	return cmd
}
