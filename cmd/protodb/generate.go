package main

import (
	"github.com/spf13/cobra"

	"github.com/koustreak/protodb/internal/config"
	"github.com/koustreak/protodb/internal/filestore"
	"github.com/koustreak/protodb/internal/generator"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/manifest"
)

func generateCmd() *cobra.Command {
	var configPath string
	var outDir string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Introspect the configured schemas and publish the query manifest",
		Long: `Generate connects to the configured database, reads every configured schema,
applies exclusions, extensions, custom queries and transforms, compiles the
canonical queries of every table and publishes the result as a JSON manifest.

Nothing is written when any step fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.Output.Path = outDir
				cfg.Output.Minio = nil
			}

			log := logger.New(cfg.LoggerConfig())
			logger.SetGlobal(log)
			ctx := log.WithContext(cmd.Context())

			res, err := generator.New(cfg, generator.Options{Logger: log}).Run(ctx)
			if err != nil {
				return err
			}

			store, err := filestore.Open(ctx, cfg.StoreConfig())
			if err != nil {
				return err
			}
			defer store.Close()

			info, err := manifest.Publish(ctx, store, cfg.Output.Key, manifest.Build(res))
			if err != nil {
				return err
			}
			log.InfoWith("manifest published", map[string]any{
				"key":  info.Key,
				"size": info.Size,
				"etag": info.ETag,
			})
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "protodb.yaml", "Configuration file (.yaml, .yml or .toml)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write the manifest to this directory instead of the configured output")
	return cmd
}
