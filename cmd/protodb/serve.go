package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/koustreak/protodb/internal/filestore"
	"github.com/koustreak/protodb/internal/logger"
	"github.com/koustreak/protodb/internal/manifest"
	"github.com/koustreak/protodb/internal/server"
)

func serveCmd() *cobra.Command {
	var manifestPath string
	var addr string
	var level string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a generated manifest over a read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := logger.DefaultConfig()
			cfg.Level = level
			if _, err := logger.ParseLevel(level); err != nil {
				return err
			}
			log := logger.New(cfg)
			logger.SetGlobal(log)
			ctx := cmd.Context()

			store, err := filestore.Open(ctx, filestore.LocalConfig(filepath.Dir(manifestPath)))
			if err != nil {
				return err
			}
			defer store.Close()

			m, err := manifest.Load(ctx, store, filepath.Base(manifestPath))
			if err != nil {
				return err
			}
			log.With().Str("manifest", manifestPath).Int("schemas", len(m.Schemas)).Logger().Info("manifest loaded")

			return server.New(m, log).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "protodb.json", "Manifest file to serve")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&level, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}
