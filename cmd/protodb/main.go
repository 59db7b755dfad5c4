// Command protodb compiles a live database schema into a manifest of typed
// CRUD and custom queries, and serves manifests over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/koustreak/protodb/internal/database/mysql"
	_ "github.com/koustreak/protodb/internal/database/postgres"
	_ "github.com/koustreak/protodb/internal/filestore/local"
	_ "github.com/koustreak/protodb/internal/filestore/minio"
	"github.com/koustreak/protodb/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Global().Error(err.Error())
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "protodb",
		Short:         "Schema-to-query compiler for PostgreSQL and MySQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(generateCmd(), serveCmd())
	return rootCmd
}
