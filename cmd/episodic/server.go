package episodic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/episodic/pkg/server"
)

// shutdownTimeout bounds in-flight requests after a signal.
const shutdownTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the episodic HTTP server",
	Long: `Start the HTTP server exposing episode ingestion, search, neighborhood
traversal and graph statistics.

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "localhost", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
	serverCmd.Flags().String("mode", "release", "Server mode (debug, release, test)")
	serverCmd.Flags().String("db-driver", "neo4j", "Database driver (neo4j, memory)")
	serverCmd.Flags().String("db-uri", "bolt://localhost:7687", "Database URI")
	serverCmd.Flags().Bool("create-indices", false, "Create graph indices before serving")

	_ = viper.BindPFlag("server.host", serverCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.mode", serverCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("database.driver", serverCmd.Flags().Lookup("db-driver"))
	_ = viper.BindPFlag("database.uri", serverCmd.Flags().Lookup("db-uri"))
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			rt.logger.Warn("Shutdown incomplete", "error", err)
		}
	}()

	if rt.cfg.Server.Port <= 0 || rt.cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", rt.cfg.Server.Port)
	}
	if create, _ := cmd.Flags().GetBool("create-indices"); create {
		if err := rt.client.CreateIndices(ctx); err != nil {
			return err
		}
	}

	srv := server.New(rt.cfg, rt.client, rt.logger)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		rt.logger.Info("Received signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		rt.logger.Info("Server stopped gracefully")
		return nil
	}
}
