package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orstracker/apiserver/config"
	"github.com/orstracker/apiserver/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the ORS Tracker backend server",
	Long: `Starts the ORS Tracker backend server. Usage:

	orstracker server
`,
	Run: func(cmd *cobra.Command, args []string) {
		logger, err := zap.NewProduction()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()

		cfg := config.LoadConfig()

		srv, err := server.New(cmd.Context(), cfg, logger)
		if err != nil {
			logger.Sugar().Fatalf("failed to start server: %v", err)
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-stop
			logger.Sugar().Infow("shutting down")
			_ = srv.Shutdown()
		}()

		if err := srv.Start(); err != nil {
			logger.Sugar().Errorf("server error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
