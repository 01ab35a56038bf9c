package cmd

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flagforge/flagforge/pkg/runtime"
)

var (
	port            int
	storageRoot     string
	relayURL        string
	relayToken      string
	refreshSchedule string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the flag console",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err := runtime.Start(ctx, runtime.Config{
			Port:            viper.GetInt("port"),
			StorageRoot:     viper.GetString("storage-root"),
			RelayURL:        viper.GetString("relay-url"),
			RelayToken:      viper.GetString("relay-token"),
			RefreshSchedule: viper.GetString("refresh-schedule"),
		})
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("flag console stopped")
			return err
		}
		return nil
	},
}

func init() {
	startCmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	startCmd.Flags().StringVarP(&storageRoot, "storage-root", "d", "./flags", "Directory holding the project flag files")
	startCmd.Flags().StringVar(&relayURL, "relay-url", "", "Base URL of the relay proxy to signal on flag changes")
	startCmd.Flags().StringVar(&relayToken, "relay-token", "", "Bearer token for the relay proxy admin endpoint")
	startCmd.Flags().StringVar(&refreshSchedule, "refresh-schedule", "", "Optional cron spec re-firing the relay refresh")

	for _, name := range []string{"port", "storage-root", "relay-url", "relay-token", "refresh-schedule"} {
		_ = viper.BindPFlag(name, startCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(startCmd)
}
