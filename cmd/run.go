package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mtkallio/spotcharge/app"
	"github.com/mtkallio/spotcharge/config"
	"github.com/mtkallio/spotcharge/infra/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan the charging schedule, command the charger and mail the report",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	res, err := svc.Run(ctx)
	if res != nil {
		fmt.Print(res.Report)
	}
	return err
}
