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
	"github.com/mtkallio/spotcharge/infra/mail"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the charging schedule without commanding the charger or mailing",
	RunE:  planOnly,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func planOnly(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Dry run: keep the price fetch and optimizer, drop the side effects.
	cfg.Charger.Vendor = "none"
	cfg.SMTP = mail.Config{}
	cfg.Metrics.InfluxEnabled = false
	cfg.Metrics.PushgatewayEnabled = false

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Run(ctx)
	if res != nil {
		fmt.Print(res.Report)
	}
	return err
}
