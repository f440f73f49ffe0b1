package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/backup"
	"github.com/your-org/attendance/internal/bootstrap"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the attendance ledger to the object store now",
	Args:  cobra.NoArgs,
	RunE:  runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx, true)
	if err != nil {
		return err
	}
	defer e.Close()

	objects, err := bootstrap.OpenObjectStore(ctx, e.cfg)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	key, err := backup.New(e.ledger, objects, e.cfg.Backup.Interval, e.cfg.Backup.Prefix).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Backup written to %s\n", key)
	return nil
}
