package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/ledger"
	"github.com/your-org/attendance/internal/models"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Export ledger rows as CSV",
	Long: `Writes attendance rows (or leave rows with --leaves) to stdout in the
ledger's own CSV layout. Dates are inclusive YYYY-MM-DD bounds.`,
	Args: cobra.NoArgs,
	RunE: runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	addFilterFlags(attendanceCmd)
	attendanceCmd.Flags().Bool("leaves", false, "Export the leave ledger instead")
}

func addFilterFlags(c *cobra.Command) {
	c.Flags().String("identity", "", "Only rows for this identity")
	c.Flags().String("from", "", "First date (YYYY-MM-DD)")
	c.Flags().String("to", "", "Last date (YYYY-MM-DD)")
}

func filterFromFlags(cmd *cobra.Command) (ledger.Filter, error) {
	f := ledger.Filter{
		Identity: mustGetString(cmd, "identity"),
		From:     mustGetString(cmd, "from"),
		To:       mustGetString(cmd, "to"),
	}
	for _, d := range []string{f.From, f.To} {
		if err := checkDate(d); err != nil {
			return f, err
		}
	}
	return f, nil
}

func checkDate(d string) error {
	if d == "" {
		return nil
	}
	if _, err := time.Parse(models.DateLayout, d); err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
	}
	return nil
}

func runAttendance(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, true)
	if err != nil {
		return err
	}
	defer e.Close()

	var evs []models.AttendanceEvent
	if mustGetBool(cmd, "leaves") {
		evs, err = e.ledger.Leaves(ctx, f)
	} else {
		evs, err = e.ledger.Attendance(ctx, f)
	}
	if err != nil {
		return err
	}
	return ledger.WriteCSV(os.Stdout, evs)
}
