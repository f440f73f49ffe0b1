package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/notify"
	"github.com/your-org/attendance/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Attendance reports",
}

var reportLateCmd = &cobra.Command{
	Use:   "late",
	Short: "List attendance rows recorded after the late cutoff",
	Args:  cobra.NoArgs,
	RunE:  runReportLate,
}

var reportLowCmd = &cobra.Command{
	Use:   "low",
	Short: "List identities below the attendance ratio",
	Args:  cobra.NoArgs,
	RunE:  runReportLow,
}

var reportAbsentCmd = &cobra.Command{
	Use:   "absentees",
	Short: "List enrolled identities with no attendance on a date",
	Args:  cobra.NoArgs,
	RunE:  runReportAbsent,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportLateCmd, reportLowCmd, reportAbsentCmd)

	addFilterFlags(reportLateCmd)
	addFilterFlags(reportLowCmd)
	reportAbsentCmd.Flags().String("date", "", "Date to check (YYYY-MM-DD, default today)")
	reportAbsentCmd.Flags().Bool("notify", false, "Email the absentee list to the default recipient")
}

func openReports(cmd *cobra.Command) (*env, *report.Service, error) {
	e, err := openEnv(cmd.Context(), true)
	if err != nil {
		return nil, nil, err
	}
	var sender notify.Sender
	if e.cfg.Notify.SMTP.Host != "" {
		sender = notify.NewSMTPSender(e.cfg.Notify.SMTP)
	}
	svc, err := report.New(e.ledger, e.gallery, sender, e.cfg.Notify.DefaultTo, e.cfg.Report.LateAfter, e.cfg.Report.LowAttendanceRatio)
	if err != nil {
		e.Close()
		return nil, nil, err
	}
	return e, svc, nil
}

func runReportLate(cmd *cobra.Command, _ []string) error {
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	e, svc, err := openReports(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	rows, err := svc.LateComers(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Printf("Nobody arrived after %s.\n", svc.LateAfter())
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tDATE\tTIME")
	fmt.Fprintln(w, "--------\t----\t----")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Identity, r.Date, r.Time)
	}
	return w.Flush()
}

func runReportLow(cmd *cobra.Command, _ []string) error {
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	e, svc, err := openReports(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	low, err := svc.LowAttendance(cmd.Context(), f)
	if err != nil {
		return err
	}
	fmt.Printf("Recorded days: %d, threshold: %.1f days\n\n", low.TotalDays, low.Threshold)
	if len(low.Persons) == 0 {
		fmt.Println("No identities below the threshold.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTITY\tDAYS\tRATE")
	fmt.Fprintln(w, "--------\t----\t----")
	for _, p := range low.Persons {
		fmt.Fprintf(w, "%s\t%d\t%.0f%%\n", p.Identity, p.Days, p.Rate*100)
	}
	return w.Flush()
}

func runReportAbsent(cmd *cobra.Command, _ []string) error {
	date := mustGetString(cmd, "date")
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	}
	if err := checkDate(date); err != nil {
		return err
	}
	e, svc, err := openReports(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	var (
		names []string
		sent  bool
	)
	if mustGetBool(cmd, "notify") {
		names, sent, err = svc.NotifyAbsentees(cmd.Context(), date)
	} else {
		names, err = svc.Absentees(cmd.Context(), date)
	}
	if err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Printf("Everyone attended on %s.\n", date)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	if sent {
		fmt.Fprintf(os.Stderr, "Absentee list mailed to %s\n", e.cfg.Notify.DefaultTo)
	}
	return nil
}
