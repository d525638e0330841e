package dgcli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health [group]",
	Short: "Validate backend service groups and show their scores",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		if len(args) == 1 {
			var report HealthReport
			if err := client.GetJSON("/integration/health/"+args[0], &report); err != nil {
				exitWithError(cmd, err)
				return
			}
			if handled, err := writeJSON(report); handled || err != nil {
				if err != nil {
					exitWithError(cmd, err)
				}
				return
			}
			printReport(cmd, report)
			return
		}

		var summary HealthSummary
		if err := client.GetJSON("/integration/health", &summary); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(summary); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "GROUP\tSCORE\tSTATUS\tISSUES\tAVG LATENCY\n")
		for _, report := range summary.Reports {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%dms\n",
				report.Group,
				report.Score,
				strings.ToUpper(report.Status),
				len(report.Issues),
				report.AvgLatencyMs)
		}
		flushTable(tw)
		fmt.Fprintf(cmd.OutOrStdout(), "\nOverall: %d (%s)\n", summary.Score, summary.Status)
	},
}

func printReport(cmd *cobra.Command, report HealthReport) {
	tw := newTable()
	fmt.Fprintf(tw, "Field\tValue\n")
	fmt.Fprintf(tw, "Group\t%s\n", report.Group)
	fmt.Fprintf(tw, "Score\t%d\n", report.Score)
	fmt.Fprintf(tw, "Status\t%s\n", report.Status)
	fmt.Fprintf(tw, "Endpoints\t%d\n", report.Endpoints)
	fmt.Fprintf(tw, "Failed\t%d\n", report.Failed)
	fmt.Fprintf(tw, "Avg Latency\t%dms\n", report.AvgLatencyMs)
	fmt.Fprintf(tw, "Max Latency\t%dms\n", report.MaxLatencyMs)
	flushTable(tw)

	if len(report.Issues) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nIssues:")
		for _, issue := range report.Issues {
			fmt.Fprintf(cmd.OutOrStdout(), "- [%s/%s] %s: %s\n",
				issue.Category, issue.Severity, issue.Endpoint, issue.Message)
		}
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Schedule an asynchronous validation pass",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var job Job
		if err := client.PostJSON("/integration/validate", nil, &job); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(job); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Validation scheduled: job %s\n", shortID(job.ID))
	},
}
