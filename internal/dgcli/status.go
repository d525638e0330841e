package dgcli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway status and overall integration health",
	Run: func(cmd *cobra.Command, args []string) {
		client, ctx, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		var liveness struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		}
		if err := client.GetJSON("/healthz", &liveness); err != nil {
			exitWithError(cmd, fmt.Errorf("gateway unreachable: %w", err))
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
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "Server\t%s\n", ctx.Server)
		fmt.Fprintf(tw, "Version\t%s\n", liveness.Version)
		fmt.Fprintf(tw, "Overall Score\t%d\n", summary.Score)
		fmt.Fprintf(tw, "Overall Status\t%s\n", summary.Status)
		fmt.Fprintf(tw, "Groups Checked\t%d\n", len(summary.Reports))
		if !summary.CheckedAt.IsZero() {
			fmt.Fprintf(tw, "Checked\t%s\n", summary.CheckedAt.Format(time.RFC3339))
		}
		flushTable(tw)
	},
}

// HealthSummary mirrors the gateway's aggregated validation response.
type HealthSummary struct {
	Score     int            `json:"score"`
	Status    string         `json:"status"`
	Reports   []HealthReport `json:"reports"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// HealthReport mirrors one group's validation result.
type HealthReport struct {
	Group        string        `json:"group"`
	GroupName    string        `json:"groupName"`
	Score        int           `json:"score"`
	Status       string        `json:"status"`
	Issues       []HealthIssue `json:"issues"`
	Endpoints    int           `json:"endpoints"`
	Failed       int           `json:"failed"`
	AvgLatencyMs int64         `json:"avgLatencyMs"`
	MaxLatencyMs int64         `json:"maxLatencyMs"`
	CheckedAt    time.Time     `json:"checkedAt"`
}

// HealthIssue mirrors one detected endpoint issue.
type HealthIssue struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Endpoint string `json:"endpoint"`
	Message  string `json:"message"`
}
