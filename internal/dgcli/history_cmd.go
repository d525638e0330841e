package dgcli

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyGroup string
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show persisted validation reports",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		query := url.Values{}
		if historyGroup != "" {
			query.Set("group", historyGroup)
		}
		if historyLimit > 0 {
			query.Set("limit", fmt.Sprintf("%d", historyLimit))
		}
		path := "/history"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var records []HealthRecord
		if err := client.GetJSON(path, &records); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(records); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "GROUP\tSCORE\tSTATUS\tCHECKED\n")
		for _, rec := range records {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
				rec.Group,
				rec.Score,
				strings.ToUpper(rec.Status),
				relativeTime(rec.CheckedAt))
		}
		flushTable(tw)
	},
}

// HealthRecord mirrors one persisted validation report.
type HealthRecord struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checkedAt"`
}

func init() {
	historyCmd.Flags().StringVar(&historyGroup, "group", "", "Filter by service group")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum reports to return")
	rootCmd.AddCommand(historyCmd)
}
