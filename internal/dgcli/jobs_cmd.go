package dgcli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect asynchronous gateway jobs",
}

// Job mirrors the gateway's job records.
type Job struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message"`
	Result    map[string]interface{} `json:"result"`
	Error     string                 `json:"error"`
	Attempts  int                    `json:"attempts"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var jobs []Job
		if err := client.GetJSON("/jobs", &jobs); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(jobs); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "ID\tTYPE\tSTATUS\tATTEMPTS\tUPDATED\n")
		for _, job := range jobs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				shortID(job.ID),
				job.Type,
				strings.ToUpper(job.Status),
				job.Attempts,
				relativeTime(job.UpdatedAt))
		}
		flushTable(tw)
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Describe a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var job Job
		if err := client.GetJSON("/jobs/"+args[0], &job); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(job); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "ID\t%s\n", job.ID)
		fmt.Fprintf(tw, "Type\t%s\n", job.Type)
		fmt.Fprintf(tw, "Status\t%s\n", job.Status)
		fmt.Fprintf(tw, "Attempts\t%d\n", job.Attempts)
		fmt.Fprintf(tw, "Created\t%s\n", relativeTime(job.CreatedAt))
		fmt.Fprintf(tw, "Updated\t%s\n", relativeTime(job.UpdatedAt))
		if job.Error != "" {
			fmt.Fprintf(tw, "Error\t%s\n", job.Error)
		}
		flushTable(tw)

		if len(job.Result) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "\nResult:")
			_ = printJSON(job.Result)
		}
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
}
