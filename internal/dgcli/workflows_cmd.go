package dgcli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Manage governance workflow executions",
}

// WorkflowExecution mirrors the gateway's execution snapshot.
type WorkflowExecution struct {
	ID             string    `json:"id"`
	Workflow       string    `json:"workflow"`
	Status         string    `json:"status"`
	TotalSteps     int       `json:"totalSteps"`
	CompletedSteps int       `json:"completedSteps"`
	FailedSteps    int       `json:"failedSteps"`
	CurrentStep    string    `json:"currentStep"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Error          string    `json:"error"`
}

var workflowsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mirrored workflow executions",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var list []WorkflowExecution
		if err := client.GetJSON("/workflows", &list); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(list); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "ID\tWORKFLOW\tSTATUS\tPROGRESS\tUPDATED\n")
		for _, exec := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\n",
				shortID(exec.ID),
				exec.Workflow,
				strings.ToUpper(exec.Status),
				exec.CompletedSteps,
				exec.TotalSteps,
				relativeTime(exec.UpdatedAt))
		}
		flushTable(tw)
	},
}

var workflowsGetCmd = &cobra.Command{
	Use:   "get <execution-id>",
	Short: "Describe a workflow execution",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var exec WorkflowExecution
		if err := client.GetJSON("/workflows/"+args[0], &exec); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(exec); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		printExecution(cmd, exec)
	},
}

var workflowsRunFile string

var workflowsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a workflow definition from a JSON file",
	Run: func(cmd *cobra.Command, args []string) {
		if workflowsRunFile == "" {
			exitWithError(cmd, fmt.Errorf("--file is required"))
			return
		}
		data, err := os.ReadFile(workflowsRunFile)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var def map[string]interface{}
		if err := json.Unmarshal(data, &def); err != nil {
			exitWithError(cmd, fmt.Errorf("invalid workflow definition: %w", err))
			return
		}

		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var exec WorkflowExecution
		if err := client.PostJSON("/workflows/execute", def, &exec); err != nil {
			exitWithError(cmd, err)
			return
		}
		if handled, err := writeJSON(exec); handled || err != nil {
			if err != nil {
				exitWithError(cmd, err)
			}
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Execution %s started (%s).\n", shortID(exec.ID), exec.Status)
	},
}

func workflowActionCommand(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <execution-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, _, err := mustClient()
			if err != nil {
				exitWithError(cmd, err)
				return
			}
			var exec WorkflowExecution
			if err := client.PostJSON("/workflows/"+args[0]+"/"+verb, nil, &exec); err != nil {
				exitWithError(cmd, err)
				return
			}
			if handled, err := writeJSON(exec); handled || err != nil {
				if err != nil {
					exitWithError(cmd, err)
				}
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Execution %s is now %s.\n", shortID(exec.ID), exec.Status)
		},
	}
}

func printExecution(cmd *cobra.Command, exec WorkflowExecution) {
	tw := newTable()
	fmt.Fprintf(tw, "Field\tValue\n")
	fmt.Fprintf(tw, "ID\t%s\n", exec.ID)
	fmt.Fprintf(tw, "Workflow\t%s\n", exec.Workflow)
	fmt.Fprintf(tw, "Status\t%s\n", exec.Status)
	fmt.Fprintf(tw, "Steps\t%d/%d\n", exec.CompletedSteps, exec.TotalSteps)
	if exec.FailedSteps > 0 {
		fmt.Fprintf(tw, "Failed Steps\t%d\n", exec.FailedSteps)
	}
	if exec.CurrentStep != "" {
		fmt.Fprintf(tw, "Current Step\t%s\n", exec.CurrentStep)
	}
	fmt.Fprintf(tw, "Started\t%s\n", relativeTime(exec.StartedAt))
	fmt.Fprintf(tw, "Updated\t%s\n", relativeTime(exec.UpdatedAt))
	if exec.Error != "" {
		fmt.Fprintf(tw, "Error\t%s\n", exec.Error)
	}
	flushTable(tw)
}

func init() {
	workflowsRunCmd.Flags().StringVarP(&workflowsRunFile, "file", "f", "", "Path to a workflow definition JSON file")

	workflowsCmd.AddCommand(workflowsListCmd)
	workflowsCmd.AddCommand(workflowsGetCmd)
	workflowsCmd.AddCommand(workflowsRunCmd)
	workflowsCmd.AddCommand(workflowActionCommand("cancel", "Cancel a running execution"))
	workflowsCmd.AddCommand(workflowActionCommand("pause", "Pause a running execution"))
	workflowsCmd.AddCommand(workflowActionCommand("resume", "Resume a paused execution"))
	workflowsCmd.AddCommand(workflowActionCommand("refresh", "Re-read an execution from the backend"))
}
