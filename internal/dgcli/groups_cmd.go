package dgcli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List configured backend service groups",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var list []ServiceGroup
		if err := client.GetJSON("/groups", &list); err != nil {
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
		fmt.Fprintf(tw, "ID\tNAME\tENDPOINTS\n")
		for _, group := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", group.ID, group.Name, len(group.Endpoints))
		}
		flushTable(tw)
	},
}

// ServiceGroup mirrors the gateway's group registry entries.
type ServiceGroup struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Endpoints []GroupEndpoint `json:"endpoints"`
}

// GroupEndpoint mirrors one probed endpoint.
type GroupEndpoint struct {
	Name     string `json:"name"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Critical bool   `json:"critical"`
}
