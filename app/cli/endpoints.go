package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/thunderhead-labs/poktinfo/app/collector"
	"github.com/thunderhead-labs/poktinfo/pkg/rpc"
)

type EndpointsCmd struct{}

func NewEndpointsCmd() *EndpointsCmd {
	return &EndpointsCmd{}
}

func (c *EndpointsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Validate candidate endpoints and print the accepted pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			from, err := cmd.Flags().GetInt("from")
			if err != nil {
				return fmt.Errorf("failed to get from flag: %w", err)
			}
			to, err := cmd.Flags().GetInt("to")
			if err != nil {
				return fmt.Errorf("failed to get to flag: %w", err)
			}
			reference, err := cmd.Flags().GetUint64("reference")
			if err != nil {
				return fmt.Errorf("failed to get reference flag: %w", err)
			}
			record, err := cmd.Flags().GetBool("record")
			if err != nil {
				return fmt.Errorf("failed to get record flag: %w", err)
			}
			if from == 0 && to == 0 {
				from, to = e.cfg.RPC.NodeFrom, e.cfg.RPC.NodeTo
			}
			if to <= from {
				return fmt.Errorf("to (%d) must be greater than from (%d)", to, from)
			}

			pool := rpc.NewPool()
			client := collector.NewRPC(e.cfg.RPC, pool, e.log.Named("rpc"))
			var recorder rpc.EndpointRecorder
			if record {
				store, err := e.store()
				if err != nil {
					return err
				}
				defer store.Close()
				recorder = store
			}
			validator := collector.NewValidator(e.cfg.RPC, client, pool, recorder, e.log.Named("validator"))

			if reference == 0 {
				reference, err = client.MainHead(e.ctx)
				if err != nil {
					return fmt.Errorf("failed to get reference height: %w", err)
				}
			}
			accepted, err := validator.PopulateAt(e.ctx, from, to, reference)
			if err != nil {
				return err
			}

			fmt.Printf("Reference height: %d\n", reference)
			fmt.Printf("Accepted: %d of %d\n", accepted, to-from)
			printEndpoints(pool.Snapshot(), reference)
			return nil
		},
	}

	cmd.Flags().Int("from", 0, "first candidate index (default RPC_NODE_FROM)")
	cmd.Flags().Int("to", 0, "candidate index to stop before (default RPC_NODE_TO)")
	cmd.Flags().Uint64("reference", 0, "reference height; 0 asks the main endpoint")
	cmd.Flags().Bool("record", false, "store every probe in rpc_endpoints")

	return cmd
}

func printEndpoints(endpoints []rpc.Endpoint, reference uint64) {
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].URL < endpoints[j].URL
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetHeader([]string{"Endpoint", "Height", "Lag"})
	for _, ep := range endpoints {
		table.Append([]string{
			ep.URL,
			fmt.Sprintf("%d", ep.Height),
			fmt.Sprintf("%d", reference-ep.Height),
		})
	}
	table.Render()
}
