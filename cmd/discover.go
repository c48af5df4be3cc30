package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/flair-bridge/internal/pkg/discovery"
	"github.com/jake-scott/flair-bridge/internal/pkg/nodes"
)

var _discoverCmdOpts struct {
	asJSON bool
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Walk the Flair account once and print the nodes it would create",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doDiscover(cmd.Context())
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("flair.client-id", "flair.client-secret")
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&_discoverCmdOpts.asJSON, "json", false, "print nodes as JSON")
	errPanic(viper.GetViper().BindPFlag("discover.json", discoverCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(discoverCmd)
}

type discoveredNode struct {
	Address  string     `json:"address"`
	Parent   string     `json:"parent"`
	Name     string     `json:"name"`
	Kind     nodes.Kind `json:"kind"`
	RemoteID string     `json:"remote-id"`
}

func doDiscover(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	api, err := flairClient(flairCredentials())
	if err != nil {
		return err
	}

	descs, err := discovery.NewWalker(api).Walk(ctx)
	if err != nil {
		return err
	}

	found := make([]discoveredNode, 0, len(descs))
	for _, d := range descs {
		n := discoveredNode{
			Address: d.Address.String(),
			Parent:  d.Parent.String(),
			Name:    d.Name,
			Kind:    d.Kind,
		}
		if d.Resource != nil {
			n.RemoteID = d.Resource.ID
		}
		found = append(found, n)
	}

	if viper.GetBool("discover.json") {
		b, err := json.MarshalIndent(found, "", "    ")
		if err != nil {
			return err
		}

		fmt.Println(string(b))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tPARENT\tKIND\tNAME\tFLAIR ID")
	for _, n := range found {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.Address, n.Parent, n.Kind, n.Name, n.RemoteID)
	}

	return w.Flush()
}
