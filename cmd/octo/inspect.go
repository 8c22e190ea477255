package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectPublicationCmd, inspectVersionCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print raw Octopus API responses",
	Long: `Fetch a publication or a publication version from the Octopus API and
print the response as returned. Useful when a record comes out wrong.`,
}

var inspectPublicationCmd = &cobra.Command{
	Use:   "publication <id>",
	Short: "Fetch a publication with all of its versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mustValidate(false)
		pub, err := newOctopusClient().FetchPublication(cmd.Context(), args[0])
		exitOnError(err, "fetching publication "+args[0])
		return outputJSON(pub)
	},
}

var inspectVersionCmd = &cobra.Command{
	Use:   "version <id>",
	Short: "Fetch a single publication version",
	Long: `Fetch a single publication version. The public Octopus API may refuse
this endpoint (403); syncing never depends on it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mustValidate(false)
		v, err := newOctopusClient().FetchVersion(cmd.Context(), args[0])
		exitOnError(err, "fetching version "+args[0])
		return outputJSON(v)
	},
}
