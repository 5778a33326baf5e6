package cmd

import (
	"fmt"

	"github.com/atinyakov/GophFill/internal/certgen"
	"github.com/spf13/cobra"
)

var certFlags = struct {
	dir     string
	hosts   []string
	bridges []string
}{}

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Provision certificates for mutual TLS between the daemon and its bridges",
}

var certsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a CA, a server certificate and one client certificate per bridge",
	Long: "Writes PEM files into --dir. An existing CA in that directory is reused, so the command " +
		"can be run again to add bridges.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := certgen.WriteBundle(certFlags.dir, certFlags.hosts, certFlags.bridges); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "certificates written to %s\n", certFlags.dir)
		return nil
	},
}

func init() {
	certsInitCmd.Flags().StringVar(&certFlags.dir, "dir", "certs", "output directory")
	certsInitCmd.Flags().StringSliceVar(&certFlags.hosts, "host", []string{"localhost", "127.0.0.1"}, "server host names and addresses")
	certsInitCmd.Flags().StringSliceVar(&certFlags.bridges, "bridge", []string{"browser-bridge"}, "bridge common names")
	certsCmd.AddCommand(certsInitCmd)
}
