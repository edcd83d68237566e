package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dTX/cmd/serve"
	"github.com/ValentinKolb/dTX/cmd/tx"
	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dtx",
		Short: "transactional tree datastore",
		Long: fmt.Sprintf(`dTX (v%s)

A transactional datastore for tree shaped configuration and operational
data. Clients edit a per-session candidate or open read-write transactions
that are forwarded to the node owning the data.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dTX",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dTX v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(tx.TransactionCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
