package tx

import (
	"github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/rpc/client"
	"github.com/spf13/cobra"
)

var (
	session *client.RPCSession

	// TransactionCommands represents the tx command group
	TransactionCommands = &cobra.Command{
		Use:                "tx",
		Short:              "Read and write data through transactions",
		PersistentPreRunE:  setupSession,
		PersistentPostRunE: closeSession,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the tx command
	util.SetupRPCClientFlags(TransactionCommands)

	// Add subcommands
	TransactionCommands.AddCommand(getCmd)
	TransactionCommands.AddCommand(existsCmd)
	TransactionCommands.AddCommand(applyCmd)
	TransactionCommands.AddCommand(editCmd)
	TransactionCommands.AddCommand(ownerCmd)

	applyCmd.Flags().Bool("stats", false, util.WrapString("Print the client metrics after the transaction completed"))
	editCmd.Flags().Bool("validate", false, util.WrapString("Validate the candidate before it is committed (the server must run with --validate)"))
	editCmd.Flags().Bool("dry-run", false, util.WrapString("Discard the candidate instead of committing it"))
}

// setupSession opens the management session used by all subcommands
func setupSession(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	session, err = client.NewRPCSession(util.GetShardID(), *config, t, s)
	return err
}

func closeSession(_ *cobra.Command, _ []string) error {
	if session == nil {
		return nil
	}
	return session.Close()
}
