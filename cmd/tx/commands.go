package tx

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [store] [path]",
		Short: "Reads the committed data at a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, path, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			data, err := session.Get(store, path)
			if err != nil {
				return err
			}
			printData(store, path, data)
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [store] [path]",
		Short: "Checks if data exists at or below a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, path, err := parseTarget(args[0], args[1])
			if err != nil {
				return err
			}
			txn := session.NewReadWriteTransaction()
			defer txn.Cancel()

			exists, err := txn.Exists(store, path).Wait()
			if err != nil {
				return err
			}
			fmt.Printf("store=%s, path=%s, exists=%v\n", store, path, exists)
			return nil
		},
	}
	applyCmd = &cobra.Command{
		Use:   "apply [put|merge|delete] [store] [path] [value]",
		Short: "Writes to the data owner in a read-write transaction and commits it",
		Long:  "Writes to the data owner in a read-write transaction and commits it. The value is required for put and merge.",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, path, err := parseTarget(args[1], args[2])
			if err != nil {
				return err
			}

			start := time.Now()
			txn := session.NewReadWriteTransaction()
			op := strings.ToLower(args[0])
			switch op {
			case "put", "merge":
				if len(args) != 4 {
					return fmt.Errorf("%s requires a value", op)
				}
				if op == "put" {
					err = txn.Put(store, path, tx.NewNodeString(args[3]))
				} else {
					err = txn.Merge(store, path, tx.NewNodeString(args[3]))
				}
			case "delete":
				err = txn.Delete(store, path)
			default:
				return fmt.Errorf("invalid operation %s (expected put, merge or delete)", args[0])
			}
			if err != nil {
				txn.Cancel()
				return err
			}

			info, err := txn.Commit().Wait()
			if err != nil {
				return err
			}
			fmt.Printf("committed %s (version %d) in %s\n", info.TxID, info.Version, time.Since(start).Round(time.Microsecond))

			if stats, _ := cmd.Flags().GetBool("stats"); stats {
				gometrics.WriteOnce(gometrics.DefaultRegistry, os.Stdout)
			}
			return nil
		},
	}
	editCmd = &cobra.Command{
		Use:   "edit [merge|replace|create|delete|remove] [store] [path] [value]",
		Short: "Edits the candidate and commits it",
		Long: `Edits the candidate of the session and commits it.
create fails if data exists at the path, delete fails if there is none, remove ignores missing data.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := common.ParseEditOp(args[0])
			if err != nil {
				return err
			}
			store, path, err := parseTarget(args[1], args[2])
			if err != nil {
				return err
			}
			var value []byte
			switch {
			case op == common.EditDelete || op == common.EditRemove:
			case len(args) == 4:
				value = []byte(args[3])
			default:
				return fmt.Errorf("%s requires a value", op)
			}

			if err := session.Edit(op, store, path, value); err != nil {
				return err
			}
			if validate, _ := cmd.Flags().GetBool("validate"); validate {
				if err := session.Validate(); err != nil {
					_ = session.Discard()
					return err
				}
			}
			if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
				fmt.Println("candidate discarded")
				return session.Discard()
			}

			info, err := session.Commit()
			if err != nil {
				return err
			}
			fmt.Printf("committed %s (version %d)\n", info.TxID, info.Version)
			return nil
		},
	}
	ownerCmd = &cobra.Command{
		Use:   "owner",
		Short: "Prints the endpoint of the node owning the data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := session.Owner()
			if err != nil {
				return err
			}
			fmt.Println(endpoint)
			return nil
		},
	}
)

func parseTarget(store, path string) (tx.LogicalStore, tx.Path, error) {
	s, err := tx.ParseLogicalStore(store)
	if err != nil {
		return 0, "", err
	}
	p, err := tx.ParsePath(path)
	if err != nil {
		return 0, "", err
	}
	return s, p, nil
}

func printData(store tx.LogicalStore, path tx.Path, data tx.Optional[tx.Node]) {
	node, ok := data.Get()
	if !ok {
		fmt.Printf("store=%s, path=%s, found=false\n", store, path)
		return
	}
	fmt.Printf("store=%s, path=%s, found=true, data=%s\n", store, path, node)
}
