package commands

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Giulio2002/trashdb"
)

var (
	prefix      string
	limit       int
	noOverwrite bool
)

func init() {
	putCmd.Flags().BoolVar(&noOverwrite, "no-overwrite", false, "fail if the key exists")
	scanCmd.Flags().StringVar(&prefix, "prefix", "", "only print keys with this prefix")
	scanCmd.Flags().IntVar(&limit, "limit", 0, "stop after this many keys, 0 for no limit")
	rootCmd.AddCommand(putCmd, getCmd, delCmd, scanCmd)
}

var putCmd = &cobra.Command{
	Use:   "put DB KEY VALUE",
	Short: "Store a key",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := trashdb.Upsert
		if noOverwrite {
			flags = trashdb.NoOverwrite
		}
		return withEnv(func(env *trashdb.Env) error {
			return env.Update(args[0], func(txn *trashdb.Txn) error {
				return txn.Put([]byte(args[1]), []byte(args[2]), flags)
			})
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get DB KEY",
	Short: "Print the value of a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(env *trashdb.Env) error {
			return env.View(nil, args[0], func(txn *trashdb.Txn) error {
				v, err := txn.Get([]byte(args[1]))
				if err != nil {
					return err
				}
				fmt.Println(string(v))
				return nil
			})
		})
	},
}

var delCmd = &cobra.Command{
	Use:   "del DB KEY",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(env *trashdb.Env) error {
			return env.Update(args[0], func(txn *trashdb.Txn) error {
				return txn.Del([]byte(args[1]))
			})
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan DB",
	Short: "Print keys and values in key order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withEnv(func(env *trashdb.Env) error {
			return env.View(nil, args[0], func(txn *trashdb.Txn) error {
				c, err := txn.Cursor(ctx)
				if err != nil {
					return err
				}
				defer c.Release()

				p := []byte(prefix)
				op := trashdb.SetRange
				if len(p) == 0 {
					op = trashdb.First
				}
				k, v, err := c.Get(p, nil, op)
				for n := 0; err == nil && bytes.HasPrefix(k, p); n++ {
					if limit > 0 && n >= limit {
						return nil
					}
					fmt.Printf("%s\t%s\n", k, v)
					k, v, err = c.Get(nil, nil, trashdb.Next)
				}
				if err != nil && !trashdb.IsNotFound(err) {
					return err
				}
				return nil
			})
		})
	},
}
