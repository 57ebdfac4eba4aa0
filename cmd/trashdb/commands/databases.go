package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Giulio2002/trashdb"
)

var (
	slots   int
	dupSort bool
)

func init() {
	declareCmd.Flags().IntVar(&slots, "slots", 1, "read cursors pooled for the database")
	declareCmd.Flags().BoolVar(&dupSort, "dupsort", false, "allow duplicate keys (mdbx only)")
	rootCmd.AddCommand(declareCmd, listCmd, metricsCmd)
}

var declareCmd = &cobra.Command{
	Use:   "declare NAME",
	Short: "Declare a database, recording it in the metadata database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta := trashdb.DbMeta{Name: args[0], Slots: slots}
		if dupSort {
			meta.Flags |= trashdb.DupSort
		}
		return withEnv(func(env *trashdb.Env) error {
			return env.DeclareDatabase(meta)
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List declared databases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(env *trashdb.Env) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSLOTS\tFLAGS")
			for _, m := range env.Databases() {
				fmt.Fprintf(w, "%s\t%d\t%#x\n", m.Name, m.Slots, m.Flags)
			}
			return w.Flush()
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print environment metrics in Prometheus text format",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(env *trashdb.Env) error {
			env.WriteMetrics(os.Stdout)
			return nil
		})
	},
}
