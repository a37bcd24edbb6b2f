package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dRDB/cmd/kv"
	"github.com/ValentinKolb/dRDB/cmd/serve"
	"github.com/ValentinKolb/dRDB/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "drdb",
		Short: "distributed sharded document store",
		Long: fmt.Sprintf(`dRDB (v%s)

A distributed, hash-and-range-sharded document store written in Go.
Nodes split their keyspace into CPU shards, execute queries per shard
and merge the results; replicas catch up via region-scoped backfill.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dRDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dRDB v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// A program's main function calls it; it only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
