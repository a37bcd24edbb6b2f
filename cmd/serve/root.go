package serve

import (
	"fmt"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/dRDB/cmd/util"
	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/rpc/common"
	"github.com/ValentinKolb/dRDB/rpc/router"
	"github.com/ValentinKolb/dRDB/rpc/serializer"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dRDB node",
		Long:    `Start a dRDB node with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DRDB_<flag> (e.g. DRDB_CPU_SHARDS=8)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "cpu-shards"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of CPU shards the node splits its hash universe into (0 = one per CPU core)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Request timeout in seconds"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(Cluster Mode) Average Round Trip Time (RTT) in milliseconds between two nodes. Other raft timing parameters are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10000, cmdUtil.WrapString("(Cluster Mode) How often the state machine should be snapshotted, in applied raft log entries"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5000, cmdUtil.WrapString("(Cluster Mode) Number of applied entries retained after a snapshot-triggered log compaction"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(Cluster Mode) Directory used for raft logs and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().Uint64(key, 0, cmdUtil.WrapString("(Cluster Mode) Unique identifier of this replica"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) Comma-separated list of replica addresses in the format '1=localhost:63001,2=localhost:63002,...'"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and
// environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.CPUShards = viper.GetInt("cpu-shards")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.RTTMillisecond = uint64(viper.GetInt("rtt-millisecond"))
	serveCmdConfig.SnapshotEntries = uint64(viper.GetInt("snapshot-entries"))
	serveCmdConfig.CompactionOverhead = uint64(viper.GetInt("compaction-overhead"))
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.ReplicaID = viper.GetUint64("replica-id")

	// parse cluster members
	members := viper.GetString("cluster-members")
	if members != "" {
		serveCmdConfig.ClusterMembers = map[uint64]string{}
		for _, member := range strings.Split(members, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member %q, expected ID=ADDRESS", member)
			}
			id, err := strconv.ParseUint(parts[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid replica id %q: %w", parts[0], err)
			}
			serveCmdConfig.ClusterMembers[id] = parts[1]
		}
	}

	return nil
}

// run starts the node
func run(cmd *cobra.Command, _ []string) error {
	common.InitLoggers(*serveCmdConfig)

	// select the serializer
	var s serializer.IRPCSerializer
	switch name, _ := cmd.Flags().GetString("serializer"); name {
	case "", "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("unknown serializer %q", name)
	}

	ctx := cluster.NewContext(cluster.ContextConfig{
		NumWorkers: serveCmdConfig.CPUShards,
		MachineID:  uuid.New(),
	})

	node := router.NewNode(serveCmdConfig.CPUShards, ctx, s)
	return node.Listen(*serveCmdConfig)
}
