package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dTX/cmd/util"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dTX server",
		Long:    `Start the dTX server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTX_<flag> (e.g. DTX_IDLE_TIMEOUT=30)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "mode"
	ServeCmd.PersistentFlags().String(key, "local", cmdUtil.WrapString("Datastore backing the shard: local (in memory, single node) or raft (replicated)"))

	key = "shard"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("ID of the shard served by this node"))

	key = "idle-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Read-write transactions without activity for this many seconds are cancelled, sessions without transactions are closed. 0 disables the timeout"))

	key = "validate"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Enable the validate operation. Written values must then be valid JSON documents"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(raft mode) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. 0 disables automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(raft mode) CompactionOverhead defines the number of log entries kept after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(raft mode) DataDir is the directory used for storing the raft log and the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) ClusterMembers is a comma-separated list of raft addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "cluster-rpc-endpoints"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft mode) RPC endpoints of the cluster members in the same format as --cluster-members. Clients are sent to the endpoint of the current leader"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(raft mode) Timeout of raft proposals and reads in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "advertise-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(local mode) The endpoint clients should use to reach this node. Defaults to --endpoint"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Serve prometheus metrics on this address under /metrics (e.g. localhost:9090). Empty disables metrics"))

	key = "transport-workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 4, cmdUtil.WrapString("Number of workers handling the requests of one connection (only for tcp)"))

	key = "transport-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the read and write buffers (in KB, only for tcp)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time (in seconds, only for tcp, negative keeps the OS default)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Mode = common.ServerMode(viper.GetString("mode"))
	serveCmdConfig.ShardID = viper.GetUint64("shard")
	serveCmdConfig.IdleTimeoutSecond = viper.GetInt64("idle-timeout")
	serveCmdConfig.Validate = viper.GetBool("validate")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.AdvertiseEndpoint = viper.GetString("advertise-endpoint")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	bufferSize := viper.GetInt("transport-buffer") * 1024
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("transport-workers-per-conn"),
		BufferSize:     bufferSize,
		SocketConf: common.SocketConf{
			WriteBufferSize: bufferSize,
			ReadBufferSize:  bufferSize,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
		},
	}

	switch serveCmdConfig.Mode {
	case common.ServerModeLocal:
		return nil
	case common.ServerModeRaft:
		return processRaftConfig()
	default:
		return fmt.Errorf("invalid mode: %s (expected local or raft)", serveCmdConfig.Mode)
	}
}

// processRaftConfig parses the cluster layout, only needed in raft mode
func processRaftConfig() error {
	id := viper.GetString("replica-id")
	if id == "" {
		return fmt.Errorf("replica-id is required in raft mode")
	}
	serveCmdConfig.ReplicaID = cmdUtil.ReplicaID(id)

	members, err := cmdUtil.ParseMembers(viper.GetString("cluster-members"))
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return fmt.Errorf("cluster-members is required in raft mode")
	}
	if _, ok := members[serveCmdConfig.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %s in cluster members", id)
	}
	serveCmdConfig.ClusterMembers = members

	endpoints, err := cmdUtil.ParseMembers(viper.GetString("cluster-rpc-endpoints"))
	if err != nil {
		return err
	}
	for replica := range endpoints {
		if _, ok := members[replica]; !ok {
			return fmt.Errorf("rpc endpoint configured for unknown replica %d", replica)
		}
	}
	serveCmdConfig.ClusterRPCEndpoints = endpoints
	return nil
}

// run starts the dTX server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		serv.Stop()
	}()

	err = serv.Serve()
	serv.Stop()
	return err
}
