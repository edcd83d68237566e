package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf tunes the socket buffers of stream transports
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf tunes TCP connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int // negative leaves the OS default
}

// ServerTransportConfig configures the server side transport
type ServerTransportConfig struct {
	Endpoint       string
	WorkersPerConn int
	BufferSize     int
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the client side transport
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerMode selects the datastore the server runs on
type ServerMode string

const (
	ServerModeLocal ServerMode = "local" // single node, in memory
	ServerModeRaft  ServerMode = "raft"  // replicated through dragonboat
)

// ServerConfig holds all configuration parameters of a server node.
type ServerConfig struct {
	Mode    ServerMode
	ShardID uint64

	// Dragonboat parameters (raft mode only)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string // replica id -> raft address

	// Owner discovery
	ClusterRPCEndpoints map[uint64]string // replica id -> rpc endpoint
	AdvertiseEndpoint   string            // rpc endpoint clients should use for this node

	// Transactions
	TimeoutSecond     int64 // raft operations
	IdleTimeoutSecond int64 // idle transactions are cancelled and unused sessions closed, 0 disables
	Validate          bool  // enable the validate extension

	Transport ServerTransportConfig

	// Metrics are served on this address under /metrics, empty disables
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Timeout returns TimeoutSecond as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// IdleTimeout returns IdleTimeoutSecond as a duration
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecond) * time.Second
}

// OwnEndpoint returns the endpoint advertised for this node, falling back to
// the listen address
func (c *ServerConfig) OwnEndpoint() string {
	if c.AdvertiseEndpoint != "" {
		return c.AdvertiseEndpoint
	}
	return c.Transport.Endpoint
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Advertised Endpoint", c.OwnEndpoint())
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.Transport.BufferSize))
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
	addField("Metrics", orNone(c.MetricsEndpoint))

	// Transactions
	addSection("Transactions")
	addField("Mode", string(c.Mode))
	addField("Shard", strconv.FormatUint(c.ShardID, 10))
	addField("Idle Timeout", fmt.Sprintf("%d sec", c.IdleTimeoutSecond))
	addField("Validate", fmt.Sprintf("%t", c.Validate))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Mode == ServerModeRaft {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")
		for _, k := range sortedKeys(c.ClusterMembers) {
			sb.WriteString(fmt.Sprintf("    Node %d: %s (rpc %s)\n", k, c.ClusterMembers[k], orNone(c.ClusterRPCEndpoints[k])))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	TimeoutSecond         int // per request
	AskTimeoutMillisecond int // asks of remote transactions, 0 uses TimeoutSecond
	Transport             ClientTransportConfig
}

// Timeout returns TimeoutSecond as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// AskTimeout returns the timeout used for asks of remote transactions
func (c *ClientConfig) AskTimeout() time.Duration {
	if c.AskTimeoutMillisecond > 0 {
		return time.Duration(c.AskTimeoutMillisecond) * time.Millisecond
	}
	return c.Timeout()
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Ask Timeout", c.AskTimeout().String())
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func sortedKeys(m map[uint64]string) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
