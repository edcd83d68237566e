package server

import (
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/datastore/dstore"
	"github.com/ValentinKolb/dTX/lib/datastore/lstore"
	"github.com/ValentinKolb/dTX/lib/registry"
	"github.com/ValentinKolb/dTX/lib/session"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a shard served by the RPC server: the broker it
// encapsulates and the adapter that handles requests for it
type serverShard struct {
	Shard
	Broker  datastore.Broker
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, *serverShard](),
	}
}

// RPCServer serves the transaction protocol for the shards of one node
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, *serverShard]

	nodeHost *dragonboat.NodeHost
	metrics  *http.Server
	stopOnce sync.Once
}

// Handle decodes req, lets the adapter of the addressed shard process it and
// encodes the response. It is the handler registered with the transport.
func (s *RPCServer) Handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	if shard, ok := s.shards.Load(shardId); !ok {
		respMsg = common.NewErrorResponse(fmt.Errorf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(fmt.Errorf("failed to deserialize request: %w", err))
	} else {
		respMsg = shard.Adapter.Handle(&msg, &shard.Shard)
	}

	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", respMsg.MsgType, err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Errorf("failed to serialize response: %w", err)))
	}
	return val
}

// AddShard serves broker as shard id. Owner lookups are answered by owner.
func (s *RPCServer) AddShard(id uint64, broker datastore.Broker, owner OwnerFunc) {
	s.shards.Store(id, &serverShard{
		Shard: Shard{
			ID:       id,
			Sessions: session.NewManager(broker, registry.Config{IdleTimeout: s.config.IdleTimeout()}),
			Owner:    owner,
		},
		Broker:  broker,
		Adapter: NewSessionServerAdapter(),
	})
}

func (s *RPCServer) init() error {
	level := s.config.LogLevel
	if level == "" {
		level = "info"
	}
	if err := common.InitLoggers(level); err != nil {
		return err
	}

	var validator datastore.Validator
	if s.config.Validate {
		validator = datastore.NewValidator()
	}

	switch s.config.Mode {
	case common.ServerModeLocal, "":
		var opts []lstore.Option
		if validator != nil {
			opts = append(opts, lstore.WithValidator(validator))
		}
		endpoint := s.config.OwnEndpoint()
		s.AddShard(s.config.ShardID, lstore.NewLocalBroker(opts...), func() (string, error) { return endpoint, nil })
		Logger.Infof("created local broker for shard %d", s.config.ShardID)

	case common.ServerModeRaft:
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost

		if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, dstore.CreateStateMachineFactory(), s.config.ToDragonboatConfig()); err != nil {
			return fmt.Errorf("failed to start shard %d: %w", s.config.ShardID, err)
		}
		broker := dstore.NewDistributedBroker(nodeHost, s.config.ShardID, s.config.Timeout(), validator)
		s.AddShard(s.config.ShardID, broker, dstore.NewLeaderResolver(broker, s.config.ClusterRPCEndpoints).Endpoint)
		Logger.Infof("started raft replica %d for shard %d", s.config.ReplicaID, s.config.ShardID)

	default:
		return fmt.Errorf("invalid server mode: %s", s.config.Mode)
	}

	if s.config.MetricsEndpoint != "" {
		s.serveMetrics()
	}

	s.transport.RegisterHandler(s.Handle)
	Logger.Infof("dTX setup completed successfully")
	return nil
}

// serveMetrics exposes the process metrics in the prometheus text format
func (s *RPCServer) serveMetrics() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	s.metrics = &http.Server{Addr: s.config.MetricsEndpoint, Handler: mux}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metrics.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Stop closes the transport, every session and the brokers
func (s *RPCServer) Stop() {
	s.stopOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			Logger.Warningf("failed to close transport: %v", err)
		}
		s.shards.Range(func(id uint64, shard *serverShard) bool {
			shard.Sessions.CloseAll()
			if err := shard.Broker.Close(); err != nil {
				Logger.Warningf("failed to close broker of shard %d: %v", id, err)
			}
			return true
		})
		if s.metrics != nil {
			_ = s.metrics.Close()
		}
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
		Logger.Infof("Server stopped")
	})
}
