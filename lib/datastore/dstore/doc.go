// Package dstore implements a replicated, fault-tolerant datastore.Broker on
// top of the Dragonboat RAFT consensus library. Transactions read from a
// linearizable snapshot of the replicated tree and commit their complete
// modification log as a single raft entry.
//
// Architecture:
//
//   - Broker: Implements datastore.Broker. Every transaction it hands out
//     buffers its modifications locally; Commit serializes the log into a
//     Command and proposes it to the shard.
//
//   - State Machine: A Dragonboat IConcurrentStateMachine holding an immutable
//     datastore.Tree. Each committed Command is applied to a clone of the
//     current tree which is then published atomically.
//
//   - Communication Protocol: Defined in the internal package (Command and
//     Query with their binary encoding).
//
// Write Operations:
//
//	1. The transaction's modification log is serialized into a Command
//	2. The Command is proposed to the RAFT cluster via SyncPropose
//	3. Once committed, every replica applies the log all-or-nothing (Update in statemachine.go)
//	4. The raft index of the entry becomes the new tree version and is returned as tx.CommitInfo
//
//	A log that fails to apply (for example a modification on an unknown store)
//	leaves the tree untouched and fails the commit on every replica alike.
//
// Read Operations:
//
//   - Snapshots: The first read of a transaction fetches the current tree via
//     SyncRead, so a transaction observes everything committed before it
//     started reading. Subsequent reads use the same tree plus the
//     transaction's own modifications.
//
//   - Version: Uses StaleRead and may lag behind the leader.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to a fixed number of attempts.
//
//	- Timeouts: All raft operations use the timeout passed to NewDistributedBroker.
//	  Other failures are returned as *datastore.Error.
//
// Snapshotting and Recovery:
//
//   - Snapshots are taken without pausing updates: PrepareSnapshot captures the
//     current immutable tree and SaveSnapshot serializes it.
//
//   - On startup or when joining a cluster, replicas restore the latest
//     snapshot and then replay the log entries committed after it.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(),
//	    shardConfig)
//	if err != nil { ... }
//
//	broker := dstore.NewDistributedBroker(nh, shardID, 5*time.Second, datastore.NewValidator())
//
// Limitations:
//
//   - Majority Requirement: Commits cannot proceed if a majority of replicas is unavailable
//   - Leader Dependency: Writes and linearizable reads require a leader
//
// For a single node without consensus overhead use the lstore package, which
// implements the same interface in memory.
package dstore
