// Package client implements the RPC client of the transaction system.
//
// Key Components:
//
//   - RPCSession: A management session on a server. Candidate operations
//     (Edit, Validate, Commit, Discard) work on the single candidate transaction
//     the server keeps for the session, Get reads committed data without
//     touching the candidate.
//
//   - NewReadWriteTransaction: Returns a proxy.TransactionProxy that is usable
//     immediately. In the background the session asks for the data owner, connects
//     to it and opens a running transaction there. Operations issued before that
//     completes are queued by the proxy and replayed in order.
//
//   - remoteTransaction: The proxy.Endpoint of a running transaction. It sends
//     requests one at a time through an ordered mailbox. Asks fail with
//     tx.ErrAskTimeout when the owner does not answer in time, which the proxy
//     reports as "master is down, retry".
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond:         5,
//	  AskTimeoutMillisecond: 2000,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints: []string{"localhost:8080"},
//	  },
//	}
//
//	session, _ := client.NewRPCSession(1, config, tcp.NewTCPClientTransport, serializer.NewBinarySerializer())
//	defer session.Close()
//
//	// candidate
//	_ = session.Edit(common.EditMerge, tx.Configuration, tx.NewPath("interfaces", "eth0"), []byte(`{"mtu":1500}`))
//	info, _ := session.Commit()
//
//	// running transaction
//	txn := session.NewReadWriteTransaction()
//	_ = txn.Put(tx.Operational, tx.NewPath("stats"), tx.NewNodeString(`{}`))
//	info, err := txn.Commit().Wait()
//
// Thread Safety:
//
//	Sessions and proxies are safe for concurrent use. Operations on one proxy
//	reach the owner in the order they were issued.
package client
