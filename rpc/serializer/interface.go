package serializer

import "github.com/ValentinKolb/dTX/rpc/common"

// IRPCSerializer converts messages to and from their wire format. Client and
// server must use the same implementation.
type IRPCSerializer interface {
	// Serialize encodes msg
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg. Fields of msg that are not present in b
	// are reset to their zero value.
	Deserialize(b []byte, msg *common.Message) error
}
