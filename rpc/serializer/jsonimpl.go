package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dTX/rpc/common"
)

// NewJSONSerializer creates a serializer using json encoding. The output is
// readable in http traces, the message type is written by name.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

func (jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}
