package metadata

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Payload is the decoded _metadata argument of a ManageEntity call.
// It is either a bare CID, a JSON envelope {"cid", "data"}, or a bare JSON object.
type Payload struct {
	CID  string
	Data json.RawMessage
}

type envelope struct {
	CID  string          `json:"cid"`
	Data json.RawMessage `json:"data"`
}

// ParsePayload decodes the _metadata argument of a ManageEntity call
func ParsePayload(raw string) Payload {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Payload{}
	}
	if !strings.HasPrefix(raw, "{") {
		return Payload{CID: raw}
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Not JSON after all, keep it as an opaque CID
		return Payload{CID: raw}
	}
	if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		return Payload{CID: env.CID, Data: env.Data}
	}
	if env.CID != "" {
		return Payload{CID: env.CID}
	}
	return Payload{Data: json.RawMessage(raw)}
}
