// ABOUTME: Control message definitions for the conference bridge
// ABOUTME: Flat JSON objects relayed between clients and the master
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types understood by the server. Any other type is relayed
// untouched.
const (
	TypeConnected    = "connected"
	TypeDisconnected = "disconnected"
	TypeAdmit        = "audio/admit"
	TypeEvict        = "audio/evict"
	TypeAudioStart   = "audio/start"
	TypeAudioStop    = "audio/stop"
	TypeError        = "error"
)

// Values of the connection field.
const (
	ConnectionKeepAlive = "keep-alive"
	ConnectionClose     = "close"
)

// MsgMasterNotConnected is sent to a client whose text message cannot be
// relayed.
const MsgMasterNotConnected = "master not connected"

// CodecMulaw names the only audio codec on the wire.
const CodecMulaw = "mulaw"

// Control is a JSON control message. Fields that are not set are omitted.
type Control struct {
	Type       string       `json:"type,omitempty"`
	Addr       string       `json:"addr,omitempty"`
	From       string       `json:"from,omitempty"`
	ToSend     string       `json:"toSend,omitempty"`
	Connection string       `json:"connection,omitempty"`
	Msg        string       `json:"msg,omitempty"`
	Format     *AudioFormat `json:"format,omitempty"`
}

// AudioFormat describes the audio a client must send and will receive.
type AudioFormat struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	FrameBytes int    `json:"frame_bytes"`
	IntervalMs int    `json:"interval_ms"`
}

// Closes reports whether the message asks for its target to be
// disconnected.
func (c Control) Closes() bool {
	return strings.EqualFold(c.Connection, ConnectionClose)
}

// ParseControl decodes a control message.
func ParseControl(data []byte) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, fmt.Errorf("parse control message: %w", err)
	}
	return c, nil
}

// Marshal encodes c as JSON.
func (c Control) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Annotate sets string fields on an arbitrary JSON object, keeping every
// other field as received.
func Annotate(data []byte, fields map[string]string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("annotate control message: %w", err)
	}
	if obj == nil {
		obj = make(map[string]json.RawMessage, len(fields))
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}

// Connected builds the master notification for a newly connected client.
func Connected(addr string) Control {
	return Control{Type: TypeConnected, Addr: addr, Connection: ConnectionKeepAlive}
}

// Disconnected builds the master notification for a departed client.
func Disconnected(addr string) Control {
	return Control{Type: TypeDisconnected, Addr: addr, Connection: ConnectionKeepAlive}
}

// MasterMissing is sent to a client before it is disconnected because no
// master is available.
func MasterMissing() Control {
	return Control{Connection: ConnectionClose, Msg: MsgMasterNotConnected}
}
