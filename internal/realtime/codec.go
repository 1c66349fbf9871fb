package realtime

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// codec encodes frames for one websocket message type.
type codec interface {
	frameType() int
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	// Change kinds go out as their names, matching the JSON form.
	opts.TextMarshaler = cbor.TextMarshalerTextString
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("realtime: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("realtime: CBOR decoder initialization failed: " + err.Error())
	}
}

type jsonCodec struct{}

func (jsonCodec) frameType() int                     { return websocket.TextMessage }
func (jsonCodec) marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct{}

func (cborCodec) frameType() int                     { return websocket.BinaryMessage }
func (cborCodec) marshal(v any) ([]byte, error)      { return cborEnc.Marshal(v) }
func (cborCodec) unmarshal(data []byte, v any) error { return cborDec.Unmarshal(data, v) }

// codecFor picks the codec matching an incoming frame type.
func codecFor(messageType int) (codec, error) {
	switch messageType {
	case websocket.TextMessage:
		return jsonCodec{}, nil
	case websocket.BinaryMessage:
		return cborCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported frame type %d", messageType)
	}
}
