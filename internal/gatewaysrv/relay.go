package gatewaysrv

import (
	jsoniter "github.com/json-iterator/go"
)

// fastJSON is the jsoniter configuration used to decode inbound relay
// frames. This is the one hot path in the Gateway that parses
// untrusted, high-frequency input (every device's relay traffic funnels
// through here), so it gets the faster decoder the way
// win30221-genesis pairs jsoniter with its Ollama client.
var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeFrame parses a raw WebSocket message into a Frame using the
// fast JSON decode path.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := fastJSON.Unmarshal(data, &f)
	return f, err
}

// EncodeFrame serializes a Frame for the wire. Writes are not the hot
// path (one frame per logical event, vs. many candidate decodes per
// read), so the standard encoder is used here via jsoniter's
// compatible config for a single import surface.
func EncodeFrame(f Frame) ([]byte, error) {
	return fastJSON.Marshal(f)
}
