package server

import "encoding/json"

const maxEnvelopePayloadBytes = 65536

// validateEnvelope rejects a relayed payload if it's absent, the
// literal JSON null, or its
// serialized length exceeds the bound. Invalid envelopes are dropped
// silently by the caller — no error is returned to the sender, which
// avoids giving a hostile client a signal to use for amplification.
func validateEnvelope(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return false
	}

	trimmed := trimLeadingSpace(payload)
	if string(trimmed) == "null" {
		return false
	}

	return len(payload) <= maxEnvelopePayloadBytes
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// relaySignal handles offer, answer and ice-candidate signaling: look
// up the target connection and forward, or
// drop silently if the peer is gone. The relay performs no ordering
// beyond what the transport already guarantees per sender->receiver
// pair.
func (c *Connection) relaySignal(to string, payload json.RawMessage, frame func(from string, payload json.RawMessage) *Frame) {
	if !validateEnvelope(payload) {
		return
	}

	target, ok := c.server.getConnection(to)
	if !ok {
		return
	}

	target.sendFrame(frame(c.id, payload))
}
