package p3dr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxPayloadSize bounds a single message. A full-HD grayscale frame
// is around 2 MiB raw; the JSON envelope inflates that, but nothing
// legitimate approaches this limit.
const maxPayloadSize = 64 << 20

// sendPayload writes a size-tagged payload: a 4-byte big-endian
// length followed by the bytes.
func sendPayload(w io.Writer, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrProtocol, len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: send: %v", ErrTransport, err)
	}
	return nil
}

// receivePayload reads one size-tagged payload.
func receivePayload(r io.Reader) ([]byte, error) {
	var tag [4]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, fmt.Errorf("%w: receive size tag: %v", ErrTransport, err)
	}
	size := binary.BigEndian.Uint32(tag[:])
	if size > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrProtocol, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: receive payload: %v", ErrTransport, err)
	}
	return payload, nil
}

func sendMessage(w io.Writer, msg *UserMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrProtocol, err)
	}
	return sendPayload(w, payload)
}

func receiveMessage(r io.Reader) (*ServerMessage, error) {
	payload, err := receivePayload(r)
	if err != nil {
		return nil, err
	}
	var msg ServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: decode message: %v", ErrProtocol, err)
	}
	return &msg, nil
}
