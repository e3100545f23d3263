package p3dr

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

func TestPayloadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("registration bytes")
	if err := sendPayload(&buf, payload); err != nil {
		t.Fatalf("sendPayload: %v", err)
	}
	if buf.Len() != 4+len(payload) {
		t.Fatalf("framed length = %d", buf.Len())
	}

	got, err := receivePayload(&buf)
	if err != nil {
		t.Fatalf("receivePayload: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q", got)
	}
}

func TestReceiveRejectsOversizedTag(t *testing.T) {
	var buf bytes.Buffer
	var tag [4]byte
	binary.BigEndian.PutUint32(tag[:], maxPayloadSize+1)
	buf.Write(tag[:])

	if _, err := receivePayload(&buf); !errors.Is(err, ErrProtocol) {
		t.Fatalf("error = %v, want ErrProtocol", err)
	}
}

func TestReceiveTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var tag [4]byte
	binary.BigEndian.PutUint32(tag[:], 10)
	buf.Write(tag[:])
	buf.Write([]byte("short"))

	if _, err := receivePayload(&buf); !errors.Is(err, ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := sendMessage(&buf, &UserMessage{
		OpenStreamRequest: &OpenStreamRequest{ReferenceDatasets: []string{"a.r3db"}},
	})
	if err != nil {
		t.Fatalf("sendMessage: %v", err)
	}

	payload, err := receivePayload(&buf)
	if err != nil {
		t.Fatalf("receivePayload: %v", err)
	}
	if !bytes.Contains(payload, []byte("openStreamRequest")) {
		t.Fatalf("payload = %s", payload)
	}
}

func TestTransientClassification(t *testing.T) {
	if !Transient(fmt.Errorf("%w: broken pipe", ErrTransport)) {
		t.Error("transport errors should be transient")
	}
	if !Transient(fmt.Errorf("frame 3: %w", context.DeadlineExceeded)) {
		t.Error("deadline errors should be transient")
	}
	if Transient(ErrProtocol) || Transient(ErrServer) || Transient(ErrConnection) {
		t.Error("protocol, server and connection errors are not transient")
	}
}
