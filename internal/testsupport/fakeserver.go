package testsupport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"georeg/internal/p3dr"
)

// Verdict controls how the fake server answers one registration
// attempt.
type Verdict int

const (
	// VerdictSuccess answers with a refined camera.
	VerdictSuccess Verdict = iota
	// VerdictError answers with an error envelope.
	VerdictError
	// VerdictSilent never answers, leaving the frame hanging.
	VerdictSilent
	// VerdictHold prepares a success verdict but keeps it until the
	// test calls Release, enabling out-of-order delivery.
	VerdictHold
	// VerdictDrop closes the connection.
	VerdictDrop
)

// Script decides the verdict for a registration attempt. attempt
// counts from 1 per frame across re-registrations.
type Script func(frameID int64, attempt int) (Verdict, string)

// FakeServerOptions shapes a fake registration server.
type FakeServerOptions struct {
	Branch   string
	Revision string
	StreamID int64
	// Script decides per-attempt verdicts. Nil means every frame
	// succeeds immediately.
	Script Script
	// LatShift nudges the latitude of successful verdicts so tests can
	// observe a displacement (default 0.0005 degrees).
	LatShift float64
	// FOM is the figure of merit on successful verdicts (default 0.9).
	FOM float64
}

func (o FakeServerOptions) withDefaults() FakeServerOptions {
	if o.Branch == "" {
		o.Branch = "main"
	}
	if o.Revision == "" {
		o.Revision = "deadbeef"
	}
	if o.StreamID == 0 {
		o.StreamID = 7
	}
	if o.Script == nil {
		o.Script = func(int64, int) (Verdict, string) { return VerdictSuccess, "" }
	}
	if o.LatShift == 0 {
		o.LatShift = 0.0005
	}
	if o.FOM == 0 {
		o.FOM = 0.9
	}
	return o
}

// FakeServer speaks the registration protocol over a loopback
// listener, scripted per frame attempt.
type FakeServer struct {
	t    testing.TB
	ln   net.Listener
	opts FakeServerOptions

	writeMu sync.Mutex
	conn    net.Conn

	mu             sync.Mutex
	attempts       map[int64]int
	held           map[int64]*p3dr.ServerMessage
	outstanding    int
	maxOutstanding int
	references     []string

	wg sync.WaitGroup
}

// NewFakeServer starts a fake server on a loopback port. It is torn
// down with the test.
func NewFakeServer(t testing.TB, opts FakeServerOptions) *FakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &FakeServer{
		t:        t,
		ln:       ln,
		opts:     opts.withDefaults(),
		attempts: make(map[int64]int),
		held:     make(map[int64]*p3dr.ServerMessage),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *FakeServer) Addr() string { return s.ln.Addr().String() }

// URL returns the tcp:// URL for the server.
func (s *FakeServer) URL() string { return "tcp://" + s.Addr() }

// Attempts reports how many registration attempts a frame has seen.
func (s *FakeServer) Attempts(frameID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[frameID]
}

// MaxOutstanding reports the peak number of simultaneously unanswered
// registrations.
func (s *FakeServer) MaxOutstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOutstanding
}

// References reports the datasets from the last open-stream request.
func (s *FakeServer) References() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.references))
	copy(out, s.references)
	return out
}

// Release sends held verdicts in the given order.
func (s *FakeServer) Release(frameIDs ...int64) {
	for _, id := range frameIDs {
		s.mu.Lock()
		msg, ok := s.held[id]
		if ok {
			delete(s.held, id)
			s.outstanding--
		}
		conn := s.conn
		s.mu.Unlock()
		if !ok {
			s.t.Errorf("release of frame %d with no held verdict", id)
			continue
		}
		s.send(conn, msg)
	}
}

// HeldFrame reports whether a verdict for the frame is currently held.
func (s *FakeServer) HeldFrame(frameID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[frameID]
	return ok
}

// HeldCount reports how many verdicts are currently held.
func (s *FakeServer) HeldCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held)
}

// Close stops the listener and any live connection.
func (s *FakeServer) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *FakeServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.handle(conn)
	}
}

func (s *FakeServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		msg, err := s.receive(conn)
		if err != nil {
			return
		}
		switch {
		case msg.VersionRequest != nil:
			s.send(conn, &p3dr.ServerMessage{VersionResponse: &p3dr.VersionResponse{
				Branch:   s.opts.Branch,
				Revision: s.opts.Revision,
			}})
		case msg.OpenStreamRequest != nil:
			s.mu.Lock()
			s.references = msg.OpenStreamRequest.ReferenceDatasets
			s.mu.Unlock()
			s.send(conn, &p3dr.ServerMessage{OpenStreamResponse: &p3dr.OpenStreamResponse{
				StreamID: s.opts.StreamID,
			}})
		case msg.ListReferencesRequest != nil:
			s.send(conn, &p3dr.ServerMessage{ListReferencesResponse: &p3dr.ListReferencesResponse{
				ReferenceDatasets: s.References(),
			}})
		case msg.Request != nil:
			if !s.handleRegistration(conn, msg.Request) {
				return
			}
		default:
			s.t.Errorf("fake server got an empty message envelope")
			return
		}
	}
}

// handleRegistration answers one registration attempt. It returns
// false when the connection should drop.
func (s *FakeServer) handleRegistration(conn net.Conn, req *p3dr.RegistrationRequest) bool {
	if req.StreamID != s.opts.StreamID {
		s.t.Errorf("registration on stream %d, want %d", req.StreamID, s.opts.StreamID)
	}

	s.mu.Lock()
	s.attempts[req.FrameID]++
	attempt := s.attempts[req.FrameID]
	s.outstanding++
	if s.outstanding > s.maxOutstanding {
		s.maxOutstanding = s.outstanding
	}
	s.mu.Unlock()

	verdict, reason := s.opts.Script(req.FrameID, attempt)
	switch verdict {
	case VerdictSuccess:
		s.settle()
		s.send(conn, s.successFor(req))
	case VerdictError:
		s.settle()
		s.send(conn, &p3dr.ServerMessage{Error: &p3dr.RegistrationError{
			FrameID:     req.FrameID,
			ErrorString: reason,
		}})
	case VerdictSilent:
		// Leave the frame hanging.
	case VerdictHold:
		s.mu.Lock()
		s.held[req.FrameID] = s.successFor(req)
		s.mu.Unlock()
	case VerdictDrop:
		return false
	}
	return true
}

func (s *FakeServer) settle() {
	s.mu.Lock()
	s.outstanding--
	s.mu.Unlock()
}

func (s *FakeServer) successFor(req *p3dr.RegistrationRequest) *p3dr.ServerMessage {
	meta := req.Frame.Metadata
	meta.Position.Latitude += s.opts.LatShift
	return &p3dr.ServerMessage{Response: &p3dr.RegistrationResponse{
		FrameID:       req.FrameID,
		FigureOfMerit: s.opts.FOM,
		Metadata:      meta,
	}}
}

func (s *FakeServer) send(conn net.Conn, msg *p3dr.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.t.Errorf("fake server encode: %v", err)
		return
	}
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	s.writeMu.Lock()
	_, err = conn.Write(buf)
	s.writeMu.Unlock()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.t.Logf("fake server send: %v", err)
	}
}

func (s *FakeServer) receive(conn net.Conn) (*p3dr.UserMessage, error) {
	var tag [4]byte
	if _, err := io.ReadFull(conn, tag[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(tag[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	var msg p3dr.UserMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
