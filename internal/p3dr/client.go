package p3dr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"georeg/internal/canv"
	"georeg/internal/geo"
	"georeg/internal/logging"
)

// Options configures a client connection.
type Options struct {
	// ConnectTimeout bounds the dial and every handshake exchange
	// (default 30s).
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	return o
}

// Version identifies a server build.
type Version struct {
	Branch   string
	Revision string
}

// Client is a connected registration server. It serves the
// synchronous handshake operations; StartSession hands the socket
// over for asynchronous frame traffic.
type Client struct {
	conn    net.Conn
	url     string
	version Version
	opts    Options
	server  *ServerProcess
	session *Session
}

// Connect dials a public server and performs the version handshake.
func Connect(ctx context.Context, address string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %q: %v", ErrConnection, address, err)
	}

	c := &Client{conn: conn, url: "tcp://" + address, opts: opts}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// ConnectPrivate launches a private server process and connects to
// it. Closing the client also stops the process.
func ConnectPrivate(ctx context.Context, serverPath, severity string, launch LaunchOptions, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	launch.Logger = opts.Logger

	proc, err := LaunchServer(ctx, serverPath, severity, launch)
	if err != nil {
		return nil, err
	}
	c, err := Connect(ctx, proc.Address(), opts)
	if err != nil {
		proc.Stop()
		return nil, err
	}
	c.server = proc
	return c, nil
}

func (c *Client) handshake() error {
	reply, err := c.call(&UserMessage{VersionRequest: &VersionRequest{}})
	if err != nil {
		return fmt.Errorf("version query: %w", err)
	}
	if reply.VersionResponse == nil {
		return fmt.Errorf("%w: version query answered with unexpected message", ErrProtocol)
	}
	c.version = Version{Branch: reply.VersionResponse.Branch, Revision: reply.VersionResponse.Revision}
	c.opts.Logger.Info("connected to server",
		logging.String("url", c.url),
		logging.String("branch", c.version.Branch),
		logging.String("revision", c.version.Revision))
	return nil
}

// URL returns the server URL.
func (c *Client) URL() string { return c.url }

// Version returns the server build identity from the handshake.
func (c *Client) Version() Version { return c.version }

// OpenStream opens a registration stream against the given reference
// datasets and returns its id.
func (c *Client) OpenStream(references []string) (int64, error) {
	reply, err := c.call(&UserMessage{
		OpenStreamRequest: &OpenStreamRequest{ReferenceDatasets: references},
	})
	if err != nil {
		return 0, fmt.Errorf("open stream: %w", err)
	}
	if reply.OpenStreamResponse == nil {
		return 0, fmt.Errorf("%w: open stream answered with unexpected message", ErrProtocol)
	}
	return reply.OpenStreamResponse.StreamID, nil
}

// ListReferences queries the reference datasets a stream is
// configured with.
func (c *Client) ListReferences(streamID int64) ([]string, error) {
	reply, err := c.call(&UserMessage{
		ListReferencesRequest: &ListReferencesRequest{StreamID: streamID},
	})
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	if reply.ListReferencesResponse == nil {
		return nil, fmt.Errorf("%w: list references answered with unexpected message", ErrProtocol)
	}
	return reply.ListReferencesResponse.ReferenceDatasets, nil
}

// call performs one synchronous exchange during the handshake phase.
// Must not be used once a session owns the socket.
func (c *Client) call(msg *UserMessage) (*ServerMessage, error) {
	if c.session != nil {
		return nil, fmt.Errorf("%w: synchronous call on a session socket", ErrProtocol)
	}
	deadline := time.Now().Add(c.opts.ConnectTimeout)
	_ = c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if err := sendMessage(c.conn, msg); err != nil {
		return nil, err
	}
	reply, err := receiveMessage(c.conn)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrServer, reply.Error.ErrorString)
	}
	return reply, nil
}

// StartSession hands the socket over to a session for asynchronous
// registration traffic on a stream.
func (c *Client) StartSession(streamID int64) *Session {
	s := &Session{
		conn:     c.conn,
		streamID: streamID,
		logger:   c.opts.Logger,
		pending:  make(map[int64]*Pending),
		done:     make(chan struct{}),
	}
	c.session = s
	go s.readLoop()
	return s
}

// Close shuts the connection down and stops a private server if one
// was launched.
func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if c.server != nil {
		c.server.Stop()
		c.server = nil
	}
	return err
}

// Result is the server's verdict for one frame. Pose carries the
// refined camera when the registration succeeded; ServerError carries
// the reason when it did not. Exactly one of the two is meaningful.
type Result struct {
	FrameID       int64
	FigureOfMerit float64
	Pose          canv.Pose
	ServerError   string
}

// Failed reports whether the server rejected the frame.
func (r Result) Failed() bool { return r.ServerError != "" }

// Pending is a registration awaiting its server verdict.
type Pending struct {
	frameID int64
	ch      chan Result
	session *Session
}

// FrameID returns the frame this pending registration belongs to.
func (p *Pending) FrameID() int64 { return p.frameID }

// Wait blocks until the verdict arrives, the context expires, or the
// session dies. A context deadline is transient; a dead session is
// not. A verdict that was already delivered wins over either.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-p.ch:
		return res, nil
	case <-ctx.Done():
		select {
		case res := <-p.ch:
			return res, nil
		default:
		}
		return Result{}, fmt.Errorf("frame %d: %w", p.frameID, ctx.Err())
	case <-p.session.done:
		select {
		case res := <-p.ch:
			return res, nil
		default:
		}
		return Result{}, p.session.Err()
	}
}

// Session owns the socket for asynchronous registration traffic. A
// session that encounters a transport or protocol failure is dead:
// Err reports the cause and every pending wait is released.
type Session struct {
	conn     net.Conn
	streamID int64
	logger   *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]*Pending
	err     error
	closing bool

	done chan struct{}
}

// StreamID returns the stream this session registers frames on.
func (s *Session) StreamID() int64 { return s.streamID }

// Register submits one frame for asynchronous registration. The
// attitude and field of view convert to degrees on the wire; the
// position passes through verbatim.
func (s *Session) Register(frameID int64, pose canv.Pose, jpeg []byte) (*Pending, error) {
	gray, err := grayscaleFromJPEG(jpeg)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frameID, err)
	}

	req := &RegistrationRequest{
		StreamID: s.streamID,
		FrameID:  frameID,
		Frame: Frame{
			Metadata:       metadataFromPose(pose),
			GrayscaleImage: gray,
		},
	}

	p := &Pending{frameID: frameID, ch: make(chan Result, 1), session: s}
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	if _, dup := s.pending[frameID]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: frame %d already in flight", ErrProtocol, frameID)
	}
	s.pending[frameID] = p
	s.mu.Unlock()

	s.writeMu.Lock()
	err = sendMessage(s.conn, &UserMessage{Request: req})
	s.writeMu.Unlock()
	if err != nil {
		s.forget(frameID)
		s.fail(fmt.Errorf("register frame %d: %w", frameID, err))
		return nil, err
	}
	return p, nil
}

// Abandon drops a pending registration, typically after a wait timed
// out and the frame will be retried. A verdict that still arrives for
// the frame is discarded.
func (s *Session) Abandon(frameID int64) {
	s.forget(frameID)
}

// Err returns the error that killed the session, or nil while it is
// alive.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the session dies or closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close tears the session down. Pending waits are released with a
// connection error.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	_ = s.conn.Close()
	s.fail(fmt.Errorf("%w: session closed", ErrConnection))
}

func (s *Session) readLoop() {
	for {
		msg, err := receiveMessage(s.conn)
		if err != nil {
			s.fail(err)
			return
		}
		switch {
		case msg.Response != nil:
			resp := msg.Response
			s.deliver(resp.FrameID, Result{
				FrameID:       resp.FrameID,
				FigureOfMerit: resp.FigureOfMerit,
				Pose:          poseFromMetadata(resp.Metadata),
			})
		case msg.Error != nil:
			s.deliver(msg.Error.FrameID, Result{
				FrameID:     msg.Error.FrameID,
				ServerError: msg.Error.ErrorString,
			})
		default:
			s.fail(fmt.Errorf("%w: unexpected message type on session", ErrProtocol))
			return
		}
	}
}

func (s *Session) deliver(frameID int64, res Result) {
	s.mu.Lock()
	p, ok := s.pending[frameID]
	if ok {
		delete(s.pending, frameID)
	}
	s.mu.Unlock()
	if !ok {
		// Late verdict for an abandoned frame.
		s.logger.Debug("discarding verdict for unknown frame",
			logging.Int64(logging.FieldFrame, frameID))
		return
	}
	p.ch <- res
}

func (s *Session) forget(frameID int64) {
	s.mu.Lock()
	delete(s.pending, frameID)
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	if s.closing {
		err = fmt.Errorf("%w: session closed", ErrConnection)
	}
	s.err = err
	s.pending = make(map[int64]*Pending)
	close(s.done)
	s.mu.Unlock()
}

func metadataFromPose(pose canv.Pose) ImageMetadata {
	return ImageMetadata{
		Position: Point{
			Latitude:  pose.Pos[0],
			Longitude: pose.Pos[1],
			Height:    pose.Pos[2],
		},
		Attitude: Attitude{
			Yaw:   geo.Degrees(pose.Att[0]),
			Pitch: geo.Degrees(pose.Att[1]),
			Roll:  geo.Degrees(pose.Att[2]),
		},
		FOV: FieldOfView{
			Horizontal: geo.Degrees(pose.Lens.HFov),
			Vertical:   geo.Degrees(pose.Lens.VFov),
		},
		LensParameters: LensParameters{
			K2: pose.Lens.K2,
			K3: pose.Lens.K3,
			K4: pose.Lens.K4,
		},
	}
}

func poseFromMetadata(meta ImageMetadata) canv.Pose {
	return canv.Pose{
		Pos: [3]float64{meta.Position.Latitude, meta.Position.Longitude, meta.Position.Height},
		Att: [3]float64{
			geo.Radians(meta.Attitude.Yaw),
			geo.Radians(meta.Attitude.Pitch),
			geo.Radians(meta.Attitude.Roll),
		},
		Lens: canv.Lens{
			HFov: geo.Radians(meta.FOV.Horizontal),
			VFov: geo.Radians(meta.FOV.Vertical),
			K2:   meta.LensParameters.K2,
			K3:   meta.LensParameters.K3,
			K4:   meta.LensParameters.K4,
		},
	}
}
