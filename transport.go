package stompest

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

//Transport is the byte-stream boundary the client drives. Receive and
//CanRead take a timeout; zero blocks indefinitely. Implementations parse
//whole frames off the stream so the client never sees partial reads.
type Transport interface {
	Connect(host string, port int) error
	Send(data []byte) error
	Receive(timeout time.Duration) (*Frame, error)
	CanRead(timeout time.Duration) (bool, error)
	Disconnect() error
	Host() string
	Port() int
}

//versionAware is implemented by transports whose frame decoding depends on
//the negotiated version. The client narrows to it after CONNECTED.
type versionAware interface {
	setVersion(Version)
}

//IsTimeout reports whether an error from a transport is a read timeout.
func IsTimeout(err error) bool {
	ne, ok := errors.Cause(err).(net.Error)
	return ok && ne.Timeout()
}

//tcpTransport speaks STOMP over a plain TCP socket.
type tcpTransport struct {
	dialTimeout time.Duration
	version     Version

	host   string
	port   int
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPTransport(config *Config) *tcpTransport {
	return &tcpTransport{
		dialTimeout: config.ConnectTimeout,
		version:     highestVersion(config.Versions),
	}
}

func (t *tcpTransport) Connect(host string, port int) error {
	if t.conn != nil {
		return ConnectionError("transport already connected")
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), t.dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "unable to connect to %s:%d", host, port)
	}
	t.host = host
	t.port = port
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *tcpTransport) Send(data []byte) error {
	if t.conn == nil {
		return ConnectionError("transport is not connected")
	}
	if _, err := t.conn.Write(data); err != nil {
		return ConnectionError("failed writing frame: " + err.Error())
	}
	return nil
}

func (t *tcpTransport) Receive(timeout time.Duration) (*Frame, error) {
	if t.conn == nil {
		return nil, ConnectionError("transport is not connected")
	}
	if err := t.setReadDeadline(timeout); err != nil {
		return nil, err
	}
	frame, err := ReadFrame(t.reader, t.version)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading frame")
	}
	return frame, nil
}

func (t *tcpTransport) CanRead(timeout time.Duration) (bool, error) {
	if t.conn == nil {
		return false, ConnectionError("transport is not connected")
	}
	if t.reader.Buffered() > 0 {
		return true, nil
	}
	if err := t.setReadDeadline(timeout); err != nil {
		return false, err
	}
	if _, err := t.reader.Peek(1); err != nil {
		if IsTimeout(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed polling socket")
	}
	return true, nil
}

func (t *tcpTransport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.reader = nil
	return err
}

func (t *tcpTransport) Host() string { return t.host }
func (t *tcpTransport) Port() int    { return t.port }

func (t *tcpTransport) setVersion(v Version) { t.version = v }

func (t *tcpTransport) setReadDeadline(timeout time.Duration) error {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return t.conn.SetReadDeadline(deadline)
}
