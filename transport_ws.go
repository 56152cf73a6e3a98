package stompest

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

//wsTransport speaks STOMP over a WebSocket, as exposed by web-stomp broker
//plugins. Each WebSocket message carries one or more complete frames; a
//message holding only EOLs is a heart-beat.
type wsTransport struct {
	scheme      string
	path        string
	dialTimeout time.Duration
	version     Version

	host    string
	port    int
	conn    *websocket.Conn
	raw     *bytes.Reader
	pending *bufio.Reader
}

//setPending buffers an incoming WebSocket message for frame parsing.
func (t *wsTransport) setPending(data []byte) {
	t.raw = bytes.NewReader(data)
	t.pending = bufio.NewReader(t.raw)
}

//hasPending reports whether unparsed bytes of a message remain.
func (t *wsTransport) hasPending() bool {
	return t.pending != nil && (t.pending.Buffered() > 0 || t.raw.Len() > 0)
}

func newWSTransport(config *Config) *wsTransport {
	return &wsTransport{
		scheme:      config.Scheme,
		path:        config.Path,
		dialTimeout: config.ConnectTimeout,
		version:     highestVersion(config.Versions),
	}
}

func (t *wsTransport) Connect(host string, port int) error {
	if t.conn != nil {
		return ConnectionError("transport already connected")
	}
	u := url.URL{Scheme: t.scheme, Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: t.path}
	dialer := &websocket.Dialer{HandshakeTimeout: t.dialTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "unable to connect to %s", u.String())
	}
	t.host = host
	t.port = port
	t.conn = conn
	return nil
}

func (t *wsTransport) Send(data []byte) error {
	if t.conn == nil {
		return ConnectionError("transport is not connected")
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return ConnectionError("failed writing frame: " + err.Error())
	}
	return nil
}

func (t *wsTransport) Receive(timeout time.Duration) (*Frame, error) {
	if t.conn == nil {
		return nil, ConnectionError("transport is not connected")
	}
	if err := t.setReadDeadline(timeout); err != nil {
		return nil, err
	}
	for {
		if t.hasPending() {
			frame, err := ReadFrame(t.pending, t.version)
			if err == io.EOF {
				//message held only heart-beat EOLs
				t.pending = nil
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, "failed reading frame")
			}
			return frame, nil
		}
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "failed reading frame")
		}
		t.setPending(data)
	}
}

func (t *wsTransport) CanRead(timeout time.Duration) (bool, error) {
	if t.conn == nil {
		return false, ConnectionError("transport is not connected")
	}
	if t.hasPending() {
		return true, nil
	}
	if err := t.setReadDeadline(timeout); err != nil {
		return false, err
	}
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if IsTimeout(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed polling websocket")
	}
	t.setPending(data)
	return true, nil
}

func (t *wsTransport) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.raw = nil
	t.pending = nil
	return err
}

func (t *wsTransport) Host() string { return t.host }
func (t *wsTransport) Port() int    { return t.port }

func (t *wsTransport) setVersion(v Version) { t.version = v }

func (t *wsTransport) setReadDeadline(timeout time.Duration) error {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return t.conn.SetReadDeadline(deadline)
}
