package stompest

import (
	"time"

	"github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

//Client is the synchronous STOMP client: it binds one Session to one
//blocking Transport. Every operation either completes with a single write
//or blocks the caller on a single read. A Client is owned by one goroutine;
//callers that share it must serialize access themselves.
type Client struct {
	config           *Config
	session          *Session
	transport        Transport
	transportFactory func(*Config) Transport
	log              *logrus.Entry
}

//NewClient creates a disconnected client for the given config.
func NewClient(config *Config) *Client {
	return &Client{
		config:           config,
		session:          NewSession(config.Versions, config.Check),
		transportFactory: newTransport,
		log:              logrus.WithField("component", "stomp-client"),
	}
}

func newTransport(config *Config) Transport {
	switch config.Scheme {
	case "ws", "wss":
		return newWSTransport(config)
	}
	return newTCPTransport(config)
}

//Session exposes the underlying state machine, mainly for inspection.
func (c *Client) Session() *Session {
	return c.session
}

//Connect opens the transport, sends CONNECT and blocks for the broker's
//reply. An ERROR reply surfaces as a ProtocolError carrying the broker's
//message. A read timeout closes the session and transport before the error
//propagates, so no half-open session remains.
func (c *Client) Connect() error {
	if c.transport != nil {
		return ConnectionError("client is already connected")
	}
	frame, err := c.session.Connect(c.config.Login, c.config.Passcode, c.config.Vhost, c.config.HeartBeat)
	if err != nil {
		return err
	}
	transport := c.transportFactory(c.config)
	if err := transport.Connect(c.config.Host, c.config.Port); err != nil {
		c.session.Close(false)
		return err
	}
	if err := transport.Send(frame.Marshal()); err != nil {
		c.session.Close(false)
		transport.Disconnect()
		return err
	}
	reply, err := transport.Receive(c.config.ConnectTimeout)
	if err != nil {
		c.session.Close(false)
		transport.Disconnect()
		if IsTimeout(err) {
			return ConnectionError("timed out waiting for CONNECTED from " + c.config.Host)
		}
		return err
	}
	if err := c.session.Connected(reply); err != nil {
		transport.Disconnect()
		return err
	}
	if aware, ok := transport.(versionAware); ok {
		aware.setVersion(c.session.Version())
	}
	c.transport = transport
	c.log.WithFields(logrus.Fields{
		"session": c.session.ID(),
		"version": string(c.session.Version()),
	}).Debug("session established")
	return nil
}

//Send publishes a message. A transaction header, if present, must name an
//open transaction.
func (c *Client) Send(destination string, body []byte, header *Header) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Send(destination, body, header, "")
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Subscribe registers a subscription and returns its token. Incoming MESSAGE
//frames are correlated back to the token through Message.
func (c *Client) Subscribe(destination string, header *Header) (Token, error) {
	if err := c.requireTransport(); err != nil {
		return Token{}, err
	}
	frame, token, err := c.session.Subscribe(destination, header)
	if err != nil {
		return Token{}, err
	}
	if err := c.sendFrame(frame); err != nil {
		return Token{}, err
	}
	return token, nil
}

//Unsubscribe cancels the subscription identified by token.
func (c *Client) Unsubscribe(token Token) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Unsubscribe(token)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Ack acknowledges a received MESSAGE frame. Transaction and receipt are
//optional and empty strings leave them out.
func (c *Client) Ack(message *Frame, transaction, receipt string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Ack(message, transaction, receipt)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Nack rejects a received MESSAGE frame. Fails with a ProtocolError under
//STOMP 1.0, which has no NACK.
func (c *Client) Nack(message *Frame, transaction, receipt string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Nack(message, transaction, receipt)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Begin opens a transaction.
func (c *Client) Begin(transaction string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Begin(transaction)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Commit commits an open transaction.
func (c *Client) Commit(transaction string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Commit(transaction)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Abort rolls back an open transaction.
func (c *Client) Abort(transaction string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Abort(transaction)
	if err != nil {
		return err
	}
	return c.sendFrame(frame)
}

//Transaction runs fn inside a scoped transaction: BEGIN before fn, COMMIT
//when fn returns nil, ABORT when fn returns an error or panics. Exactly one
//of COMMIT or ABORT is sent per entry and the original failure always
//propagates. An empty id gets a generated one; fn receives the id in use.
func (c *Client) Transaction(transaction string, fn func(transaction string) error) error {
	if transaction == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		transaction = id.String()
	}
	if err := c.Begin(transaction); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if err := c.Abort(transaction); err != nil {
				c.log.WithError(err).Warn("failed aborting transaction after panic")
			}
			panic(r)
		}
	}()
	if err := fn(transaction); err != nil {
		if abortErr := c.Abort(transaction); abortErr != nil {
			c.log.WithError(abortErr).Warn("failed aborting transaction")
		}
		return err
	}
	return c.Commit(transaction)
}

//ReceiveFrame blocks until the broker sends a frame and returns it
//unclassified. MESSAGE frames are typically handed on to Message. A
//transport failure closes the session before the error propagates.
func (c *Client) ReceiveFrame() (*Frame, error) {
	if err := c.requireTransport(); err != nil {
		return nil, err
	}
	frame, err := c.transport.Receive(0)
	if err != nil {
		c.close(false)
		return nil, err
	}
	frame.Version = c.session.Version()
	c.log.WithField("command", frame.Command).Debug("received frame")
	return frame, nil
}

//Message classifies a received MESSAGE frame and returns the token of the
//subscription it belongs to.
func (c *Client) Message(frame *Frame) (Token, error) {
	return c.session.Message(frame)
}

//CanRead reports whether a frame can be received within the timeout. Zero
//blocks until data arrives.
func (c *Client) CanRead(timeout time.Duration) (bool, error) {
	if err := c.requireTransport(); err != nil {
		return false, err
	}
	return c.transport.CanRead(timeout)
}

//Disconnect sends DISCONNECT and tears down transport and session.
func (c *Client) Disconnect() error {
	return c.disconnect("")
}

//DisconnectWithReceipt sends DISCONNECT with a receipt request and drains
//the connection until the broker confirms it, so no frames are lost in
//flight.
func (c *Client) DisconnectWithReceipt(receipt string) error {
	if receipt == "" {
		return ProtocolError("disconnect receipt id must not be empty")
	}
	return c.disconnect(receipt)
}

func (c *Client) disconnect(receipt string) error {
	if err := c.requireTransport(); err != nil {
		return err
	}
	frame, err := c.session.Disconnect(receipt)
	if err != nil {
		return err
	}
	if err := c.sendFrame(frame); err != nil {
		c.close(false)
		return err
	}
	if receipt != "" {
		if err := c.awaitReceipt(receipt); err != nil {
			c.close(false)
			return err
		}
	}
	c.close(true)
	c.log.Debug("session closed")
	return nil
}

//awaitReceipt reads frames until the broker confirms the given receipt id.
func (c *Client) awaitReceipt(receipt string) error {
	for {
		frame, err := c.transport.Receive(c.config.ConnectTimeout)
		if err != nil {
			if IsTimeout(err) {
				return ConnectionError("timed out waiting for receipt " + receipt)
			}
			return err
		}
		if frame.Command != CmdReceipt {
			c.log.WithField("command", frame.Command).Debug("discarding frame while draining")
			continue
		}
		id, err := c.session.Receipt(frame)
		if err != nil {
			return err
		}
		if id == receipt {
			return nil
		}
	}
}

func (c *Client) sendFrame(frame *Frame) error {
	if err := c.transport.Send(frame.Marshal()); err != nil {
		c.close(false)
		return errors.Wrapf(err, "failed sending %s frame", frame.Command)
	}
	c.log.WithField("command", frame.Command).Debug("sent frame")
	return nil
}

func (c *Client) requireTransport() error {
	if c.transport == nil {
		return ConnectionError("client is not connected")
	}
	return nil
}

func (c *Client) close(flush bool) {
	c.session.Close(flush)
	if c.transport != nil {
		c.transport.Disconnect()
		c.transport = nil
	}
}
