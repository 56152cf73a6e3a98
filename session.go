package stompest

import "sync"

//SessionState is the lifecycle state of one logical connection.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

//Subscription is the session-side record of an active subscription.
type Subscription struct {
	Token       Token
	Destination string
	Header      *Header
}

//Session is the authoritative state machine for one connection: lifecycle
//state, negotiated version, and the registries for subscriptions, open
//transactions and outstanding receipts. It builds outgoing frames through
//the command builders and classifies incoming ones. A Session belongs to
//exactly one client; it is not safe for concurrent use.
type Session struct {
	mu sync.Mutex

	versions []Version
	check    bool

	state     SessionState
	version   Version
	id        string
	server    string
	heartBeat HeartBeat

	subscriptions map[Token]*Subscription
	transactions  map[string]bool
	receipts      map[string]bool
}

//NewSession creates a disconnected session that will request the given
//versions. With check enabled, built frames are validated against the
//version table before they are handed out.
func NewSession(versions []Version, check bool) *Session {
	if len(versions) == 0 {
		versions = SupportedVersions
	}
	return &Session{
		versions:      versions,
		check:         check,
		state:         StateDisconnected,
		version:       highestVersion(versions),
		subscriptions: make(map[Token]*Subscription),
		transactions:  make(map[string]bool),
		receipts:      make(map[string]bool),
	}
}

//State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

//Version returns the negotiated protocol version, or the highest requested
//one while no session is established.
func (s *Session) Version() Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

//ID returns the session id assigned by the broker, if any.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

//Server returns the broker's server header from the CONNECTED frame.
func (s *Session) Server() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

//HeartBeat returns the negotiated heart-beat intervals.
func (s *Session) HeartBeat() HeartBeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartBeat
}

//Connect builds the CONNECT frame and moves the session to connecting. Only
//a disconnected session may connect.
func (s *Session) Connect(login, passcode, host string, heartBeat HeartBeat) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		return nil, ConnectionError("cannot connect in state " + s.state.String())
	}
	frame, err := ConnectFrame(login, passcode, s.versions, host, heartBeat)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	s.heartBeat = heartBeat
	s.state = StateConnecting
	return frame, nil
}

//Connected consumes the broker's reply to CONNECT. A CONNECTED frame
//negotiates the version and heart-beat and establishes the session; an
//ERROR frame fails the session and surfaces the broker's message.
func (s *Session) Connected(frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame.Command == CmdError {
		s.reset(StateFailed)
		return ProtocolError("broker refused connection: " + errorDetail(frame))
	}
	if s.state != StateConnecting {
		return ConnectionError("received " + frame.Command + " in state " + s.state.String())
	}
	if frame.Command != CmdConnected {
		s.reset(StateFailed)
		return ProtocolError("expected CONNECTED, received " + frame.Command)
	}
	version, err := Negotiate(s.versions, frame.Header.Get(HdrVersion))
	if err != nil {
		s.reset(StateFailed)
		return err
	}
	s.version = version
	s.id = frame.Header.Get(HdrSession)
	s.server = frame.Header.Get(HdrServer)
	if hb, ok := frame.Header.Contains(HdrHeartBeat); ok {
		server, err := ParseHeartBeat(hb)
		if err != nil {
			s.reset(StateFailed)
			return err
		}
		s.heartBeat = NegotiateHeartBeat(s.heartBeat, server)
	} else {
		s.heartBeat = HeartBeat{}
	}
	s.state = StateConnected
	return nil
}

//Send builds a SEND frame for an established session. A transaction id, if
//given, must name an open transaction.
func (s *Session) Send(destination string, body []byte, header *Header, transaction string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("send"); err != nil {
		return nil, err
	}
	if transaction == "" {
		transaction = header.Get(HdrTransaction)
	}
	if err := s.requireTransaction(transaction); err != nil {
		return nil, err
	}
	frame, err := SendFrame(destination, body, header, transaction, s.version)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	s.registerReceipt(frame)
	return frame, nil
}

//Subscribe builds a SUBSCRIBE frame and registers the derived token. Tokens
//must be unique among active subscriptions.
func (s *Session) Subscribe(destination string, header *Header) (*Frame, Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("subscribe"); err != nil {
		return nil, Token{}, err
	}
	frame, token, err := SubscribeFrame(destination, header, s.version)
	if err != nil {
		return nil, Token{}, err
	}
	if _, active := s.subscriptions[token]; active {
		return nil, Token{}, ProtocolError("already subscribed with token " + token.Header + "=" + token.Value)
	}
	if err := s.validate(frame); err != nil {
		return nil, Token{}, err
	}
	s.subscriptions[token] = &Subscription{Token: token, Destination: destination, Header: header.Clone()}
	s.registerReceipt(frame)
	return frame, token, nil
}

//Unsubscribe builds an UNSUBSCRIBE frame for an active token and removes it
//from the registry.
func (s *Session) Unsubscribe(token Token) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("unsubscribe"); err != nil {
		return nil, err
	}
	if _, active := s.subscriptions[token]; !active {
		return nil, ProtocolError("no active subscription with token " + token.Header + "=" + token.Value)
	}
	frame, err := UnsubscribeFrame(token, s.version)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	delete(s.subscriptions, token)
	s.registerReceipt(frame)
	return frame, nil
}

//Ack builds an ACK frame for a received MESSAGE frame.
func (s *Session) Ack(message *Frame, transaction, receipt string) (*Frame, error) {
	return s.acknowledge(AckFrame, "ack", message, transaction, receipt)
}

//Nack builds a NACK frame for a received MESSAGE frame. Fails under 1.0,
//where NACK does not exist.
func (s *Session) Nack(message *Frame, transaction, receipt string) (*Frame, error) {
	return s.acknowledge(NackFrame, "nack", message, transaction, receipt)
}

func (s *Session) acknowledge(build func(*Frame, string, string) (*Frame, error), op string, message *Frame, transaction, receipt string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected(op); err != nil {
		return nil, err
	}
	if err := s.requireTransaction(transaction); err != nil {
		return nil, err
	}
	if message.Version == "" {
		message = &Frame{Command: message.Command, Header: message.Header, Body: message.Body, Version: s.version}
	}
	frame, err := build(message, transaction, receipt)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	s.registerReceipt(frame)
	return frame, nil
}

//Begin builds a BEGIN frame and registers the transaction. The same id
//cannot be open twice.
func (s *Session) Begin(transaction string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("begin"); err != nil {
		return nil, err
	}
	if s.transactions[transaction] {
		return nil, ProtocolError("transaction " + transaction + " is already open")
	}
	frame, err := BeginFrame(transaction, s.version)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	s.transactions[transaction] = true
	s.registerReceipt(frame)
	return frame, nil
}

//Commit builds a COMMIT frame for an open transaction and closes it.
func (s *Session) Commit(transaction string) (*Frame, error) {
	return s.endTransaction(CommitFrame, transaction)
}

//Abort builds an ABORT frame for an open transaction and closes it.
func (s *Session) Abort(transaction string) (*Frame, error) {
	return s.endTransaction(AbortFrame, transaction)
}

func (s *Session) endTransaction(build func(string, Version) (*Frame, error), transaction string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("commit/abort"); err != nil {
		return nil, err
	}
	if !s.transactions[transaction] {
		return nil, ProtocolError("transaction " + transaction + " is not open")
	}
	frame, err := build(transaction, s.version)
	if err != nil {
		return nil, err
	}
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	delete(s.transactions, transaction)
	s.registerReceipt(frame)
	return frame, nil
}

//Message classifies an incoming MESSAGE frame against the active
//subscriptions and returns the matching token. From 1.1 on the frame's
//subscription header identifies the subscription; 1.0 frames match by
//destination.
func (s *Session) Message(frame *Frame) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("message"); err != nil {
		return Token{}, err
	}
	if frame.Command != CmdMessage {
		return Token{}, ProtocolError("cannot classify " + frame.Command + " frame as a message")
	}
	if _, ok := frame.Header.Contains(HdrMessageID); !ok {
		return Token{}, ProtocolError("MESSAGE frame is missing the message-id header")
	}
	if sub, ok := frame.Header.Contains(HdrSubscription); ok && s.version.AtLeast(V11) {
		token := Token{Header: HdrID, Value: sub}
		if _, active := s.subscriptions[token]; !active {
			return Token{}, ProtocolError("MESSAGE for unknown subscription id " + sub)
		}
		return token, nil
	}
	if s.version.AtLeast(V11) {
		return Token{}, ProtocolError("MESSAGE frame is missing the subscription header")
	}
	destination := frame.Header.Get(HdrDestination)
	for token, sub := range s.subscriptions {
		if sub.Destination == destination {
			return token, nil
		}
	}
	return Token{}, ProtocolError("MESSAGE for unknown destination " + destination)
}

//Receipt classifies an incoming RECEIPT frame, clears the outstanding id
//and returns it. Receipts the session never asked for are protocol errors.
func (s *Session) Receipt(frame *Frame) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frame.Command != CmdReceipt {
		return "", ProtocolError("cannot classify " + frame.Command + " frame as a receipt")
	}
	id, ok := frame.Header.Contains(HdrReceiptID)
	if !ok {
		return "", ProtocolError("RECEIPT frame is missing the receipt-id header")
	}
	if !s.receipts[id] {
		return "", ProtocolError("unexpected RECEIPT with id " + id)
	}
	delete(s.receipts, id)
	return id, nil
}

//OutstandingReceipts returns the receipt ids sent but not yet confirmed.
func (s *Session) OutstandingReceipts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.receipts))
	for id := range s.receipts {
		ids = append(ids, id)
	}
	return ids
}

//Subscriptions returns the active subscriptions keyed by token.
func (s *Session) Subscriptions() map[Token]*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := make(map[Token]*Subscription, len(s.subscriptions))
	for token, sub := range s.subscriptions {
		subs[token] = sub
	}
	return subs
}

//ActiveTransactions returns the ids of open transactions.
func (s *Session) ActiveTransactions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.transactions))
	for id := range s.transactions {
		ids = append(ids, id)
	}
	return ids
}

//Disconnect builds the DISCONNECT frame and moves the session to
//disconnecting. The caller finishes teardown with Close.
func (s *Session) Disconnect(receipt string) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConnected("disconnect"); err != nil {
		return nil, err
	}
	frame := DisconnectFrame(receipt, s.version)
	if err := s.validate(frame); err != nil {
		return nil, err
	}
	s.registerReceipt(frame)
	s.state = StateDisconnecting
	return frame, nil
}

//Close forces the session back to a terminal state, clearing every
//registry. A clean close (flush true) ends in disconnected, an abnormal one
//in failed. Close is idempotent and must be called on any teardown path,
//including timeouts while waiting for CONNECTED, so no session is left
//half-open.
func (s *Session) Close(flush bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flush {
		s.reset(StateDisconnected)
	} else {
		s.reset(StateFailed)
	}
}

func (s *Session) reset(state SessionState) {
	s.state = state
	s.subscriptions = make(map[Token]*Subscription)
	s.transactions = make(map[string]bool)
	s.receipts = make(map[string]bool)
	s.version = highestVersion(s.versions)
}

func (s *Session) requireConnected(op string) error {
	if s.state != StateConnected {
		return ConnectionError("cannot " + op + " in state " + s.state.String())
	}
	return nil
}

func (s *Session) requireTransaction(transaction string) error {
	if transaction != "" && !s.transactions[transaction] {
		return ProtocolError("transaction " + transaction + " is not open")
	}
	return nil
}

func (s *Session) registerReceipt(frame *Frame) {
	if id, ok := frame.Header.Contains(HdrReceipt); ok {
		s.receipts[id] = true
	}
}

func (s *Session) validate(frame *Frame) error {
	if !s.check {
		return nil
	}
	return frame.Validate()
}

func errorDetail(frame *Frame) string {
	if len(frame.Body) > 0 {
		return string(frame.Body)
	}
	return frame.Header.Get(HdrMessage)
}
