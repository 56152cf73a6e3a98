package stompest

import (
	"strings"

	"github.com/nu7hatch/gouuid"
)

//Token identifies an active subscription: the header a MESSAGE frame is
//matched on and the value it must carry. From 1.1 on the pair is the
//subscription id; under 1.0 it falls back to the destination.
type Token struct {
	Header string
	Value  string
}

//The builders below are pure: they turn caller input plus a protocol version
//into a conformant frame and never touch session state. Registration of
//subscriptions, transactions and receipts happens in the Session once the
//built frame is accepted.

//ConnectFrame builds the CONNECT frame opening a session. Login and passcode
//are omitted when unset. For 1.1+ the accept-version, host and heart-beat
//headers are added; a plain 1.0 connect carries credentials only.
func ConnectFrame(login, passcode string, versions []Version, host string, heartBeat HeartBeat) (*Frame, error) {
	if len(versions) == 0 {
		versions = SupportedVersions
	}
	for _, v := range versions {
		if !ValidVersion(v) {
			return nil, ProtocolError("unsupported version " + string(v))
		}
	}
	header := NewHeader()
	if login != "" {
		header.Set(HdrLogin, login)
	}
	if passcode != "" {
		header.Set(HdrPasscode, passcode)
	}
	highest := highestVersion(versions)
	if highest.AtLeast(V11) {
		accepted := make([]string, len(versions))
		for i, v := range versions {
			accepted[i] = string(v)
		}
		header.Set(HdrAcceptVersion, strings.Join(accepted, ","))
		header.Set(HdrHost, host)
		if heartBeat != (HeartBeat{}) {
			header.Set(HdrHeartBeat, heartBeat.String())
		}
	}
	return &Frame{Command: CmdConnect, Header: header, Version: highest}, nil
}

//SendFrame builds a SEND frame. Caller headers are kept as given, except the
//destination header which is always the destination argument.
func SendFrame(destination string, body []byte, header *Header, transaction string, v Version) (*Frame, error) {
	if destination == "" {
		return nil, ProtocolError("SEND requires a destination")
	}
	h := header.Clone()
	h.Set(HdrDestination, destination)
	if transaction != "" {
		h.Set(HdrTransaction, transaction)
	}
	return &Frame{Command: CmdSend, Header: h, Body: body, Version: v}, nil
}

//SubscribeFrame builds a SUBSCRIBE frame and derives the subscription token.
//From 1.1 on every subscription needs an id: a caller-supplied id header is
//honored, otherwise one is generated, and the token is (id, value). Under
//1.0 an explicit id still wins; without one the destination is the token.
func SubscribeFrame(destination string, header *Header, v Version) (*Frame, Token, error) {
	if destination == "" {
		return nil, Token{}, ProtocolError("SUBSCRIBE requires a destination")
	}
	h := header.Clone()
	h.Set(HdrDestination, destination)
	id, hasID := h.Contains(HdrID)
	if !hasID && v.AtLeast(V11) {
		generated, err := uuid.NewV4()
		if err != nil {
			return nil, Token{}, err
		}
		id = generated.String()
		h.Set(HdrID, id)
		hasID = true
	}
	token := Token{Header: HdrDestination, Value: destination}
	if hasID {
		token = Token{Header: HdrID, Value: id}
	}
	return &Frame{Command: CmdSubscribe, Header: h, Version: v}, token, nil
}

//UnsubscribeFrame builds the UNSUBSCRIBE frame matching a subscribe token.
//1.1+ only accepts id tokens; 1.0 brokers take either id or destination.
func UnsubscribeFrame(token Token, v Version) (*Frame, error) {
	if v.AtLeast(V11) && token.Header != HdrID {
		return nil, ProtocolError("UNSUBSCRIBE in STOMP " + string(v) + " requires an id token")
	}
	if token.Header != HdrID && token.Header != HdrDestination {
		return nil, ProtocolError("invalid subscription token header " + token.Header)
	}
	return &Frame{Command: CmdUnsubscribe, Header: NewHeader(token.Header, token.Value), Version: v}, nil
}

//AckFrame builds an ACK for a received MESSAGE frame. The identifying
//headers are version-dependent: 1.0 echoes message-id, 1.1 adds the
//subscription id, 1.2 references the message's ack header instead.
func AckFrame(message *Frame, transaction, receipt string) (*Frame, error) {
	return acknowledgement(CmdAck, message, transaction, receipt)
}

//NackFrame builds a NACK for a received MESSAGE frame. NACK does not exist
//in STOMP 1.0 and building one fails there.
func NackFrame(message *Frame, transaction, receipt string) (*Frame, error) {
	if !message.Version.AtLeast(V11) {
		return nil, ProtocolError("NACK is not defined in STOMP " + string(message.Version))
	}
	return acknowledgement(CmdNack, message, transaction, receipt)
}

func acknowledgement(command string, message *Frame, transaction, receipt string) (*Frame, error) {
	v := message.Version
	header := NewHeader()
	switch {
	case v == V12:
		ack, ok := message.Header.Contains(HdrAck)
		if !ok {
			return nil, ProtocolError(command + " in STOMP 1.2 requires the message's ack header")
		}
		header.Set(HdrID, ack)
	default:
		id, ok := message.Header.Contains(HdrMessageID)
		if !ok {
			return nil, ProtocolError(command + " requires the message-id header")
		}
		header.Set(HdrMessageID, id)
		if v.AtLeast(V11) {
			sub, ok := message.Header.Contains(HdrSubscription)
			if !ok {
				return nil, ProtocolError(command + " in STOMP " + string(v) + " requires the subscription header")
			}
			header.Set(HdrSubscription, sub)
		}
	}
	if transaction != "" {
		header.Set(HdrTransaction, transaction)
	}
	if receipt != "" {
		header.Set(HdrReceipt, receipt)
	}
	return &Frame{Command: command, Header: header, Version: v}, nil
}

//BeginFrame builds a BEGIN frame opening the given transaction.
func BeginFrame(transaction string, v Version) (*Frame, error) {
	return transactionFrame(CmdBegin, transaction, v)
}

//CommitFrame builds a COMMIT frame for the given transaction.
func CommitFrame(transaction string, v Version) (*Frame, error) {
	return transactionFrame(CmdCommit, transaction, v)
}

//AbortFrame builds an ABORT frame for the given transaction.
func AbortFrame(transaction string, v Version) (*Frame, error) {
	return transactionFrame(CmdAbort, transaction, v)
}

func transactionFrame(command, transaction string, v Version) (*Frame, error) {
	if transaction == "" {
		return nil, ProtocolError(command + " requires a transaction id")
	}
	return &Frame{Command: command, Header: NewHeader(HdrTransaction, transaction), Version: v}, nil
}

//DisconnectFrame builds a DISCONNECT frame, optionally requesting a receipt
//so the caller can drain the socket before closing it.
func DisconnectFrame(receipt string, v Version) *Frame {
	header := NewHeader()
	if receipt != "" {
		header.Set(HdrReceipt, receipt)
	}
	return &Frame{Command: CmdDisconnect, Header: header, Version: v}
}
