package stompest

import (
	"fmt"
	"strconv"
	"strings"
)

//Version is a STOMP protocol version. It steers header validation, header
//escaping and which commands are legal.
type Version string

//Supported versions of the STOMP protocol, oldest first.
const (
	V10 Version = "1.0"
	V11 Version = "1.1"
	V12 Version = "1.2"
)

var SupportedVersions = []Version{V10, V11, V12}

//Frame commands. Clients send the left column, brokers the right.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdDisconnect  = "DISCONNECT"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdAck         = "ACK"
	CmdNack        = "NACK"
	CmdBegin       = "BEGIN"
	CmdCommit      = "COMMIT"
	CmdAbort       = "ABORT"

	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdReceipt   = "RECEIPT"
	CmdError     = "ERROR"
)

//Header names defined by the protocol.
const (
	HdrAcceptVersion = "accept-version"
	HdrAck           = "ack"
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrDestination   = "destination"
	HdrHeartBeat     = "heart-beat"
	HdrHost          = "host"
	HdrID            = "id"
	HdrLogin         = "login"
	HdrMessage       = "message"
	HdrMessageID     = "message-id"
	HdrPasscode      = "passcode"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrServer        = "server"
	HdrSession       = "session"
	HdrSubscription  = "subscription"
	HdrTransaction   = "transaction"
	HdrVersion       = "version"
)

//commands legal per version. NACK and STOMP only exist from 1.1 on.
var commandsByVersion = map[Version]map[string]bool{
	V10: commandSet(CmdConnect, CmdDisconnect, CmdSend, CmdSubscribe, CmdUnsubscribe,
		CmdAck, CmdBegin, CmdCommit, CmdAbort, CmdConnected, CmdMessage, CmdReceipt, CmdError),
	V11: commandSet(CmdConnect, CmdStomp, CmdDisconnect, CmdSend, CmdSubscribe, CmdUnsubscribe,
		CmdAck, CmdNack, CmdBegin, CmdCommit, CmdAbort, CmdConnected, CmdMessage, CmdReceipt, CmdError),
	V12: commandSet(CmdConnect, CmdStomp, CmdDisconnect, CmdSend, CmdSubscribe, CmdUnsubscribe,
		CmdAck, CmdNack, CmdBegin, CmdCommit, CmdAbort, CmdConnected, CmdMessage, CmdReceipt, CmdError),
}

func commandSet(commands ...string) map[string]bool {
	set := make(map[string]bool, len(commands))
	for _, c := range commands {
		set[c] = true
	}
	return set
}

//headers a command must carry, per version. Commands absent from the map have
//no required headers.
var requiredHeaders = map[Version]map[string][]string{
	V10: {
		CmdSend:      {HdrDestination},
		CmdSubscribe: {HdrDestination},
		CmdMessage:   {HdrDestination, HdrMessageID},
		CmdAck:       {HdrMessageID},
		CmdBegin:     {HdrTransaction},
		CmdCommit:    {HdrTransaction},
		CmdAbort:     {HdrTransaction},
		CmdReceipt:   {HdrReceiptID},
	},
	V11: {
		CmdConnect:     {HdrAcceptVersion, HdrHost},
		CmdConnected:   {HdrVersion},
		CmdSend:        {HdrDestination},
		CmdSubscribe:   {HdrDestination, HdrID},
		CmdUnsubscribe: {HdrID},
		CmdMessage:     {HdrDestination, HdrMessageID, HdrSubscription},
		CmdAck:         {HdrMessageID, HdrSubscription},
		CmdNack:        {HdrMessageID, HdrSubscription},
		CmdBegin:       {HdrTransaction},
		CmdCommit:      {HdrTransaction},
		CmdAbort:       {HdrTransaction},
		CmdReceipt:     {HdrReceiptID},
	},
	V12: {
		CmdConnect:     {HdrAcceptVersion, HdrHost},
		CmdConnected:   {HdrVersion},
		CmdSend:        {HdrDestination},
		CmdSubscribe:   {HdrDestination, HdrID},
		CmdUnsubscribe: {HdrID},
		CmdMessage:     {HdrDestination, HdrMessageID, HdrSubscription},
		CmdAck:         {HdrID},
		CmdNack:        {HdrID},
		CmdBegin:       {HdrTransaction},
		CmdCommit:      {HdrTransaction},
		CmdAbort:       {HdrTransaction},
		CmdReceipt:     {HdrReceiptID},
	},
}

//ValidVersion reports whether v is a version this client speaks.
func ValidVersion(v Version) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

//AtLeast reports whether v is the same as or newer than other.
func (v Version) AtLeast(other Version) bool {
	return string(v) >= string(other)
}

//highestVersion returns the newest of the given versions.
func highestVersion(versions []Version) Version {
	highest := versions[0]
	for _, v := range versions[1:] {
		if v.AtLeast(highest) {
			highest = v
		}
	}
	return highest
}

//Negotiate picks the protocol version for a session from the versions the
//client requested and the version header of the broker's CONNECTED frame. An
//absent header means the broker only speaks 1.0.
func Negotiate(clientVersions []Version, serverVersion string) (Version, error) {
	if len(clientVersions) == 0 {
		clientVersions = SupportedVersions
	}
	if serverVersion == "" {
		serverVersion = string(V10)
	}
	for _, v := range clientVersions {
		if string(v) == serverVersion {
			return v, nil
		}
	}
	return "", ProtocolError(fmt.Sprintf("broker version %q not among requested versions %v", serverVersion, clientVersions))
}

//HeartBeat holds a heart-beat preference or negotiation outcome in
//milliseconds. Send is the interval at which this side can emit beats,
//Receive the interval at which it wants to receive them. Zero disables the
//respective direction.
type HeartBeat struct {
	Send    int
	Receive int
}

func (hb HeartBeat) String() string {
	return strconv.Itoa(hb.Send) + "," + strconv.Itoa(hb.Receive)
}

//ParseHeartBeat parses a heart-beat header value of the form "sx,sy".
func ParseHeartBeat(value string) (HeartBeat, error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return HeartBeat{}, ProtocolError("malformed heart-beat header " + value)
	}
	send, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return HeartBeat{}, ProtocolError("malformed heart-beat header " + value)
	}
	receive, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return HeartBeat{}, ProtocolError("malformed heart-beat header " + value)
	}
	if send < 0 || receive < 0 {
		return HeartBeat{}, ProtocolError("negative heart-beat interval " + value)
	}
	return HeartBeat{Send: send, Receive: receive}, nil
}

//NegotiateHeartBeat combines the client's preference with the broker's
//advertised heart-beat. A direction is active only when both sides support
//it, and then runs at the slower of the two rates.
func NegotiateHeartBeat(client, server HeartBeat) HeartBeat {
	negotiated := HeartBeat{}
	if client.Send > 0 && server.Receive > 0 {
		negotiated.Send = max(client.Send, server.Receive)
	}
	if client.Receive > 0 && server.Send > 0 {
		negotiated.Receive = max(client.Receive, server.Send)
	}
	return negotiated
}
