package stompest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedSession(t *testing.T, versions ...Version) *Session {
	session := NewSession(versions, true)
	_, err := session.Connect("", "", "localhost", HeartBeat{})
	require.NoError(t, err, "did not expect an error starting connect")
	header := NewHeader(HdrSession, "4711")
	if session.version.AtLeast(V11) {
		header.Set(HdrVersion, string(session.version))
	}
	require.NoError(t, session.Connected(&Frame{Command: CmdConnected, Header: header}), "did not expect an error completing connect")
	return session
}

func TestSessionLifecycleGuards(t *testing.T) {
	session := NewSession(nil, true)
	assert.Equal(t, StateDisconnected, session.State())

	_, err := session.Send("/queue/foo", []byte("test"), nil, "")
	assert.IsType(t, ConnectionError(""), err, "send before connect should fail")
	_, _, err = session.Subscribe("/queue/foo", nil)
	assert.IsType(t, ConnectionError(""), err, "subscribe before connect should fail")
	_, err = session.Begin("tx1")
	assert.IsType(t, ConnectionError(""), err, "begin before connect should fail")
	_, err = session.Disconnect("")
	assert.IsType(t, ConnectionError(""), err, "disconnect before connect should fail")
}

func TestSessionConnectOnlyFromDisconnected(t *testing.T) {
	session := connectedSession(t, V12)
	_, err := session.Connect("", "", "localhost", HeartBeat{})
	require.Error(t, err, "expected an error connecting twice")
	assert.IsType(t, ConnectionError(""), err)
}

func TestSessionConnectedStoresIDAndVersion(t *testing.T) {
	session := NewSession([]Version{V10, V11, V12}, true)
	_, err := session.Connect("", "", "localhost", HeartBeat{})
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, session.State())

	err = session.Connected(&Frame{Command: CmdConnected, Header: NewHeader(HdrVersion, "1.1", HdrSession, "4711", HdrServer, "fake/1.0")})
	require.NoError(t, err, "did not expect an error on CONNECTED")
	assert.Equal(t, StateConnected, session.State())
	assert.Equal(t, V11, session.Version())
	assert.Equal(t, "4711", session.ID())
	assert.Equal(t, "fake/1.0", session.Server())
}

func TestSessionConnectedNegotiatesHeartBeat(t *testing.T) {
	session := NewSession([]Version{V12}, true)
	_, err := session.Connect("", "", "localhost", HeartBeat{Send: 1000, Receive: 2000})
	require.NoError(t, err)
	err = session.Connected(&Frame{Command: CmdConnected, Header: NewHeader(HdrVersion, "1.2", HdrHeartBeat, "3000,500")})
	require.NoError(t, err)
	assert.Equal(t, HeartBeat{Send: 1000, Receive: 3000}, session.HeartBeat())
}

func TestSessionErrorInsteadOfConnectedFails(t *testing.T) {
	session := NewSession(nil, true)
	_, err := session.Connect("", "", "localhost", HeartBeat{})
	require.NoError(t, err)

	err = session.Connected(&Frame{Command: CmdError, Header: NewHeader(), Body: []byte("fake error")})
	require.Error(t, err, "expected an error for an ERROR reply")
	assert.IsType(t, ProtocolError(""), err)
	assert.Contains(t, err.Error(), "fake error", "broker detail should be carried in the error")
	assert.Equal(t, StateFailed, session.State())
}

func TestSessionConnectedWhileNotConnecting(t *testing.T) {
	session := NewSession(nil, true)
	err := session.Connected(&Frame{Command: CmdConnected, Header: NewHeader(HdrVersion, "1.2")})
	require.Error(t, err, "expected an error for CONNECTED while not connecting")
	assert.IsType(t, ConnectionError(""), err)
}

func TestSessionVersionMismatchFailsSession(t *testing.T) {
	session := NewSession([]Version{V12}, true)
	_, err := session.Connect("", "", "localhost", HeartBeat{})
	require.NoError(t, err)
	err = session.Connected(&Frame{Command: CmdConnected, Header: NewHeader(HdrVersion, "1.0")})
	require.Error(t, err, "expected an error for a version outside the requested set")
	assert.IsType(t, ProtocolError(""), err)
	assert.Equal(t, StateFailed, session.State())
}

func TestSessionMessageClassification10(t *testing.T) {
	session := connectedSession(t, V10)
	_, token, err := session.Subscribe("/queue/foo", NewHeader("foo", "bar"))
	require.NoError(t, err, "did not expect an error subscribing")
	assert.Equal(t, Token{Header: HdrDestination, Value: "/queue/foo"}, token)

	matched, err := session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrDestination, "/queue/foo"), Version: V10})
	require.NoError(t, err, "did not expect an error classifying")
	assert.Equal(t, token, matched)

	_, err = session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrDestination, "unknown"), Version: V10})
	assert.IsType(t, ProtocolError(""), err, "unknown destination should be a protocol error")

	_, err = session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrDestination, "/queue/foo"), Version: V10})
	assert.IsType(t, ProtocolError(""), err, "missing message-id should be a protocol error")
}

func TestSessionMessageClassification12(t *testing.T) {
	session := connectedSession(t, V12)
	_, token, err := session.Subscribe("/queue/foo", nil)
	require.NoError(t, err, "did not expect an error subscribing")
	require.Equal(t, HdrID, token.Header)

	matched, err := session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrDestination, "/queue/foo", HdrSubscription, token.Value), Version: V12})
	require.NoError(t, err, "did not expect an error classifying")
	assert.Equal(t, token, matched)

	_, err = session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrDestination, "/queue/foo"), Version: V12})
	assert.IsType(t, ProtocolError(""), err, "missing subscription header should be a protocol error under 1.2")

	_, err = session.Message(&Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrSubscription, "nope"), Version: V12})
	assert.IsType(t, ProtocolError(""), err, "unknown subscription id should be a protocol error")
}

func TestSessionSubscribeTokensAreUnique(t *testing.T) {
	session := connectedSession(t, V12)
	_, _, err := session.Subscribe("/queue/foo", NewHeader(HdrID, "0815"))
	require.NoError(t, err)
	_, _, err = session.Subscribe("/queue/bar", NewHeader(HdrID, "0815"))
	require.Error(t, err, "expected an error reusing a subscription id")
	assert.IsType(t, ProtocolError(""), err)
}

func TestSessionUnsubscribeRemovesToken(t *testing.T) {
	session := connectedSession(t, V12)
	_, token, err := session.Subscribe("/queue/foo", nil)
	require.NoError(t, err)
	_, err = session.Unsubscribe(token)
	require.NoError(t, err, "did not expect an error unsubscribing")
	_, err = session.Unsubscribe(token)
	require.Error(t, err, "expected an error unsubscribing twice")
	assert.IsType(t, ProtocolError(""), err)
}

func TestSessionTransactions(t *testing.T) {
	session := connectedSession(t, V12)
	_, err := session.Begin("4711")
	require.NoError(t, err, "did not expect an error beginning")
	assert.Equal(t, []string{"4711"}, session.ActiveTransactions())

	_, err = session.Begin("4711")
	require.Error(t, err, "expected an error for a duplicate transaction id")
	assert.IsType(t, ProtocolError(""), err)

	_, err = session.Commit("4711")
	require.NoError(t, err, "did not expect an error committing")
	assert.Empty(t, session.ActiveTransactions())

	_, err = session.Commit("4711")
	require.Error(t, err, "expected an error committing an unknown transaction")
	assert.IsType(t, ProtocolError(""), err)

	_, err = session.Abort("unknown")
	require.Error(t, err, "expected an error aborting an unknown transaction")
	assert.IsType(t, ProtocolError(""), err)
}

func TestSessionSendInsideUnknownTransaction(t *testing.T) {
	session := connectedSession(t, V12)
	_, err := session.Send("/queue/foo", nil, NewHeader(HdrTransaction, "nope"), "")
	require.Error(t, err, "expected an error sending in an unknown transaction")
	assert.IsType(t, ProtocolError(""), err)
}

func TestSessionReceipts(t *testing.T) {
	session := connectedSession(t, V12)
	_, err := session.Send("/queue/foo", nil, NewHeader(HdrReceipt, "message-1"), "")
	require.NoError(t, err, "did not expect an error sending")
	assert.Equal(t, []string{"message-1"}, session.OutstandingReceipts())

	id, err := session.Receipt(&Frame{Command: CmdReceipt, Header: NewHeader(HdrReceiptID, "message-1")})
	require.NoError(t, err, "did not expect an error classifying the receipt")
	assert.Equal(t, "message-1", id)
	assert.Empty(t, session.OutstandingReceipts())

	_, err = session.Receipt(&Frame{Command: CmdReceipt, Header: NewHeader(HdrReceiptID, "message-1")})
	require.Error(t, err, "expected an error for an unsolicited receipt")
	assert.IsType(t, ProtocolError(""), err)
}

func TestSessionCloseClearsEverything(t *testing.T) {
	session := connectedSession(t, V12)
	_, _, err := session.Subscribe("/queue/foo", nil)
	require.NoError(t, err)
	_, err = session.Begin("4711")
	require.NoError(t, err)

	session.Close(true)
	assert.Equal(t, StateDisconnected, session.State())
	assert.Empty(t, session.Subscriptions())
	assert.Empty(t, session.ActiveTransactions())

	//idempotent
	session.Close(true)
	assert.Equal(t, StateDisconnected, session.State())
}

func TestSessionCloseAbnormal(t *testing.T) {
	session := connectedSession(t, V12)
	session.Close(false)
	assert.Equal(t, StateFailed, session.State())
}

func TestSessionNack10Rejected(t *testing.T) {
	session := connectedSession(t, V10)
	message := &Frame{Command: CmdMessage, Header: NewHeader(HdrMessageID, "4711", HdrDestination, "/queue/foo"), Version: V10}
	_, err := session.Nack(message, "", "")
	require.Error(t, err, "expected an error nacking under 1.0")
	assert.IsType(t, ProtocolError(""), err)
}
