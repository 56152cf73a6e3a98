package stompest

//ConnectionError means an operation was attempted in the wrong lifecycle state,
//for example sending before connect or connecting twice.
type ConnectionError string

//ProtocolError means a frame, sent or received, violates the rules of the
//negotiated protocol version.
type ProtocolError string

//BadFrameError means bytes off the wire could not be parsed as a frame.
type BadFrameError string

func (ce ConnectionError) Error() string {
	return "connection error : " + string(ce)
}

func (pe ProtocolError) Error() string {
	return "protocol error : " + string(pe)
}

func (be BadFrameError) Error() string {
	return "bad frame received from server : " + string(be)
}
