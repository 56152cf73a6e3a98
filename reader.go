package stompest

import (
	"bufio"
	"io"
	"strings"
)

//ReadFrame parses one frame off the reader, decoding headers per the given
//version. Empty lines before the command are heart-beats and are skipped.
//The body is read up to the content-length header when one is present, which
//allows NUL bytes in the body, and up to the NUL terminator otherwise.
func ReadFrame(r *bufio.Reader, v Version) (*Frame, error) {
	command, err := readLine(r)
	if err != nil {
		return nil, err
	}
	for command == "" {
		//heart-beat
		if command, err = readLine(r); err != nil {
			return nil, err
		}
	}

	frame := &Frame{Command: command, Header: NewHeader(), Version: v}
	escaped := v.AtLeast(V11) && command != CmdConnected && command != CmdConnect
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		parsed := strings.SplitN(line, ":", 2)
		if len(parsed) != 2 {
			return nil, BadFrameError("malformed header line " + line)
		}
		key, value := parsed[0], parsed[1]
		if escaped {
			if key, err = decodeHeader(v, key); err != nil {
				return nil, err
			}
			if value, err = decodeHeader(v, value); err != nil {
				return nil, err
			}
		}
		//repeated keys keep their first value, later entries only survive
		//for serialization fidelity
		frame.Header.entries = append(frame.Header.entries, key, value)
	}

	length, ok, err := frame.Header.ContentLength()
	if err != nil {
		return nil, err
	}
	if ok {
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		terminator, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if terminator != 0 {
			return nil, BadFrameError("missing NUL terminator after sized body")
		}
		if length > 0 {
			frame.Body = body
		}
	} else {
		body, err := r.ReadBytes(0)
		if err != nil {
			return nil, err
		}
		if len(body) > 1 {
			frame.Body = body[:len(body)-1]
		}
	}
	return frame, nil
}

//readLine reads up to the next newline, tolerating the optional carriage
//return 1.2 servers may emit.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
