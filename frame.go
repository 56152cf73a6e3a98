package stompest

import (
	"bytes"
	"fmt"
	"strconv"
)

var nullByte = []byte{0}

//Header is the ordered header block of a frame. Entries keep their insertion
//order for the wire; lookups return the first entry for a key, matching how
//brokers treat repeated header names.
type Header struct {
	entries []string
}

//NewHeader builds a Header from alternating key, value strings.
func NewHeader(pairs ...string) *Header {
	h := &Header{}
	h.entries = append(h.entries, pairs...)
	if len(h.entries)%2 != 0 {
		h.entries = append(h.entries, "")
	}
	return h
}

//Set replaces the first entry for key, or appends one if none exists.
func (h *Header) Set(key, value string) {
	for i := 0; i < len(h.entries); i += 2 {
		if h.entries[i] == key {
			h.entries[i+1] = value
			return
		}
	}
	h.entries = append(h.entries, key, value)
}

//Get returns the first value for key, or "" if absent.
func (h *Header) Get(key string) string {
	value, _ := h.Contains(key)
	return value
}

//Contains returns the first value for key and whether the key is present.
//A nil Header contains nothing.
func (h *Header) Contains(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	for i := 0; i < len(h.entries); i += 2 {
		if h.entries[i] == key {
			return h.entries[i+1], true
		}
	}
	return "", false
}

//Del removes every entry for key.
func (h *Header) Del(key string) {
	for i := 0; i < len(h.entries); {
		if h.entries[i] == key {
			h.entries = append(h.entries[:i], h.entries[i+2:]...)
			continue
		}
		i += 2
	}
}

//Len returns the number of entries.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.entries) / 2
}

//GetAt returns the entry at index i in insertion order.
func (h *Header) GetAt(i int) (key, value string) {
	return h.entries[2*i], h.entries[2*i+1]
}

//Clone returns a deep copy. Cloning a nil Header yields an empty one.
func (h *Header) Clone() *Header {
	c := &Header{}
	if h != nil {
		c.entries = append(c.entries, h.entries...)
	}
	return c
}

//ContentLength returns the parsed content-length entry if one is present.
func (h *Header) ContentLength() (int, bool, error) {
	text, ok := h.Contains(HdrContentLength)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, true, BadFrameError("invalid content-length " + text)
	}
	return int(n), true, nil
}

//asMap flattens the entries to first-wins key/value pairs.
func (h *Header) asMap() map[string]string {
	if h == nil {
		return map[string]string{}
	}
	m := make(map[string]string, h.Len())
	for i := 0; i < len(h.entries); i += 2 {
		if _, ok := m[h.entries[i]]; !ok {
			m[h.entries[i]] = h.entries[i+1]
		}
	}
	return m
}

//Frame is one STOMP message: a command, a header block and an optional
//binary body. Version is the protocol context the frame is interpreted
//under; it is not transmitted and takes no part in equality.
type Frame struct {
	Command string
	Header  *Header
	Body    []byte
	Version Version
}

//NewFrame builds a frame in the context of the newest supported version.
func NewFrame(command string, header *Header, body []byte) *Frame {
	return &Frame{Command: command, Header: header.Clone(), Body: body, Version: V12}
}

//Equal reports whether two frames carry the same command, the same header
//pairs (order ignored) and the same body bytes.
func (f *Frame) Equal(other *Frame) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.Command != other.Command {
		return false
	}
	if !bytes.Equal(f.Body, other.Body) {
		return false
	}
	a, b := f.Header.asMap(), other.Header.asMap()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

//Validate checks the frame against the rules of its version: the command
//must exist in that version and every required header must be present.
func (f *Frame) Validate() error {
	commands, ok := commandsByVersion[f.Version]
	if !ok {
		return ProtocolError("unsupported version " + string(f.Version))
	}
	if !commands[f.Command] {
		return ProtocolError(fmt.Sprintf("command %s is not defined in STOMP %s", f.Command, f.Version))
	}
	for _, name := range requiredHeaders[f.Version][f.Command] {
		if _, ok := f.Header.Contains(name); !ok {
			return ProtocolError(fmt.Sprintf("%s frame is missing required header %q", f.Command, name))
		}
	}
	return nil
}

//Marshal renders the frame in wire form: command line, header lines, blank
//line, body, NUL terminator. Header names and values are escaped per the
//frame's version; CONNECT and CONNECTED are never escaped.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	escape := f.Version.AtLeast(V11) && f.Command != CmdConnect && f.Command != CmdConnected
	if f.Header != nil {
		for i := 0; i < f.Header.Len(); i++ {
			k, v := f.Header.GetAt(i)
			if escape {
				k = encodeHeader(f.Version, k)
				v = encodeHeader(f.Version, v)
			}
			buf.WriteString(k)
			buf.WriteByte(':')
			buf.WriteString(v)
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.Write(nullByte)
	return buf.Bytes()
}

//String renders a log-friendly one-liner, truncating large bodies.
func (f *Frame) String() string {
	body := f.Body
	suffix := ""
	if len(body) > 64 {
		body, suffix = body[:64], "..."
	}
	return fmt.Sprintf("%s %v %q%s", f.Command, f.Header.asMap(), body, suffix)
}
