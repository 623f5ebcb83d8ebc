package scmi

import "encoding/binary"

// FakeSCP is a minimal Doorbell that answers every request with a
// caller-supplied responder, standing in for the external system-
// control processor in other packages' tests (platform's Ops backends,
// chiefly) without exposing this package's mailbox layout to them.
type FakeSCP struct {
	ch *Channel

	// Respond, if set, computes a reply payload for the given protocol
	// id, message id, and request payload. A nil Respond answers every
	// request with a bare success status.
	Respond func(protoID, msgID uint32, reqPayload []byte) []byte
}

// NewFakeSCP builds a FakeSCP wired to a fresh Channel.
func NewFakeSCP() *FakeSCP {
	scp := &FakeSCP{}
	scp.ch = NewChannel(scp)

	return scp
}

// Channel returns the Channel this FakeSCP answers.
func (f *FakeSCP) Channel() *Channel { return f.ch }

// Ring implements Doorbell.
func (f *FakeSCP) Ring() error {
	buf := f.ch.mem.Bytes()

	header := binary.LittleEndian.Uint32(buf[offHeader:])
	protoID := HeaderProtocolID(header)
	msgID := HeaderMsgID(header)
	length := binary.LittleEndian.Uint32(buf[offLength:])
	reqPayload := append([]byte(nil), buf[offPayload:offPayload+(length-headerSize)]...)

	var reply []byte
	if f.Respond != nil {
		reply = f.Respond(protoID, msgID, reqPayload)
	} else {
		reply = make([]byte, 4)
	}

	copy(buf[offPayload:], reply)
	binary.LittleEndian.PutUint32(buf[offLength:], uint32(headerSize+len(reply)))
	f.ch.setFree(true)

	return nil
}
