package scmi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/coreward/psci/cachectl"
)

// ErrProtocolViolation covers every condition the original treats as
// fatal: the channel was not free when acquired or released, a reply's
// length field didn't match what the wrapper expected, or a reply's
// token didn't match the request's. The spec treats these as
// unrecoverable (§7) because a disagreement with the SCP cannot be
// resolved locally without risking a corrupt power transition; callers
// that hit it are expected to halt rather than retry.
var ErrProtocolViolation = errors.New("scmi: protocol violation")

// Doorbell is the external mailbox/doorbell adapter (spec.md §1): a
// register poke that interrupts the SCP, nothing more. Anything about
// message framing, channel ownership, or polling lives in this package,
// not behind this interface.
type Doorbell interface {
	Ring() error
}

// mailbox memory layout (spec.md §4.3): reserved word, status word,
// reserved qword, flags word, length word, header word, payload.
const (
	offReserved0 = 0
	offStatus    = 4
	offReserved1 = 8
	offFlags     = 16
	offLength    = 20
	offHeader    = 24
	offPayload   = 28

	// MaxPayload is the largest payload this transport carries.
	MaxPayload = 128

	regionSize = offPayload + MaxPayload

	statusFreeBit uint32 = 1 << 0

	// FlagRespPoll marks a request as synchronous (poll for the reply in
	// place, rather than waiting for an interrupt).
	FlagRespPoll uint32 = 1 << 0
)

// Channel is the single SCMI channel modeled by this driver (spec.md
// pins channel count at one; §4.3).
type Channel struct {
	mu       sync.Mutex
	mem      *cachectl.Controller
	doorbell Doorbell
}

// NewChannel builds a Channel backed by a fresh mailbox region and the
// given doorbell adapter. The channel starts AP-free: cachectl.NewController
// zeroes the region, and the free bit is part of that region, so it must
// be set explicitly or the first getChannel would see a busy channel no
// doorbell ring ever started.
func NewChannel(doorbell Doorbell) *Channel {
	c := &Channel{
		mem:      cachectl.NewController(regionSize),
		doorbell: doorbell,
	}
	c.setFree(true)

	return c
}

func (c *Channel) isFree() bool {
	return binary.LittleEndian.Uint32(c.mem.Bytes()[offStatus:])&statusFreeBit != 0
}

func (c *Channel) setFree(free bool) {
	buf := c.mem.Bytes()
	status := binary.LittleEndian.Uint32(buf[offStatus:])

	if free {
		status |= statusFreeBit
	} else {
		status &^= statusFreeBit
	}

	binary.LittleEndian.PutUint32(buf[offStatus:], status)
}

// getChannel acquires exclusive access to the channel and verifies the AP
// currently owns it. Callers must pair every getChannel with putChannel.
func (c *Channel) getChannel() error {
	c.mu.Lock()

	if !c.isFree() {
		c.mu.Unlock()

		return fmt.Errorf("%w: channel not free on acquire", ErrProtocolViolation)
	}

	return nil
}

// putChannel verifies the channel was left free by the SCP's reply and
// releases the lock.
func (c *Channel) putChannel() error {
	defer c.mu.Unlock()

	if !c.isFree() {
		return fmt.Errorf("%w: channel not free on release", ErrProtocolViolation)
	}

	return nil
}

// writeRequest composes the header/length/flags/payload fields and
// clean-invalidates the whole window, since the mailbox is non-cacheable
// from the SCP's point of view.
func (c *Channel) writeRequest(header uint32, flags uint32, payload []byte) {
	buf := c.mem.Bytes()

	binary.LittleEndian.PutUint32(buf[offHeader:], header)
	binary.LittleEndian.PutUint32(buf[offLength:], uint32(headerSize+len(payload)))
	binary.LittleEndian.PutUint32(buf[offFlags:], flags)
	copy(buf[offPayload:], payload)

	c.mem.CleanInvalidateRange(0, uintptr(regionSize))
}

const headerSize = 4

// sendSync runs the synchronous handshake described in §4.3: mark the
// channel busy, fence, ring the doorbell, fence, poll for the free bit,
// fence once more before the payload is read back.
func (c *Channel) sendSync() error {
	c.setFree(false)
	cachectl.FenceIO()

	if err := c.doorbell.Ring(); err != nil {
		return fmt.Errorf("scmi: ring doorbell: %w", err)
	}

	cachectl.FenceIO()

	for !c.isFree() {
		// Hardware polls never time out (§5): the system is wedged if
		// the SCP never replies.
	}

	cachectl.FenceIO()

	return nil
}

// readReply returns the reply length, header, and payload bytes.
func (c *Channel) readReply() (length uint32, header uint32, payload []byte) {
	buf := c.mem.Bytes()

	length = binary.LittleEndian.Uint32(buf[offLength:])
	header = binary.LittleEndian.Uint32(buf[offHeader:])
	payload = append([]byte(nil), buf[offPayload:offPayload+MaxPayload]...)

	return length, header, payload
}

// roundTrip is the shared request/reply cycle every typed wrapper in
// client.go drives: acquire, write, exchange, validate length and token,
// release.
func (c *Channel) roundTrip(protocolID, msgID, token uint32, reqPayload []byte, wantRespLen uint32) ([]byte, error) {
	if err := c.getChannel(); err != nil {
		return nil, err
	}

	header := EncodeHeader(protocolID, msgID, token)
	c.writeRequest(header, FlagRespPoll, reqPayload)

	if err := c.sendSync(); err != nil {
		c.mu.Unlock()

		return nil, err
	}

	gotLen, gotHeader, payload := c.readReply()

	if gotLen != wantRespLen {
		c.mu.Unlock()

		return nil, fmt.Errorf("%w: response length %d, want %d", ErrProtocolViolation, gotLen, wantRespLen)
	}

	if gotToken := HeaderToken(gotHeader); gotToken != token {
		c.mu.Unlock()

		return nil, fmt.Errorf("%w: response token %d, want %d", ErrProtocolViolation, gotToken, token)
	}

	if err := c.putChannel(); err != nil {
		return nil, err
	}

	return payload, nil
}
