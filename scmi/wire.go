// Package scmi implements the shared-memory mailbox transport and the
// power-domain protocol client used to forward aggregated power-state
// requests to an external system-control processor (spec.md §4.3, §4.4).
//
// The wire layout is grounded on migration/transport.go's framed-message
// idiom (fixed header, explicit length, sentinel errors) even though the
// underlying mechanism here is a polled shared-memory region rather than
// a stream socket.
package scmi

// Protocol and message ids used by this driver.
const (
	ProtoBase   uint32 = 0x10
	ProtoPwrDmn uint32 = 0x11
	ProtoSysPwr uint32 = 0x12

	MsgProtocolVersion uint32 = 0x0
	MsgProtocolMsgAttr uint32 = 0x2

	MsgPwrStateSet uint32 = 0x4
	MsgPwrStateGet uint32 = 0x5

	MsgSysPwrStateSet uint32 = 0x3
)

// Fixed response payload lengths (header + payload), validated on every
// reply per spec.md §4.4.
const (
	RespLenProtocolVersion = 12 // header + status + version
	RespLenProtocolMsgAttr = 12 // header + status + attributes
	RespLenPwrStateSet     = 8  // header + status
	RespLenPwrStateGet     = 12 // header + status + state
	RespLenSysPwrStateSet  = 8  // header + status
)

// Header bit layout: msg_id occupies bits [0:10), protocol_id occupies
// bits [10:18), token occupies bits [18:28). Token width is 10 bits.
const (
	msgIDBits      = 10
	protocolIDBits = 8
	tokenBits      = 10

	msgIDShift      = 0
	protocolIDShift = msgIDBits
	tokenShift      = msgIDBits + protocolIDBits

	msgIDMask      = uint32(1<<msgIDBits) - 1
	protocolIDMask = uint32(1<<protocolIDBits) - 1
	tokenMask      = uint32(1<<tokenBits) - 1
)

// EncodeHeader packs a message header as (protocol_id<<10)|(token<<18)|msg_id.
func EncodeHeader(protocolID, msgID, token uint32) uint32 {
	return (protocolID&protocolIDMask)<<protocolIDShift |
		(token&tokenMask)<<tokenShift |
		(msgID & msgIDMask)
}

// HeaderMsgID extracts the message id from a header word.
func HeaderMsgID(header uint32) uint32 { return (header >> msgIDShift) & msgIDMask }

// HeaderProtocolID extracts the protocol id from a header word.
func HeaderProtocolID(header uint32) uint32 { return (header >> protocolIDShift) & protocolIDMask }

// HeaderToken extracts the token from a header word.
func HeaderToken(header uint32) uint32 { return (header >> tokenShift) & tokenMask }

// Power-domain local states as encoded on the wire between this driver and
// the SCP (distinct from the PSCI-side plat_local_state_t encoding).
const (
	WireStateOff   uint32 = 0
	WireStateOn    uint32 = 1
	WireStateSleep uint32 = 2
)

// maxWireLevels is the number of 4-bit level-state nibbles packed into an
// SCMI power-state word (core/cluster/system plus one spare level).
const maxWireLevels = 4

// SetPwrStateLvl writes state into level's 4-bit field of word and returns
// the updated word, leaving every other field untouched.
func SetPwrStateLvl(word uint32, level uint, state uint32) uint32 {
	shift := uint(4) * level
	cleared := word &^ (uint32(0xF) << shift)

	return cleared | ((state & 0xF) << shift)
}

// GetPwrStateLvl reads level's 4-bit field back out of word.
func GetPwrStateLvl(word uint32, level uint) uint32 {
	shift := uint(4) * level

	return (word >> shift) & 0xF
}

// SetMaxLevel writes the "highest valid level" field (bits 16..19).
func SetMaxLevel(word uint32, maxLevel uint) uint32 {
	cleared := word &^ (uint32(0xF) << 16)

	return cleared | (uint32(maxLevel&0xF) << 16)
}

// GetMaxLevel reads the "highest valid level" field back out of word.
func GetMaxLevel(word uint32) uint {
	return uint((word >> 16) & 0xF)
}

// SystemPowerState values for SYSTEM_POWER_STATE_SET.
const (
	SystemStateShutdown uint32 = 0
	SystemStateCold     uint32 = 1
	SystemStateWarm     uint32 = 2
	SystemStateSuspend  uint32 = 3
)

// SystemPowerStateSetFlags.
const (
	FlagGraceful uint32 = 0
	FlagForceful uint32 = 1 << 0
)

// PowerStateSetFlags for POWER_STATE_SET.
const (
	FlagAsync uint32 = 1 << 0
)
