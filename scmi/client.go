package scmi

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// Client wraps a Channel with the typed SCMI power-domain and
// system-power protocol messages (spec.md §4.4). One Client owns the
// channel's token sequence; all wrappers run sequentially through
// roundTrip's channel lock, so a plain counter is enough.
type Client struct {
	ch    *Channel
	token uint32
}

// NewClient builds a Client over ch.
func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

func (c *Client) nextToken() uint32 {
	return atomic.AddUint32(&c.token, 1) & tokenMask
}

// ProtocolVersion queries the reported protocol version for protoID.
func (c *Client) ProtocolVersion(protoID uint32) (uint32, error) {
	payload, err := c.ch.roundTrip(protoID, MsgProtocolVersion, c.nextToken(), nil, RespLenProtocolVersion)
	if err != nil {
		return 0, err
	}

	return decodeStatusAndU32(payload)
}

// ProtocolMessageAttributes queries the message attributes for msgID
// under protoID.
func (c *Client) ProtocolMessageAttributes(protoID, msgID uint32) (uint32, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, msgID)

	payload, err := c.ch.roundTrip(protoID, MsgProtocolMsgAttr, c.nextToken(), req, RespLenProtocolMsgAttr)
	if err != nil {
		return 0, err
	}

	return decodeStatusAndU32(payload)
}

// PowerStateSet issues POWER_STATE_SET for domain with the packed SCMI
// power-state word. async selects SCMI_PWR_STATE_SET_FLAG_ASYNC; per the
// spec's open question, application CPUs only ever use async mode and
// this driver does not model a completion callback for it — the call is
// fire-and-forget once the SCP has acknowledged receipt.
func (c *Client) PowerStateSet(domain uint32, state uint32, async bool) error {
	flags := uint32(0)
	if async {
		flags = FlagAsync
	}

	req := make([]byte, 12)
	binary.LittleEndian.PutUint32(req[0:], flags)
	binary.LittleEndian.PutUint32(req[4:], domain)
	binary.LittleEndian.PutUint32(req[8:], state)

	payload, err := c.ch.roundTrip(ProtoPwrDmn, MsgPwrStateSet, c.nextToken(), req, RespLenPwrStateSet)
	if err != nil {
		return err
	}

	status := int32(binary.LittleEndian.Uint32(payload[0:4]))
	if status != 0 {
		return fmt.Errorf("scmi: power_state_set: scp status %d", status)
	}

	return nil
}

// PowerStateGet issues POWER_STATE_GET for domain and returns the packed
// SCMI power-state word.
func (c *Client) PowerStateGet(domain uint32) (uint32, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, domain)

	payload, err := c.ch.roundTrip(ProtoPwrDmn, MsgPwrStateGet, c.nextToken(), req, RespLenPwrStateGet)
	if err != nil {
		return 0, err
	}

	return decodeStatusAndU32(payload)
}

// SystemPowerStateSet issues SYSTEM_POWER_STATE_SET with the given flags
// (graceful/forceful) and target system state.
func (c *Client) SystemPowerStateSet(flags uint32, systemState uint32) error {
	req := make([]byte, 8)
	binary.LittleEndian.PutUint32(req[0:], flags)
	binary.LittleEndian.PutUint32(req[4:], systemState)

	payload, err := c.ch.roundTrip(ProtoSysPwr, MsgSysPwrStateSet, c.nextToken(), req, RespLenSysPwrStateSet)
	if err != nil {
		return err
	}

	status := int32(binary.LittleEndian.Uint32(payload[0:4]))
	if status != 0 {
		return fmt.Errorf("scmi: system_power_state_set: scp status %d", status)
	}

	return nil
}

func decodeStatusAndU32(payload []byte) (uint32, error) {
	status := int32(binary.LittleEndian.Uint32(payload[0:4]))
	if status != 0 {
		return 0, fmt.Errorf("scmi: scp status %d", status)
	}

	return binary.LittleEndian.Uint32(payload[4:8]), nil
}

// driverVersionCompatible implements the compatibility rule of spec.md
// §4.4: driver version D is compatible with reported version R iff
// major(D) > major(R), or major(D) == major(R) && minor(D) <= minor(R).
func driverVersionCompatible(driver, reported uint32) bool {
	dMajor, dMinor := driver>>16, driver&0xFFFF
	rMajor, rMinor := reported>>16, reported&0xFFFF

	if dMajor != rMajor {
		return dMajor > rMajor
	}

	return dMinor <= rMinor
}

// DriverVersions pins the versions this driver was written against.
const (
	PwrDmnDriverVersion = (2 << 16) | 0
	SysPwrDriverVersion = (1 << 16) | 0
)

// Handle is the initialized SCMI driver handle (spec.md §4.4): it probes
// protocol versions at startup and is only marked initialized once both
// are compatible.
type Handle struct {
	Client      *Client
	initialized bool
}

// Init probes PWR_DMN and SYS_PWR protocol versions over ch and returns a
// Handle marked initialized only if both are version-compatible.
func Init(ch *Channel) (*Handle, error) {
	client := NewClient(ch)
	h := &Handle{Client: client}

	pwrVer, err := client.ProtocolVersion(ProtoPwrDmn)
	if err != nil {
		return h, fmt.Errorf("scmi: pwr_dmn protocol version: %w", err)
	}

	if !driverVersionCompatible(PwrDmnDriverVersion, pwrVer) {
		return h, fmt.Errorf("scmi: pwr_dmn protocol version 0x%x incompatible with driver 0x%x", pwrVer, PwrDmnDriverVersion)
	}

	sysVer, err := client.ProtocolVersion(ProtoSysPwr)
	if err != nil {
		return h, fmt.Errorf("scmi: sys_pwr protocol version: %w", err)
	}

	if !driverVersionCompatible(SysPwrDriverVersion, sysVer) {
		return h, fmt.Errorf("scmi: sys_pwr protocol version 0x%x incompatible with driver 0x%x", sysVer, SysPwrDriverVersion)
	}

	h.initialized = true

	return h, nil
}

// Initialized reports whether both protocol probes succeeded and were
// version-compatible.
func (h *Handle) Initialized() bool { return h.initialized }
