package hcibridge

import "fmt"

// Kind is the first octet of every packet on the host stream.
type Kind uint8

// Packet kinds
const (
	KindCommand   Kind = 0x01
	KindACLData   Kind = 0x02
	KindEvent     Kind = 0x04
	KindVendorRsp Kind = 0x11
	KindVendorEvt Kind = 0x12
	KindLocalCmd  Kind = 0x20
	KindLocalRsp  Kind = 0x21
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "BT_CMD"
	case KindACLData:
		return "BT_ACL"
	case KindEvent:
		return "BT_EVENT"
	case KindVendorRsp:
		return "VENDOR_RSP"
	case KindVendorEvt:
		return "VENDOR_EVT"
	case KindLocalCmd:
		return "LOCAL_CMD"
	case KindLocalRsp:
		return "LOCAL_RSP"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// IsVendor reports whether k is one of the vendor kinds whose framing is
// selected by VendorFraming.
func (k Kind) IsVendor() bool {
	return k == KindVendorRsp || k == KindVendorEvt
}

// VendorFraming selects how VENDOR_RSP and VENDOR_EVT packets are framed.
type VendorFraming int

const (
	// VendorReject drops vendor kind bytes in IDLE like any other garbage.
	VendorReject VendorFraming = iota
	// VendorEventShape frames vendor packets like BT_EVENT: kind, one opaque
	// byte, one length byte.
	VendorEventShape
)

func (v VendorFraming) String() string {
	switch v {
	case VendorReject:
		return "reject"
	case VendorEventShape:
		return "event"
	default:
		return fmt.Sprintf("vendorFraming(%d)", int(v))
	}
}

// ParseVendorFraming is the inverse of VendorFraming.String.
func ParseVendorFraming(s string) (VendorFraming, error) {
	switch s {
	case "", "reject":
		return VendorReject, nil
	case "event":
		return VendorEventShape, nil
	default:
		return VendorReject, fmt.Errorf("unknown vendor framing %q", s)
	}
}
