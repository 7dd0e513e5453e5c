package local

import "fmt"

const (
	ogfBitShift = 10
	ocfMask     = 0x03ff

	// OGFVendor is the vendor specific debug group.
	OGFVendor uint16 = 0x3f
)

// Opcode packs a group and command field into an HCI opcode.
func Opcode(ogf, ocf uint16) uint16 {
	return ogf<<ogfBitShift | ocf&ocfMask
}

// SplitOpcode is the inverse of Opcode.
func SplitOpcode(op uint16) (ogf, ocf uint16) {
	return op >> ogfBitShift, op & ocfMask
}

// Bridge commands served without a radio round trip.
var (
	OpcodeBridgeInfo  = Opcode(OGFVendor, 0x001)
	OpcodeBridgeStats = Opcode(OGFVendor, 0x002)
)

func opcodeString(op uint16) string {
	ogf, ocf := SplitOpcode(op)
	return fmt.Sprintf("0x%04x (0x%02x|0x%04x)", op, ogf, ocf)
}
