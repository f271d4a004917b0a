package pool

import "encoding/binary"

// totalLength reads the declared total length of an IPv4 or IPv6 packet
// from its header, without interpreting anything else about the payload
// (never interprets packet payloads beyond reading the declared
// total length from the IP header").
func totalLength(packet []byte) uint16 {
	if len(packet) < 1 {
		return 0
	}
	switch packet[0] >> 4 {
	case 4:
		if len(packet) < 4 {
			return 0
		}
		return binary.BigEndian.Uint16(packet[2:4])
	case 6:
		if len(packet) < 6 {
			return 0
		}
		// IPv6 fixed header is 40 bytes; the payload-length field at
		// offset 4 excludes it, so add it back to get a total length
		// comparable to an IPv4 MTU check.
		payloadLen := binary.BigEndian.Uint16(packet[4:6])
		return payloadLen + 40
	default:
		return uint16(len(packet))
	}
}
