package cip

import (
	"encoding/binary"
	"fmt"
)

// SvcUnconnectedSendReply is the Unconnected_Send reply service code.
const SvcUnconnectedSendReply byte = 0xD2

// BuildUnconnectedSend wraps a CIP request in an Unconnected_Send
// (service 0x52 to the Connection Manager) so it can be routed through
// a backplane path to the target CPU.
func BuildUnconnectedSend(cipRequest []byte, routePath []byte) ([]byte, error) {
	if len(routePath) == 0 {
		return nil, fmt.Errorf("UnconnectedSend: empty route path")
	}

	ucmm := make([]byte, 0, 4+len(cipRequest)+3+len(routePath))
	ucmm = append(ucmm, 0x0A) // Priority/time tick
	ucmm = append(ucmm, 0x05) // Timeout ticks
	ucmm = binary.LittleEndian.AppendUint16(ucmm, uint16(len(cipRequest)))
	ucmm = append(ucmm, cipRequest...)
	if len(cipRequest)%2 != 0 {
		ucmm = append(ucmm, 0x00) // Pad to word boundary
	}
	ucmm = append(ucmm, byte(len(routePath)/2)) // Route path size in words
	ucmm = append(ucmm, 0x00)                   // Reserved
	ucmm = append(ucmm, routePath...)

	cmPath, err := EPath().Class(ClassConnectionManager).Instance(InstanceConnManager).Build()
	if err != nil {
		return nil, err
	}
	req := make([]byte, 0, 2+len(cmPath)+len(ucmm))
	req = append(req, SvcUnconnectedSend)
	req = append(req, cmPath.WordLen())
	req = append(req, cmPath...)
	req = append(req, ucmm...)
	return req, nil
}

// UnwrapUnconnectedSendResponse strips an Unconnected_Send reply
// wrapper, if present, and returns the embedded CIP response frame.
// Responses that are not UCMM replies pass through unchanged.
func UnwrapUnconnectedSendResponse(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("UnconnectedSend: response too short: %d bytes", len(data))
	}
	if data[0] != SvcUnconnectedSendReply {
		return data, nil
	}
	status := data[2]
	addlStatusSize := data[3]
	if status != 0 {
		// A routing failure reports the error at the UCMM level; the
		// embedded response (if any) never arrived.
		return nil, fmt.Errorf("UnconnectedSend: routing error status=0x%02X (%s)", status, StatusName(status))
	}
	embeddedStart := 4 + int(addlStatusSize)*2
	if embeddedStart >= len(data) {
		return nil, fmt.Errorf("UnconnectedSend: response has no embedded data")
	}
	return data[embeddedStart:], nil
}
