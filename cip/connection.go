package cip

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// Connection Manager services and addressing.
const (
	SvcForwardOpen      byte = 0x54 // 16-bit connection parameters, payload <= 511
	SvcForwardOpenLarge byte = 0x5B // 32-bit connection parameters
	SvcForwardClose     byte = 0x4E
	SvcUnconnectedSend  byte = 0x52

	ClassConnectionManager byte = 0x06
	InstanceConnManager    byte = 0x01
)

// Connection is an established CIP connection: the pair of connection
// ids negotiated by Forward Open plus the identity fields Forward
// Close must echo.
type Connection struct {
	OTConnID     uint32 // originator -> target
	TOConnID     uint32 // target -> originator
	SerialNumber uint16
	VendorID     uint16
	OrigSerial   uint32

	seq uint32 // low 16 bits carried on each connected frame
}

// NextSequence returns the next connected-messaging sequence number.
func (c *Connection) NextSequence() uint16 {
	return uint16(atomic.AddUint32(&c.seq, 1))
}

// WrapConnected prefixes the next sequence number to a CIP payload for
// transmission inside a Connected-Data CPF item.
func (c *Connection) WrapConnected(cipPayload []byte) []byte {
	w := buffer.New(2 + len(cipPayload))
	w.PutU16(c.NextSequence())
	w.PutBytes(cipPayload)
	return w.Bytes()
}

// UnwrapConnected splits the sequence prefix from a received
// Connected-Data payload.
func (c *Connection) UnwrapConnected(raw []byte) (seq uint16, cipPayload []byte, err error) {
	if len(raw) < 2 {
		return 0, nil, fmt.Errorf("connected data too short: %d bytes", len(raw))
	}
	return buffer.Wrap(raw).GetU16(), raw[2:], nil
}

// ForwardOpenConfig carries the negotiable parameters of a Forward
// Open request.
type ForwardOpenConfig struct {
	OTConnectionTimeout time.Duration
	TOConnectionTimeout time.Duration

	// Requested payload sizes per direction.
	OTConnectionSize uint16
	TOConnectionSize uint16

	// Route to the target plus the Message Router address.
	ConnectionPath []byte

	VendorID         uint16
	OriginatorSerial uint32
}

// DefaultForwardOpenConfig returns the parameter set used against
// Logix-family targets.
func DefaultForwardOpenConfig() ForwardOpenConfig {
	return ForwardOpenConfig{
		OTConnectionTimeout: 8 * time.Second,
		TOConnectionTimeout: 8 * time.Second,
		OTConnectionSize:    504,
		TOConnectionSize:    504,
		VendorID:            0x0001,
		OriginatorSerial:    uint32(rand.Int31()),
	}
}

// Fixed request fields. The RPI values request a ~2.1 s packet
// interval in microseconds; the parameter base word sets owned=0,
// point-to-point, low priority, variable size.
const (
	foPriorityTick   byte   = 0x0A
	foTimeoutTicks   byte   = 0x0E
	foRPI            uint32 = 0x00201234
	foParamsBase     uint16 = 0x4200
	foTransportClass byte   = 0xA3 // class 3, server, application trigger
	foMultiplier     uint32 = 0x03
)

// BuildForwardOpenRequest builds a Large Forward Open (0x5B) request
// with 32-bit connection parameter fields.
func BuildForwardOpenRequest(cfg ForwardOpenConfig) ([]byte, uint16, error) {
	return buildForwardOpen(cfg, true)
}

// BuildForwardOpenRequestSmall builds a standard Forward Open (0x54)
// request with 16-bit connection parameter fields.
func BuildForwardOpenRequestSmall(cfg ForwardOpenConfig) ([]byte, uint16, error) {
	return buildForwardOpen(cfg, false)
}

func buildForwardOpen(cfg ForwardOpenConfig, large bool) ([]byte, uint16, error) {
	if len(cfg.ConnectionPath)%2 != 0 {
		return nil, 0, fmt.Errorf("ForwardOpen: connection path must be an even number of bytes")
	}

	svc := SvcForwardOpen
	if large {
		svc = SvcForwardOpenLarge
	}
	cmPath, err := EPath().Class(ClassConnectionManager).Instance(InstanceConnManager).Build()
	if err != nil {
		return nil, 0, err
	}

	connSerial := uint16(rand.Intn(65000))
	toConnID := uint32(rand.Intn(65000))

	var otParams, toParams uint32
	if large {
		otParams = uint32(foParamsBase)<<16 | uint32(cfg.OTConnectionSize)
		toParams = uint32(foParamsBase)<<16 | uint32(cfg.TOConnectionSize)
	} else {
		otParams = uint32(foParamsBase) | uint32(cfg.OTConnectionSize)
		toParams = uint32(foParamsBase) | uint32(cfg.TOConnectionSize)
	}

	paramBytes := 2
	if large {
		paramBytes = 4
	}
	w := buffer.New(2 + len(cmPath) + 26 + 2*paramBytes + 4 + 2 + len(cfg.ConnectionPath))
	w.PutU8(svc)
	w.PutU8(cmPath.WordLen())
	w.PutBytes(cmPath)

	w.PutU8(foPriorityTick)
	w.PutU8(foTimeoutTicks)
	w.PutU32(0x20000002) // proposed O->T id; the target assigns its own
	w.PutU32(toConnID)
	w.PutU16(connSerial)
	w.PutU16(cfg.VendorID)
	w.PutU32(cfg.OriginatorSerial)
	w.PutU32(foMultiplier)
	w.PutU32(foRPI)
	if large {
		w.PutU32(otParams)
	} else {
		w.PutU16(uint16(otParams))
	}
	w.PutU32(foRPI)
	if large {
		w.PutU32(toParams)
	} else {
		w.PutU16(uint16(toParams))
	}
	w.PutU8(foTransportClass)
	w.PutU8(byte(len(cfg.ConnectionPath) / 2))
	w.PutBytes(cfg.ConnectionPath)
	if w.Err() {
		return nil, 0, fmt.Errorf("ForwardOpen: request encoding overflow")
	}
	return w.Bytes(), connSerial, nil
}

// ForwardOpenResponse is the success payload of a Forward Open reply.
type ForwardOpenResponse struct {
	OTConnectionID   uint32
	TOConnectionID   uint32
	ConnectionSerial uint16
	VendorID         uint16
	OriginatorSerial uint32
	OTRPI            uint32
	TORPI            uint32
}

// ParseForwardOpenResponse decodes the reply data following a
// successful Forward Open response header.
func ParseForwardOpenResponse(data []byte) (*ForwardOpenResponse, error) {
	if len(data) < 26 {
		return nil, fmt.Errorf("Forward Open response too short: %d bytes", len(data))
	}
	r := buffer.Wrap(data)
	resp := &ForwardOpenResponse{
		OTConnectionID:   r.GetU32(),
		TOConnectionID:   r.GetU32(),
		ConnectionSerial: r.GetU16(),
		VendorID:         r.GetU16(),
		OriginatorSerial: r.GetU32(),
		OTRPI:            r.GetU32(),
		TORPI:            r.GetU32(),
	}
	return resp, nil
}

// BuildForwardCloseRequest builds a Forward Close (0x4E) request
// echoing the connection's identity triple.
func BuildForwardCloseRequest(conn *Connection, connectionPath []byte) ([]byte, error) {
	if conn == nil {
		return nil, fmt.Errorf("ForwardClose: nil connection")
	}
	cmPath, err := EPath().Class(ClassConnectionManager).Instance(InstanceConnManager).Build()
	if err != nil {
		return nil, err
	}

	pathWords := (len(connectionPath) + 1) / 2
	w := buffer.New(2 + len(cmPath) + 12 + pathWords*2)
	w.PutU8(SvcForwardClose)
	w.PutU8(cmPath.WordLen())
	w.PutBytes(cmPath)

	w.PutU8(foPriorityTick)
	w.PutU8(0x01) // timeout ticks
	w.PutU16(conn.SerialNumber)
	w.PutU16(conn.VendorID)
	w.PutU32(conn.OrigSerial)
	w.PutU8(byte(pathWords))
	w.PutU8(0x00) // reserved
	w.PutBytes(connectionPath)
	if len(connectionPath)%2 != 0 {
		w.PutU8(0x00)
	}
	if w.Err() {
		return nil, fmt.Errorf("ForwardClose: request encoding overflow")
	}
	return w.Bytes(), nil
}
