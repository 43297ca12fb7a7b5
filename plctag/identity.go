package plctag

import (
	"io"
	"net"
	"strings"
	"time"

	"github.com/libplctag/libplctag-sub000/eip"
	"github.com/libplctag/libplctag-sub000/plcerr"
)

// DeviceIdentity is the decoded ListIdentity reply for one device.
type DeviceIdentity struct {
	VendorID     uint16
	DeviceType   uint16
	ProductCode  uint16
	Revision     [2]byte
	SerialNumber uint32
	ProductName  string
}

// Identity returns the identity block of the device a tag handle
// addresses: for a normal tag, the gateway its session points at; for
// an identity library tag (make=system&family=library&name=identity&
// gateway=host), the gateway named at creation. The discovery call is
// performed fresh on each invocation.
func Identity(tagID int) (*DeviceIdentity, error) {
	e, err := lookup(tagID)
	if err != nil {
		return nil, err
	}
	if e.lib != nil {
		return e.lib.identity()
	}
	return QueryIdentity(e.t.Options().Gateway, 5*time.Second)
}

// QueryIdentity performs a direct TCP ListIdentity discovery call
// against a gateway and returns the device's identity block.
// ListIdentity is session-less: it needs no Register Session, so this
// opens its own short-lived connection rather than borrowing a tag's
// session.
func QueryIdentity(gateway string, timeout time.Duration) (*DeviceIdentity, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	addr := gateway
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "44818")
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadGateway, "plctag: identity connect "+addr, err)
	}
	defer conn.Close()
	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	req := &eip.Encap{Command: eip.CmdListIdentity}
	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, plcerr.Wrap(plcerr.BadConnection, "plctag: identity write", err)
	}

	header := make([]byte, eip.EncapHeaderLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, plcerr.Wrap(plcerr.BadConnection, "plctag: identity read", err)
	}
	length, err := eip.PeekLength(header)
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "plctag: identity reply", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, plcerr.Wrap(plcerr.BadConnection, "plctag: identity read", err)
	}

	host, _, _ := net.SplitHostPort(addr)
	idents, err := eip.ParseListIdentityPayload(payload, net.ParseIP(host))
	if err != nil {
		return nil, plcerr.Wrap(plcerr.BadReply, "plctag: identity reply", err)
	}
	if len(idents) == 0 {
		return nil, plcerr.New(plcerr.NoData, "plctag: identity reply carried no identity item")
	}
	id := idents[0]
	return &DeviceIdentity{
		VendorID:     id.VendorID,
		DeviceType:   id.DeviceType,
		ProductCode:  id.ProductCode,
		Revision:     [2]byte{id.RevisionMajor, id.RevisionMinor},
		SerialNumber: id.SerialNumber,
		ProductName:  id.ProductName,
	}, nil
}
