package eip

import (
	"fmt"
	"net"
	"time"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// Identity is the parsed ListIdentity reply item for one device.
type Identity struct {
	EncapsulationVersion uint16
	VendorID             uint16
	DeviceType           uint16
	ProductCode          uint16
	RevisionMajor        byte
	RevisionMinor        byte
	Status               uint16
	SerialNumber         uint32
	ProductName          string
	State                byte

	IP   net.IP
	Port uint16
}

// ParseListIdentityPayload decodes the CPF-wrapped item list inside a
// ListIdentity reply (the data portion of the Encap frame, not
// including the 24-byte encapsulation header). fallbackIP is used when
// an identity item's own embedded socket address is the zero address,
// which devices commonly report over a direct TCP ListIdentity call
// (there is no local broadcast source address to fall back to at the UDP
// layer in that case, so the caller passes the address it dialed).
func ParseListIdentityPayload(p []byte, fallbackIP net.IP) ([]Identity, error) {
	pkt, err := ParseCPF(p)
	if err != nil {
		return nil, fmt.Errorf("eip: list identity payload: %w", err)
	}

	idents := make([]Identity, 0, len(pkt.Items))
	for i, item := range pkt.Items {
		if item.TypeID != ItemListIdentityResp {
			continue
		}
		id, err := parseIdentityItemData(item.Data)
		if err != nil {
			return nil, fmt.Errorf("eip: list identity item %d: %w", i, err)
		}
		if id.IP == nil || id.IP.To4() == nil || id.IP.Equal(net.IPv4zero) {
			id.IP = fallbackIP
		}
		idents = append(idents, id)
	}
	return idents, nil
}

func parseIdentityItemData(b []byte) (Identity, error) {
	if len(b) < 33 {
		return Identity{}, fmt.Errorf("identity item too short: %d bytes", len(b))
	}
	r := buffer.Wrap(b)

	var id Identity
	id.EncapsulationVersion = r.GetU16()

	// The embedded sockaddr is big-endian, unlike everything around
	// it: family, port, then the IPv4 address, padded to 16 bytes.
	sock := r.GetBytes(16)
	id.Port = uint16(sock[2])<<8 | uint16(sock[3])
	id.IP = net.IPv4(sock[4], sock[5], sock[6], sock[7])

	id.VendorID = r.GetU16()
	id.DeviceType = r.GetU16()
	id.ProductCode = r.GetU16()
	id.RevisionMajor = r.GetU8()
	id.RevisionMinor = r.GetU8()
	id.Status = r.GetU16()
	id.SerialNumber = r.GetU32()

	nameLen := int(r.GetU8())
	name := r.GetBytes(nameLen)
	if r.Err() {
		return Identity{}, fmt.Errorf("identity item truncated in product name")
	}
	id.ProductName = string(name)

	id.State = r.GetU8()
	if r.Err() {
		return Identity{}, fmt.Errorf("identity item missing state byte")
	}
	return id, nil
}

// BroadcastListIdentity sends a ListIdentity request to the UDP
// broadcast address and collects replies until timeout expires,
// deduplicating by (IP, serial number). Used by discovery tooling, not
// by the session layer itself (which speaks ListIdentity over its
// already-open TCP connection instead).
func BroadcastListIdentity(broadcastIP string, timeout time.Duration) ([]Identity, error) {
	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return nil, fmt.Errorf("eip: invalid broadcast address %q", broadcastIP)
	}
	ip = ip.To4()
	if ip == nil {
		return nil, fmt.Errorf("eip: broadcast address must be IPv4: %q", broadcastIP)
	}

	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("eip: listen udp: %w", err)
	}
	defer uc.Close()
	_ = uc.SetWriteBuffer(1 << 20)
	_ = uc.SetReadBuffer(1 << 20)

	req := (&Encap{Command: CmdListIdentity}).Bytes()
	raddr := &net.UDPAddr{IP: ip, Port: 44818}
	if _, err := uc.WriteToUDP(req, raddr); err != nil {
		return nil, fmt.Errorf("eip: write udp: %w", err)
	}

	if err := uc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("eip: set read deadline: %w", err)
	}

	type key struct {
		ip     string
		serial uint32
	}
	seen := make(map[key]struct{})
	out := make([]Identity, 0, 8)

	buf := make([]byte, 4096)
	for {
		n, src, err := uc.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return nil, fmt.Errorf("eip: read udp: %w", err)
		}
		if n < EncapHeaderLen {
			continue
		}
		encap, err := ParseEncap(buf[:n])
		if err != nil || encap.Command != CmdListIdentity || encap.Status != 0 {
			continue
		}

		idents, err := ParseListIdentityPayload(encap.Data, src.IP)
		if err != nil {
			continue
		}
		for _, id := range idents {
			k := key{ip: id.IP.String(), serial: id.SerialNumber}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, id)
		}
	}

	return out, nil
}
