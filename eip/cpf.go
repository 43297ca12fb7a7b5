package eip

// Common Packet Format (CPF), ODVA CIP Networks Library Vol 2, used to
// wrap CIP requests/responses inside SendRRData (unconnected) and
// SendUnitData (connected) encapsulation commands.

import (
	"fmt"

	"github.com/libplctag/libplctag-sub000/buffer"
)

// CPF item type ids.
const (
	ItemNullAddress        uint16 = 0x0000
	ItemListIdentityResp   uint16 = 0x000C
	ItemConnectedAddress   uint16 = 0x00A1
	ItemConnectedData      uint16 = 0x00B1
	ItemUnconnectedData    uint16 = 0x00B2
	ItemListServicesResp   uint16 = 0x0100
	ItemSockAddrInfoOtoT   uint16 = 0x8000
	ItemSockAddrInfoTtoO   uint16 = 0x8001
	ItemSequencedAddress   uint16 = 0x8002
)

// Item is one Common Packet Format item: type | length | data.
type Item struct {
	TypeID uint16
	Data   []byte
}

// CPF is the item-count-prefixed list of Items carried inside a
// SendRRData/SendUnitData payload.
type CPF struct {
	Items []Item
}

// Bytes serializes the item count followed by each item's
// type|length|data triple.
func (p *CPF) Bytes() []byte {
	total := 2
	for _, it := range p.Items {
		total += 4 + len(it.Data)
	}
	w := buffer.New(total)
	w.PutU16(uint16(len(p.Items)))
	for _, it := range p.Items {
		w.PutU16(it.TypeID)
		w.PutU16(uint16(len(it.Data)))
		w.PutBytes(it.Data)
	}
	return w.Bytes()
}

// ParseCPF decodes an item-count-prefixed CPF item list.
func ParseCPF(raw []byte) (*CPF, error) {
	r := buffer.Wrap(raw)
	if r.Len() < 2 {
		return nil, fmt.Errorf("eip: cpf too short: %d bytes", r.Len())
	}
	count := r.GetU16()
	items := make([]Item, 0, count)
	for i := uint16(0); i < count; i++ {
		if r.Remaining() < 4 {
			return nil, fmt.Errorf("eip: cpf item %d: truncated header", i)
		}
		typeID := r.GetU16()
		length := r.GetU16()
		data := r.GetBytes(int(length))
		if r.Err() {
			return nil, fmt.Errorf("eip: cpf item %d: truncated data (need %d bytes)", i, length)
		}
		items = append(items, Item{TypeID: typeID, Data: data})
	}
	return &CPF{Items: items}, nil
}

// NewUnconnectedCPF builds the two-item CPF used by unconnected
// (UCMM) SendRRData requests: a null address item followed by the
// unconnected CIP payload.
func NewUnconnectedCPF(cipData []byte) *CPF {
	return &CPF{Items: []Item{
		{TypeID: ItemNullAddress, Data: nil},
		{TypeID: ItemUnconnectedData, Data: cipData},
	}}
}

// NewConnectedCPF builds the two-item CPF used by connected
// SendUnitData requests: a connection-id address item followed by the
// sequence-number-prefixed CIP payload.
func NewConnectedCPF(connID uint32, seqPrefixedCIPData []byte) *CPF {
	addr := buffer.New(4)
	addr.PutU32(connID)
	return &CPF{Items: []Item{
		{TypeID: ItemConnectedAddress, Data: addr.Bytes()},
		{TypeID: ItemConnectedData, Data: seqPrefixedCIPData},
	}}
}

// UnconnectedData returns the unconnected CIP payload from a parsed
// CPF, or an error if the expected item shape is not present.
func (p *CPF) UnconnectedData() ([]byte, error) {
	for _, it := range p.Items {
		if it.TypeID == ItemUnconnectedData {
			return it.Data, nil
		}
	}
	return nil, fmt.Errorf("eip: cpf has no unconnected data item")
}

// ConnectedData returns the connection id and sequence-prefixed CIP
// payload from a parsed CPF.
func (p *CPF) ConnectedData() (connID uint32, data []byte, err error) {
	var haveAddr, haveData bool
	for _, it := range p.Items {
		switch it.TypeID {
		case ItemConnectedAddress:
			if len(it.Data) >= 4 {
				connID = buffer.Wrap(it.Data).GetU32()
				haveAddr = true
			}
		case ItemConnectedData:
			data = it.Data
			haveData = true
		}
	}
	if !haveAddr || !haveData {
		return 0, nil, fmt.Errorf("eip: cpf missing connected address or data item")
	}
	return connID, data, nil
}
