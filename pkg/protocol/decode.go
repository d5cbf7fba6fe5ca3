package protocol

import (
	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
)

// Decoded 一帧的解析结果，只在 Decoder 下一次调用前有效
type Decoded struct {
	Ethernet layers.Ethernet
	ARP      layers.ARP
	IPv4     layers.IPv4
	ICMPv4   layers.ICMPv4

	HasARP    bool
	HasIPv4   bool
	HasICMPv4 bool
}

// Decoder 复用 DecodingLayerParser 解析以太网帧，非并发安全
type Decoder struct {
	parser  *gopacket.DecodingLayerParser
	out     Decoded
	decoded []gopacket.LayerType
}

func NewDecoder() *Decoder {
	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet,
		&d.out.Ethernet, &d.out.ARP, &d.out.IPv4, &d.out.ICMPv4)
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode 解析以太网/ARP/IPv4/ICMPv4，IPv4 之上的其它协议保留在 IPv4.Payload 中
func (d *Decoder) Decode(frame []byte) (*Decoded, error) {
	d.out.HasARP, d.out.HasIPv4, d.out.HasICMPv4 = false, false, false
	err := d.parser.DecodeLayers(frame, &d.decoded)
	for _, t := range d.decoded {
		switch t {
		case layers.LayerTypeARP:
			d.out.HasARP = true
		case layers.LayerTypeIPv4:
			d.out.HasIPv4 = true
		case layers.LayerTypeICMPv4:
			d.out.HasICMPv4 = true
		}
	}
	if err != nil && len(d.decoded) == 0 {
		return nil, err
	}
	return &d.out, nil
}

// DecodePWOSPF 解析 IPv4 载荷中的 PWOSPF 报文
func DecodePWOSPF(payload []byte) (*PWOSPF, error) {
	p := &PWOSPF{}
	if err := p.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return p, nil
}
