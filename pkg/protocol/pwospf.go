package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"

	"github.com/haolipeng/pwospf_router/pkg/checksum"
)

// PWOSPF 报文常量
const (
	Version            = 2
	TypeHello          = 1
	TypeLSU            = 4
	IPProtocol         = layers.IPProtocol(89)
	HeaderLen          = 24
	HelloLen           = 8
	LSUHeaderLen       = 8
	AdvertisementLen   = 12
	DefaultLSUTTL      = 255
	DefaultIPTTL       = 255
	layerTypePWOSPFNum = 2089
)

var (
	// AllSPFRouters 224.0.0.5
	AllSPFRouters = net.IPv4(224, 0, 0, 5).To4()
	// BroadcastMAC Hello 和 LSU 使用以太网广播地址
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
)

var LayerTypePWOSPF = gopacket.RegisterLayerType(layerTypePWOSPFNum, gopacket.LayerTypeMetadata{
	Name:    "PWOSPF",
	Decoder: gopacket.DecodeFunc(decodePWOSPF),
})

var (
	ErrTooShort    = errors.New("pwospf: packet too short")
	ErrBadVersion  = errors.New("pwospf: unsupported version")
	ErrBadArea     = errors.New("pwospf: non-zero area")
	ErrBadAuth     = errors.New("pwospf: authentication not supported")
	ErrBadChecksum = errors.New("pwospf: bad checksum")
	ErrBadType     = errors.New("pwospf: unknown message type")
	ErrBadLength   = errors.New("pwospf: length field mismatch")
)

// Hello Hello 报文体
type Hello struct {
	NetworkMask   uint32
	HelloInterval uint16
	Padding       uint16
}

// Advertisement LSU 中的一条链路通告
type Advertisement struct {
	Subnet   uint32
	Mask     uint32
	RouterID uint32 // 0 表示该子网上没有邻居路由器
}

// LSU 链路状态更新报文体
type LSU struct {
	Sequence       uint16
	Unused         uint8
	TTL            uint8
	Advertisements []Advertisement
}

// PWOSPF 报文，实现 gopacket.DecodingLayer 与 gopacket.SerializableLayer
type PWOSPF struct {
	layers.BaseLayer
	Version        uint8
	Type           uint8
	Length         uint16
	RouterID       uint32
	AreaID         uint32
	Checksum       uint16
	AuType         uint16
	Authentication uint64

	Hello Hello
	LSU   LSU
}

func (p *PWOSPF) LayerType() gopacket.LayerType { return LayerTypePWOSPF }

func (p *PWOSPF) CanDecode() gopacket.LayerClass { return LayerTypePWOSPF }

func (p *PWOSPF) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes 仅做结构解析，协议合法性由 Validate 判断
func (p *PWOSPF) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HeaderLen {
		df.SetTruncated()
		return ErrTooShort
	}
	p.Version = data[0]
	p.Type = data[1]
	p.Length = binary.BigEndian.Uint16(data[2:4])
	p.RouterID = binary.BigEndian.Uint32(data[4:8])
	p.AreaID = binary.BigEndian.Uint32(data[8:12])
	p.Checksum = binary.BigEndian.Uint16(data[12:14])
	p.AuType = binary.BigEndian.Uint16(data[14:16])
	p.Authentication = binary.BigEndian.Uint64(data[16:24])

	body := data[HeaderLen:]
	switch p.Type {
	case TypeHello:
		if len(body) < HelloLen {
			df.SetTruncated()
			return ErrTooShort
		}
		p.Hello = Hello{
			NetworkMask:   binary.BigEndian.Uint32(body[0:4]),
			HelloInterval: binary.BigEndian.Uint16(body[4:6]),
			Padding:       binary.BigEndian.Uint16(body[6:8]),
		}
		p.Contents = data[:HeaderLen+HelloLen]
		p.Payload = data[HeaderLen+HelloLen:]
	case TypeLSU:
		if len(body) < LSUHeaderLen {
			df.SetTruncated()
			return ErrTooShort
		}
		n := binary.BigEndian.Uint32(body[4:8])
		need := LSUHeaderLen + int(n)*AdvertisementLen
		if n > uint32(len(body)/AdvertisementLen) || len(body) < need {
			df.SetTruncated()
			return ErrTooShort
		}
		p.LSU = LSU{
			Sequence:       binary.BigEndian.Uint16(body[0:2]),
			Unused:         body[2],
			TTL:            body[3],
			Advertisements: make([]Advertisement, n),
		}
		for i := range p.LSU.Advertisements {
			a := body[LSUHeaderLen+i*AdvertisementLen:]
			p.LSU.Advertisements[i] = Advertisement{
				Subnet:   binary.BigEndian.Uint32(a[0:4]),
				Mask:     binary.BigEndian.Uint32(a[4:8]),
				RouterID: binary.BigEndian.Uint32(a[8:12]),
			}
		}
		p.Contents = data[:HeaderLen+need]
		p.Payload = data[HeaderLen+need:]
	default:
		p.Contents = data[:HeaderLen]
		p.Payload = data[HeaderLen:]
		return fmt.Errorf("%w: %d", ErrBadType, p.Type)
	}
	return nil
}

// Validate 检查版本、区域、认证以及受保护区间校验和。raw 为 IP 载荷原始字节。
func (p *PWOSPF) Validate(raw []byte) error {
	if p.Version != Version {
		return ErrBadVersion
	}
	if p.AreaID != 0 {
		return ErrBadArea
	}
	if p.AuType != 0 || p.Authentication != 0 {
		return ErrBadAuth
	}
	if int(p.Length) < HeaderLen || int(p.Length) > len(raw) {
		return ErrBadLength
	}
	if !checksum.ValidPWOSPF(raw) {
		return ErrBadChecksum
	}
	return nil
}

func (p *PWOSPF) bodyLen() int {
	switch p.Type {
	case TypeHello:
		return HelloLen
	case TypeLSU:
		return LSUHeaderLen + len(p.LSU.Advertisements)*AdvertisementLen
	}
	return 0
}

// SerializeTo 序列化 PWOSPF 头部与报文体
func (p *PWOSPF) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	total := HeaderLen + p.bodyLen()
	buf, err := b.PrependBytes(total)
	if err != nil {
		return err
	}
	if opts.FixLengths {
		p.Length = uint16(total)
	}
	buf[0] = p.Version
	buf[1] = p.Type
	binary.BigEndian.PutUint16(buf[2:4], p.Length)
	binary.BigEndian.PutUint32(buf[4:8], p.RouterID)
	binary.BigEndian.PutUint32(buf[8:12], p.AreaID)
	binary.BigEndian.PutUint16(buf[12:14], p.Checksum)
	binary.BigEndian.PutUint16(buf[14:16], p.AuType)
	binary.BigEndian.PutUint64(buf[16:24], p.Authentication)

	body := buf[HeaderLen:]
	switch p.Type {
	case TypeHello:
		binary.BigEndian.PutUint32(body[0:4], p.Hello.NetworkMask)
		binary.BigEndian.PutUint16(body[4:6], p.Hello.HelloInterval)
		binary.BigEndian.PutUint16(body[6:8], p.Hello.Padding)
	case TypeLSU:
		binary.BigEndian.PutUint16(body[0:2], p.LSU.Sequence)
		body[2] = p.LSU.Unused
		body[3] = p.LSU.TTL
		binary.BigEndian.PutUint32(body[4:8], uint32(len(p.LSU.Advertisements)))
		for i, adv := range p.LSU.Advertisements {
			a := body[LSUHeaderLen+i*AdvertisementLen:]
			binary.BigEndian.PutUint32(a[0:4], adv.Subnet)
			binary.BigEndian.PutUint32(a[4:8], adv.Mask)
			binary.BigEndian.PutUint32(a[8:12], adv.RouterID)
		}
	}

	if opts.ComputeChecksums {
		p.Checksum = checksum.PWOSPF(buf)
		binary.BigEndian.PutUint16(buf[12:14], p.Checksum)
	}
	return nil
}

func decodePWOSPF(data []byte, pb gopacket.PacketBuilder) error {
	p := &PWOSPF{}
	if err := p.DecodeFromBytes(data, pb); err != nil {
		return err
	}
	pb.AddLayer(p)
	return pb.NextDecoder(p.NextLayerType())
}
