package protocol

import (
	"net"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
)

// 生成帧统一使用的序列化选项
var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func arpFrame(op uint16, srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, targetMAC net.HardwareAddr, targetIP net.IP) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   []byte(srcMAC),
		SourceProtAddress: []byte(srcIP.To4()),
		DstHwAddress:      []byte(targetMAC),
		DstProtAddress:    []byte(targetIP.To4()),
	}
	return serialize(eth, arp)
}

// BuildARPRequest 构造广播 ARP 请求
func BuildARPRequest(srcMAC net.HardwareAddr, srcIP, targetIP net.IP) ([]byte, error) {
	return arpFrame(layers.ARPRequest, srcMAC, srcIP, BroadcastMAC, make(net.HardwareAddr, 6), targetIP)
}

// BuildARPReply 构造单播 ARP 应答
func BuildARPReply(srcMAC net.HardwareAddr, srcIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) ([]byte, error) {
	return arpFrame(layers.ARPReply, srcMAC, srcIP, dstMAC, dstMAC, dstIP)
}

// Origin 本机发出 PWOSPF 报文时的源信息
type Origin struct {
	MAC      net.HardwareAddr
	IP       net.IP
	RouterID uint32
	AreaID   uint32
}

func pwospfFrame(o Origin, msg *PWOSPF) ([]byte, error) {
	msg.Version = Version
	msg.RouterID = o.RouterID
	msg.AreaID = o.AreaID
	eth := &layers.Ethernet{
		SrcMAC:       o.MAC,
		DstMAC:       BroadcastMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      DefaultIPTTL,
		Protocol: IPProtocol,
		SrcIP:    o.IP.To4(),
		DstIP:    AllSPFRouters,
	}
	return serialize(eth, ip, msg)
}

// BuildHello 构造 Hello 报文
func BuildHello(o Origin, mask uint32, helloInterval uint16) ([]byte, error) {
	return pwospfFrame(o, &PWOSPF{
		Type: TypeHello,
		Hello: Hello{
			NetworkMask:   mask,
			HelloInterval: helloInterval,
		},
	})
}

// BuildLSU 构造链路状态更新报文
func BuildLSU(o Origin, seq uint16, advs []Advertisement) ([]byte, error) {
	return pwospfFrame(o, &PWOSPF{
		Type: TypeLSU,
		LSU: LSU{
			Sequence:       seq,
			TTL:            DefaultLSUTTL,
			Advertisements: advs,
		},
	})
}
