package router

import (
	"encoding/binary"

	"github.com/haolipeng/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/checksum"
	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const (
	ethHeaderLen  = 14
	arpFrameLen   = ethHeaderLen + 28
	ipv4HeaderLen = 20
	icmpHeaderLen = 8
)

// HandleFrame 处理从 ifName 收到的一帧，返回处理结果
func (r *Router) HandleFrame(ifName string, frame []byte) (types.Action, types.DropReason) {
	r.metrics.Inc(&r.metrics.FramesReceived)

	var out outbox
	r.mu.Lock()
	action, reason := r.handleLocked(ifName, frame, &out)
	r.mu.Unlock()
	r.flush(out)

	if action == types.ActionDropped {
		r.metrics.IncrementDropped(string(reason))
		logrus.WithFields(logrus.Fields{
			"iface":  ifName,
			"reason": reason,
			"len":    len(frame),
		}).Debug("router: drop frame")
	}
	return action, reason
}

func drop(reason types.DropReason) (types.Action, types.DropReason) {
	return types.ActionDropped, reason
}

func (r *Router) handleLocked(ifName string, frame []byte, out *outbox) (types.Action, types.DropReason) {
	in, ok := r.ifaces.ByName(ifName)
	if !ok {
		return drop(types.DropUnknownIface)
	}
	if len(frame) < ethHeaderLen {
		return drop(types.DropMalformed)
	}
	d, err := r.dec.Decode(frame)
	if err != nil {
		return drop(types.DropMalformed)
	}

	switch d.Ethernet.EthernetType {
	case layers.EthernetTypeARP:
		return r.handleARP(in, frame, d, out)
	case layers.EthernetTypeIPv4:
		return r.handleIPv4(in, frame, d, out)
	default:
		return drop(types.DropUnsupported)
	}
}

func (r *Router) handleIPv4(in *iface.Interface, frame []byte, d *protocol.Decoded, out *outbox) (types.Action, types.DropReason) {
	ip := frame[ethHeaderLen:]
	if len(ip) < ipv4HeaderLen {
		return drop(types.DropMalformed)
	}
	if ip[0]>>4 != 4 {
		return drop(types.DropBadVersion)
	}
	if !d.HasIPv4 {
		return drop(types.DropMalformed)
	}
	if d.IPv4.TTL <= 1 {
		return drop(types.DropTTLExpired)
	}
	if !checksum.ValidIPv4(ip) {
		return drop(types.DropBadChecksum)
	}

	now := r.clock.Now()
	src := types.IPToUint32(d.IPv4.SrcIP)
	dst := types.IPToUint32(d.IPv4.DstIP)
	in.ARP.Update(src, d.Ethernet.SrcMAC, now)

	if d.IPv4.Protocol == protocol.IPProtocol {
		return r.handlePWOSPF(in, frame, d, src, out)
	}

	if r.ifaces.IsLocalIP(dst) {
		if d.HasICMPv4 && d.ICMPv4.TypeCode.Type() == layers.ICMPv4TypeEchoRequest {
			return r.echoReply(in, frame, out)
		}
		return drop(types.DropNotForUs)
	}

	route, ok := r.Lookup(dst)
	if !ok {
		return drop(types.DropNoRoute)
	}
	egress, ok := r.ifaces.ByName(route.Iface)
	if !ok {
		return drop(types.DropNoRoute)
	}

	nextHop := route.NextHop(dst)
	if mac, ok := egress.ARP.Lookup(nextHop, now); ok {
		r.forward(frame, egress, mac, out)
		return types.ActionForwarded, types.DropNone
	}
	r.queueForResolution(egress, nextHop, frame, out)
	return types.ActionQueued, types.DropNone
}

// forward 递减 TTL、重算校验和、改写以太网地址后从 egress 发出
func (r *Router) forward(frame []byte, egress *iface.Interface, mac []byte, out *outbox) {
	buf := append([]byte(nil), frame...)
	ip := buf[ethHeaderLen:]
	ip[8]--
	checksum.SetIPv4(ip)
	copy(buf[0:6], mac)
	copy(buf[6:12], egress.MAC)
	out.add(egress.Name, buf)
	r.metrics.Inc(&r.metrics.Forwarded)
}

// echoReply 交换以太网与 IP 地址，类型改为回显应答后从入接口发回
func (r *Router) echoReply(in *iface.Interface, frame []byte, out *outbox) (types.Action, types.DropReason) {
	buf := append([]byte(nil), frame...)
	ip := buf[ethHeaderLen:]
	ihl := int(ip[0]&0x0f) * 4
	end := int(binary.BigEndian.Uint16(ip[2:4]))
	if end > len(ip) {
		end = len(ip)
	}
	if ihl < ipv4HeaderLen || end-ihl < icmpHeaderLen {
		return drop(types.DropMalformed)
	}

	var mac [6]byte
	copy(mac[:], buf[0:6])
	copy(buf[0:6], buf[6:12])
	copy(buf[6:12], mac[:])

	var addr [4]byte
	copy(addr[:], ip[12:16])
	copy(ip[12:16], ip[16:20])
	copy(ip[16:20], addr[:])
	checksum.SetIPv4(ip)

	icmp := ip[ihl:end]
	icmp[0] = layers.ICMPv4TypeEchoReply
	icmp[2], icmp[3] = 0, 0
	binary.BigEndian.PutUint16(icmp[2:4], checksum.Sum(icmp))

	out.add(in.Name, buf)
	r.metrics.Inc(&r.metrics.EchoReplies)
	return types.ActionReplied, types.DropNone
}
