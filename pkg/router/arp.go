package router

import (
	"github.com/haolipeng/gopacket/layers"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

func (r *Router) handleARP(in *iface.Interface, frame []byte, d *protocol.Decoded, out *outbox) (types.Action, types.DropReason) {
	if len(frame) < arpFrameLen || !d.HasARP {
		return drop(types.DropMalformed)
	}
	a := &d.ARP
	if a.AddrType != layers.LinkTypeEthernet || a.Protocol != layers.EthernetTypeIPv4 ||
		a.HwAddressSize != 6 || a.ProtAddressSize != 4 {
		return drop(types.DropMalformed)
	}

	now := r.clock.Now()
	senderIP := types.IPToUint32(a.SourceProtAddress)
	targetIP := types.IPToUint32(a.DstProtAddress)
	in.ARP.Update(senderIP, a.SourceHwAddress, now)

	switch a.Operation {
	case layers.ARPRequest:
		if targetIP != in.IP {
			return types.ActionConsumed, types.DropNone
		}
		reply, err := protocol.BuildARPReply(in.MAC, types.Uint32ToIP(in.IP), a.SourceHwAddress, a.SourceProtAddress)
		if err != nil {
			logrus.Warnf("router: build arp reply on %s: %v", in.Name, err)
			return drop(types.DropMalformed)
		}
		out.add(in.Name, reply)
		r.metrics.Inc(&r.metrics.ARPRepliesSent)
		return types.ActionReplied, types.DropNone
	case layers.ARPReply:
		r.drainPending(senderIP, a.SourceHwAddress, out)
		return types.ActionConsumed, types.DropNone
	default:
		return drop(types.DropMalformed)
	}
}

// queueForResolution 为下一跳发出 ARP 请求并把报文挂入待解析队列
func (r *Router) queueForResolution(egress *iface.Interface, nextHop uint32, frame []byte, out *outbox) {
	req, err := protocol.BuildARPRequest(egress.MAC, types.Uint32ToIP(egress.IP), types.Uint32ToIP(nextHop))
	if err != nil {
		logrus.Warnf("router: build arp request on %s: %v", egress.Name, err)
	} else {
		out.add(egress.Name, req)
		r.metrics.Inc(&r.metrics.ARPRequestsSent)
	}
	r.pending.push(pendingPacket{
		frame:  append([]byte(nil), frame...),
		target: nextHop,
		iface:  egress.Name,
		queued: r.clock.Now(),
	})
	r.metrics.Inc(&r.metrics.Queued)
}

// drainPending 按到达顺序转发所有等待 ip 的报文
func (r *Router) drainPending(ip uint32, mac []byte, out *outbox) {
	for _, p := range r.pending.take(ip) {
		egress, ok := r.ifaces.ByName(p.iface)
		if !ok {
			continue
		}
		r.forward(p.frame, egress, mac, out)
	}
}
