package router

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/lsdb"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

func (r *Router) handlePWOSPF(in *iface.Interface, frame []byte, d *protocol.Decoded, src uint32, out *outbox) (types.Action, types.DropReason) {
	if !r.opts.PWOSPFEnabled {
		return drop(types.DropDisabled)
	}
	payload := d.IPv4.Payload
	msg, err := protocol.DecodePWOSPF(payload)
	if err != nil {
		return drop(types.DropBadPWOSPF)
	}
	if err := msg.Validate(payload); err != nil {
		logrus.Debugf("router: invalid pwospf on %s: %v", in.Name, err)
		return drop(types.DropBadPWOSPF)
	}

	switch msg.Type {
	case protocol.TypeHello:
		r.onHello(in, msg, src)
		return types.ActionConsumed, types.DropNone
	case protocol.TypeLSU:
		return r.onLSU(in, frame, msg, src, out)
	}
	return drop(types.DropBadPWOSPF)
}

func (r *Router) onHello(in *iface.Interface, msg *protocol.PWOSPF, src uint32) {
	if msg.RouterID == r.opts.RouterID {
		return
	}
	r.metrics.Inc(&r.metrics.HellosReceived)
	if in.RefreshNeighbor(msg.RouterID, src, r.clock.Now()) {
		logrus.WithFields(logrus.Fields{
			"iface":     in.Name,
			"router_id": types.Uint32ToIP(msg.RouterID).String(),
			"ip":        types.Uint32ToIP(src).String(),
		}).Info("pwospf: neighbor up")
	}
}

func (r *Router) onLSU(in *iface.Interface, frame []byte, msg *protocol.PWOSPF, src uint32, out *outbox) (types.Action, types.DropReason) {
	if r.ifaces.IsLocalIP(src) {
		return drop(types.DropSelfReflected)
	}
	if !r.seqs.Accept(msg.RouterID, msg.LSU.Sequence) {
		return drop(types.DropDuplicateLSU)
	}
	r.metrics.Inc(&r.metrics.LSUsAccepted)

	links := make([]lsdb.Link, len(msg.LSU.Advertisements))
	for i, a := range msg.LSU.Advertisements {
		links[i] = lsdb.Link{Subnet: a.Subnet, Mask: a.Mask, RouterID: a.RouterID}
	}
	r.applyLSDB(msg.RouterID, links)
	r.flood(in, frame, out)
	return types.ActionConsumed, types.DropNone
}

// flood 除入接口外，向每个有邻居的接口转发原始 LSU，只改写以太网地址
func (r *Router) flood(in *iface.Interface, frame []byte, out *outbox) {
	for _, i := range r.ifaces.All() {
		if i == in || !i.HasNeighbor() {
			continue
		}
		buf := append([]byte(nil), frame...)
		copy(buf[0:6], protocol.BroadcastMAC)
		copy(buf[6:12], i.MAC)
		out.add(i.Name, buf)
		r.metrics.Inc(&r.metrics.LSUsFlooded)
	}
}

// applyLSDB 写入 LSDB 并按规模与变化情况决定是否重算路由
func (r *Router) applyLSDB(rid uint32, links []lsdb.Link) {
	isNew, changed := r.db.Apply(rid, links, r.clock.Now())
	n, want := r.db.Len(), r.opts.ExpectedRouters
	switch {
	case isNew && (want == 0 || n == want):
		r.rebuildRoutes()
	case changed && n >= want:
		r.rebuildRoutes()
	}
}

func (r *Router) neighborTimeout(i *iface.Interface) time.Duration {
	return time.Duration(i.HelloInterval) * time.Second * time.Duration(r.opts.NeighborTimeoutMult)
}

// helloCycle 清理超时邻居，然后在每个接口上发送 Hello
func (r *Router) helloCycle() {
	var out outbox
	r.mu.Lock()
	now := r.clock.Now()
	for _, i := range r.ifaces.All() {
		if n, ok := i.ExpireNeighbor(now, r.neighborTimeout(i)); ok {
			logrus.WithFields(logrus.Fields{
				"iface":     i.Name,
				"router_id": types.Uint32ToIP(n.RouterID).String(),
			}).Info("pwospf: neighbor timed out")
		}
		frame, err := protocol.BuildHello(r.origin(i), i.Mask, i.HelloInterval)
		if err != nil {
			logrus.Warnf("pwospf: build hello on %s: %v", i.Name, err)
			continue
		}
		out.add(i.Name, frame)
		r.metrics.Inc(&r.metrics.HellosSent)
	}
	r.mu.Unlock()
	r.flush(out)
}

// lsuTick 每个时间单位调用一次，倒计时归零时发送 LSU
func (r *Router) lsuTick() {
	var out outbox
	r.mu.Lock()
	r.lsuCountdown--
	if r.lsuCountdown <= 0 {
		r.lsuCountdown = r.lsuTicks.Load()
		r.sendLSU(&out)
	}
	r.mu.Unlock()
	r.flush(out)
}

// sendLSU 递增序列号，从每个接口泛洪本机通告，再把通告写入自身 LSDB 条目
func (r *Router) sendLSU(out *outbox) {
	r.seq++
	all := r.ifaces.All()
	advs := make([]protocol.Advertisement, len(all))
	links := make([]lsdb.Link, len(all))
	for k, i := range all {
		advs[k] = protocol.Advertisement{Subnet: i.IP, Mask: i.Mask, RouterID: i.NeighborRouterID()}
		links[k] = lsdb.Link{Subnet: i.IP, Mask: i.Mask, RouterID: i.NeighborRouterID()}
	}
	for _, i := range all {
		frame, err := protocol.BuildLSU(r.origin(i), r.seq, advs)
		if err != nil {
			logrus.Warnf("pwospf: build lsu on %s: %v", i.Name, err)
			continue
		}
		out.add(i.Name, frame)
	}
	r.metrics.Inc(&r.metrics.LSUsSent)
	r.seqs.Accept(r.opts.RouterID, r.seq)
	r.applyLSDB(r.opts.RouterID, links)
}

// SetLSUInterval 运行时修改 LSU 间隔，不重启定时器。
// 新间隔在下一次倒计时重新装载时生效，若比剩余倒计时更短则立即截断。
func (r *Router) SetLSUInterval(d time.Duration) {
	ticks := r.ticksFor(d)
	r.lsuTicks.Store(ticks)
	r.mu.Lock()
	if r.lsuCountdown > ticks {
		r.lsuCountdown = ticks
	}
	r.mu.Unlock()
	logrus.Infof("pwospf: lsu interval set to %v", time.Duration(ticks)*r.opts.LSUTick)
}

func (r *Router) LSUInterval() time.Duration {
	return time.Duration(r.lsuTicks.Load()) * r.opts.LSUTick
}
