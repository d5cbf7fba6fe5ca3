package router

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/haolipeng/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/rtable"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const mask24 = 0xffffff00

func routesOf(r *Router) []rtable.Route {
	return r.routes.Load().Routes()
}

// sendOwnLSU 立即触发一次本机 LSU
func sendOwnLSU(r *Router) {
	r.SetLSUInterval(time.Second)
	r.lsuTick()
}

func decodeLSU(t *testing.T, frame []byte) *protocol.PWOSPF {
	t.Helper()
	pkt := decode(t, frame)
	ip4 := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.Equal(t, protocol.IPProtocol, ip4.Protocol)
	msg, err := protocol.DecodePWOSPF(ip4.Payload)
	require.NoError(t, err)
	require.NoError(t, msg.Validate(ip4.Payload))
	return msg
}

func TestHelloNeighborLifecycle(t *testing.T) {
	r, tx, clock := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})

	act, _ := r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
	require.Equal(t, types.ActionConsumed, act)
	neighbors := r.Neighbors()
	require.Len(t, neighbors, 1)
	assert.Equal(t, "eth1", neighbors[0].Interface)
	assert.Equal(t, "0.0.0.2", neighbors[0].RouterID)
	assert.Equal(t, "10.0.2.2", neighbors[0].IP)

	sendOwnLSU(r)
	require.Len(t, tx.take(), 2)
	want := []rtable.Route{
		{Dest: ip("10.0.1.0"), Mask: mask24, Iface: "eth0"},
		{Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.2.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
	}
	if diff := cmp.Diff(want, routesOf(r)); diff != "" {
		t.Fatalf("routes mismatch (-want +got):\n%s", diff)
	}

	// 恰好等于超时时间时邻居仍然有效
	clock.Advance(15 * time.Second)
	r.helloCycle()
	assert.Len(t, r.Neighbors(), 1)

	clock.Advance(time.Second)
	r.helloCycle()
	assert.Empty(t, r.Neighbors())
	assert.Len(t, tx.take(), 4)

	sendOwnLSU(r)
	want = []rtable.Route{
		{Dest: ip("10.0.1.0"), Mask: mask24, Iface: "eth0"},
		{Dest: ip("10.0.2.0"), Mask: mask24, Iface: "eth1"},
	}
	if diff := cmp.Diff(want, routesOf(r)); diff != "" {
		t.Fatalf("routes after timeout mismatch (-want +got):\n%s", diff)
	}
	for _, rt := range routesOf(r) {
		assert.NotEqual(t, ip("10.0.2.2"), rt.Gateway)
	}
}

func TestOwnHelloIgnored(t *testing.T) {
	r, _, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})
	act, _ := r.HandleFrame("eth1", helloFrame(t, ridR1, macR2, "10.0.2.2"))
	assert.Equal(t, types.ActionConsumed, act)
	assert.Empty(t, r.Neighbors())
}

func TestHelloCycleSendsOnEveryInterface(t *testing.T) {
	r, tx, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})
	r.helloCycle()

	out := tx.take()
	require.Len(t, out, 2)
	for k, s := range out {
		assert.Equal(t, twoIfaces[k].name, s.iface)
		pkt := decode(t, s.data)
		eth := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
		ip4 := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		assert.Equal(t, protocol.BroadcastMAC, eth.DstMAC)
		assert.Equal(t, twoIfaces[k].mac, eth.SrcMAC)
		assert.Equal(t, "224.0.0.5", ip4.DstIP.String())
		assert.Equal(t, twoIfaces[k].addr, ip4.SrcIP.String())

		msg, err := protocol.DecodePWOSPF(ip4.Payload)
		require.NoError(t, err)
		require.NoError(t, msg.Validate(ip4.Payload))
		assert.Equal(t, uint8(protocol.TypeHello), msg.Type)
		assert.Equal(t, uint32(ridR1), msg.RouterID)
		assert.Equal(t, uint32(mask24), msg.Hello.NetworkMask)
		assert.Equal(t, uint16(5), msg.Hello.HelloInterval)
	}
}

// neighborsUp 在 eth1 上建立 R2、eth2 上建立 R3 两个邻居
func neighborsUp(t *testing.T, r *Router) {
	t.Helper()
	r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
	r.HandleFrame("eth2", helloFrame(t, ridR3, macR3, "10.0.3.3"))
	require.Len(t, r.Neighbors(), 2)
}

var (
	lsuR2 = []protocol.Advertisement{adv("10.0.2.2", ridR1), adv("10.0.4.2", ridR3), adv("10.0.5.2", 0)}
	lsuR3 = []protocol.Advertisement{adv("10.0.3.3", ridR1), adv("10.0.4.3", ridR2), adv("10.0.6.3", 0)}
)

func TestLSUSequenceAndFlooding(t *testing.T) {
	r, tx, _ := newTestRouter(t, threeIfaces, Options{PWOSPFEnabled: true, ExpectedRouters: 3})
	neighborsUp(t, r)

	first := lsuFrame(t, ridR2, macR2, "10.0.2.2", 1, lsuR2...)
	act, _ := r.HandleFrame("eth1", first)
	require.Equal(t, types.ActionConsumed, act)

	out := tx.take()
	require.Len(t, out, 1, "flood skips the inbound interface and interfaces without a neighbor")
	assert.Equal(t, "eth2", out[0].iface)
	assert.Equal(t, []byte(protocol.BroadcastMAC), out[0].data[0:6])
	assert.Equal(t, []byte(macEth2), out[0].data[6:12])
	assert.Equal(t, first[12:], out[0].data[12:])

	steps := []struct {
		seq    uint16
		action types.Action
		reason types.DropReason
	}{
		{3, types.ActionConsumed, types.DropNone},
		{2, types.ActionDropped, types.DropDuplicateLSU},
		{3, types.ActionDropped, types.DropDuplicateLSU},
	}
	for _, s := range steps {
		act, reason := r.HandleFrame("eth1", lsuFrame(t, ridR2, macR2, "10.0.2.2", s.seq, lsuR2...))
		assert.Equal(t, s.action, act, "seq %d", s.seq)
		assert.Equal(t, s.reason, reason, "seq %d", s.seq)
	}
	assert.Len(t, tx.take(), 1, "duplicates are not reflooded")

	views := r.LSDB()
	require.Len(t, views, 1)
	assert.Equal(t, "0.0.0.2", views[0].RouterID)
	assert.Equal(t, uint16(3), views[0].Sequence)
	assert.Len(t, views[0].Links, 3)
	assert.Equal(t, uint64(2), r.Metrics().Dropped(string(types.DropDuplicateLSU)))
}

func TestSelfReflectedLSU(t *testing.T) {
	r, tx, _ := newTestRouter(t, threeIfaces, Options{PWOSPFEnabled: true})
	neighborsUp(t, r)

	r.seq = 6
	sendOwnLSU(r)
	out := tx.take()
	require.Len(t, out, 3)
	for k, s := range out {
		assert.Equal(t, threeIfaces[k].name, s.iface)
		msg := decodeLSU(t, s.data)
		assert.Equal(t, uint16(7), msg.LSU.Sequence)
		assert.Equal(t, uint8(protocol.DefaultLSUTTL), msg.LSU.TTL)
		require.Len(t, msg.LSU.Advertisements, 3)
		assert.Equal(t, protocol.Advertisement{Subnet: ip("10.0.2.1"), Mask: mask24, RouterID: ridR2}, msg.LSU.Advertisements[1])
	}

	act, reason := r.HandleFrame("eth1", out[1].data)
	assert.Equal(t, types.ActionDropped, act)
	assert.Equal(t, types.DropSelfReflected, reason)
	assert.Zero(t, tx.count())

	seq, ok := r.seqs.Last(ridR1)
	require.True(t, ok)
	assert.Equal(t, uint16(7), seq)
}

func TestRouteComputation(t *testing.T) {
	r, tx, clock := newTestRouter(t, threeIfaces, Options{PWOSPFEnabled: true, ExpectedRouters: 3})
	neighborsUp(t, r)

	r.HandleFrame("eth1", lsuFrame(t, ridR2, macR2, "10.0.2.2", 1, lsuR2...))
	r.HandleFrame("eth2", lsuFrame(t, ridR3, macR3, "10.0.3.3", 1, lsuR3...))
	assert.Zero(t, r.Metrics().RouteRebuilds, "rebuild waits for the expected number of routers")

	sendOwnLSU(r)
	tx.take()
	require.Equal(t, uint64(1), r.Metrics().RouteRebuilds)

	want := []rtable.Route{
		{Dest: ip("10.0.1.0"), Mask: mask24, Iface: "eth0"},
		{Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.2.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.3.0"), Mask: mask24, Gateway: ip("10.0.3.3"), Iface: "eth2"},
		{Dest: ip("10.0.5.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.6.0"), Mask: mask24, Gateway: ip("10.0.3.3"), Iface: "eth2"},
	}
	if diff := cmp.Diff(want, routesOf(r)); diff != "" {
		t.Fatalf("routes mismatch (-want +got):\n%s", diff)
	}

	route, ok := r.Lookup(ip("10.0.6.20"))
	require.True(t, ok)
	assert.Equal(t, "eth2", route.Iface)

	// 相同内容的 LSU 不触发重算
	r.HandleFrame("eth1", lsuFrame(t, ridR2, macR2, "10.0.2.2", 2, lsuR2...))
	assert.Equal(t, uint64(1), r.Metrics().RouteRebuilds)

	// R3 失联：R2 继续发送 Hello，R3 超时
	clock.Advance(16 * time.Second)
	r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
	r.helloCycle()
	require.Len(t, r.Neighbors(), 1)

	sendOwnLSU(r)
	want = []rtable.Route{
		{Dest: ip("10.0.1.0"), Mask: mask24, Iface: "eth0"},
		{Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.2.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.4.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.5.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
		{Dest: ip("10.0.6.0"), Mask: mask24, Gateway: ip("10.0.2.2"), Iface: "eth1"},
	}
	if diff := cmp.Diff(want, routesOf(r)); diff != "" {
		t.Fatalf("routes after failure mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultRouteSelection(t *testing.T) {
	t.Run("上行接口邻居优先", func(t *testing.T) {
		r, _, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})
		r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
		r.HandleFrame("eth0", helloFrame(t, 9, macHost, "10.0.1.254"))
		sendOwnLSU(r)

		route, ok := r.Lookup(ip("8.8.8.8"))
		require.True(t, ok)
		assert.Equal(t, rtable.Route{Gateway: ip("10.0.1.254"), Iface: "eth0"}, route)
	})

	t.Run("静态默认路由", func(t *testing.T) {
		static := rtable.Route{Gateway: ip("10.0.1.254"), Iface: "eth0"}
		r, _, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true, StaticRoutes: []rtable.Route{static}})
		require.True(t, r.PWOSPFEnabled())

		route, ok := r.Lookup(ip("8.8.8.8"))
		require.True(t, ok, "static route is installed before the first rebuild")
		assert.Equal(t, static, route)

		r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
		sendOwnLSU(r)
		route, ok = r.Lookup(ip("8.8.8.8"))
		require.True(t, ok)
		assert.Equal(t, static, route)
	})

	t.Run("无邻居无静态路由", func(t *testing.T) {
		r, _, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})
		sendOwnLSU(r)
		_, ok := r.Lookup(ip("8.8.8.8"))
		assert.False(t, ok)
	})
}

func TestStaticModeRejectsPWOSPF(t *testing.T) {
	r, _, _ := staticRouter(t)
	act, reason := r.HandleFrame("eth1", helloFrame(t, ridR2, macR2, "10.0.2.2"))
	assert.Equal(t, types.ActionDropped, act)
	assert.Equal(t, types.DropDisabled, reason)
	assert.Empty(t, r.Neighbors())
	assert.Len(t, r.Routes(), 2)
}

func TestBadPWOSPF(t *testing.T) {
	r, _, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true})
	frame := helloFrame(t, ridR2, macR2, "10.0.2.2")
	// 只破坏 PWOSPF 校验和，IP 校验和不受影响
	frame[ethHeaderLen+ipv4HeaderLen+12] ^= 0xff

	act, reason := r.HandleFrame("eth1", frame)
	assert.Equal(t, types.ActionDropped, act)
	assert.Equal(t, types.DropBadPWOSPF, reason)
	assert.Empty(t, r.Neighbors())
}

func TestSetLSUInterval(t *testing.T) {
	r, tx, _ := newTestRouter(t, twoIfaces, Options{PWOSPFEnabled: true, LSUInterval: 30 * time.Second})
	assert.Equal(t, 30*time.Second, r.LSUInterval())

	for i := 0; i < 2; i++ {
		r.lsuTick()
	}
	assert.Zero(t, tx.count())

	r.SetLSUInterval(3 * time.Second)
	assert.Equal(t, 3*time.Second, r.LSUInterval())
	for i := 0; i < 2; i++ {
		r.lsuTick()
	}
	assert.Zero(t, tx.count())
	r.lsuTick()
	assert.Equal(t, 2, tx.count())

	// 重新装载为新的间隔
	tx.take()
	for i := 0; i < 3; i++ {
		r.lsuTick()
	}
	assert.Equal(t, 2, tx.count())

	r.SetLSUInterval(0)
	assert.Equal(t, time.Second, r.LSUInterval())
}
