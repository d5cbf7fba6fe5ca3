package router

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

type sent struct {
	iface string
	data  []byte
}

// memTx 记录所有发出的帧
type memTx struct {
	mu     sync.Mutex
	frames []sent
}

func (m *memTx) Transmit(ifName string, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, sent{iface: ifName, data: append([]byte(nil), frame...)})
	return nil
}

// take 取出并清空已发送的帧
func (m *memTx) take() []sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.frames
	m.frames = nil
	return out
}

func (m *memTx) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

var (
	macEth0 = net.HardwareAddr{0x02, 0, 0, 0, 0x01, 0x00}
	macEth1 = net.HardwareAddr{0x02, 0, 0, 0, 0x01, 0x01}
	macEth2 = net.HardwareAddr{0x02, 0, 0, 0, 0x01, 0x02}
	macR2   = net.HardwareAddr{0x02, 0, 0, 0, 0x02, 0x01}
	macR3   = net.HardwareAddr{0x02, 0, 0, 0, 0x03, 0x01}
	macHost = net.HardwareAddr{0x02, 0, 0, 0, 0x09, 0x09}
)

const (
	ridR1 = 1
	ridR2 = 2
	ridR3 = 3
)

func ip(s string) uint32 {
	return types.IPToUint32(net.ParseIP(s))
}

type testIface struct {
	name string
	mac  net.HardwareAddr
	addr string
}

var twoIfaces = []testIface{
	{"eth0", macEth0, "10.0.1.1"},
	{"eth1", macEth1, "10.0.2.1"},
}

var threeIfaces = append(append([]testIface(nil), twoIfaces...), testIface{"eth2", macEth2, "10.0.3.1"})

func newTestRouter(t *testing.T, specs []testIface, opts Options) (*Router, *memTx, fakeClock) {
	t.Helper()
	var list []*iface.Interface
	for _, s := range specs {
		i, err := iface.NewInterface(s.name, s.mac, net.ParseIP(s.addr), net.CIDRMask(24, 32), 5, 15*time.Second)
		require.NoError(t, err)
		list = append(list, i)
	}
	tbl, err := iface.NewTable(list...)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	tx := &memTx{}
	if opts.RouterID == 0 {
		opts.RouterID = ridR1
	}
	opts.Clock = clock
	r, err := New(tbl, tx, opts)
	require.NoError(t, err)
	return r, tx, clock
}

// ipv4Frame 构造一个 IPv4 帧，payload 为 ICMP 回显请求或任意协议的原始载荷
func ipv4Frame(t *testing.T, srcMAC, dstMAC net.HardwareAddr, src, dst string, ttl uint8, id uint16, proto layers.IPProtocol, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip4 := &layers.IPv4{
		Version:  4,
		TTL:      ttl,
		Id:       id,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	var ls []gopacket.SerializableLayer
	if proto == layers.IPProtocolICMPv4 {
		icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 7, Seq: id}
		ls = []gopacket.SerializableLayer{eth, ip4, icmp, gopacket.Payload(payload)}
	} else {
		ls = []gopacket.SerializableLayer{eth, ip4, gopacket.Payload(payload)}
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func arpReplyFrame(t *testing.T, srcMAC net.HardwareAddr, srcIP string, dstMAC net.HardwareAddr, dstIP string) []byte {
	t.Helper()
	f, err := protocol.BuildARPReply(srcMAC, net.ParseIP(srcIP), dstMAC, net.ParseIP(dstIP))
	require.NoError(t, err)
	return f
}

func arpRequestFrame(t *testing.T, srcMAC net.HardwareAddr, srcIP, target string) []byte {
	t.Helper()
	f, err := protocol.BuildARPRequest(srcMAC, net.ParseIP(srcIP), net.ParseIP(target))
	require.NoError(t, err)
	return f
}

func helloFrame(t *testing.T, rid uint32, mac net.HardwareAddr, src string) []byte {
	t.Helper()
	f, err := protocol.BuildHello(protocol.Origin{MAC: mac, IP: net.ParseIP(src), RouterID: rid}, 0xffffff00, 5)
	require.NoError(t, err)
	return f
}

func lsuFrame(t *testing.T, rid uint32, mac net.HardwareAddr, src string, seq uint16, advs ...protocol.Advertisement) []byte {
	t.Helper()
	f, err := protocol.BuildLSU(protocol.Origin{MAC: mac, IP: net.ParseIP(src), RouterID: rid}, seq, advs)
	require.NoError(t, err)
	return f
}

func adv(subnet string, rid uint32) protocol.Advertisement {
	return protocol.Advertisement{Subnet: ip(subnet), Mask: 0xffffff00, RouterID: rid}
}

func decode(t *testing.T, frame []byte) gopacket.Packet {
	t.Helper()
	return gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
}
