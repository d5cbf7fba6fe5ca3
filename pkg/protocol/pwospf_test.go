package protocol

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testOrigin = Origin{
	MAC:      net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
	IP:       net.IPv4(10, 0, 2, 1),
	RouterID: 0x0a000101,
}

func TestHelloWireLayout(t *testing.T) {
	frame, err := BuildHello(testOrigin, 0xffffff00, 5)
	require.NoError(t, err)
	require.Len(t, frame, 14+20+HeaderLen+HelloLen)

	assert.Equal(t, []byte(BroadcastMAC), frame[0:6])
	ip := frame[14:34]
	assert.Equal(t, uint8(DefaultIPTTL), ip[8])
	assert.Equal(t, uint8(89), ip[9])
	assert.Equal(t, []byte(AllSPFRouters), ip[16:20])

	ospf := frame[34:]
	assert.Equal(t, uint8(Version), ospf[0])
	assert.Equal(t, uint8(TypeHello), ospf[1])
	assert.Equal(t, uint16(HeaderLen+HelloLen), binary.BigEndian.Uint16(ospf[2:4]))
	assert.Equal(t, uint32(0x0a000101), binary.BigEndian.Uint32(ospf[4:8]))
	assert.Equal(t, uint16(0xffff), binary.BigEndian.Uint16(ospf[12:14]))
	assert.Equal(t, uint32(0xffffff00), binary.BigEndian.Uint32(ospf[24:28]))
	assert.Equal(t, uint16(5), binary.BigEndian.Uint16(ospf[28:30]))
}

func TestLSUDecodeAndValidate(t *testing.T) {
	advs := []Advertisement{
		{Subnet: 0x0a000101, Mask: 0xffffff00, RouterID: 0},
		{Subnet: 0x0a000201, Mask: 0xffffff00, RouterID: 2},
	}
	frame, err := BuildLSU(testOrigin, 7, advs)
	require.NoError(t, err)

	d := NewDecoder()
	dec, err := d.Decode(frame)
	require.NoError(t, err)
	require.True(t, dec.HasIPv4)
	assert.Equal(t, IPProtocol, dec.IPv4.Protocol)

	msg, err := DecodePWOSPF(dec.IPv4.Payload)
	require.NoError(t, err)
	assert.NoError(t, msg.Validate(dec.IPv4.Payload))
	assert.Equal(t, uint8(TypeLSU), msg.Type)
	assert.Equal(t, uint16(7), msg.LSU.Sequence)
	assert.Equal(t, uint8(DefaultLSUTTL), msg.LSU.TTL)
	assert.Equal(t, advs, msg.LSU.Advertisements)
	assert.Equal(t, uint16(HeaderLen+LSUHeaderLen+2*AdvertisementLen), msg.Length)
}

func TestValidateRejects(t *testing.T) {
	frame, err := BuildHello(testOrigin, 0xffffff00, 5)
	require.NoError(t, err)
	good := append([]byte(nil), frame[34:]...)

	testCases := []struct {
		name   string
		mutate func(b []byte)
		want   error
	}{
		{"版本错误", func(b []byte) { b[0] = 3 }, ErrBadVersion},
		{"区域非零", func(b []byte) { b[11] = 1 }, ErrBadArea},
		{"认证类型非零", func(b []byte) { b[15] = 1 }, ErrBadAuth},
		{"认证数据非零", func(b []byte) { b[20] = 1 }, ErrBadAuth},
		{"校验和错误", func(b []byte) { b[12] = 0 }, ErrBadChecksum},
		{"长度超出", func(b []byte) { binary.BigEndian.PutUint16(b[2:], 200) }, ErrBadLength},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := append([]byte(nil), good...)
			tc.mutate(b)
			msg, err := DecodePWOSPF(b)
			require.NoError(t, err)
			assert.ErrorIs(t, msg.Validate(b), tc.want)
		})
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := DecodePWOSPF(make([]byte, 10))
	assert.ErrorIs(t, err, ErrTooShort)

	frame, err := BuildLSU(testOrigin, 1, []Advertisement{{Subnet: 1, Mask: 2, RouterID: 3}})
	require.NoError(t, err)
	payload := frame[34:]
	// 通告数量大于实际携带的条目
	binary.BigEndian.PutUint32(payload[HeaderLen+4:], 5)
	_, err = DecodePWOSPF(payload)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestARPFrames(t *testing.T) {
	req, err := BuildARPRequest(testOrigin.MAC, testOrigin.IP, net.IPv4(10, 0, 2, 2))
	require.NoError(t, err)
	// 以太网最小帧长填充
	assert.Len(t, req, 60)

	pkt := gopacket.NewPacket(req, layers.LayerTypeEthernet, gopacket.Default)
	arp, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	assert.Equal(t, uint16(layers.ARPRequest), arp.Operation)
	assert.Equal(t, []byte{10, 0, 2, 2}, arp.DstProtAddress)

	peer := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x09}
	rep, err := BuildARPReply(testOrigin.MAC, testOrigin.IP, peer, net.IPv4(10, 0, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte(peer), rep[0:6])
}

func TestPWOSPFLayerRegistered(t *testing.T) {
	frame, err := BuildHello(testOrigin, 0xffffff00, 5)
	require.NoError(t, err)
	pkt := gopacket.NewPacket(frame[34:], LayerTypePWOSPF, gopacket.Default)
	l, ok := pkt.Layer(LayerTypePWOSPF).(*PWOSPF)
	require.True(t, ok)
	assert.Equal(t, uint16(5), l.Hello.HelloInterval)
}
