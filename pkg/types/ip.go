package types

import (
	"encoding/binary"
	"net"
	"net/netip"
)

// Uint32ToIP 辅助函数：将uint32转换为net.IP
func Uint32ToIP(i uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, i)
	return ip
}

// IPToUint32 非IPv4地址返回0
func IPToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}

func MaskToUint32(m net.IPMask) uint32 {
	if len(m) == 16 {
		m = m[12:]
	}
	if len(m) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(m)
}

// PrefixFromUint32 将(网络,掩码)转换为 netip.Prefix，掩码不连续时 ok 为 false
func PrefixFromUint32(network, mask uint32) (netip.Prefix, bool) {
	ones, bits := net.IPMask(Uint32ToIP(mask)).Size()
	if bits == 0 {
		return netip.Prefix{}, false
	}
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], network&mask)
	return netip.PrefixFrom(netip.AddrFrom4(a), ones), true
}

func AddrFromUint32(ip uint32) netip.Addr {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], ip)
	return netip.AddrFrom4(a)
}
