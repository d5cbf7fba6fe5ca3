// Package iface 维护本机接口表，每个接口拥有自己的 ARP 缓存和至多一个邻居记录。
// 包内类型不做加锁，由 router 的全局锁保护。
package iface

import (
	"fmt"
	"net"
	"time"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

// DefaultHelloInterval 默认 Hello 间隔（秒）
const DefaultHelloInterval = 5

// Neighbor 在该接口上通过 Hello 发现的邻居路由器
type Neighbor struct {
	RouterID uint32
	IP       uint32
	Updated  time.Time
}

// Interface 本机接口
type Interface struct {
	Name          string
	MAC           net.HardwareAddr
	IP            uint32
	Mask          uint32
	HelloInterval uint16

	ARP      *ARPCache
	neighbor *Neighbor
}

// NewInterface 创建接口，ip/mask 必须为 IPv4
func NewInterface(name string, mac net.HardwareAddr, ip net.IP, mask net.IPMask, helloInterval uint16, arpTimeout time.Duration) (*Interface, error) {
	if name == "" {
		return nil, fmt.Errorf("interface name is required")
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("interface %s: invalid mac %q", name, mac)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("interface %s: %v is not an IPv4 address", name, ip)
	}
	m := types.MaskToUint32(mask)
	if _, ok := types.PrefixFromUint32(types.IPToUint32(ip), m); !ok {
		return nil, fmt.Errorf("interface %s: non-contiguous mask %v", name, mask)
	}
	if helloInterval == 0 {
		helloInterval = DefaultHelloInterval
	}
	return &Interface{
		Name:          name,
		MAC:           append(net.HardwareAddr(nil), mac...),
		IP:            types.IPToUint32(ip),
		Mask:          m,
		HelloInterval: helloInterval,
		ARP:           NewARPCache(arpTimeout),
	}, nil
}

// Network 接口所在子网
func (i *Interface) Network() uint32 {
	return i.IP & i.Mask
}

// Contains 地址是否属于接口子网
func (i *Interface) Contains(ip uint32) bool {
	return ip&i.Mask == i.Network()
}

func (i *Interface) Neighbor() (Neighbor, bool) {
	if i.neighbor == nil {
		return Neighbor{}, false
	}
	return *i.neighbor, true
}

func (i *Interface) HasNeighbor() bool {
	return i.neighbor != nil
}

// RefreshNeighbor 收到 Hello 时创建或刷新邻居，返回是否为新建
func (i *Interface) RefreshNeighbor(routerID, ip uint32, now time.Time) bool {
	created := i.neighbor == nil
	if created {
		i.neighbor = &Neighbor{}
	}
	i.neighbor.RouterID = routerID
	i.neighbor.IP = ip
	i.neighbor.Updated = now
	return created
}

// ExpireNeighbor 邻居最后刷新时间超过 timeout 则清除，返回被清除的记录
func (i *Interface) ExpireNeighbor(now time.Time, timeout time.Duration) (Neighbor, bool) {
	if i.neighbor == nil || now.Sub(i.neighbor.Updated) <= timeout {
		return Neighbor{}, false
	}
	n := *i.neighbor
	i.neighbor = nil
	return n, true
}

// NeighborRouterID 无邻居时返回 0
func (i *Interface) NeighborRouterID() uint32 {
	if i.neighbor == nil {
		return 0
	}
	return i.neighbor.RouterID
}

func (i *Interface) String() string {
	return fmt.Sprintf("%s(%s/%d)", i.Name, types.Uint32ToIP(i.IP), maskBits(i.Mask))
}

func maskBits(m uint32) int {
	ones, _ := net.IPMask(types.Uint32ToIP(m)).Size()
	return ones
}
