package iface

import (
	"net"
	"sort"
	"time"
)

// DefaultARPTimeout ARP 表项新鲜期，过期后视为未命中
const DefaultARPTimeout = 15 * time.Second

// ARPEntry ARP 缓存项
type ARPEntry struct {
	IP      uint32
	MAC     net.HardwareAddr
	Updated time.Time
}

// ARPCache 单个接口的 IP→MAC 缓存，表项只会被覆盖，不会主动淘汰
type ARPCache struct {
	entries map[uint32]*ARPEntry
	maxAge  time.Duration
}

func NewARPCache(maxAge time.Duration) *ARPCache {
	if maxAge <= 0 {
		maxAge = DefaultARPTimeout
	}
	return &ARPCache{
		entries: make(map[uint32]*ARPEntry),
		maxAge:  maxAge,
	}
}

// Update 创建或刷新表项
func (c *ARPCache) Update(ip uint32, mac net.HardwareAddr, now time.Time) {
	if e, ok := c.entries[ip]; ok {
		e.MAC = append(e.MAC[:0], mac...)
		e.Updated = now
		return
	}
	c.entries[ip] = &ARPEntry{
		IP:      ip,
		MAC:     append(net.HardwareAddr(nil), mac...),
		Updated: now,
	}
}

// Lookup 仅返回新鲜期内的表项
func (c *ARPCache) Lookup(ip uint32, now time.Time) (net.HardwareAddr, bool) {
	e, ok := c.entries[ip]
	if !ok || now.Sub(e.Updated) >= c.maxAge {
		return nil, false
	}
	return e.MAC, true
}

func (c *ARPCache) Len() int {
	return len(c.entries)
}

// Entries 按 IP 排序返回全部表项（含已过期）
func (c *ARPCache) Entries() []ARPEntry {
	out := make([]ARPEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, ARPEntry{IP: e.IP, MAC: append(net.HardwareAddr(nil), e.MAC...), Updated: e.Updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}
