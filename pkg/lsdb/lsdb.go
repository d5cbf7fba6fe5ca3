// Package lsdb 链路状态数据库与 LSU 序列号记录
package lsdb

import (
	"sort"
	"time"
)

// Link 一条通告链路，RouterID 为 0 表示该子网上没有邻居路由器
type Link struct {
	Subnet   uint32
	Mask     uint32
	RouterID uint32
}

// Entry 某台路由器的最新通告
type Entry struct {
	RouterID uint32
	Updated  time.Time
	Links    []Link
}

// Database 以路由器ID为键，每个路由器只保留一个条目
type Database struct {
	entries map[uint32]*Entry
}

func New() *Database {
	return &Database{entries: make(map[uint32]*Entry)}
}

type linkKey struct {
	subnet, mask uint32
}

func linkMap(links []Link) map[linkKey]uint32 {
	m := make(map[linkKey]uint32, len(links))
	for _, l := range links {
		m[linkKey{l.Subnet, l.Mask}] = l.RouterID
	}
	return m
}

// linksChanged 任一(子网,掩码)的邻居路由器ID变化，或链路出现/消失
func linksChanged(old, links []Link) bool {
	before, after := linkMap(old), linkMap(links)
	if len(before) != len(after) {
		return true
	}
	for k, rid := range after {
		prev, ok := before[k]
		if !ok || prev != rid {
			return true
		}
	}
	return false
}

// Apply 整体替换或插入 rid 的条目。isNew 表示首次插入，changed 表示替换时拓扑发生变化。
func (d *Database) Apply(rid uint32, links []Link, now time.Time) (isNew, changed bool) {
	cp := append([]Link(nil), links...)
	e, ok := d.entries[rid]
	if !ok {
		d.entries[rid] = &Entry{RouterID: rid, Updated: now, Links: cp}
		return true, false
	}
	changed = linksChanged(e.Links, cp)
	e.Links = cp
	e.Updated = now
	return false, changed
}

func (d *Database) Get(rid uint32) (Entry, bool) {
	e, ok := d.entries[rid]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (d *Database) Len() int {
	return len(d.entries)
}

// Entries 按路由器ID排序返回副本
func (d *Database) Entries() []Entry {
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, Entry{RouterID: e.RouterID, Updated: e.Updated, Links: append([]Link(nil), e.Links...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouterID < out[j].RouterID })
	return out
}

// SubnetShared 除 owner 之外是否有路由器通告了与(subnet,mask)重叠的网段
func (d *Database) SubnetShared(owner, subnet, mask uint32) bool {
	for rid, e := range d.entries {
		if rid == owner {
			continue
		}
		for _, l := range e.Links {
			if l.Subnet&l.Mask == subnet&mask {
				return true
			}
		}
	}
	return false
}

// Sequences 每个源路由器最后接受的 LSU 序列号
type Sequences struct {
	last map[uint32]uint16
}

func NewSequences() *Sequences {
	return &Sequences{last: make(map[uint32]uint16)}
}

// Accept 首次出现或序列号严格增大时接受并记录；否则为重复报文
func (s *Sequences) Accept(rid uint32, seq uint16) bool {
	prev, ok := s.last[rid]
	if ok && seq <= prev {
		return false
	}
	s.last[rid] = seq
	return true
}

func (s *Sequences) Last(rid uint32) (uint16, bool) {
	v, ok := s.last[rid]
	return v, ok
}
