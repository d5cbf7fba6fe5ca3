// Package rtable 路由表：有序路由列表加最长前缀匹配索引。
// Table 构建后只读，通过 Holder 以原子指针整体替换发布。
package rtable

import (
	"fmt"
	"sync/atomic"

	"github.com/gaissmai/bart"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

// Route 一条路由，Gateway 为 0 表示直连
type Route struct {
	Dest    uint32
	Mask    uint32
	Gateway uint32
	Iface   string
}

func (r Route) IsDefault() bool {
	return r.Dest == 0 && r.Mask == 0
}

// NextHop 直连路由的下一跳是目的地址本身
func (r Route) NextHop(dst uint32) uint32 {
	if r.Gateway != 0 {
		return r.Gateway
	}
	return dst
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%s via %s dev %s",
		types.Uint32ToIP(r.Dest), types.Uint32ToIP(r.Mask), types.Uint32ToIP(r.Gateway), r.Iface)
}

// Table 不可变路由表
type Table struct {
	routes []Route
	index  bart.Table[int]
}

// New 按顺序构建路由表。前缀相同的路由后者覆盖前者。
func New(routes []Route) *Table {
	t := &Table{routes: make([]Route, 0, len(routes))}
	for _, r := range routes {
		pfx, ok := types.PrefixFromUint32(r.Dest, r.Mask)
		if !ok {
			logrus.Warnf("rtable: skip route with non-contiguous mask: %s", r)
			continue
		}
		t.routes = append(t.routes, r)
		t.index.Insert(pfx, len(t.routes)-1)
	}
	return t
}

// Lookup 最长前缀匹配
func (t *Table) Lookup(dst uint32) (Route, bool) {
	if t == nil {
		return Route{}, false
	}
	i, ok := t.index.Lookup(types.AddrFromUint32(dst))
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// Routes 返回路由副本
func (t *Table) Routes() []Route {
	if t == nil {
		return nil
	}
	return append([]Route(nil), t.routes...)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.routes)
}

// Holder 发布当前路由表，读者永远看到完整的表
type Holder struct {
	p atomic.Pointer[Table]
}

func NewHolder(initial *Table) *Holder {
	h := &Holder{}
	if initial == nil {
		initial = New(nil)
	}
	h.p.Store(initial)
	return h
}

func (h *Holder) Load() *Table {
	return h.p.Load()
}

func (h *Holder) Store(t *Table) {
	h.p.Store(t)
}
