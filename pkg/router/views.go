package router

import (
	"time"

	"github.com/haolipeng/pwospf_router/pkg/lsdb"
	"github.com/haolipeng/pwospf_router/pkg/rtable"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// 以下视图类型供管理接口序列化使用

type RouteView struct {
	Destination string `json:"destination"`
	Mask        string `json:"mask"`
	Gateway     string `json:"gateway"`
	Interface   string `json:"interface"`
}

type NeighborView struct {
	Interface string    `json:"interface"`
	RouterID  string    `json:"router_id"`
	IP        string    `json:"ip"`
	Updated   time.Time `json:"updated"`
}

type LinkView struct {
	Subnet   string `json:"subnet"`
	Mask     string `json:"mask"`
	RouterID string `json:"router_id"`
}

type LSDBView struct {
	RouterID string     `json:"router_id"`
	Sequence uint16     `json:"sequence"`
	Updated  time.Time  `json:"updated"`
	Links    []LinkView `json:"links"`
}

type ARPView struct {
	Interface string    `json:"interface"`
	IP        string    `json:"ip"`
	MAC       string    `json:"mac"`
	Updated   time.Time `json:"updated"`
	Fresh     bool      `json:"fresh"`
}

type PendingView struct {
	Interface string    `json:"interface"`
	NextHop   string    `json:"next_hop"`
	Length    int       `json:"length"`
	Queued    time.Time `json:"queued"`
}

func ipString(v uint32) string {
	return types.Uint32ToIP(v).String()
}

func (r *Router) routerIDString() string {
	return ipString(r.opts.RouterID)
}

func routeViews(routes []rtable.Route) []RouteView {
	out := make([]RouteView, len(routes))
	for i, rt := range routes {
		out[i] = RouteView{
			Destination: ipString(rt.Dest),
			Mask:        ipString(rt.Mask),
			Gateway:     ipString(rt.Gateway),
			Interface:   rt.Iface,
		}
	}
	return out
}

// Routes 当前发布的路由表，按表内顺序
func (r *Router) Routes() []RouteView {
	return routeViews(r.routes.Load().Routes())
}

func (r *Router) Neighbors() []NeighborView {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []NeighborView
	for _, i := range r.ifaces.All() {
		n, ok := i.Neighbor()
		if !ok {
			continue
		}
		out = append(out, NeighborView{
			Interface: i.Name,
			RouterID:  ipString(n.RouterID),
			IP:        ipString(n.IP),
			Updated:   n.Updated,
		})
	}
	return out
}

func (r *Router) LSDB() []LSDBView {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.db.Entries()
	out := make([]LSDBView, len(entries))
	for k, e := range entries {
		seq, _ := r.seqs.Last(e.RouterID)
		out[k] = LSDBView{
			RouterID: ipString(e.RouterID),
			Sequence: seq,
			Updated:  e.Updated,
			Links:    linkViews(e.Links),
		}
	}
	return out
}

func linkViews(links []lsdb.Link) []LinkView {
	out := make([]LinkView, len(links))
	for i, l := range links {
		out[i] = LinkView{Subnet: ipString(l.Subnet), Mask: ipString(l.Mask), RouterID: ipString(l.RouterID)}
	}
	return out
}

// ARPEntries 按接口顺序、IP 顺序返回所有 ARP 表项
func (r *Router) ARPEntries() []ARPView {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	var out []ARPView
	for _, i := range r.ifaces.All() {
		for _, e := range i.ARP.Entries() {
			_, fresh := i.ARP.Lookup(e.IP, now)
			out = append(out, ARPView{
				Interface: i.Name,
				IP:        ipString(e.IP),
				MAC:       e.MAC.String(),
				Updated:   e.Updated,
				Fresh:     fresh,
			})
		}
	}
	return out
}

// Pending 待解析队列，按到达顺序
func (r *Router) Pending() []PendingView {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.pending.snapshot()
	out := make([]PendingView, len(items))
	for k, p := range items {
		out[k] = PendingView{Interface: p.iface, NextHop: ipString(p.target), Length: len(p.frame), Queued: p.queued}
	}
	return out
}

// InterfaceNames 按配置顺序
func (r *Router) InterfaceNames() []string {
	names := make([]string, 0, r.ifaces.Len())
	for _, i := range r.ifaces.All() {
		names = append(names, i.Name)
	}
	return names
}
