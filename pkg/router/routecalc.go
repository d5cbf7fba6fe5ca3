package router

import (
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/rtable"
)

// upstream 路由计算中已访问的路由器及通往它的第一跳
type upstream struct {
	rid     uint32
	via     *iface.Interface
	gateway uint32
}

type visitSet []upstream

func (v visitSet) has(rid uint32) bool {
	for _, u := range v {
		if u.rid == rid {
			return true
		}
	}
	return false
}

// rebuildRoutes 从 LSDB 完整重建路由表并原子发布，调用方持有 r.mu
func (r *Router) rebuildRoutes() {
	routes := r.computeRoutes()
	r.routes.Store(rtable.New(routes))
	r.metrics.Inc(&r.metrics.RouteRebuilds)
	logrus.WithFields(logrus.Fields{
		"routes":    len(routes),
		"lsdb_size": r.db.Len(),
	}).Info("pwospf: routing table rebuilt")
}

func (r *Router) computeRoutes() []rtable.Route {
	var routes []rtable.Route
	self, _ := r.db.Get(r.opts.RouterID)

	// 叶子子网：本机通告中无邻居且没有其它路由器通告该网段
	for _, l := range self.Links {
		if l.RouterID != 0 || r.db.SubnetShared(r.opts.RouterID, l.Subnet, l.Mask) {
			continue
		}
		i, ok := r.ifaces.BySubnet(l.Subnet, l.Mask)
		if !ok {
			continue
		}
		routes = append(routes, rtable.Route{Dest: l.Subnet & l.Mask, Mask: l.Mask, Iface: i.Name})
	}

	if def, ok := r.defaultRoute(); ok {
		routes = append(routes, def)
	}

	// 直连邻居路由器
	var visited visitSet
	for _, l := range self.Links {
		if l.RouterID == 0 {
			continue
		}
		i, ok := r.ifaces.BySubnet(l.Subnet, l.Mask)
		if !ok {
			continue
		}
		n, ok := i.Neighbor()
		if !ok {
			continue
		}
		routes = append(routes, rtable.Route{Dest: l.Subnet & l.Mask, Mask: l.Mask, Gateway: n.IP, Iface: i.Name})
		if len(visited) < r.opts.MaxUpstreamPeers && !visited.has(l.RouterID) {
			visited = append(visited, upstream{rid: l.RouterID, via: i, gateway: n.IP})
		}
	}

	// 邻居的邻居：经由通往通告者的第一跳
	for k := 0; k < len(visited) && k < r.opts.MaxUpstreamPeers; k++ {
		u := visited[k]
		e, ok := r.db.Get(u.rid)
		if !ok {
			continue
		}
		for _, l := range e.Links {
			if l.RouterID == r.opts.RouterID || (l.RouterID != 0 && visited.has(l.RouterID)) {
				continue
			}
			if l.RouterID != 0 {
				visited = append(visited, upstream{rid: l.RouterID, via: u.via, gateway: u.gateway})
			}
			routes = append(routes, rtable.Route{Dest: l.Subnet & l.Mask, Mask: l.Mask, Gateway: u.gateway, Iface: u.via.Name})
		}
	}
	return routes
}

// defaultRoute 上行接口的邻居优先，其次是配置的静态默认路由，最后是第一个有邻居的接口
func (r *Router) defaultRoute() (rtable.Route, bool) {
	if up, ok := r.ifaces.ByName(r.opts.UplinkInterface); ok {
		if n, ok := up.Neighbor(); ok {
			return rtable.Route{Gateway: n.IP, Iface: up.Name}, true
		}
	}
	for _, s := range r.staticRoutes {
		if s.IsDefault() {
			return s, true
		}
	}
	if i, ok := r.ifaces.FirstWithNeighbor(); ok {
		n, _ := i.Neighbor()
		return rtable.Route{Gateway: n.IP, Iface: i.Name}, true
	}
	return rtable.Route{}, false
}
