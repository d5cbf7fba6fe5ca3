package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/router"
	"github.com/haolipeng/pwospf_router/pkg/rtable"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// RoutingTable 静态路由表文件格式
type RoutingTable struct {
	Routes []RouteConfig `yaml:"routes"`
}

// LoadRoutingTable 读取静态路由表文件
func LoadRoutingTable(filename string) ([]RouteConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing table: %w", err)
	}
	var rt RoutingTable
	if err := yaml.UnmarshalStrict(data, &rt); err != nil {
		return nil, fmt.Errorf("failed to parse routing table %s: %w", filename, err)
	}
	return rt.Routes, nil
}

// parseMask 支持点分形式 255.255.255.0 与前缀长度 24 或 /24
func parseMask(s string) (net.IPMask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("mask is required")
	}
	if n, err := strconv.Atoi(strings.TrimPrefix(s, "/")); err == nil {
		if n < 0 || n > 32 {
			return nil, fmt.Errorf("invalid prefix length %d", n)
		}
		return net.CIDRMask(n, 32), nil
	}
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid mask %q", s)
	}
	m := net.IPMask(ip)
	if _, bits := m.Size(); bits == 0 {
		return nil, fmt.Errorf("non-contiguous mask %q", s)
	}
	return m, nil
}

func parseAddr(s string) (uint32, error) {
	if s == "" {
		return 0, nil
	}
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return types.IPToUint32(ip), nil
}

// MACResolver 按设备名读取接口 MAC
type MACResolver func(device string) (net.HardwareAddr, error)

// SystemMAC 从操作系统读取设备 MAC
func SystemMAC(device string) (net.HardwareAddr, error) {
	ifc, err := net.InterfaceByName(device)
	if err != nil {
		return nil, err
	}
	return ifc.HardwareAddr, nil
}

// BuildInterfaces 按配置顺序创建接口表
func (c *Config) BuildInterfaces(resolve MACResolver) (*iface.Table, error) {
	list := make([]*iface.Interface, 0, len(c.Interfaces))
	for _, ic := range c.Interfaces {
		var mac net.HardwareAddr
		var err error
		if ic.MAC != "" {
			mac, err = net.ParseMAC(ic.MAC)
		} else if resolve != nil {
			mac, err = resolve(ic.Device)
		} else {
			err = fmt.Errorf("no mac configured")
		}
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		mask, err := parseMask(ic.Mask)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		i, err := iface.NewInterface(ic.Name, mac, net.ParseIP(ic.IP), mask, ic.HelloInterval, c.Router.ARPTimeout)
		if err != nil {
			return nil, err
		}
		list = append(list, i)
	}
	return iface.NewTable(list...)
}

// Devices 接口名到 pcap 设备名
func (c *Config) Devices() map[string]string {
	out := make(map[string]string, len(c.Interfaces))
	for _, ic := range c.Interfaces {
		out[ic.Name] = ic.Device
	}
	return out
}

// Routes 合并配置中的静态路由与路由表文件，文件中的路由排在后面
func (c *Config) Routes() ([]rtable.Route, error) {
	entries := append([]RouteConfig(nil), c.StaticRoutes...)
	if c.RoutingTableFile != "" {
		fromFile, err := LoadRoutingTable(c.RoutingTableFile)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fromFile...)
	}

	routes := make([]rtable.Route, 0, len(entries))
	for _, e := range entries {
		dest, err := parseAddr(e.Destination)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", e.Destination, err)
		}
		mask, err := parseMask(e.Mask)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", e.Destination, err)
		}
		gw, err := parseAddr(e.Gateway)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", e.Destination, err)
		}
		if e.Interface == "" {
			return nil, fmt.Errorf("route %s: interface is required", e.Destination)
		}
		routes = append(routes, rtable.Route{
			Dest:    dest,
			Mask:    types.MaskToUint32(mask),
			Gateway: gw,
			Iface:   e.Interface,
		})
	}
	return routes, nil
}

// RouterOptions 由配置生成路由器参数，Clock 与 Metrics 由调用方设置
func (c *Config) RouterOptions() (router.Options, error) {
	rid, err := parseAddr(c.Router.RouterID)
	if err != nil {
		return router.Options{}, fmt.Errorf("router_id: %w", err)
	}
	routes, err := c.Routes()
	if err != nil {
		return router.Options{}, err
	}
	return router.Options{
		RouterID:            rid,
		AreaID:              c.Router.AreaID,
		UplinkInterface:     c.Router.UplinkInterface,
		ExpectedRouters:     c.Router.ExpectedRouters,
		MaxUpstreamPeers:    c.Router.MaxUpstreamPeers,
		HelloInterval:       c.Router.HelloInterval,
		LSUInterval:         c.Router.LSUInterval,
		NeighborTimeoutMult: c.Router.NeighborTimeoutMult,
		PWOSPFEnabled:       !c.Router.DisablePWOSPF,
		StaticRoutes:        routes,
	}, nil
}
