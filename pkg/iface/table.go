package iface

import "fmt"

// Table 接口表，保持配置中的顺序
type Table struct {
	list   []*Interface
	byName map[string]*Interface
}

func NewTable(ifaces ...*Interface) (*Table, error) {
	t := &Table{byName: make(map[string]*Interface, len(ifaces))}
	for _, i := range ifaces {
		if _, dup := t.byName[i.Name]; dup {
			return nil, fmt.Errorf("duplicate interface %s", i.Name)
		}
		t.byName[i.Name] = i
		t.list = append(t.list, i)
	}
	return t, nil
}

func (t *Table) All() []*Interface {
	return t.list
}

func (t *Table) Len() int {
	return len(t.list)
}

func (t *Table) ByName(name string) (*Interface, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// IsLocalIP 地址是否为本机某个接口的地址
func (t *Table) IsLocalIP(ip uint32) bool {
	for _, i := range t.list {
		if i.IP == ip {
			return true
		}
	}
	return false
}

// BySubnet 找到与(子网,掩码)处于同一网段的接口
func (t *Table) BySubnet(subnet, mask uint32) (*Interface, bool) {
	for _, i := range t.list {
		if i.Mask == mask && i.Network() == subnet&mask {
			return i, true
		}
	}
	return nil, false
}

// ByNeighbor 找到邻居路由器ID为 rid 的接口
func (t *Table) ByNeighbor(rid uint32) (*Interface, bool) {
	if rid == 0 {
		return nil, false
	}
	for _, i := range t.list {
		if i.neighbor != nil && i.neighbor.RouterID == rid {
			return i, true
		}
	}
	return nil, false
}

// FirstWithNeighbor 按配置顺序返回第一个有邻居的接口
func (t *Table) FirstWithNeighbor() (*Interface, bool) {
	for _, i := range t.list {
		if i.neighbor != nil {
			return i, true
		}
	}
	return nil, false
}
