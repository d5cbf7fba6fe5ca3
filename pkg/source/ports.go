package source

import (
	"fmt"
)

// Port 可以发送帧的设备
type Port interface {
	Name() string
	Transmit(frame []byte) error
}

// Ports 按路由器接口名把发送请求分派到对应设备
type Ports struct {
	ports map[string]Port
}

func NewPorts(ports ...Port) (*Ports, error) {
	m := make(map[string]Port, len(ports))
	for _, p := range ports {
		if _, ok := m[p.Name()]; ok {
			return nil, fmt.Errorf("duplicate port %s", p.Name())
		}
		m[p.Name()] = p
	}
	return &Ports{ports: m}, nil
}

func (p *Ports) Transmit(iface string, frame []byte) error {
	port, ok := p.ports[iface]
	if !ok {
		return fmt.Errorf("no port for interface %s", iface)
	}
	return port.Transmit(frame)
}

func (p *Ports) Len() int {
	return len(p.ports)
}
