package filter

import (
	"github.com/haolipeng/pwospf_router/pkg/protocol"
)

// buildEvalVars 根据解析结果构建评估变量，所有声明的变量都会赋值
func buildEvalVars(ifName string, d *protocol.Decoded) map[string]interface{} {
	vars := map[string]interface{}{
		"iface":    ifName,
		"eth.type": int64(0),
		"eth.src":  "",
		"eth.dst":  "",
		"ip.src":   "",
		"ip.dst":   "",
		"ip.proto": int64(0),
		"ip.ttl":   int64(0),
		"arp.op":   int64(0),
	}
	if d == nil {
		return vars
	}

	vars["eth.type"] = int64(d.Ethernet.EthernetType)
	vars["eth.src"] = d.Ethernet.SrcMAC.String()
	vars["eth.dst"] = d.Ethernet.DstMAC.String()

	if d.HasIPv4 {
		vars["ip.src"] = d.IPv4.SrcIP.String()
		vars["ip.dst"] = d.IPv4.DstIP.String()
		vars["ip.proto"] = int64(d.IPv4.Protocol)
		vars["ip.ttl"] = int64(d.IPv4.TTL)
	}
	if d.HasARP {
		vars["arp.op"] = int64(d.ARP.Operation)
	}
	return vars
}
