package router

import "time"

// pendingPacket 等待 ARP 解析的报文，target 为需要解析的下一跳地址
type pendingPacket struct {
	frame  []byte
	target uint32
	iface  string
	queued time.Time
}

// pendingQueue 无上限 FIFO，表项只随 ARP 应答出队
type pendingQueue struct {
	items []pendingPacket
}

func (q *pendingQueue) push(p pendingPacket) {
	q.items = append(q.items, p)
}

// take 取出所有匹配 target 的表项，匹配项与剩余项各自保持原有顺序
func (q *pendingQueue) take(target uint32) []pendingPacket {
	var matched []pendingPacket
	kept := q.items[:0]
	for _, p := range q.items {
		if p.target == target {
			matched = append(matched, p)
		} else {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = pendingPacket{}
	}
	q.items = kept
	return matched
}

func (q *pendingQueue) len() int {
	return len(q.items)
}

func (q *pendingQueue) snapshot() []pendingPacket {
	return append([]pendingPacket(nil), q.items...)
}
