package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type ProcessorMetrics struct {
	ProcessedPackets uint64
	DroppedPackets   uint64
	ProcessingTime   uint64 // 纳秒
}

func (m *ProcessorMetrics) IncrementProcessed() {
	atomic.AddUint64(&m.ProcessedPackets, 1)
}

func (m *ProcessorMetrics) IncrementDropped() {
	atomic.AddUint64(&m.DroppedPackets, 1)
}

func (m *ProcessorMetrics) AddProcessingTime(duration time.Duration) {
	atomic.AddUint64(&m.ProcessingTime, uint64(duration.Nanoseconds()))
}

// 添加性能指标收集方法
func (m *ProcessorMetrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"processed_packets": atomic.LoadUint64(&m.ProcessedPackets),
		"dropped_packets":   atomic.LoadUint64(&m.DroppedPackets),
		"processing_time":   atomic.LoadUint64(&m.ProcessingTime),
		"avg_process_time": float64(atomic.LoadUint64(&m.ProcessingTime)) /
			float64(atomic.LoadUint64(&m.ProcessedPackets)+1),
	}
}

type SourceMetrics struct {
	PacketsCaptured uint64
	PacketsDropped  uint64
	BytesProcessed  uint64
	ErrorCount      uint64
}

func (m *SourceMetrics) IncrementErrorCount() {
	atomic.AddUint64(&m.ErrorCount, 1)
}

// IncrementPacketsCaptured 增加捕获的数据包计数
func (m *SourceMetrics) IncrementPacketsCaptured() {
	atomic.AddUint64(&m.PacketsCaptured, 1)
}

func (m *SourceMetrics) IncrementPacketsDropped() {
	atomic.AddUint64(&m.PacketsDropped, 1)
}

// AddBytesProcessed 增加处理的字节数
func (m *SourceMetrics) AddBytesProcessed(bytes uint64) {
	atomic.AddUint64(&m.BytesProcessed, bytes)
}

func (m *SourceMetrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"packets_captured": atomic.LoadUint64(&m.PacketsCaptured),
		"packets_dropped":  atomic.LoadUint64(&m.PacketsDropped),
		"bytes_processed":  atomic.LoadUint64(&m.BytesProcessed),
		"error_count":      atomic.LoadUint64(&m.ErrorCount),
	}
}

type SinkMetrics struct {
	PacketsWritten uint64
	WriteErrors    uint64
	BytesWritten   uint64
}

func (m *SinkMetrics) IncrementWritten(bytes int) {
	atomic.AddUint64(&m.PacketsWritten, 1)
	atomic.AddUint64(&m.BytesWritten, uint64(bytes))
}

func (m *SinkMetrics) IncrementWriteErrors() {
	atomic.AddUint64(&m.WriteErrors, 1)
}

func (m *SinkMetrics) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"packets_written": atomic.LoadUint64(&m.PacketsWritten),
		"write_errors":    atomic.LoadUint64(&m.WriteErrors),
		"bytes_written":   atomic.LoadUint64(&m.BytesWritten),
	}
}

// RouterMetrics 路由器转发与协议计数
type RouterMetrics struct {
	FramesReceived  uint64
	Forwarded       uint64
	Queued          uint64
	ARPRequestsSent uint64
	ARPRepliesSent  uint64
	EchoReplies     uint64
	HellosSent      uint64
	HellosReceived  uint64
	LSUsSent        uint64
	LSUsAccepted    uint64
	LSUsFlooded     uint64
	RouteRebuilds   uint64
	TransmitErrors  uint64

	mu      sync.Mutex
	dropped map[string]uint64 // 按原因统计的丢弃数
}

func (m *RouterMetrics) Inc(counter *uint64) {
	atomic.AddUint64(counter, 1)
}

func (m *RouterMetrics) IncrementDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropped == nil {
		m.dropped = make(map[string]uint64)
	}
	m.dropped[reason]++
}

func (m *RouterMetrics) Dropped(reason string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *RouterMetrics) GetStats() map[string]interface{} {
	m.mu.Lock()
	dropped := make(map[string]uint64, len(m.dropped))
	for k, v := range m.dropped {
		dropped[k] = v
	}
	m.mu.Unlock()

	return map[string]interface{}{
		"frames_received":   atomic.LoadUint64(&m.FramesReceived),
		"forwarded":         atomic.LoadUint64(&m.Forwarded),
		"queued":            atomic.LoadUint64(&m.Queued),
		"arp_requests_sent": atomic.LoadUint64(&m.ARPRequestsSent),
		"arp_replies_sent":  atomic.LoadUint64(&m.ARPRepliesSent),
		"echo_replies":      atomic.LoadUint64(&m.EchoReplies),
		"hellos_sent":       atomic.LoadUint64(&m.HellosSent),
		"hellos_received":   atomic.LoadUint64(&m.HellosReceived),
		"lsus_sent":         atomic.LoadUint64(&m.LSUsSent),
		"lsus_accepted":     atomic.LoadUint64(&m.LSUsAccepted),
		"lsus_flooded":      atomic.LoadUint64(&m.LSUsFlooded),
		"route_rebuilds":    atomic.LoadUint64(&m.RouteRebuilds),
		"transmit_errors":   atomic.LoadUint64(&m.TransmitErrors),
		"dropped":           dropped,
	}
}
