package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/haolipeng/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// PortConfig 一个路由器接口对应的抓包设备
type PortConfig struct {
	Iface       string // 路由器接口名，写入每一帧的 Frame.Iface
	Device      string
	SnapLen     int32
	Promiscuous bool
	Timeout     time.Duration
	BPFFilter   string
	OpenRetry   time.Duration // 打开设备的最长重试时间，0 表示只尝试一次
	BufferSize  int
}

// PcapPort 同一个 pcap 句柄既用于接收也用于发送
type PcapPort struct {
	iface     string
	device    string
	handle    *pcap.Handle
	output    chan *types.Frame
	bpfFilter string
	stats     *metrics.SourceMetrics

	mu     sync.Mutex // 保护 handle 的写入与关闭
	closed bool
}

func openHandle(cfg PortConfig) (*pcap.Handle, error) {
	handle, err := pcap.OpenLive(cfg.Device, cfg.SnapLen, cfg.Promiscuous, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open interface %s: %w", cfg.Device, err)
	}
	// 只接收入方向，避免抓到自己发出的帧
	if err := handle.SetDirection(pcap.DirectionIn); err != nil {
		logrus.Warnf("source: %s does not support direction filter: %v", cfg.Device, err)
	}
	if cfg.BPFFilter != "" {
		if err := handle.SetBPFFilter(cfg.BPFFilter); err != nil {
			handle.Close()
			return nil, backoff.Permanent(fmt.Errorf("failed to set BPF filter: %w", err))
		}
	}
	return handle, nil
}

// OpenPort 打开设备，失败时按指数退避重试直到 OpenRetry 用完
func OpenPort(ctx context.Context, cfg PortConfig) (*PcapPort, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("interface %s: device name is required", cfg.Iface)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			logrus.Warnf("source: open %s failed, retrying in %v: %v", cfg.Device, next, err)
		}),
	}
	if cfg.OpenRetry > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.OpenRetry))
	} else {
		opts = append(opts, backoff.WithMaxTries(1))
	}
	handle, err := backoff.Retry(ctx, func() (*pcap.Handle, error) {
		return openHandle(cfg)
	}, opts...)
	if err != nil {
		return nil, err
	}

	logrus.Infof("source: opened %s for interface %s", cfg.Device, cfg.Iface)
	return &PcapPort{
		iface:  cfg.Iface,
		device: cfg.Device,
		handle: handle,
		output: make(chan *types.Frame, cfg.BufferSize),
		stats:  &metrics.SourceMetrics{},
	}, nil
}

func (s *PcapPort) Name() string {
	return s.iface
}

// Start 失败时不会调用 wg.Done，由调用方负责
func (s *PcapPort) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if s.bpfFilter != "" {
		logrus.Debugf("Setting BPF filter on %s: %s", s.device, s.bpfFilter)
		if err := s.handle.SetBPFFilter(s.bpfFilter); err != nil {
			return fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}

	logrus.Infof("Started packet capture on %s with link type: %v", s.device, s.handle.LinkType())

	go func() {
		defer wg.Done()
		defer close(s.output)
		defer s.Close()

		var packetCount int64
		for {
			select {
			case <-ctx.Done():
				logrus.Infof("Stopping packet capture on %s due to context cancellation", s.device)
				return
			default:
			}

			data, ci, err := s.handle.ReadPacketData()
			if err != nil {
				if errors.Is(err, pcap.NextErrorTimeoutExpired) {
					continue
				}
				if errors.Is(err, pcap.NextErrorNoMorePackets) {
					return
				}
				s.stats.IncrementErrorCount()
				logrus.Warnf("Error capturing packet on %s: %v", s.device, err)
				continue
			}

			packetCount++
			s.stats.IncrementPacketsCaptured()
			s.stats.AddBytesProcessed(uint64(len(data)))
			frame := &types.Frame{
				ID:          fmt.Sprintf("%s-%d", s.iface, packetCount),
				Iface:       s.iface,
				Timestamp:   ci.Timestamp,
				RawData:     data,
				CaptureInfo: ci,
			}
			select {
			case s.output <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (s *PcapPort) Output() <-chan *types.Frame {
	return s.output
}

func (s *PcapPort) SetFilter(filter string) error {
	s.bpfFilter = filter
	return nil
}

// Transmit 从该设备发出一帧
func (s *PcapPort) Transmit(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.ErrSourceClosed
	}
	return s.handle.WritePacketData(frame)
}

func (s *PcapPort) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.handle.Close()
}

func (s *PcapPort) GetStats() *metrics.SourceMetrics {
	return s.stats
}
