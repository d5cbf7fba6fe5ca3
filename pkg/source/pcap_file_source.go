package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/haolipeng/gopacket/pcap"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// PcapFileSource 回放 pcap 文件，所有帧都视为从 iface 收到
type PcapFileSource struct {
	handle    *pcap.Handle
	output    chan *types.Frame
	bpfFilter string
	done      chan struct{}
	stats     *metrics.SourceMetrics
	filename  string
	iface     string
}

func NewPcapFileSource(filename, iface string, bufferSize int) (*PcapFileSource, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", filename, err)
	}

	return &PcapFileSource{
		handle:   handle,
		output:   make(chan *types.Frame, bufferSize),
		done:     make(chan struct{}),
		filename: filename,
		iface:    iface,
		stats:    &metrics.SourceMetrics{},
	}, nil
}

func (s *PcapFileSource) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if s.bpfFilter != "" {
		logrus.Debugf("Setting BPF filter: %s", s.bpfFilter)
		if err := s.handle.SetBPFFilter(s.bpfFilter); err != nil {
			logrus.Errorf("Failed to set BPF filter: %v", err)
			return err
		}
	}

	logrus.Infof("Started reading packets from file: %s", s.filename)

	go func() {
		defer wg.Done()
		defer close(s.output)
		defer s.handle.Close()
		defer close(s.done)

		var packetCount int64
		for {
			select {
			case <-ctx.Done():
				logrus.Info("Stopping packet reading due to context cancellation")
				return
			default:
			}

			data, ci, err := s.handle.ReadPacketData()
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, pcap.NextErrorNoMorePackets) {
					logrus.Info("Reached end of pcap file")
					return
				}
				s.stats.IncrementErrorCount()
				logrus.Warnf("Error reading packet, stop replay: %v", err)
				return
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

func (s *PcapFileSource) Output() <-chan *types.Frame {
	return s.output
}

func (s *PcapFileSource) SetFilter(filter string) error {
	s.bpfFilter = filter
	return nil
}

func (s *PcapFileSource) GetStats() *metrics.SourceMetrics {
	return s.stats
}

// WaitForCompletion 文件读完或被取消后关闭
func (s *PcapFileSource) WaitForCompletion() <-chan struct{} {
	return s.done
}
