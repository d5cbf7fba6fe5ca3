package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haolipeng/gopacket"
	"github.com/haolipeng/gopacket/layers"
	"github.com/haolipeng/gopacket/pcapgo"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const DefaultMaxFileSize = 50 * 1024 * 1024

// PcapSink 把帧写入 pcap 文件，文件超过 maxFileSize 后切换到新文件
type PcapSink struct {
	dir          string
	baseFilename string // 文件名前缀，如 "rx"
	maxFileSize  int64
	currentSize  int64
	fileIndex    int
	pcapWriter   *pcapgo.Writer
	curFileName  string
	file         *os.File
	mu           sync.Mutex
	ready        chan struct{}
	readyOnce    sync.Once
	metrics      *metrics.SinkMetrics
	now          func() time.Time
}

func NewPcapSink(dir, baseFilename string, maxFileSize int64) (*PcapSink, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture dir: %w", err)
	}

	sink := &PcapSink{
		dir:          dir,
		baseFilename: baseFilename,
		maxFileSize:  maxFileSize,
		fileIndex:    1,
		ready:        make(chan struct{}),
		metrics:      &metrics.SinkMetrics{},
		now:          time.Now,
	}

	if err := sink.createNewPcapFile(); err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *PcapSink) createNewPcapFile() error {
	// 文件名：rx_20240318_153000_1.pcap
	timestamp := s.now().Format("20060102_150405")
	filename := filepath.Join(s.dir, fmt.Sprintf("%s_%s_%d.pcap", s.baseFilename, timestamp, s.fileIndex))

	f, err := os.Create(filename)
	if err != nil {
		logrus.Errorf("Failed to create pcap file: %v", err)
		return err
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			logrus.Errorf("Failed to close previous pcap file: %v", err)
		}
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		f.Close()
		logrus.Errorf("Failed to write pcap header: %v", err)
		return err
	}

	s.curFileName = filename
	s.file = f
	s.pcapWriter = w
	s.currentSize = 0
	s.fileIndex++

	logrus.Infof("Created new pcap file: %s", filename)
	return nil
}

// WriteFrame 写入一帧，ci 的长度字段为零时按 data 补齐
func (s *PcapSink) WriteFrame(ci gopacket.CaptureInfo, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	if s.file == nil {
		return fmt.Errorf("pcap sink closed")
	}
	if ci.CaptureLength == 0 {
		ci.CaptureLength = len(data)
	}
	if ci.Length == 0 {
		ci.Length = len(data)
	}
	if ci.Timestamp.IsZero() {
		ci.Timestamp = s.now()
	}

	if s.currentSize >= s.maxFileSize {
		if err := s.createNewPcapFile(); err != nil {
			s.metrics.IncrementWriteErrors()
			return err
		}
	}

	if err := s.pcapWriter.WritePacket(ci, data); err != nil {
		s.metrics.IncrementWriteErrors()
		logrus.Errorf("Failed to write packet to pcap: %v", err)
		return err
	}
	s.currentSize += int64(len(data))
	s.metrics.IncrementWritten(len(data))
	return nil
}

func (s *PcapSink) Consume(ctx context.Context, in <-chan *types.Frame) error {
	logrus.Info("Starting pcap sink consumer")
	defer logrus.Info("Pcap sink consumer stopped")

	s.readyOnce.Do(func() { close(s.ready) })

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("Pcap sink received context cancellation")
			return nil
		case frame, ok := <-in:
			if !ok {
				logrus.Debug("Pcap sink input channel closed")
				return nil
			}
			if err := s.WriteFrame(frame.CaptureInfo, frame.RawData); err != nil {
				logrus.Errorf("Failed to write frame %s: %v", frame.ID, err)
			}
		}
	}
}

func (s *PcapSink) Ready() <-chan struct{} {
	return s.ready
}

// CurrentFile 当前正在写入的文件
func (s *PcapSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curFileName
}

func (s *PcapSink) Metrics() *metrics.SinkMetrics {
	return s.metrics
}

func (s *PcapSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
