package sink

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

// LogSink 不落盘，只在 debug 级别记录每帧的处理结果并按动作计数
type LogSink struct {
	ready chan struct{}

	mu     sync.Mutex
	counts map[types.Action]uint64
}

func NewLogSink() *LogSink {
	s := &LogSink{
		ready:  make(chan struct{}),
		counts: make(map[types.Action]uint64),
	}
	close(s.ready)
	return s
}

func (s *LogSink) Consume(ctx context.Context, in <-chan *types.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.counts[frame.Action]++
			s.mu.Unlock()
			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				logrus.WithFields(logrus.Fields{
					"id":     frame.ID,
					"iface":  frame.Iface,
					"action": frame.Action.String(),
					"reason": frame.Reason,
				}).Debug("frame handled")
			}
		}
	}
}

func (s *LogSink) Ready() <-chan struct{} {
	return s.ready
}

// Counts 按动作统计的帧数
func (s *LogSink) Counts() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uint64, len(s.counts))
	for a, n := range s.counts {
		out[a.String()] = n
	}
	return out
}
