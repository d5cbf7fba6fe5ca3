package filter

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// Stage 为每帧设置过滤判定，帧本身原样传给下一阶段
type Stage struct {
	engine  *Engine
	dec     *protocol.Decoder
	metrics *metrics.ProcessorMetrics
}

func NewStage(engine *Engine) *Stage {
	return &Stage{
		engine:  engine,
		dec:     protocol.NewDecoder(),
		metrics: &metrics.ProcessorMetrics{},
	}
}

// Check 评估一帧，返回判定与命中的规则ID
func (s *Stage) Check(ifName string, frame []byte) (types.Verdict, string) {
	d, err := s.dec.Decode(frame)
	if err != nil {
		d = nil
	}
	return s.engine.Evaluate(buildEvalVars(ifName, d))
}

func (s *Stage) Process(ctx context.Context, in <-chan *types.Frame, wg *sync.WaitGroup) (<-chan *types.Frame, error) {
	out := make(chan *types.Frame, cap(in))

	go func() {
		defer wg.Done()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("filter stage stopping due to context cancellation")
				return
			case frame, ok := <-in:
				if !ok {
					logrus.Debug("filter stage: input channel closed")
					return
				}
				if frame == nil {
					continue
				}

				start := time.Now()
				frame.Verdict, frame.FilterRule = s.Check(frame.Iface, frame.RawData)
				s.metrics.AddProcessingTime(time.Since(start))
				s.metrics.IncrementProcessed()
				if frame.Verdict == types.VerdictDeny {
					s.metrics.IncrementDropped()
					logrus.WithFields(logrus.Fields{
						"iface":   frame.Iface,
						"rule_id": frame.FilterRule,
						"id":      frame.ID,
					}).Debug("filter: frame denied")
				}

				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Stage) Stage() types.Stage {
	return types.StageFilter
}

func (s *Stage) Name() string {
	return "filter"
}

func (s *Stage) CheckReady() error {
	if s.engine == nil {
		return types.ErrProcessorNotReady
	}
	return nil
}

func (s *Stage) Metrics() *metrics.ProcessorMetrics {
	return s.metrics
}
