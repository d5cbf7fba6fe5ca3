package router

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// Stage 把路由器接入处理流水线：逐帧调用 HandleFrame，保持到达顺序
type Stage struct {
	router  *Router
	metrics *metrics.ProcessorMetrics
}

func NewStage(r *Router) *Stage {
	return &Stage{router: r, metrics: &metrics.ProcessorMetrics{}}
}

func (s *Stage) Process(ctx context.Context, in <-chan *types.Frame, wg *sync.WaitGroup) (<-chan *types.Frame, error) {
	out := make(chan *types.Frame, cap(in))

	go func() {
		defer wg.Done()
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				logrus.Debug("router stage stopping due to context cancellation")
				return
			case frame, ok := <-in:
				if !ok {
					logrus.Debug("router stage: input channel closed")
					return
				}
				if frame == nil {
					continue
				}
				if frame.Verdict == types.VerdictDeny {
					frame.Action, frame.Reason = types.ActionDropped, types.DropFiltered
					s.router.metrics.IncrementDropped(string(types.DropFiltered))
				} else {
					start := time.Now()
					frame.Action, frame.Reason = s.router.HandleFrame(frame.Iface, frame.RawData)
					s.metrics.AddProcessingTime(time.Since(start))
				}
				s.metrics.IncrementProcessed()
				if frame.Action == types.ActionDropped {
					s.metrics.IncrementDropped()
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
	return types.StageRouting
}

func (s *Stage) Name() string {
	return "router"
}

func (s *Stage) CheckReady() error {
	return nil
}

func (s *Stage) Metrics() *metrics.ProcessorMetrics {
	return s.metrics
}
