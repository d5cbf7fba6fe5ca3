package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/haolipeng/pwospf_router/pkg/pipeline"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// MultiSource 把多个数据源合并为一个输出，每个数据源内部的帧顺序保持不变
type MultiSource struct {
	sources []pipeline.Source
	output  chan *types.Frame
}

func NewMultiSource(bufferSize int, sources ...pipeline.Source) *MultiSource {
	return &MultiSource{
		sources: sources,
		output:  make(chan *types.Frame, bufferSize),
	}
}

func (m *MultiSource) Start(ctx context.Context, wg *sync.WaitGroup) error {
	var inner sync.WaitGroup
	started := 0
	for _, src := range m.sources {
		inner.Add(1)
		if err := src.Start(ctx, &inner); err != nil {
			inner.Done()
			// 已启动的数据源随 ctx 结束
			return fmt.Errorf("start source %d: %w", started, err)
		}
		started++
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range m.sources {
		in := src.Output()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case f, ok := <-in:
					if !ok {
						return nil
					}
					select {
					case m.output <- f:
					case <-gctx.Done():
						return nil
					}
				}
			}
		})
	}

	go func() {
		defer wg.Done()
		defer close(m.output)
		if err := g.Wait(); err != nil {
			logrus.Errorf("multi source: %v", err)
		}
		inner.Wait()
		logrus.Debug("multi source: all sources finished")
	}()
	return nil
}

func (m *MultiSource) Output() <-chan *types.Frame {
	return m.output
}

func (m *MultiSource) SetFilter(filter string) error {
	for _, src := range m.sources {
		if err := src.SetFilter(filter); err != nil {
			return err
		}
	}
	return nil
}
