package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const (
	StatusInitialized = "initialized"
	StatusStarting    = "starting"
	StatusRunning     = "running"
	StatusStopping    = "stopping"
	StatusStopped     = "stopped"
)

var (
	readyTimeout = 10 * time.Second
	stopTimeout  = 30 * time.Second
)

type metered interface {
	Metrics() *metrics.ProcessorMetrics
}

type pipeline struct {
	source     Source
	processors []Processor
	sink       Sink
	running    bool
	mu         sync.Mutex
	errChan    chan error
	status     string
	cancel     context.CancelFunc
	startTime  time.Time
	wg         sync.WaitGroup // 用于跟踪所有goroutine
}

func NewPipeline() Pipeline {
	return &pipeline{
		processors: make([]Processor, 0),
		errChan:    make(chan error, 100),
		status:     StatusInitialized,
	}
}

func (p *pipeline) AddProcessor(processor Processor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("cannot add processor while pipeline is running")
	}

	p.processors = append(p.processors, processor)
	// 按Stage排序处理器，同一阶段保持添加顺序
	sort.SliceStable(p.processors, func(i, j int) bool {
		return p.processors[i].Stage() < p.processors[j].Stage()
	})

	return nil
}

func (p *pipeline) SetSource(source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = source
}

func (p *pipeline) SetSink(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// reportError 错误通道满时丢弃，避免阻塞数据路径
func (p *pipeline) reportError(err error) {
	select {
	case p.errChan <- err:
	default:
		logrus.Errorf("Pipeline error (dropped): %v", err)
	}
}

func (p *pipeline) Start(parent context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return types.NewPipelineError("start", fmt.Errorf("pipeline already running"))
	}
	if p.source == nil || p.sink == nil {
		p.mu.Unlock()
		return types.NewPipelineError("start", fmt.Errorf("source and sink are required"))
	}

	// 1. 检查所有处理器是否就绪
	for _, processor := range p.processors {
		if err := processor.CheckReady(); err != nil {
			p.mu.Unlock()
			logrus.Errorf("Processor %s not ready: %v", processor.Name(), err)
			return types.NewPipelineError("start", fmt.Errorf("processor %s not ready: %w", processor.Name(), err))
		}
	}

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.wg = sync.WaitGroup{}
	p.running = true
	p.startTime = time.Now()
	p.status = StatusStarting
	p.mu.Unlock()

	logrus.Info("Starting pipeline")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.handleErrors(ctx)
	}()

	// 2. 按阶段串联处理器，前一阶段的输出作为下一阶段的输入
	input := p.source.Output()
	p.wg.Add(len(p.processors))
	for i, proc := range p.processors {
		logrus.Debugf("Starting processor %s at stage: %v", proc.Name(), proc.Stage())
		out, err := proc.Process(ctx, input, &p.wg)
		if err != nil {
			// 未启动的处理器不会调用 Done
			for range p.processors[i:] {
				p.wg.Done()
			}
			return p.abort(types.NewPipelineError("start", fmt.Errorf("failed to start processor %s: %w", proc.Name(), err)))
		}
		input = out
	}
	logrus.Info("All processors have started successfully")

	// 3. 处理器就绪后，再启动sink
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sink.Consume(ctx, input); err != nil {
			logrus.Errorf("Sink error: %v", err)
			p.reportError(fmt.Errorf("sink error: %w", err))
		}
	}()

	select {
	case <-p.sink.Ready():
		logrus.Debug("Sink is ready")
	case <-time.After(readyTimeout):
		return p.abort(types.NewPipelineError("start", fmt.Errorf("timeout waiting for sink to be ready")))
	}

	// 4. 最后启动数据源，开始数据流转
	p.wg.Add(1)
	if err := p.source.Start(ctx, &p.wg); err != nil {
		p.wg.Done()
		return p.abort(types.NewPipelineError("start", fmt.Errorf("failed to start source: %w", err)))
	}
	logrus.Info("Data source has started successfully")

	p.mu.Lock()
	p.status = StatusRunning
	p.mu.Unlock()
	logrus.Info("Pipeline is now running")
	return nil
}

// abort 启动失败时回收已启动的 goroutine
func (p *pipeline) abort(err error) error {
	logrus.Error(err)
	_ = p.Stop()
	return err
}

func (p *pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.status = StatusStopping
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	logrus.Info("Pipeline stopping...")
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		logrus.Info("All processors completed gracefully")
	case <-time.After(stopTimeout):
		err = types.NewPipelineError("stop", fmt.Errorf("timeout waiting for processors to complete"))
		logrus.Warn(err)
	}

	// 清理处理器资源
	for _, processor := range p.processors {
		if cleaner, ok := processor.(interface{ Cleanup() error }); ok {
			if cerr := cleaner.Cleanup(); cerr != nil {
				logrus.Errorf("Error cleaning up processor %s: %v", processor.Name(), cerr)
			}
		}
	}

	p.mu.Lock()
	p.status = StatusStopped
	p.startTime = time.Time{}
	p.mu.Unlock()

	logrus.Info("Pipeline stopped and cleaned up")
	return err
}

func (p *pipeline) handleErrors(ctx context.Context) {
	logrus.Debug("Starting error handler")
	for {
		select {
		case err := <-p.errChan:
			logrus.Errorf("Pipeline error: %v", err)
		case <-ctx.Done():
			logrus.Debug("Context cancelled, stopping error handler")
			return
		}
	}
}

// GetStats 运行状态概要
func (p *pipeline) GetStats() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	uptime := time.Duration(0)
	if !p.startTime.IsZero() {
		uptime = time.Since(p.startTime)
	}
	return map[string]interface{}{
		"status":     p.status,
		"uptime":     uptime.String(),
		"processors": len(p.processors),
	}
}

func (p *pipeline) GetMetrics() map[string]*metrics.ProcessorMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*metrics.ProcessorMetrics, len(p.processors))
	for _, proc := range p.processors {
		if m, ok := proc.(metered); ok {
			out[proc.Name()] = m.Metrics()
		}
	}
	return out
}

func (p *pipeline) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
