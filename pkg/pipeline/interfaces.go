package pipeline

import (
	"context"
	"sync"

	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

// Source 定义数据源接口
type Source interface {
	// Start 启动数据源捕获。调用方已为其 wg.Add(1)，数据源结束时调用 wg.Done，返回错误时不调用
	Start(ctx context.Context, wg *sync.WaitGroup) error
	// Output 返回数据输出channel，数据源结束时关闭
	Output() <-chan *types.Frame
	// SetFilter 设置BPF过滤器
	SetFilter(filter string) error
}

// Processor 定义数据处理器接口
type Processor interface {
	// Process 处理帧，调用方已为其 wg.Add(1)，处理 goroutine 退出时调用 wg.Done
	Process(ctx context.Context, in <-chan *types.Frame, wg *sync.WaitGroup) (<-chan *types.Frame, error)
	// Stage 返回处理器所属阶段
	Stage() types.Stage
	// Name 返回处理器的名称
	Name() string
	// CheckReady 检查处理器是否就绪
	CheckReady() error
}

// Sink 定义数据输出接口
type Sink interface {
	// Consume 消费处理后的帧，直到输入关闭或 ctx 结束
	Consume(ctx context.Context, in <-chan *types.Frame) error
	// Ready 返回就绪信号channel
	Ready() <-chan struct{}
}

// Pipeline 定义处理流水线接口
type Pipeline interface {
	AddProcessor(processor Processor) error
	SetSource(source Source)
	SetSink(sink Sink)
	Start(ctx context.Context) error
	Stop() error
	// GetMetrics 按处理器名称返回指标
	GetMetrics() map[string]*metrics.ProcessorMetrics
	Status() string
}
