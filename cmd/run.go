package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/haolipeng/pwospf_router/pkg/api"
	"github.com/haolipeng/pwospf_router/pkg/config"
	"github.com/haolipeng/pwospf_router/pkg/filter"
	"github.com/haolipeng/pwospf_router/pkg/pipeline"
	"github.com/haolipeng/pwospf_router/pkg/router"
	"github.com/haolipeng/pwospf_router/pkg/sink"
	"github.com/haolipeng/pwospf_router/pkg/source"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// trackedSink 在 Consume 返回后关闭 done，用于判断文件回放已处理完
type trackedSink struct {
	pipeline.Sink
	done chan struct{}
}

func (s *trackedSink) Consume(ctx context.Context, in <-chan *types.Frame) error {
	defer close(s.done)
	return s.Sink.Consume(ctx, in)
}

// app 运行期间持有的组件，便于统一关闭和导出计数
type app struct {
	cfg      *config.Config
	router   *router.Router
	pipeline pipeline.Pipeline
	ports    []*source.PcapPort
	fileSrc  *source.PcapFileSource
	rxSink   *sink.PcapSink
	txSink   *sink.PcapSink
	logSink  *sink.LogSink
	sinkDone chan struct{}
}

func runRouter(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logrus.Info("Starting pwospf router...")

	a := &app{cfg: cfg}
	defer a.close()
	if err := a.build(ctx); err != nil {
		return err
	}
	return a.run(ctx)
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	ifaces, err := cfg.BuildInterfaces(config.SystemMAC)
	if err != nil {
		return err
	}
	opts, err := cfg.RouterOptions()
	if err != nil {
		return err
	}

	// 1. 数据源与发送端
	var src pipeline.Source
	var tx router.Transmitter
	if cfg.Source.Type == config.SourceFile {
		fileSrc, err := source.NewPcapFileSource(cfg.Source.Filename, cfg.Source.FileInterface, cfg.Pipeline.BufferSize)
		if err != nil {
			return err
		}
		a.fileSrc = fileSrc
		src = fileSrc
		if cfg.Source.BPFFilter != "" {
			if err := fileSrc.SetFilter(cfg.Source.BPFFilter); err != nil {
				return err
			}
		}
		// 回放模式没有可写的设备
		tx = router.TransmitFunc(func(ifName string, frame []byte) error {
			logrus.Debugf("replay: would transmit %d bytes on %s", len(frame), ifName)
			return nil
		})
	} else {
		devices := cfg.Devices()
		sources := make([]pipeline.Source, 0, len(devices))
		ports := make([]source.Port, 0, len(devices))
		for _, ic := range cfg.Interfaces {
			port, err := source.OpenPort(ctx, source.PortConfig{
				Iface:       ic.Name,
				Device:      devices[ic.Name],
				SnapLen:     cfg.Source.SnapLen,
				Promiscuous: cfg.Source.Promiscuous,
				Timeout:     cfg.Source.Timeout,
				BPFFilter:   cfg.Source.BPFFilter,
				OpenRetry:   cfg.Source.OpenRetry,
				BufferSize:  cfg.Pipeline.BufferSize,
			})
			if err != nil {
				return err
			}
			a.ports = append(a.ports, port)
			sources = append(sources, port)
			ports = append(ports, port)
		}
		p, err := source.NewPorts(ports...)
		if err != nil {
			return err
		}
		tx = p
		src = source.NewMultiSource(cfg.Pipeline.BufferSize, sources...)
	}

	// 2. 抓包输出
	var out pipeline.Sink
	if cfg.Capture.Enabled {
		maxSize := int64(cfg.Capture.MaxFileSize.Bytes())
		a.rxSink, err = sink.NewPcapSink(cfg.Capture.Dir, "rx", maxSize)
		if err != nil {
			return err
		}
		out = a.rxSink
		if cfg.Capture.Transmitted {
			a.txSink, err = sink.NewPcapSink(cfg.Capture.Dir, "tx", maxSize)
			if err != nil {
				return err
			}
			tx = sink.NewTap(tx, a.txSink)
		}
	} else {
		a.logSink = sink.NewLogSink()
		out = a.logSink
	}

	// 3. 路由器与流水线
	a.router, err = router.New(ifaces, tx, opts)
	if err != nil {
		return err
	}

	p := pipeline.NewPipeline()
	p.SetSource(src)
	a.sinkDone = make(chan struct{})
	p.SetSink(&trackedSink{Sink: out, done: a.sinkDone})

	if cfg.Filter.Enabled {
		engine, err := filter.NewEngineFromDirectory(cfg.Filter.RulesDir)
		if err != nil {
			return fmt.Errorf("failed to load filter rules: %w", err)
		}
		if err := p.AddProcessor(filter.NewStage(engine)); err != nil {
			return err
		}
	}
	if err := p.AddProcessor(router.NewStage(a.router)); err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

func (a *app) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.router.Run(gctx)
	})

	if err := a.pipeline.Start(gctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	logrus.Info("Pipeline started successfully")

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-a.sinkDone:
			// 输入耗尽：文件回放结束或所有端口关闭
			logrus.Info("All frames processed, shutting down")
			cancel()
		}
		return a.pipeline.Stop()
	})

	if a.cfg.API.Enabled {
		server := api.NewServer(a.cfg.API.Listen)
		server.RegisterRouterService(api.NewRouterService(a.router, a.metrics))
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return server.Stop(shutdownCtx)
		})
	}

	err := g.Wait()
	logrus.Info("Shutdown complete")
	return err
}

// metrics 汇总各组件计数，供管理接口输出
func (a *app) metrics() map[string]interface{} {
	stages := make(map[string]interface{})
	for name, m := range a.pipeline.GetMetrics() {
		stages[name] = m.GetStats()
	}
	sources := make(map[string]interface{})
	for _, port := range a.ports {
		sources[port.Name()] = port.GetStats().GetStats()
	}
	if a.fileSrc != nil {
		sources[a.cfg.Source.FileInterface] = a.fileSrc.GetStats().GetStats()
	}

	out := map[string]interface{}{
		"router":   a.router.Metrics().GetStats(),
		"pipeline": stages,
		"sources":  sources,
		"status":   a.pipeline.Status(),
	}
	if a.rxSink != nil {
		out["capture_rx"] = a.rxSink.Metrics().GetStats()
	}
	if a.txSink != nil {
		out["capture_tx"] = a.txSink.Metrics().GetStats()
	}
	if a.logSink != nil {
		out["actions"] = a.logSink.Counts()
	}
	return out
}

func (a *app) close() {
	for _, port := range a.ports {
		port.Close()
	}
	for _, s := range []*sink.PcapSink{a.rxSink, a.txSink} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			logrus.Errorf("Failed to close capture file: %v", err)
		}
	}
}
