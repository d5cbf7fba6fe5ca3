package router

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Run 启动 Hello 与 LSU 两个周期任务，直到 ctx 结束。PWOSPF 关闭时直接等待退出。
func (r *Router) Run(ctx context.Context) error {
	if !r.opts.PWOSPFEnabled {
		logrus.Info("router: static mode, pwospf timers not started")
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.runHello(ctx)
	}()
	go func() {
		defer wg.Done()
		r.runLSU(ctx)
	}()
	logrus.Infof("router: pwospf started, router id %s", r.routerIDString())
	wg.Wait()
	return nil
}

func (r *Router) runHello(ctx context.Context) {
	ticker := r.clock.NewTicker(r.opts.HelloInterval)
	defer ticker.Stop()

	r.helloCycle()
	for {
		select {
		case <-ctx.Done():
			logrus.Debug("router: hello task stopping")
			return
		case <-ticker.Chan():
			r.helloCycle()
		}
	}
}

func (r *Router) runLSU(ctx context.Context) {
	ticker := r.clock.NewTicker(r.opts.LSUTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("router: lsu task stopping")
			return
		case <-ticker.Chan():
			r.lsuTick()
		}
	}
}
