// Package router 实现转发引擎、ARP 子系统、PWOSPF 协议引擎与路由计算。
//
// 所有可变状态（邻居、ARP 缓存、待解析队列、序列号记录、LSDB、LSU 倒计时）
// 由 Router.mu 一把锁保护；接收路径、Hello 任务与 LSU 任务只在各自的临界区内持锁。
// 临界区内生成的帧先放入 outbox，释放锁后按顺序发送。
// 路由表整体重建后通过原子指针发布，查找无需加锁。
package router

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/iface"
	"github.com/haolipeng/pwospf_router/pkg/lsdb"
	"github.com/haolipeng/pwospf_router/pkg/metrics"
	"github.com/haolipeng/pwospf_router/pkg/protocol"
	"github.com/haolipeng/pwospf_router/pkg/rtable"
	"github.com/haolipeng/pwospf_router/pkg/types"
)

const (
	DefaultHelloInterval       = 5 * time.Second
	DefaultLSUInterval         = 30 * time.Second
	DefaultLSUTick             = time.Second
	DefaultNeighborTimeoutMult = 3
	DefaultMaxUpstreamPeers    = 2
	DefaultUplinkInterface     = "eth0"
)

// Transmitter 网络协作方：在指定接口上发送一帧，失败不重试
type Transmitter interface {
	Transmit(iface string, frame []byte) error
}

// TransmitFunc 适配普通函数
type TransmitFunc func(iface string, frame []byte) error

func (f TransmitFunc) Transmit(iface string, frame []byte) error {
	return f(iface, frame)
}

type Options struct {
	RouterID        uint32
	AreaID          uint32
	UplinkInterface string
	// ExpectedRouters LSDB 达到该规模后才触发路由计算，0 表示不限制
	ExpectedRouters int
	// MaxUpstreamPeers 路由计算中记录的直连邻居路由器上限
	MaxUpstreamPeers    int
	HelloInterval       time.Duration
	LSUInterval         time.Duration
	LSUTick             time.Duration
	NeighborTimeoutMult int
	PWOSPFEnabled       bool
	StaticRoutes        []rtable.Route

	Clock   clockwork.Clock
	Metrics *metrics.RouterMetrics
}

func (o *Options) setDefaults() {
	if o.UplinkInterface == "" {
		o.UplinkInterface = DefaultUplinkInterface
	}
	if o.MaxUpstreamPeers <= 0 {
		o.MaxUpstreamPeers = DefaultMaxUpstreamPeers
	}
	if o.HelloInterval <= 0 {
		o.HelloInterval = DefaultHelloInterval
	}
	if o.LSUInterval <= 0 {
		o.LSUInterval = DefaultLSUInterval
	}
	if o.LSUTick <= 0 {
		o.LSUTick = DefaultLSUTick
	}
	if o.NeighborTimeoutMult <= 0 {
		o.NeighborTimeoutMult = DefaultNeighborTimeoutMult
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = &metrics.RouterMetrics{}
	}
}

type Router struct {
	mu sync.Mutex

	opts    Options
	clock   clockwork.Clock
	tx      Transmitter
	ifaces  *iface.Table
	routes  *rtable.Holder
	db      *lsdb.Database
	seqs    *lsdb.Sequences
	pending pendingQueue
	dec     *protocol.Decoder
	metrics *metrics.RouterMetrics

	seq          uint16
	lsuCountdown int64
	lsuTicks     atomic.Int64
	staticRoutes []rtable.Route
}

// New 创建路由器。静态路由多于一条时关闭 PWOSPF，直接使用静态路由表。
func New(ifaces *iface.Table, tx Transmitter, opts Options) (*Router, error) {
	if ifaces == nil || ifaces.Len() == 0 {
		return nil, fmt.Errorf("router requires at least one interface")
	}
	if tx == nil {
		return nil, fmt.Errorf("router requires a transmitter")
	}
	opts.setDefaults()
	if opts.RouterID == 0 {
		up, ok := ifaces.ByName(opts.UplinkInterface)
		if !ok {
			up = ifaces.All()[0]
		}
		opts.RouterID = up.IP
	}
	if len(opts.StaticRoutes) > 1 && opts.PWOSPFEnabled {
		logrus.Infof("router: %d static routes loaded, PWOSPF disabled", len(opts.StaticRoutes))
		opts.PWOSPFEnabled = false
	}

	r := &Router{
		opts:         opts,
		clock:        opts.Clock,
		tx:           tx,
		ifaces:       ifaces,
		routes:       rtable.NewHolder(rtable.New(opts.StaticRoutes)),
		db:           lsdb.New(),
		seqs:         lsdb.NewSequences(),
		dec:          protocol.NewDecoder(),
		metrics:      opts.Metrics,
		staticRoutes: append([]rtable.Route(nil), opts.StaticRoutes...),
	}
	r.lsuTicks.Store(r.ticksFor(opts.LSUInterval))
	r.lsuCountdown = r.lsuTicks.Load()
	return r, nil
}

func (r *Router) ticksFor(d time.Duration) int64 {
	n := int64(d / r.opts.LSUTick)
	if n < 1 {
		n = 1
	}
	return n
}

func (r *Router) RouterID() uint32 {
	return r.opts.RouterID
}

func (r *Router) PWOSPFEnabled() bool {
	return r.opts.PWOSPFEnabled
}

func (r *Router) Metrics() *metrics.RouterMetrics {
	return r.metrics
}

// Lookup 在当前发布的路由表中做最长前缀匹配
func (r *Router) Lookup(dst uint32) (rtable.Route, bool) {
	return r.routes.Load().Lookup(dst)
}

func (r *Router) origin(i *iface.Interface) protocol.Origin {
	return protocol.Origin{
		MAC:      i.MAC,
		IP:       types.Uint32ToIP(i.IP),
		RouterID: r.opts.RouterID,
		AreaID:   r.opts.AreaID,
	}
}

type outFrame struct {
	iface string
	data  []byte
}

type outbox []outFrame

func (o *outbox) add(ifName string, data []byte) {
	*o = append(*o, outFrame{iface: ifName, data: data})
}

// flush 在锁外按顺序发送
func (r *Router) flush(out outbox) {
	for _, f := range out {
		if err := r.tx.Transmit(f.iface, f.data); err != nil {
			r.metrics.Inc(&r.metrics.TransmitErrors)
			logrus.Debugf("router: transmit on %s failed: %v", f.iface, err)
		}
	}
}
