package api

import (
	"net/http"
	"time"

	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/router"
)

// RouterView 管理接口读取的路由器状态
type RouterView interface {
	Routes() []router.RouteView
	LSDB() []router.LSDBView
	Neighbors() []router.NeighborView
	ARPEntries() []router.ARPView
	Pending() []router.PendingView
	LSUInterval() time.Duration
	SetLSUInterval(d time.Duration)
}

// MetricsFunc 返回按组件划分的计数器
type MetricsFunc func() map[string]interface{}

// RouterService 路由器查询服务
type RouterService struct {
	router  RouterView
	metrics MetricsFunc
}

func NewRouterService(r RouterView, metrics MetricsFunc) *RouterService {
	return &RouterService{router: r, metrics: metrics}
}

func ok(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: message,
		Data:    data,
	})
}

func (rs *RouterService) GetRoutes(c echo.Context) error {
	return ok(c, "获取路由表成功", rs.router.Routes())
}

func (rs *RouterService) GetLSDB(c echo.Context) error {
	return ok(c, "获取链路状态数据库成功", rs.router.LSDB())
}

func (rs *RouterService) GetNeighbors(c echo.Context) error {
	return ok(c, "获取邻居成功", rs.router.Neighbors())
}

// GetARP 获取ARP缓存，iface 参数为空时返回全部接口
func (rs *RouterService) GetARP(c echo.Context) error {
	entries := rs.router.ARPEntries()

	pattern := c.QueryParam("iface")
	if pattern == "" {
		return ok(c, "获取ARP缓存成功", entries)
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return HandleError(c, NewPatternError(pattern, err))
	}

	filtered := make([]router.ARPView, 0, len(entries))
	for _, e := range entries {
		if g.Match(e.Interface) {
			filtered = append(filtered, e)
		}
	}

	logrus.WithFields(logrus.Fields{
		"pattern":  pattern,
		"total":    len(entries),
		"filtered": len(filtered),
	}).Debug("过滤ARP缓存")

	return ok(c, "获取ARP缓存成功", filtered)
}

func (rs *RouterService) GetPending(c echo.Context) error {
	return ok(c, "获取等待队列成功", rs.router.Pending())
}

func (rs *RouterService) GetMetrics(c echo.Context) error {
	if rs.metrics == nil {
		return ok(c, "获取计数器成功", map[string]interface{}{})
	}
	return ok(c, "获取计数器成功", rs.metrics())
}

type lsuIntervalBody struct {
	Seconds int `json:"seconds"`
}

func (rs *RouterService) GetLSUInterval(c echo.Context) error {
	return ok(c, "获取LSU间隔成功", lsuIntervalBody{Seconds: int(rs.router.LSUInterval() / time.Second)})
}

// SetLSUInterval 修改LSU间隔
func (rs *RouterService) SetLSUInterval(c echo.Context) error {
	var body lsuIntervalBody
	if err := c.Bind(&body); err != nil {
		return HandleError(c, NewBadRequestError("请求体格式无效", err))
	}
	if body.Seconds <= 0 {
		return HandleError(c, NewBadRequestError("seconds 必须大于0", nil))
	}

	rs.router.SetLSUInterval(time.Duration(body.Seconds) * time.Second)
	logrus.Debugf("lsu interval update from %s", c.RealIP())

	return ok(c, "修改LSU间隔成功", lsuIntervalBody{Seconds: body.Seconds})
}
