package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Server HTTP 管理服务器
type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer 创建一个新的 HTTP 服务器
func NewServer(addr string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &Server{
		echo: e,
		addr: addr,
	}
}

// Start 启动 HTTP 服务器，正常关闭时返回 nil
func (s *Server) Start() error {
	logrus.Infof("Admin API listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// GetEcho 获取Echo实例
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}

// RegisterRouterService 注册路由器查询服务
func (s *Server) RegisterRouterService(rs *RouterService) {
	g := s.echo.Group("/api")
	g.GET("/routes", rs.GetRoutes)            // 当前路由表
	g.GET("/lsdb", rs.GetLSDB)                // 链路状态数据库
	g.GET("/neighbors", rs.GetNeighbors)      // 各接口邻居
	g.GET("/arp", rs.GetARP)                  // ARP缓存，iface 支持通配
	g.GET("/pending", rs.GetPending)          // 等待ARP的报文
	g.GET("/metrics", rs.GetMetrics)          // 计数器
	g.GET("/lsu-interval", rs.GetLSUInterval) // 当前LSU间隔
	g.PUT("/lsu-interval", rs.SetLSUInterval) // 修改LSU间隔
}
