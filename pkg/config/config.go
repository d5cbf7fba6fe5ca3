package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

const (
	SourceLive = "live"
	SourceFile = "file"
)

// InterfaceConfig 路由器接口。Device 为 pcap 设备名，缺省与 Name 相同；MAC 为空时从系统读取
type InterfaceConfig struct {
	Name          string `yaml:"name"`
	Device        string `yaml:"device"`
	MAC           string `yaml:"mac"`
	IP            string `yaml:"ip"`
	Mask          string `yaml:"mask"`
	HelloInterval uint16 `yaml:"hello_interval"` // 秒
}

// RouteConfig 静态路由，Gateway 为空或 0.0.0.0 表示直连
type RouteConfig struct {
	Destination string `yaml:"destination"`
	Mask        string `yaml:"mask"`
	Gateway     string `yaml:"gateway"`
	Interface   string `yaml:"interface"`
}

type Config struct {
	Router struct {
		RouterID            string        `yaml:"router_id"`
		AreaID              uint32        `yaml:"area_id"`
		UplinkInterface     string        `yaml:"uplink_interface"`
		ExpectedRouters     int           `yaml:"expected_routers"`
		MaxUpstreamPeers    int           `yaml:"max_upstream_peers"`
		HelloInterval       time.Duration `yaml:"hello_interval"`
		LSUInterval         time.Duration `yaml:"lsu_interval"`
		NeighborTimeoutMult int           `yaml:"neighbor_timeout_mult"`
		ARPTimeout          time.Duration `yaml:"arp_timeout"`
		DisablePWOSPF       bool          `yaml:"disable_pwospf"`
	} `yaml:"router"`

	Interfaces       []InterfaceConfig `yaml:"interfaces"`
	StaticRoutes     []RouteConfig     `yaml:"static_routes"`
	RoutingTableFile string            `yaml:"routing_table_file"`

	Source struct {
		Type          string        `yaml:"type"` // live 或 file
		Filename      string        `yaml:"filename"`
		FileInterface string        `yaml:"file_interface"` // 回放时帧所属的接口
		SnapLen       int32         `yaml:"snaplen"`
		Promiscuous   bool          `yaml:"promiscuous"`
		Timeout       time.Duration `yaml:"timeout"`
		BPFFilter     string        `yaml:"bpf_filter"`
		OpenRetry     time.Duration `yaml:"open_retry"` // 打开设备的最长重试时间
	} `yaml:"source"`

	Pipeline struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"pipeline"`

	Filter struct {
		Enabled  bool   `yaml:"enabled"`
		RulesDir string `yaml:"rules_dir"`
	} `yaml:"filter"`

	Capture struct {
		Enabled     bool              `yaml:"enabled"`
		Dir         string            `yaml:"dir"`
		MaxFileSize datasize.ByteSize `yaml:"max_file_size"`
		Transmitted bool              `yaml:"transmitted"` // 同时记录发出的帧
	} `yaml:"capture"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"api"`

	Log struct {
		Level      string `yaml:"level"`
		Dir        string `yaml:"dir"`
		Filename   string `yaml:"filename"`
		MaxAge     int    `yaml:"max_age"`     // 小时
		RotateTime int    `yaml:"rotate_time"` // 小时
	} `yaml:"log"`
}

func (c *Config) applyDefaults() {
	if c.Router.UplinkInterface == "" {
		c.Router.UplinkInterface = "eth0"
	}
	if c.Router.MaxUpstreamPeers == 0 {
		c.Router.MaxUpstreamPeers = 2
	}
	if c.Router.HelloInterval == 0 {
		c.Router.HelloInterval = 5 * time.Second
	}
	if c.Router.LSUInterval == 0 {
		c.Router.LSUInterval = 30 * time.Second
	}
	if c.Router.NeighborTimeoutMult == 0 {
		c.Router.NeighborTimeoutMult = 3
	}
	if c.Router.ARPTimeout == 0 {
		c.Router.ARPTimeout = 15 * time.Second
	}
	for i := range c.Interfaces {
		if c.Interfaces[i].Device == "" {
			c.Interfaces[i].Device = c.Interfaces[i].Name
		}
		if c.Interfaces[i].HelloInterval == 0 {
			c.Interfaces[i].HelloInterval = uint16(c.Router.HelloInterval / time.Second)
		}
	}
	if c.Source.Type == "" {
		c.Source.Type = SourceLive
	}
	if c.Source.SnapLen == 0 {
		c.Source.SnapLen = 65535
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 100 * time.Millisecond
	}
	if c.Source.OpenRetry == 0 {
		c.Source.OpenRetry = 30 * time.Second
	}
	if c.Pipeline.BufferSize == 0 {
		c.Pipeline.BufferSize = 1000
	}
	if c.Capture.MaxFileSize == 0 {
		c.Capture.MaxFileSize = 50 * datasize.MB
	}
	if c.API.Listen == "" {
		c.API.Listen = "127.0.0.1:8080"
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Filename == "" {
		c.Log.Filename = "pwospf_router.log"
	}
	if c.Log.MaxAge == 0 {
		c.Log.MaxAge = 24
	}
	if c.Log.RotateTime == 0 {
		c.Log.RotateTime = 1
	}
}

func (c *Config) Validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("at least one interface is required")
	}
	seen := make(map[string]bool, len(c.Interfaces))
	for _, i := range c.Interfaces {
		if i.Name == "" {
			return fmt.Errorf("interface name is required")
		}
		if seen[i.Name] {
			return fmt.Errorf("duplicate interface %q", i.Name)
		}
		seen[i.Name] = true
		if net.ParseIP(i.IP).To4() == nil {
			return fmt.Errorf("interface %s: invalid ip %q", i.Name, i.IP)
		}
		if _, err := parseMask(i.Mask); err != nil {
			return fmt.Errorf("interface %s: %w", i.Name, err)
		}
		if i.MAC != "" {
			if _, err := net.ParseMAC(i.MAC); err != nil {
				return fmt.Errorf("interface %s: invalid mac: %w", i.Name, err)
			}
		}
	}
	if c.Router.RouterID != "" && net.ParseIP(c.Router.RouterID).To4() == nil {
		return fmt.Errorf("invalid router_id %q", c.Router.RouterID)
	}
	if c.Router.ExpectedRouters < 0 {
		return fmt.Errorf("expected_routers must not be negative")
	}
	for _, r := range c.StaticRoutes {
		if !seen[r.Interface] {
			return fmt.Errorf("static route %s: unknown interface %q", r.Destination, r.Interface)
		}
	}

	switch c.Source.Type {
	case SourceLive:
	case SourceFile:
		if c.Source.Filename == "" {
			return fmt.Errorf("source filename is required for file source")
		}
		if !seen[c.Source.FileInterface] {
			return fmt.Errorf("source file_interface %q is not a configured interface", c.Source.FileInterface)
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}

	if c.Pipeline.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.Filter.Enabled && c.Filter.RulesDir == "" {
		return fmt.Errorf("filter rules_dir is required when filter is enabled")
	}
	if c.Capture.Enabled && c.Capture.Dir == "" {
		return fmt.Errorf("capture dir is required when capture is enabled")
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，填充默认值并校验
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
