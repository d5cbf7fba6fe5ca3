package types

import (
	"time"

	"github.com/haolipeng/gopacket"
)

// Frame 表示处理流水线中传递的以太网帧
type Frame struct {
	ID          string
	Iface       string // 入接口名
	Timestamp   time.Time
	RawData     []byte
	CaptureInfo gopacket.CaptureInfo

	Verdict    Verdict    // 过滤结果
	FilterRule string     // 命中的过滤规则ID
	Action     Action     // 路由器处理结果
	Reason     DropReason // Action 为 ActionDropped 时的原因
}

// Verdict 过滤阶段的判定
type Verdict uint8

const (
	VerdictNone Verdict = iota
	VerdictPermit
	VerdictDeny
)

func (v Verdict) String() string {
	switch v {
	case VerdictPermit:
		return "permit"
	case VerdictDeny:
		return "deny"
	default:
		return "none"
	}
}

// Action 路由器对一帧的最终处理
type Action uint8

const (
	ActionNone      Action = iota
	ActionForwarded        // 已转发
	ActionQueued           // 等待ARP解析
	ActionReplied          // 本机应答（ARP/ICMP）
	ActionConsumed         // 控制报文，已由本机处理
	ActionDropped          // 丢弃
)

func (a Action) String() string {
	switch a {
	case ActionForwarded:
		return "forwarded"
	case ActionQueued:
		return "queued"
	case ActionReplied:
		return "replied"
	case ActionConsumed:
		return "consumed"
	case ActionDropped:
		return "dropped"
	default:
		return "none"
	}
}

// DropReason 丢弃原因，用于计数和调试日志
type DropReason string

const (
	DropNone          DropReason = ""
	DropMalformed     DropReason = "malformed"
	DropUnknownIface  DropReason = "unknown_interface"
	DropUnsupported   DropReason = "unsupported_ethertype"
	DropBadVersion    DropReason = "bad_ip_version"
	DropTTLExpired    DropReason = "ttl_expired"
	DropBadChecksum   DropReason = "bad_checksum"
	DropBadPWOSPF     DropReason = "bad_pwospf"
	DropSelfReflected DropReason = "self_reflected_lsu"
	DropDuplicateLSU  DropReason = "duplicate_lsu"
	DropNotForUs      DropReason = "unsupported_local_protocol"
	DropNoRoute       DropReason = "no_route"
	DropFiltered      DropReason = "filtered"
	DropDisabled      DropReason = "pwospf_disabled"
)

// Stage 表示处理阶段
type Stage int

const (
	StageFilter  Stage = iota + 1 //入方向过滤
	StageRouting                  //路由转发
)
