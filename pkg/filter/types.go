package filter

const (
	StateEnable  = "enable"
	StateDisable = "disable"

	ActionPermit = "permit"
	ActionDeny   = "deny"
)

// Rule 表示一条入口过滤规则
type Rule struct {
	RuleID      string `yaml:"rule_id"`     // 规则ID，决定匹配顺序
	State       string `yaml:"state"`       // 规则状态 enable/disable
	Action      string `yaml:"action"`      // 命中后的动作 permit/deny
	Description string `yaml:"description"` // 规则描述
	Expression  string `yaml:"expression"`  // CEL 表达式，结果必须为 bool
}

// RuleFile 规则文件，一个文件可以包含多条规则
type RuleFile struct {
	Rules []*Rule `yaml:"rules"`
}

func (r *Rule) Enabled() bool {
	return r.State == StateEnable
}
