package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"
	"github.com/sirupsen/logrus"

	"github.com/haolipeng/pwospf_router/pkg/types"
)

type compiledRule struct {
	rule    *Rule
	program cel.Program
	hash    string
}

// Engine 按规则ID顺序评估启用的规则，第一条命中的规则决定结果
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []compiledRule
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("iface", decls.String),

			// 以太网头部字段
			decls.NewVar("eth.type", decls.Int),
			decls.NewVar("eth.src", decls.String),
			decls.NewVar("eth.dst", decls.String),

			// IPv4 头部字段，非 IPv4 帧为空串和 0
			decls.NewVar("ip.src", decls.String),
			decls.NewVar("ip.dst", decls.String),
			decls.NewVar("ip.proto", decls.Int),
			decls.NewVar("ip.ttl", decls.Int),

			// ARP 操作码，非 ARP 帧为 0
			decls.NewVar("arp.op", decls.Int),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env failed: %w", err)
	}
	return env, nil
}

// compileRuleToProgram 编译CEL规则
func compileRuleToProgram(env *cel.Env, rule *Rule) (cel.Program, error) {
	if strings.TrimSpace(rule.Expression) == "" {
		return nil, fmt.Errorf("rule %s has empty expression", rule.RuleID)
	}

	ast, iss := env.Compile(rule.Expression)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile expression failed: %w", iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %v", rule.RuleID, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program failed: %w", err)
	}
	return program, nil
}

func calculateExpressionHash(expr string) string {
	sum := sha256.Sum256([]byte(expr))
	return hex.EncodeToString(sum[:])
}

// NewEngine rules 需按规则ID排序，见 RuleLoader.GetAllRules
func NewEngine(rules []*Rule) (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	e := &Engine{env: env}
	compiled, err := e.compile(rules, nil)
	if err != nil {
		return nil, err
	}
	e.rules = compiled
	return e, nil
}

// NewEngineFromDirectory 加载目录下所有规则文件并创建引擎
func NewEngineFromDirectory(dir string) (*Engine, error) {
	loader := NewRuleLoader()
	if err := loader.LoadRulesFromDirectory(dir); err != nil {
		return nil, fmt.Errorf("load rules failed: %w", err)
	}
	return NewEngine(loader.GetAllRules())
}

// compile 表达式未变化的规则复用 previous 中已编译的程序
func (e *Engine) compile(rules []*Rule, previous map[string]compiledRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		hash := calculateExpressionHash(rule.Expression)
		if old, ok := previous[rule.RuleID]; ok && old.hash == hash {
			out = append(out, compiledRule{rule: rule, program: old.program, hash: hash})
			continue
		}
		program, err := compileRuleToProgram(e.env, rule)
		if err != nil {
			return nil, fmt.Errorf("compile rule %s failed: %w", rule.RuleID, err)
		}
		out = append(out, compiledRule{rule: rule, program: program, hash: hash})
	}
	return out, nil
}

// Reload 从目录重新加载规则；任何规则编译失败时保留旧规则集
func (e *Engine) Reload(dir string) error {
	loader := NewRuleLoader()
	if err := loader.LoadRulesFromDirectory(dir); err != nil {
		return fmt.Errorf("加载规则目录失败: %w", err)
	}

	e.mu.RLock()
	previous := make(map[string]compiledRule, len(e.rules))
	for _, c := range e.rules {
		previous[c.rule.RuleID] = c
	}
	e.mu.RUnlock()

	compiled, err := e.compile(loader.GetAllRules(), previous)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	logrus.WithFields(logrus.Fields{"dir": dir, "rules": len(compiled)}).Info("filter: rules reloaded")
	return nil
}

// Rules 当前规则集，按评估顺序
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Rule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

// Evaluate 返回判定结果和命中的规则ID；没有命中时放行。
// 单条规则评估出错时记录日志并继续评估下一条。
func (e *Engine) Evaluate(vars map[string]interface{}) (types.Verdict, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, c := range e.rules {
		if !c.rule.Enabled() {
			continue
		}
		matched, err := evaluateRule(c.program, vars)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"rule_id": c.rule.RuleID,
				"error":   err.Error(),
			}).Warn("filter: rule evaluation failed")
			continue
		}
		if !matched {
			continue
		}
		if c.rule.Action == ActionDeny {
			return types.VerdictDeny, c.rule.RuleID
		}
		return types.VerdictPermit, c.rule.RuleID
	}
	return types.VerdictPermit, ""
}

func evaluateRule(program cel.Program, vars map[string]interface{}) (bool, error) {
	if program == nil {
		return false, fmt.Errorf("program is nil")
	}
	result, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate rule failed: %w", err)
	}
	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule result is not boolean: %v", result.Value())
	}
	return matched, nil
}
