package filter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// RuleLoader 负责加载和管理规则
type RuleLoader struct {
	rules map[string]*Rule // key为规则ID
}

func NewRuleLoader() *RuleLoader {
	return &RuleLoader{
		rules: make(map[string]*Rule),
	}
}

// LoadRuleFromFile 从文件加载规则，规则ID在所有文件中必须唯一
func (rl *RuleLoader) LoadRuleFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取规则文件失败: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("解析YAML失败: %w", err)
	}

	for _, rule := range file.Rules {
		if rule == nil || rule.RuleID == "" {
			return fmt.Errorf("%s: rule_id is required", filePath)
		}
		if _, exists := rl.rules[rule.RuleID]; exists {
			return fmt.Errorf("%s: duplicate rule_id %s", filePath, rule.RuleID)
		}
		switch rule.Action {
		case ActionPermit, ActionDeny:
		default:
			return fmt.Errorf("%s: rule %s has unknown action %q", filePath, rule.RuleID, rule.Action)
		}
		rl.rules[rule.RuleID] = rule
	}
	return nil
}

// LoadRulesFromDirectory 从目录加载所有 .yaml/.yml 规则文件
func (rl *RuleLoader) LoadRulesFromDirectory(dirPath string) error {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("读取目录失败: %w", err)
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}
		if filepath.Ext(file.Name()) == ".yaml" || filepath.Ext(file.Name()) == ".yml" {
			fullPath := filepath.Join(dirPath, file.Name())
			if err := rl.LoadRuleFromFile(fullPath); err != nil {
				return fmt.Errorf("加载规则文件 %s 失败: %w", file.Name(), err)
			}
		}
	}
	return nil
}

func (rl *RuleLoader) GetRule(ruleID string) (*Rule, bool) {
	rule, exists := rl.rules[ruleID]
	return rule, exists
}

// GetAllRules 按规则ID排序返回
func (rl *RuleLoader) GetAllRules() []*Rule {
	out := make([]*Rule, 0, len(rl.rules))
	for _, r := range rl.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}
