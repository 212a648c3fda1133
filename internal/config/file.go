package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seva/axon/internal/domain"
	"github.com/seva/axon/internal/policy"
)

// PolicyFile is the on-disk policy configuration.
type PolicyFile struct {
	Policy policy.Config                    `yaml:"policy"`
	Tools  map[string]policy.ToolPermission `yaml:"tools"`
}

// AgentSpec declares one agent in the registry file.
type AgentSpec struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Specialization     string   `yaml:"specialization"`
	Capabilities       []string `yaml:"capabilities"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
}

// AgentsFile is the on-disk agent registry.
type AgentsFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadPolicy reads a policy YAML file. A missing file yields an empty
// policy with defaults; a malformed file is a fatal configuration error.
func LoadPolicy(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &PolicyFile{Tools: map[string]policy.ToolPermission{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read policy file %s: %v", domain.ErrConfiguration, path, err)
	}

	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse policy file %s: %v", domain.ErrConfiguration, path, err)
	}
	if f.Tools == nil {
		f.Tools = map[string]policy.ToolPermission{}
	}
	return &f, nil
}

// LoadAgents reads the agent registry YAML file and validates each entry.
// A missing file yields an empty list.
func LoadAgents(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read agents file %s: %v", domain.ErrConfiguration, path, err)
	}

	var f AgentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse agents file %s: %v", domain.ErrConfiguration, path, err)
	}

	for i, a := range f.Agents {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: agents[%d] has no id", domain.ErrConfiguration, i)
		}
		if a.MaxConcurrentTasks <= 0 {
			return nil, fmt.Errorf("%w: agent %s: max_concurrent_tasks must be positive", domain.ErrConfiguration, a.ID)
		}
	}
	return f.Agents, nil
}
