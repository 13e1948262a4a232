package app

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Routing modes for task creation by roles.
const (
	RoutingModeOpen       = "open"
	RoutingModeRestricted = "restricted"
)

// Defaults applied when the team file omits values.
const (
	DefaultPollInterval        = 5 * time.Second
	DefaultMaxInstances        = 1
	DefaultMaxExecutionTime    = 1800 * time.Second
	DefaultRejectionCycleLimit = 3
	DefaultPoolSize            = 5
	DefaultGroupPrefix         = "GRP"
)

// Guardrails bound the shape of the task graph a role may create.
// Zero values disable the corresponding check (except the rejection limit,
// which defaults to 3).
type Guardrails struct {
	MaxTaskDepth        int `yaml:"max_task_depth"`
	MaxTasksPerGroup    int `yaml:"max_tasks_per_group"`
	RejectionCycleLimit int `yaml:"rejection_cycle_limit"`
}

// AutoScale configures per-role queue-depth scaling.
type AutoScale struct {
	Enabled          bool    `yaml:"enabled"`
	ScaleUpThreshold float64 `yaml:"scale_up_threshold"` // pending tasks per idle agent
	ScaleDownIdleMin int     `yaml:"scale_down_idle"`    // minutes of continuous idleness
}

// Route is one permitted routing target for a restricted-mode role.
// Empty TaskTypes permits every type the target accepts.
type Route struct {
	Role      string   `yaml:"role"`
	TaskTypes []string `yaml:"task_types"`
}

// Role describes one agent specialization.
type Role struct {
	Name             string        `yaml:"name"`
	DisplayName      string        `yaml:"display_name"`
	Prefix           string        `yaml:"prefix"`
	Accepts          []string      `yaml:"accepts"`
	Produces         []string      `yaml:"produces"`
	RoutesTo         []Route       `yaml:"routes_to"`
	RoutingMode      string        `yaml:"routing_mode"`
	MaxInstances     int           `yaml:"max_instances"`
	MaxTurns         int           `yaml:"max_turns"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	AutoScale        AutoScale     `yaml:"auto_scale"`
	CanCreateGroups  bool          `yaml:"can_create_groups"`
	GroupType        string        `yaml:"group_type"`
	Model            string        `yaml:"model"`
	Command          string        `yaml:"command"`
}

// Accepts reports whether the role accepts the given task type.
func (r *Role) AcceptsType(taskType string) bool {
	for _, t := range r.Accepts {
		if t == taskType {
			return true
		}
	}
	return false
}

// Team is the validated top-level configuration the orchestrator consumes.
type Team struct {
	DBPath        string            `yaml:"db_path"`
	ListenAddr    string            `yaml:"listen_addr"`
	PollInterval  time.Duration     `yaml:"poll_interval"`
	PoolSize      int               `yaml:"pool_size"`
	Guardrails    Guardrails        `yaml:"guardrails"`
	GroupPrefixes map[string]string `yaml:"group_prefixes"`
	Roles         map[string]*Role  `yaml:"roles"`
	GoalRole      string            `yaml:"goal_role"`
}

// Role returns the role config by name, or nil.
func (t *Team) Role(name string) *Role {
	return t.Roles[name]
}

// RoleNames returns the configured role names, sorted for stable iteration.
func (t *Team) RoleNames() []string {
	names := make([]string, 0, len(t.Roles))
	for name := range t.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupPrefixFor maps a creator role to its group ID prefix,
// falling back to DefaultGroupPrefix.
func (t *Team) GroupPrefixFor(role string) string {
	if p, ok := t.GroupPrefixes[role]; ok && p != "" {
		return p
	}
	return DefaultGroupPrefix
}

// CreatorRole parses an instance id like "coder-2" back to its role name.
// Returns empty when the creator is not a configured role (e.g. "human").
func (t *Team) CreatorRole(createdBy string) string {
	if _, ok := t.Roles[createdBy]; ok {
		return createdBy
	}
	idx := strings.LastIndexByte(createdBy, '-')
	if idx <= 0 {
		return ""
	}
	role := createdBy[:idx]
	if _, ok := t.Roles[role]; ok {
		return role
	}
	return ""
}

// LoadTeam reads, defaults, and validates a team YAML file.
func LoadTeam(path string) (*Team, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: team file path is operator-provided
	if err != nil {
		return nil, fmt.Errorf("read team config %s: %w", path, err)
	}
	var t Team
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse team config %s: %w", path, err)
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid team config %s: %w", path, err)
	}
	return &t, nil
}

// ApplyDefaults fills zero values in place.
func (t *Team) ApplyDefaults() {
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.PoolSize <= 0 {
		t.PoolSize = DefaultPoolSize
	}
	if t.Guardrails.RejectionCycleLimit <= 0 {
		t.Guardrails.RejectionCycleLimit = DefaultRejectionCycleLimit
	}
	if t.GroupPrefixes == nil {
		t.GroupPrefixes = map[string]string{}
	}
	for name, role := range t.Roles {
		if role.Name == "" {
			role.Name = name
		}
		if role.DisplayName == "" {
			role.DisplayName = name
		}
		if role.RoutingMode == "" {
			role.RoutingMode = RoutingModeOpen
		}
		if role.MaxInstances <= 0 {
			role.MaxInstances = DefaultMaxInstances
		}
		if role.MaxExecutionTime <= 0 {
			role.MaxExecutionTime = DefaultMaxExecutionTime
		}
		if role.PollInterval <= 0 {
			role.PollInterval = t.PollInterval
		}
	}
}

// Validate rejects configurations the orchestrator cannot run safely.
func (t *Team) Validate() error {
	if len(t.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}

	prefixes := map[string]string{}
	for name, role := range t.Roles {
		if role.Prefix == "" {
			return fmt.Errorf("role %s: prefix is required", name)
		}
		if other, dup := prefixes[role.Prefix]; dup {
			return fmt.Errorf("role %s: prefix %q already used by role %s", name, role.Prefix, other)
		}
		prefixes[role.Prefix] = name

		if role.RoutingMode != RoutingModeOpen && role.RoutingMode != RoutingModeRestricted {
			return fmt.Errorf("role %s: routing_mode must be open or restricted, got %q", name, role.RoutingMode)
		}
		for _, route := range role.RoutesTo {
			if _, ok := t.Roles[route.Role]; !ok {
				return fmt.Errorf("role %s: routes_to unknown role %q", name, route.Role)
			}
		}
		if role.AutoScale.Enabled && role.AutoScale.ScaleUpThreshold <= 0 {
			return fmt.Errorf("role %s: auto_scale.scale_up_threshold must be > 0", name)
		}
	}

	if t.GoalRole != "" {
		if _, ok := t.Roles[t.GoalRole]; !ok {
			return fmt.Errorf("goal_role %q is not a configured role", t.GoalRole)
		}
	}
	return nil
}
