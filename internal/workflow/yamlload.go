package workflow

import (
	"fmt"
	"os"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/workforge/flowengine/internal/ferrors"
)

// rawYAML mirrors the workflow definition's YAML schema. yaml.v3
// decodes into this intermediate shape; ParseYAML then maps it onto the
// public Workflow/Step types field by field, with decodeDependsOn handling
// depends_on's mixed string/mapping union.
type rawYAML struct {
	ID            string                 `yaml:"id"`
	Name          string                 `yaml:"name"`
	Description   string                 `yaml:"description"`
	Type          string                 `yaml:"type"`
	GlobalContext map[string]interface{} `yaml:"global_context"`
	Settings      struct {
		MaxExecutionTime   int  `yaml:"max_execution_time"`
		MaxConcurrentSteps int  `yaml:"max_concurrent_steps"`
		AutoCleanup        bool `yaml:"auto_cleanup"`
		PersistState       bool `yaml:"persist_state"`
	} `yaml:"settings"`
	ErrorHandling struct {
		RetryOnFailure     bool        `yaml:"retry_on_failure"`
		MaxRetries         int         `yaml:"max_retries"`
		RetryDelaySeconds  int         `yaml:"retry_delay_seconds"`
		ContinueOnError    bool        `yaml:"continue_on_error"`
		UseFallbackAgent   bool        `yaml:"use_fallback_agent"`
		FallbackAgentID    string      `yaml:"fallback_agent_id"`
		FallbackParameters interface{} `yaml:"fallback_parameters"`
	} `yaml:"error_handling"`
	Steps []rawStep `yaml:"steps"`
}

type rawStep struct {
	ID                string        `yaml:"id"`
	Name              string        `yaml:"name"`
	Description       string        `yaml:"description"`
	AgentID           string        `yaml:"agent_id"`
	Function          string        `yaml:"function"`
	Parameters        interface{}   `yaml:"parameters"`
	DependsOn         []interface{} `yaml:"depends_on"`
	Conditions        interface{}   `yaml:"conditions"`
	ParallelAllowed   bool          `yaml:"parallel_allowed"`
	Timeout           int           `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        int           `yaml:"retry_delay"`
	ContinueOnError   bool          `yaml:"continue_on_error"`
}

const (
	defaultMaxExecutionTime   = 300
	defaultMaxConcurrentSteps = 4
)

// LoadYAML parses a workflow definition file. Unknown fields
// are ignored (yaml.v3's default behavior). A missing name, or a step
// missing id/agent_id/function, produces an error prefixed with the file
// path. A missing id or steps key is not an error: the workflow gets an
// empty id or an empty step list.
func LoadYAML(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindValidation, fmt.Sprintf("reading workflow file %s", path), err)
	}
	w, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// ParseYAML parses a workflow definition from raw YAML bytes.
func ParseYAML(data []byte) (*Workflow, error) {
	var raw rawYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ferrors.Wrap(ferrors.KindValidation, "invalid YAML", err)
	}

	if raw.Name == "" {
		return nil, ferrors.New(ferrors.KindValidation, "field \"name\" is required")
	}
	if len(raw.Steps) == 0 {
		// An empty steps list is valid (boundary behavior:
		// immediate COMPLETED execution); only a missing `steps` key's
		// absence from well-formed YAML is indistinguishable from an empty
		// list here, which is treated as satisfied by presence of the
		// key at all — permissive parsing, not a load failure.
	}

	w := &Workflow{
		WorkflowID:    raw.ID,
		Name:          raw.Name,
		Description:   raw.Description,
		Discipline:    Discipline(raw.Type),
		GlobalContext: raw.GlobalContext,
		ErrorHandling: ErrorHandling{
			RetryOnFailure:     raw.ErrorHandling.RetryOnFailure,
			MaxRetries:         raw.ErrorHandling.MaxRetries,
			RetryDelaySeconds:  raw.ErrorHandling.RetryDelaySeconds,
			ContinueOnError:    raw.ErrorHandling.ContinueOnError,
			UseFallbackAgent:   raw.ErrorHandling.UseFallbackAgent,
			FallbackAgentID:    raw.ErrorHandling.FallbackAgentID,
			FallbackParameters: raw.ErrorHandling.FallbackParameters,
		},
		Limits: Limits{
			MaxExecutionTimeSeconds: orDefault(raw.Settings.MaxExecutionTime, defaultMaxExecutionTime),
			MaxConcurrentSteps:      orDefault(raw.Settings.MaxConcurrentSteps, defaultMaxConcurrentSteps),
			PersistState:            raw.Settings.PersistState,
			AutoCleanup:             raw.Settings.AutoCleanup,
		},
	}

	steps := make([]Step, 0, len(raw.Steps))
	for _, rs := range raw.Steps {
		if rs.ID == "" || rs.AgentID == "" || rs.Function == "" {
			return nil, ferrors.New(ferrors.KindValidation,
				fmt.Sprintf("step %q missing required field (id/agent_id/function)", rs.ID))
		}

		deps, err := decodeDependsOn(rs.DependsOn)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindValidation, fmt.Sprintf("step %q depends_on", rs.ID), err)
		}

		cond, err := decodeCondition(rs.Conditions)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindValidation, fmt.Sprintf("step %q conditions", rs.ID), err)
		}

		steps = append(steps, Step{
			StepID:            rs.ID,
			Name:              rs.Name,
			Description:       rs.Description,
			AgentID:           rs.AgentID,
			FunctionName:      rs.Function,
			Parameters:        rs.Parameters,
			DependsOn:         deps,
			Condition:         cond,
			ParallelAllowed:   rs.ParallelAllowed,
			TimeoutSeconds:    rs.Timeout,
			MaxRetries:        rs.MaxRetries,
			RetryDelaySeconds: rs.RetryDelay,
			ContinueOnError:   rs.ContinueOnError,
		})
	}
	w.Steps = steps

	return w, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// decodeDependsOn maps the `depends_on` union (bare step-id string, or a
// {step, condition, required} mapping) onto []StepDependency. A string
// becomes a required success dependency; a mapping is decoded with
// mapstructure.
func decodeDependsOn(raw []interface{}) ([]StepDependency, error) {
	deps := make([]StepDependency, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			deps = append(deps, StepDependency{StepID: v, Condition: DependsOnSuccess, Required: true})
		case map[string]interface{}:
			var d StepDependency
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
				Result:     &d,
			})
			if err != nil {
				return nil, err
			}
			if err := decoder.Decode(v); err != nil {
				return nil, err
			}
			if d.Condition == "" {
				d.Condition = DependsOnSuccess
			}
			deps = append(deps, d)
		default:
			return nil, fmt.Errorf("unsupported depends_on entry of type %s", reflect.TypeOf(item))
		}
	}
	return deps, nil
}

// decodeCondition maps the `conditions` union (expression / structured
// comparison / and-or-not composite) onto *Condition.
func decodeCondition(raw interface{}) (*Condition, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("conditions must be a mapping, got %T", raw)
	}
	return decodeConditionMap(m)
}

func decodeConditionMap(m map[string]interface{}) (*Condition, error) {
	c := &Condition{}
	if expr, ok := m["expression"]; ok {
		if s, ok := expr.(string); ok {
			c.Expression = s
		}
	}
	if field, ok := m["field"]; ok {
		if s, ok := field.(string); ok {
			c.Field = s
		}
	}
	if op, ok := m["operator"]; ok {
		if s, ok := op.(string); ok {
			c.Operator = s
		}
	}
	if v, ok := m["value"]; ok {
		c.Value = v
	}
	if andList, ok := m["and"].([]interface{}); ok {
		for _, item := range andList {
			sub, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("and: expected mapping entries")
			}
			decoded, err := decodeConditionMap(sub)
			if err != nil {
				return nil, err
			}
			c.And = append(c.And, *decoded)
		}
	}
	if orList, ok := m["or"].([]interface{}); ok {
		for _, item := range orList {
			sub, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("or: expected mapping entries")
			}
			decoded, err := decodeConditionMap(sub)
			if err != nil {
				return nil, err
			}
			c.Or = append(c.Or, *decoded)
		}
	}
	if notMap, ok := m["not"].(map[string]interface{}); ok {
		decoded, err := decodeConditionMap(notMap)
		if err != nil {
			return nil, err
		}
		c.Not = decoded
	}
	return c, nil
}
