package fnconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/fr-service/errors"
)

// TaskConfig is a parsed "task <Name>" document:
//
//	task RecorderTask:
//	    cycle: 100 ms
//	    in queue: recorder.in
//	    let Load:
//	        input: point real /App/Load
//	    fn Export:
//	        send-to: derived
//	        input: fn Threshold:
//	            ...
//
// Nodes holds the let, fn and metric roots in declaration order.
type TaskConfig struct {
	Name string
	// Cycle is the evaluation period; zero selects per-point evaluation.
	Cycle   time.Duration
	InQueue string
	Options []Option
	Nodes   []Input
}

// Option returns the named task option.
func (t *TaskConfig) Option(key string) (Option, bool) {
	for _, opt := range t.Options {
		if opt.Key == key {
			return opt, true
		}
	}
	return Option{}, false
}

// Vars returns the names of the variables declared at the task level.
func (t *TaskConfig) Vars() []string {
	var names []string
	for _, n := range t.Nodes {
		if n.Conf.Kind == KindVar && !n.Conf.Ref {
			names = append(names, n.Conf.Name)
		}
	}
	return names
}

// ParseTask parses a task document.
func ParseTask(data []byte) (*TaskConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.WrapInvalid(err, "fnconfig", "ParseTask", "parse yaml")
	}
	doc := document(&root)
	if doc == nil || doc.Kind != yaml.MappingNode || len(doc.Content) != 2 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: expected a single 'task <name>' mapping", errors.ErrMalformedKeyword),
			"fnconfig", "ParseTask", "read root")
	}

	kw, err := ParseKeyword(doc.Content[0].Value)
	if err != nil {
		return nil, err
	}
	if kw.Kind != KindTask {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: expected task, got %s", errors.ErrMalformedKeyword, kw.Kind),
			"fnconfig", "ParseTask", "read root")
	}

	body := doc.Content[1]
	if body.Kind != yaml.MappingNode {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: task %s has no body", errors.ErrMalformedKeyword, kw.Data),
			"fnconfig", "ParseTask", "read body")
	}

	holder := &FnConfig{Kind: KindTask, Name: kw.Data}
	if err := newParser().mapping(holder, body); err != nil {
		return nil, err
	}

	task := &TaskConfig{Name: kw.Data, Options: holder.Options, Nodes: holder.Inputs}
	for _, n := range task.Nodes {
		if n.Conf.Kind == KindConst || n.Conf.Kind == KindPoint {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s %s cannot be a task root", errors.ErrMalformedKeyword, n.Conf.Kind, n.Conf.Name),
				"fnconfig", "ParseTask", "read roots")
		}
	}
	if len(task.Nodes) == 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: task %s declares no nodes", errors.ErrMissingInput, kw.Data),
			"fnconfig", "ParseTask", "read roots")
	}

	if opt, ok := task.Option("cycle"); ok {
		cycle, err := ParseCycle(opt.Value)
		if err != nil {
			return nil, err
		}
		task.Cycle = cycle
	}
	if opt, ok := task.Option("in queue"); ok {
		task.InQueue = opt.Value
	}
	return task, nil
}

// LoadTask reads and parses a task file.
func LoadTask(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "fnconfig", "LoadTask", "read "+path)
	}
	return ParseTask(data)
}

// ParseCycle parses "100 ms", "1s", "2 m" or a bare number of milliseconds.
func ParseCycle(s string) (time.Duration, error) {
	compact := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if compact == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(compact, 10, 64); err == nil {
		if ms < 0 {
			return 0, invalidCycle(s)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(compact)
	if err != nil || d < 0 {
		return 0, invalidCycle(s)
	}
	return d, nil
}

func invalidCycle(s string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: cycle %q", errors.ErrInvalidConfig, s),
		"fnconfig", "ParseCycle", "parse cycle")
}
