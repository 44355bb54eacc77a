// Package crontab reads the job list: a JSON (or YAML) array of
// {scheduleParams, commandToExecute} objects, kept in file order.
package crontab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"hotcron/internal/shared"
)

// Entry is one configured job.
type Entry struct {
	ScheduleParams   string `json:"scheduleParams" yaml:"scheduleParams"`
	CommandToExecute string `json:"commandToExecute" yaml:"commandToExecute"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%q -> %q", e.ScheduleParams, e.CommandToExecute)
}

// Source yields the current job list. Errors are ErrConfigUnavailable.
type Source interface {
	Load(ctx context.Context) ([]Entry, error)
}

// FileSource reads entries from a file on every Load.
type FileSource struct {
	Path string
}

func (s FileSource) Load(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindConfigUnavailable)
	}
	entries, err := Parse(s.Path, data)
	if err != nil {
		return nil, shared.Wrapf(err, "parse %s", s.Path)
	}
	return entries, nil
}

// Static is a fixed in-memory Source.
type Static []Entry

func (s Static) Load(context.Context) ([]Entry, error) {
	return append([]Entry(nil), s...), nil
}

// Parse decodes data, choosing YAML for .yaml/.yml names and JSON otherwise.
func Parse(name string, data []byte) ([]Entry, error) {
	data, err := toJSON(name, data)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindConfigUnavailable)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, shared.MarkKind(errors.New("empty crontab"), shared.KindConfigUnavailable)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, shared.MarkKind(fmt.Errorf("decode crontab: %w", err), shared.KindConfigUnavailable)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// toJSON converts YAML input to JSON so both formats share one decoder.
func toJSON(name string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		return nil, nil
	}
	out, err := json.Marshal(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// normalizeYAML turns map[any]any nodes into string-keyed maps.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// Problem describes one invalid entry.
type Problem struct {
	Index int
	Entry Entry
	Err   error
}

func (p Problem) Error() string {
	return fmt.Sprintf("entry %d (%s): %v", p.Index, p.Entry, p.Err)
}

// Validate checks every entry with parseSchedule and rejects blank commands.
// It returns nil when all entries are usable.
func Validate(entries []Entry, parseSchedule func(string) error) []Problem {
	var problems []Problem
	for i, e := range entries {
		if strings.TrimSpace(e.CommandToExecute) == "" {
			problems = append(problems, Problem{Index: i, Entry: e, Err: errors.New("commandToExecute is empty")})
			continue
		}
		if err := parseSchedule(e.ScheduleParams); err != nil {
			problems = append(problems, Problem{Index: i, Entry: e, Err: err})
		}
	}
	return problems
}
