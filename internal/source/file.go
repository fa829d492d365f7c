// Package source turns a declarative checks file into scheduling commands.
//
// The file lists every check the agent should run:
//
//	checks:
//	  - id: 5b7d0c2e-4a51-4f43-9d1e-0b5f4a3c9e11
//	    interval: 5s
//	    kind: http
//	    http:
//	      url: https://example.com/healthz
//	      expected_status: 200
//
// Load parses and validates it; Diff turns two revisions into add and
// remove commands; FileSource.Watch streams those commands as the file
// changes on disk.
package source

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/ping-agent/pkg/types"
)

// ErrDuplicateID is returned when a file lists the same id twice
var ErrDuplicateID = errors.New("duplicate check id")

type fileDoc struct {
	Checks []fileCheck `yaml:"checks"`
}

type fileCheck struct {
	ID       string    `yaml:"id"`
	Interval string    `yaml:"interval"`
	Kind     string    `yaml:"kind"`
	HTTP     *fileHTTP `yaml:"http"`
}

type fileHTTP struct {
	URL            string            `yaml:"url"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	Body           string            `yaml:"body"`
	ExpectedStatus int               `yaml:"expected_status"`
}

// Load reads and validates the checks file at path
func Load(path string) ([]types.Check, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checks file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a checks document
func Parse(data []byte) ([]types.Check, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse checks file: %w", err)
	}

	checks := make([]types.Check, 0, len(doc.Checks))
	seen := make(map[types.CheckID]struct{}, len(doc.Checks))
	for i, fc := range doc.Checks {
		c, err := fc.toCheck()
		if err != nil {
			return nil, fmt.Errorf("check %d: %w", i, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("check %d (%s): %w", i, c.ID, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("check %d: %w: %s", i, ErrDuplicateID, c.ID)
		}
		seen[c.ID] = struct{}{}
		checks = append(checks, c)
	}
	return checks, nil
}

func (fc fileCheck) toCheck() (types.Check, error) {
	id, err := uuid.Parse(fc.ID)
	if err != nil {
		return types.Check{}, fmt.Errorf("%w: %q", types.ErrMissingID, fc.ID)
	}
	interval, err := time.ParseDuration(fc.Interval)
	if err != nil {
		return types.Check{}, fmt.Errorf("%w: %q", types.ErrInvalidInterval, fc.Interval)
	}

	c := types.Check{
		ID:       id,
		Interval: interval,
		Kind:     types.CheckKind(fc.Kind),
	}
	if fc.HTTP != nil {
		c.HTTP = &types.HTTPCheck{
			URL:            fc.HTTP.URL,
			Method:         fc.HTTP.Method,
			Headers:        fc.HTTP.Headers,
			Body:           fc.HTTP.Body,
			ExpectedStatus: fc.HTTP.ExpectedStatus,
		}
	}
	return c, nil
}

// Diff returns the commands that move a registry from prev to next.
// Removals come first, ordered by id; adds follow in next's order.
// A check whose definition changed is removed and re-added.
func Diff(prev, next []types.Check) []types.Command {
	before := make(map[types.CheckID]types.Check, len(prev))
	for _, c := range prev {
		before[c.ID] = c
	}
	after := make(map[types.CheckID]types.Check, len(next))
	for _, c := range next {
		after[c.ID] = c
	}

	var removes []types.CheckID
	for id, old := range before {
		cur, ok := after[id]
		if !ok || !reflect.DeepEqual(old, cur) {
			removes = append(removes, id)
		}
	}
	sort.Slice(removes, func(i, j int) bool { return removes[i].String() < removes[j].String() })

	cmds := make([]types.Command, 0, len(removes)+len(next))
	for _, id := range removes {
		cmds = append(cmds, types.RemoveCommand(id))
	}
	for _, c := range next {
		old, ok := before[c.ID]
		if ok && reflect.DeepEqual(old, c) {
			continue
		}
		cmds = append(cmds, types.AddCommand(c))
	}
	return cmds
}
