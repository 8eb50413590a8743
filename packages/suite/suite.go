// Package suite loads YAML check suites and runs them against the
// storefront, emitting telemetry events for every check. The suite runner
// is the unit/integration adapter: it maps check outcomes onto the common
// event vocabulary one terminal event per check.
package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Categories a suite may declare. They mirror the run command's selection
// flags.
var KnownTypes = []string{
	"unit", "integration", "performance", "security", "browser", "alternate", "coverage",
}

// Suite is one YAML-defined group of checks sharing a test type.
type Suite struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	BaseURL  string   `yaml:"baseURL,omitempty"`
	Database string   `yaml:"database,omitempty"`
	Checks   []*Check `yaml:"checks"`

	// Path is the file the suite was loaded from.
	Path string `yaml:"-"`
}

// Check is a single verifiable unit within a suite.
type Check struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // http, sql, perf, nav
	Skip string `yaml:"skip,omitempty"`

	// http
	Request *RequestSpec `yaml:"request,omitempty"`
	Expect  *ExpectSpec  `yaml:"expect,omitempty"`

	// sql
	Query      string `yaml:"query,omitempty"`
	ExpectRows *int   `yaml:"expectRows,omitempty"`

	// perf
	Target    string  `yaml:"target,omitempty"`
	Rate      float64 `yaml:"rate,omitempty"`
	Duration  string  `yaml:"duration,omitempty"`
	Threshold string  `yaml:"threshold,omitempty"` // max acceptable mean latency

	// nav
	Steps []*NavStep `yaml:"steps,omitempty"`
}

// RequestSpec describes the HTTP request an http check sends.
type RequestSpec struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty"`
}

// ExpectSpec describes what an http check asserts about the response.
type ExpectSpec struct {
	Status int          `yaml:"status,omitempty"`
	Body   []BodyExpect `yaml:"body,omitempty"`
}

// BodyExpect asserts one JSON path of the response body.
type BodyExpect struct {
	Path  string `yaml:"path"`
	Op    string `yaml:"op"` // ==, !=, >, >=, <, <=, contains, exists
	Value any    `yaml:"value,omitempty"`
}

// NavStep is one step of a browser navigation check.
type NavStep struct {
	Action  string `yaml:"action"` // navigate, click, fill, verify
	Path    string `yaml:"path,omitempty"`
	Element string `yaml:"element,omitempty"`
	Value   string `yaml:"value,omitempty"`
}

// LoadFile parses one suite file.
func LoadFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite %s: %w", path, err)
	}

	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}
	s.Path = path

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}
	return &s, nil
}

func (s *Suite) validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite name is required")
	}
	if !knownType(s.Type) {
		return fmt.Errorf("unknown suite type %q (want one of %s)", s.Type, strings.Join(KnownTypes, ", "))
	}
	for i, c := range s.Checks {
		if c.Name == "" {
			return fmt.Errorf("check %d: name is required", i)
		}
		switch c.Kind {
		case "http":
			if c.Request == nil || c.Request.URL == "" {
				return fmt.Errorf("check %q: http checks need a request URL", c.Name)
			}
		case "sql":
			if c.Query == "" {
				return fmt.Errorf("check %q: sql checks need a query", c.Name)
			}
		case "perf":
			if c.Target == "" {
				return fmt.Errorf("check %q: perf checks need a target", c.Name)
			}
		case "nav":
			if len(c.Steps) == 0 {
				return fmt.Errorf("check %q: nav checks need at least one step", c.Name)
			}
		default:
			return fmt.Errorf("check %q: unknown kind %q", c.Name, c.Kind)
		}
	}
	return nil
}

func knownType(t string) bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Discover walks the given files and directories and returns every suite
// file found, sorted by path.
func Discover(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && IsSuiteFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if IsSuiteFile(arg) {
			files = append(files, arg)
		}
	}

	return files, nil
}

// IsSuiteFile reports whether path names a suite definition.
func IsSuiteFile(path string) bool {
	return strings.HasSuffix(path, ".suite.yaml") || strings.HasSuffix(path, ".suite.yml")
}
