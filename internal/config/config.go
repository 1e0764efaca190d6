// Package config reads the bespoke key/value configuration format of
// spec §6: one assignment per line, '#' at column 0 is a comment,
// operators '=' (replace), '+=' (append unique), '-=' (remove). This is
// a hand-rolled format with per-line append/remove semantics that no
// generic config library expresses, so it is parsed by hand in the
// teacher's own idiom (internal/collector's bufio.Scanner + strings.Fields
// text parsing, generalized to a line-oriented assignment grammar).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/caps-tum/autopin-plus-sub000/internal/errs"
)

// Configuration is an ordered multimap from key to its current list of
// values, built by replaying '='/'+='/'-=' operators in file order.
type Configuration struct {
	values map[string][]string
	order  []string // key insertion order, for deterministic Render
}

// New returns an empty Configuration.
func New() *Configuration {
	return &Configuration{values: make(map[string][]string)}
}

// Parse reads and parses a configuration file.
func Parse(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.FileNotFound, "config", err)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader parses configuration text from an arbitrary reader (used
// directly by tests, e.g. the parse/render round trip).
func ParseReader(r io.Reader) (*Configuration, error) {
	cfg := New()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := cfg.applyLine(line); err != nil {
			return nil, errs.New(errs.BadConfig, fmt.Sprintf("line_%d", lineNo), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.New(errs.System, "read_config", err)
	}
	return cfg, nil
}

func (c *Configuration) applyLine(line string) error {
	op, key, val, err := splitAssignment(line)
	if err != nil {
		return err
	}
	switch op {
	case "=":
		c.Set(key, val)
	case "+=":
		c.Append(key, val)
	case "-=":
		c.Remove(key, val)
	}
	return nil
}

// splitAssignment finds the first of "+=", "-=", "=" (in that priority
// order, since both compound operators contain '=') and splits the line.
func splitAssignment(line string) (op, key, val string, err error) {
	for _, candidate := range []string{"+=", "-="} {
		if idx := strings.Index(line, candidate); idx >= 0 {
			return candidate, strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(candidate):]), nil
		}
	}
	if idx := strings.Index(line, "="); idx >= 0 {
		return "=", strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), nil
	}
	return "", "", "", fmt.Errorf("malformed assignment: %q", line)
}

func (c *Configuration) trackKey(key string) {
	if _, ok := c.values[key]; !ok {
		c.order = append(c.order, key)
	}
}

// Set replaces all values for key with a single value ('=' operator).
func (c *Configuration) Set(key, val string) {
	c.trackKey(key)
	c.values[key] = []string{val}
}

// Append adds val to key's value list if not already present ('+='
// operator).
func (c *Configuration) Append(key, val string) {
	c.trackKey(key)
	for _, v := range c.values[key] {
		if v == val {
			return
		}
	}
	c.values[key] = append(c.values[key], val)
}

// Remove deletes val from key's value list if present ('-=' operator).
func (c *Configuration) Remove(key, val string) {
	existing, ok := c.values[key]
	if !ok {
		return
	}
	out := existing[:0:0]
	for _, v := range existing {
		if v != val {
			out = append(out, v)
		}
	}
	c.values[key] = out
}

// Get returns the first value for key, or the default if unset.
func (c *Configuration) Get(key, def string) string {
	v, ok := c.values[key]
	if !ok || len(v) == 0 {
		return def
	}
	return v[0]
}

// GetList returns all values for key.
func (c *Configuration) GetList(key string) []string {
	v := c.values[key]
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// GetBool parses the first value for key as a bool.
func (c *Configuration) GetBool(key string, def bool) bool {
	v, ok := c.values[key]
	if !ok || len(v) == 0 {
		return def
	}
	b, err := strconv.ParseBool(v[0])
	if err != nil {
		return def
	}
	return b
}

// GetInt parses the first value for key as an int.
func (c *Configuration) GetInt(key string, def int) int {
	v, ok := c.values[key]
	if !ok || len(v) == 0 {
		return def
	}
	n, err := strconv.Atoi(v[0])
	if err != nil {
		return def
	}
	return n
}

// Keys returns every known key in first-seen order.
func (c *Configuration) Keys() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Equal compares the full value-set of two Configurations, ignoring key
// order (used by the parse/render round-trip test, property 5).
func (c *Configuration) Equal(other *Configuration) bool {
	if len(c.values) != len(other.values) {
		return false
	}
	for k, v := range c.values {
		ov, ok := other.values[k]
		if !ok || len(v) != len(ov) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}

// Render serializes the Configuration back to the line-oriented format:
// the first value of each key is written with '=', subsequent values
// with '+='. Keys are sorted for determinism.
func Render(c *Configuration) string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		vals := c.values[k]
		for i, v := range vals {
			if i == 0 {
				fmt.Fprintf(&sb, "%s=%s\n", k, v)
			} else {
				fmt.Fprintf(&sb, "%s+=%s\n", k, v)
			}
		}
	}
	return sb.String()
}
