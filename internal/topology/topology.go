// Package topology enumerates CPUs and NUMA nodes by parsing the sysfs
// tree under /sys/devices/system/node/, following the teacher's idiom of
// reading plain text files into typed structures with an overridable
// root for tests (internal/collector/cpu.go, memory.go).
package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Topology is the immutable result of a single sysfs scan, resolved once
// at process startup per spec §4.1.
type Topology struct {
	nodes      []int           // sorted online node ids
	nodeCores  map[int][]int   // node -> sorted core ids
	coreNode   map[int]int     // core -> owning node
	distances  map[int]map[int]int
	coreCount  int
}

// Load scans root (default "/sys/devices/system/node") and builds a
// Topology. A malformed or missing distance/cpulist file for a given
// node yields an empty entry for that node rather than failing the
// whole scan, per spec §4.1's "usable, possibly empty mapping" contract.
func Load(root string) (*Topology, error) {
	if root == "" {
		root = "/sys/devices/system/node"
	}

	onlineData, err := os.ReadFile(filepath.Join(root, "online"))
	if err != nil {
		return nil, fmt.Errorf("read online: %w", err)
	}
	nodes := ParseRange(strings.TrimSpace(string(onlineData)))
	sort.Ints(nodes)

	t := &Topology{
		nodes:     nodes,
		nodeCores: make(map[int][]int),
		coreNode:  make(map[int]int),
		distances: make(map[int]map[int]int),
	}

	for _, node := range nodes {
		cpulistPath := filepath.Join(root, fmt.Sprintf("node%d", node), "cpulist")
		data, err := os.ReadFile(cpulistPath)
		var cores []int
		if err == nil {
			cores = ParseRange(strings.TrimSpace(string(data)))
			sort.Ints(cores)
		}
		t.nodeCores[node] = cores
		for _, c := range cores {
			t.coreNode[c] = node
			t.coreCount++
		}

		distPath := filepath.Join(root, fmt.Sprintf("node%d", node), "distance")
		distData, err := os.ReadFile(distPath)
		dist := make(map[int]int)
		if err == nil {
			fields := strings.Fields(string(distData))
			for i, f := range fields {
				if i >= len(nodes) {
					break
				}
				v, err := strconv.Atoi(f)
				if err != nil {
					continue
				}
				dist[nodes[i]] = v
			}
		}
		t.distances[node] = dist
	}

	return t, nil
}

// ParseRange parses the sysfs range-list syntax "a-b,c,d-e" into a list
// of ints in token order; the result is not sorted. Tokens that are malformed (not an int, or lo > hi) are
// silently skipped, never fatal, per spec §4.1/§8 property 8.
func ParseRange(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if idx := strings.IndexByte(tok, '-'); idx >= 0 {
			lo, errLo := strconv.Atoi(tok[:idx])
			hi, errHi := strconv.Atoi(tok[idx+1:])
			if errLo != nil || errHi != nil || lo > hi {
				continue
			}
			for v := lo; v <= hi; v++ {
				out = append(out, v)
			}
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// CoreCount returns the total number of online cores across all nodes.
func (t *Topology) CoreCount() int { return t.coreCount }

// NodeCount returns the number of online NUMA nodes.
func (t *Topology) NodeCount() int { return len(t.nodes) }

// Nodes returns the sorted list of online node ids.
func (t *Topology) Nodes() []int {
	out := make([]int, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// NodeOfCore returns the NUMA node owning core, or -1 if unknown.
func (t *Topology) NodeOfCore(core int) int {
	if n, ok := t.coreNode[core]; ok {
		return n
	}
	return -1
}

// CoresOfNode returns the ordered list of cores belonging to node.
func (t *Topology) CoresOfNode(node int) []int {
	cores := t.nodeCores[node]
	out := make([]int, len(cores))
	copy(out, cores)
	return out
}

// Distance returns the inter-node distance between a and b, or -1 if
// unknown.
func (t *Topology) Distance(a, b int) int {
	if m, ok := t.distances[a]; ok {
		if d, ok := m[b]; ok {
			return d
		}
	}
	return -1
}
