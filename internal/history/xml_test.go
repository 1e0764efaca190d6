package history

import (
	"path/filepath"
	"testing"

	"github.com/caps-tum/autopin-plus-sub000/internal/pinning"
)

// TestSaveLoadRoundTrip covers spec §8 property 6: load(save(H)) == H,
// preserving the multi-set of (phase, pinning, value) and best-per-phase.
func TestSaveLoadRoundTrip(t *testing.T) {
	h := pinning.NewHistory(pinning.Max)
	const coreCount = 4

	a := pinning.New(coreCount)
	a.Assign(0, 1, 100)
	h.Record(0, a, 5.0)

	b := pinning.New(coreCount)
	b.Assign(0, 1, 100)
	b.Assign(2, 1, 101)
	h.Record(0, b, 7.0)

	c := pinning.New(coreCount)
	c.Assign(1, 1, 100)
	h.Record(1, c, 3.5)

	path := filepath.Join(t.TempDir(), "history.xml")
	meta := Metadata{
		Host:                "testhost",
		Date:                "2026-07-31",
		Time:                "12:00:00",
		ConfigurationType:   "autopin1",
		Command:             "/bin/workload",
		Trace:               true,
		ControlStrategyType: "autopin1",
	}
	if err := Save(path, h, coreCount, meta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, loadedMeta, err := Load(path, coreCount)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loadedMeta.Host != meta.Host || loadedMeta.Command != meta.Command || loadedMeta.Trace != meta.Trace {
		t.Errorf("metadata mismatch: got %+v, want %+v", loadedMeta, meta)
	}

	for _, phase := range h.Phases() {
		wantEntries := h.Entries(phase)
		gotEntries := loaded.Entries(phase)
		if len(gotEntries) != len(wantEntries) {
			t.Fatalf("phase %d: got %d entries, want %d", phase, len(gotEntries), len(wantEntries))
		}
		for i, w := range wantEntries {
			g := gotEntries[i]
			if g.Value != w.Value {
				t.Errorf("phase %d entry %d: value = %v, want %v", phase, i, g.Value, w.Value)
			}
			if len(g.Pinning.FreeCores())+coreCountOccupied(g.Pinning) != coreCount {
				t.Errorf("phase %d entry %d: slot count mismatch", phase, i)
			}
			if occupiedCoreSet(g.Pinning) != occupiedCoreSet(w.Pinning) {
				t.Errorf("phase %d entry %d: occupied cores = %v, want %v", phase, i, occupiedCoreSet(g.Pinning), occupiedCoreSet(w.Pinning))
			}
		}

		wantBest, wantOK := h.Best(phase)
		gotBest, gotOK := loaded.Best(phase)
		if gotOK != wantOK || gotBest.Value != wantBest.Value {
			t.Errorf("phase %d: best = (%v,%v), want (%v,%v)", phase, gotBest.Value, gotOK, wantBest.Value, wantOK)
		}
	}
}

func coreCountOccupied(p pinning.Pinning) int {
	n := 0
	for _, s := range p.Slots {
		if s.Filled {
			n++
		}
	}
	return n
}

func occupiedCoreSet(p pinning.Pinning) string {
	out := ""
	for i, s := range p.Slots {
		if s.Filled {
			out += pinningCoreTag(i)
		}
	}
	return out
}

func pinningCoreTag(core int) string {
	return string(rune('a' + core))
}
