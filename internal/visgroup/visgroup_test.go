package visgroup

import "testing"

func TestExpandIncludesBlockOriginAndNeighbors(t *testing.T) {
	table := NewTable(map[uint32][]uint32{
		2100: {2101},
		2101: {2102},
	})
	got := table.Expand([]uint32{2100})

	for _, want := range []uint32{2100, 2000, 2101, 2102} {
		if _, ok := got[want]; !ok {
			t.Errorf("Expand(2100) missing zone %d: %v", want, got)
		}
	}
}

func TestExpandStripsQuietZone(t *testing.T) {
	table := NewTable(map[uint32][]uint32{100: {1}})
	got := table.Expand([]uint32{1, 100})
	if _, ok := got[1]; ok {
		t.Fatalf("quiet zone 1 must never be admitted: %v", got)
	}
}

func TestBlockOrigin(t *testing.T) {
	if BlockOrigin(2142) != 2100 {
		t.Fatalf("BlockOrigin(2142) = %d, want 2100", BlockOrigin(2142))
	}
	if BlockOrigin(2100) != 2100 {
		t.Fatalf("BlockOrigin(2100) = %d, want 2100", BlockOrigin(2100))
	}
}
