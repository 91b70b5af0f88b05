package index

import "testing"

func pathTable(m map[int32]string) func(int32) (string, bool) {
	return func(id int32) (string, bool) {
		p, ok := m[id]
		return p, ok
	}
}

func TestFingerprintIgnoresDocIDAssignment(t *testing.T) {
	// Same corpus, different id assignment order.
	a := New(8)
	a.UpsertDocument(1, map[string]int{"alpha": 2, "beta": 1})
	a.UpsertDocument(2, map[string]int{"beta": 3})
	pathsA := map[int32]string{1: "/d/x.txt", 2: "/d/y.txt"}

	b := New(8)
	b.UpsertDocument(1, map[string]int{"beta": 3})
	b.UpsertDocument(2, map[string]int{"alpha": 2, "beta": 1})
	pathsB := map[int32]string{1: "/d/y.txt", 2: "/d/x.txt"}

	fpA := a.Fingerprint(pathTable(pathsA))
	fpB := b.Fingerprint(pathTable(pathsB))
	if fpA != fpB {
		t.Errorf("fingerprints differ across id assignments:\n  a=%s\n  b=%s", fpA, fpB)
	}
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	a := New(8)
	a.UpsertDocument(1, map[string]int{"alpha": 2})
	b := New(8)
	b.UpsertDocument(1, map[string]int{"alpha": 3})
	paths := map[int32]string{1: "/d/x.txt"}

	if a.Fingerprint(pathTable(paths)) == b.Fingerprint(pathTable(paths)) {
		t.Error("fingerprints equal despite different frequencies")
	}
}

func TestFingerprintShardCountIndependent(t *testing.T) {
	docs := map[int32]map[string]int{
		1: {"one": 1, "two": 2},
		2: {"two": 4, "three": 3},
		3: {"three": 1},
	}
	paths := map[int32]string{1: "/d/1.txt", 2: "/d/2.txt", 3: "/d/3.txt"}

	a := New(1)
	b := New(64)
	for id, tf := range docs {
		a.UpsertDocument(id, tf)
		b.UpsertDocument(id, tf)
	}
	if a.Fingerprint(pathTable(paths)) != b.Fingerprint(pathTable(paths)) {
		t.Error("fingerprints differ across shard counts")
	}
}

func TestFingerprintEmptyIndex(t *testing.T) {
	a := New(8)
	b := New(16)
	none := pathTable(nil)
	if a.Fingerprint(none) != b.Fingerprint(none) {
		t.Error("empty indexes should hash identically")
	}
}
