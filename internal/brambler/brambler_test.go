package brambler

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"
)

func digestFor(identifier string) []byte {
	sum := sha256.Sum256([]byte(identifier))
	return sum[:]
}

func TestPoolHasNoDuplicates(t *testing.T) {
	seen := make(map[string]bool, len(Pool))
	for _, name := range Pool {
		if seen[name] {
			t.Fatalf("duplicate pool name %q", name)
		}
		seen[name] = true
	}
}

func TestPickIsDeterministic(t *testing.T) {
	taken := map[string]bool{}
	first := Pick(digestFor("alice"), taken)
	second := Pick(digestFor("alice"), taken)
	if first != second {
		t.Fatalf("same digest and taken set picked %q then %q", first, second)
	}
}

func TestPickNeverCollides(t *testing.T) {
	taken := map[string]bool{}
	assigned := make(map[string]bool)

	for i := 0; i < 3*len(Pool); i++ {
		name := Pick(digestFor(fmt.Sprintf("user-%d", i)), taken)
		if assigned[name] {
			t.Fatalf("pseudonym %q assigned twice", name)
		}
		assigned[name] = true
		taken[name] = true
	}
}

func TestPickExhaustionAppendsSuffix(t *testing.T) {
	taken := make(map[string]bool, len(Pool))
	for _, name := range Pool {
		taken[name] = true
	}

	name := Pick(digestFor("late joiner"), taken)
	if !strings.HasSuffix(name, " 2") {
		t.Fatalf("expected numeric suffix on exhausted pool, got %q", name)
	}

	taken[name] = true
	next := Pick(digestFor("late joiner"), taken)
	if next == name {
		t.Fatalf("suffixed name %q reused", next)
	}
	if !strings.HasSuffix(next, " 3") {
		t.Fatalf("expected next numeric suffix, got %q", next)
	}
}

func TestPickWithShortDigest(t *testing.T) {
	name := Pick([]byte{0x01}, map[string]bool{})
	if name != Pool[0] {
		t.Fatalf("short digest should start probing at the pool head, got %q", name)
	}
}
