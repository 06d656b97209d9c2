package ids

import "testing"

func TestNewIsMonotonicAndValid(t *testing.T) {
	prev := New()
	if !Valid(prev) {
		t.Fatalf("New() = %q is not a valid ULID", prev)
	}
	for i := 0; i < 100; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("ids not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
	if Valid("not-a-ulid") {
		t.Fatal("expected invalid")
	}
}
