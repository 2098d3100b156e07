package sortutil

import (
	"slices"
	"testing"
)

func TestKeys(t *testing.T) {
	got := Keys(map[string]int{"z.patch": 1, "a.patch": 2})
	if !slices.Equal(got, []string{"a.patch", "z.patch"}) {
		t.Fatalf("unexpected keys: %v", got)
	}
	if len(Keys(map[string]string(nil))) != 0 {
		t.Fatalf("nil map produced keys")
	}
}
