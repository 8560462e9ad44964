package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
		ok   bool
	}{
		{"store unreachable", StoreUnreachable("dial", errors.New("refused")), KindStoreUnreachable, true},
		{"validation", ValidationError("bad hash"), KindValidation, true},
		{"wrapped further", fmt.Errorf("outer: %w", NetworkError("get peer", errors.New("timeout"))), KindNetwork, true},
		{"plain error", errors.New("oops"), "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := KindOf(c.err)
			if ok != c.ok || got != c.want {
				t.Fatalf("KindOf() = (%v, %v), want (%v, %v)", got, ok, c.want, c.ok)
			}
			if c.ok && !Is(c.err, c.want) {
				t.Fatalf("Is(%v) = false, want true", c.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Fatal("Wrap(nil, ...) should return nil")
	}
}
