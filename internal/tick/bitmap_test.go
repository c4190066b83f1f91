package tick

import (
	"testing"

	"pgregory.net/rapid"
)

func TestNextInitializedWithinWord(t *testing.T) {
	b := NewBitmap(1)
	for _, tick := range []int32{-200, -55, -4, 70, 78, 84, 139, 240, 535} {
		if err := b.Flip(tick); err != nil {
			t.Fatalf("flip %d: %v", tick, err)
		}
	}

	cases := []struct {
		tick     int32
		lte      bool
		want     int32
		wantInit bool
	}{
		{78, false, 84, true},
		{77, false, 78, true},
		{-55, false, -4, true},
		{255, false, 511, false},
		{-257, false, -200, true},
		{78, true, 78, true},
		{79, true, 78, true},
		{258, true, 256, false},
		{0, true, 0, false},
		{-1, true, -4, true},
		{-56, true, -200, true},
	}
	for _, tc := range cases {
		got, init := b.NextInitializedWithinWord(tc.tick, tc.lte)
		if got != tc.want || init != tc.wantInit {
			t.Fatalf("next(%d, lte=%t) = %d %t, want %d %t", tc.tick, tc.lte, got, init, tc.want, tc.wantInit)
		}
	}
}

func TestBitmapFlipRoundTrip(t *testing.T) {
	b := NewBitmap(60)
	if err := b.Flip(61); err == nil {
		t.Fatalf("unaligned tick should be rejected")
	}
	if err := b.Flip(-120); err != nil {
		t.Fatal(err)
	}
	if !b.IsSet(-120) {
		t.Fatalf("bit not set")
	}
	if err := b.Flip(-120); err != nil {
		t.Fatal(err)
	}
	if b.IsSet(-120) || len(b.words) != 0 {
		t.Fatalf("bit should be cleared and word released")
	}
}

// Walking word by word must agree with a linear scan of the set bits.
func TestNextInitializedMatchesLinearScan(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		spacing := rapid.SampledFrom([]int32{1, 10, 60}).Draw(t, "spacing")
		b := NewBitmap(spacing)
		set := map[int32]bool{}
		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			tick := rapid.Int32Range(-2000, 2000).Draw(t, "tick") * spacing
			if err := b.Flip(tick); err != nil {
				t.Fatal(err)
			}
			set[tick] = !set[tick]
		}
		start := rapid.Int32Range(-2100*spacing, 2100*spacing).Draw(t, "start")
		lte := rapid.Bool().Draw(t, "lte")

		want, found := linearNext(set, start, lte)
		cur := start
		for step := 0; step < 64; step++ {
			next, init := b.NextInitializedWithinWord(cur, lte)
			if init {
				if !found || next != want {
					t.Fatalf("walk from %d lte=%t found %d, linear %d (%t)", start, lte, next, want, found)
				}
				return
			}
			if lte {
				if found && next < want {
					t.Fatalf("walk from %d skipped %d", start, want)
				}
				cur = next - 1
			} else {
				if found && next > want {
					t.Fatalf("walk from %d skipped %d", start, want)
				}
				cur = next
			}
		}
		if found {
			t.Fatalf("walk from %d never reached %d", start, want)
		}
	})
}

func linearNext(set map[int32]bool, start int32, lte bool) (int32, bool) {
	var best int32
	found := false
	for tick, on := range set {
		if !on {
			continue
		}
		if lte && tick <= start && (!found || tick > best) {
			best, found = tick, true
		}
		if !lte && tick > start && (!found || tick < best) {
			best, found = tick, true
		}
	}
	return best, found
}
