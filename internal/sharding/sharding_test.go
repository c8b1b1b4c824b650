package sharding

import "testing"

func TestGetShardID_Stable(t *testing.T) {
	cases := []struct {
		name string
		key  string
		n    int
	}{
		{name: "order key", key: "O1/I1", n: 64},
		{name: "empty key", key: "", n: 64},
		{name: "two shards", key: "O2/I9", n: 2},
		{name: "unicode", key: "заказ/1", n: 16},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			first := GetShardID(tc.key, tc.n)
			if first < 0 || first >= tc.n {
				t.Fatalf("GetShardID(%q, %d) = %d, out of range", tc.key, tc.n, first)
			}
			if again := GetShardID(tc.key, tc.n); again != first {
				t.Fatalf("GetShardID(%q, %d) not stable: %d vs %d", tc.key, tc.n, first, again)
			}
		})
	}
}

func TestGetShardID_SingleShard(t *testing.T) {
	for _, n := range []int{-1, 0, 1} {
		if got := GetShardID("O1/I1", n); got != 0 {
			t.Fatalf("GetShardID with n=%d = %d, want 0", n, got)
		}
	}
}

func TestGetShardID_Spreads(t *testing.T) {
	seen := make(map[int]bool)
	for _, key := range []string{"O1/I1", "O2/I1", "O3/I1", "O4/I1", "O5/I1", "O6/I1", "O7/I1", "O8/I1"} {
		seen[GetShardID(key, 4)] = true
	}
	if len(seen) < 2 {
		t.Fatalf("expected keys to spread over several shards, got %v", seen)
	}
}
