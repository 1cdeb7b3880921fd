package cache

import (
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestWrapKey(t *testing.T) {
	cli := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer cli.Close()

	cases := []struct {
		prefix, key, want string
	}{
		{"finpattern", "signal:latest", "finpattern:signal:latest"},
		{"", "pattern-build", "pattern-build"},
	}
	for _, tc := range cases {
		if got := NewRedisCacheFromClient(cli, tc.prefix).wrapKey(tc.key); got != tc.want {
			t.Fatalf("prefix %q: got %s", tc.prefix, got)
		}
	}
}
