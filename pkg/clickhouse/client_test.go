package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "native",
			cfg:  ClientConfig{Host: "ch", Port: 9000, Database: "finpattern", User: "u", Password: "p"},
			want: "clickhouse://u:p@ch:9000/finpattern",
		},
		{
			name: "params",
			cfg: ClientConfig{Host: "ch", Port: 8123, Database: "db", UseHTTP: true,
				DialTimeout: 5 * time.Second, MaxExecTime: time.Minute, AsyncInsert: true, WaitForAsync: true},
			want: "clickhouse+http://:@ch:8123/db?dial_timeout=5s&max_execution_time=60&async_insert=1&wait_for_async_insert=1",
		},
	}
	for _, tc := range cases {
		if got := buildDSN(tc.cfg); got != tc.want {
			t.Fatalf("%s: got %s", tc.name, got)
		}
	}
}

func TestSchema(t *testing.T) {
	stmts := Schema("finpattern")
	if len(stmts) != 7 {
		t.Fatalf("got %d statements", len(stmts))
	}
	for _, table := range []string{TableCandles, TableIndicators, TablePatterns, TableStrategies, TableRegimes, TableSignals} {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, "finpattern."+table+" (") {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, s := range stmts {
		if strings.HasSuffix(s, ";") || strings.TrimSpace(s) != s {
			t.Fatalf("statement not trimmed: %q", s)
		}
	}
}
