package clickhouse

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host: "ch", Port: 9000, Database: "niftypulse", User: "u", Password: "p",
		DialTimeout: 5 * time.Second, MaxExecTime: 30 * time.Second,
		AsyncInsert: true, WaitForAsync: true,
	})
	want := "clickhouse://u:p@ch:9000/niftypulse?dial_timeout=5s&max_execution_time=30&async_insert=1&wait_for_async_insert=1"
	if dsn != want {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	if got := buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "d", UseHTTP: true}); !strings.HasPrefix(got, "clickhouse+http://") || strings.Contains(got, "?") {
		t.Fatalf("unexpected http dsn %s", got)
	}
}

func TestTickSchemaRetention(t *testing.T) {
	stmts := TickSchema("niftypulse", 7*24*time.Hour)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements")
	}
	if !strings.Contains(stmts[1], "INTERVAL 7 DAY") || !strings.Contains(stmts[1], "niftypulse.ticks") {
		t.Fatalf("unexpected ddl %s", stmts[1])
	}
}
