package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/dugoutai/dugout/config"
)

func testRedisHistory(t *testing.T, max int) *RedisHistory {
	t.Helper()
	mr := miniredis.RunT(t)
	h, err := NewRedisHistory(config.RedisConfig{
		Enabled:    true,
		Host:       mr.Host(),
		Port:       mr.Port(),
		Timeout:    time.Second,
		HistoryTTL: time.Hour,
		HistoryMax: max,
	})
	if err != nil {
		t.Fatalf("connecting to miniredis: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestRedisHistoryRoundTrip(t *testing.T) {
	h := testRedisHistory(t, 10)
	ctx := context.Background()

	turns := []Turn{
		{Role: "user", Content: "How's Judge doing?", Timestamp: time.Now()},
		{Role: "assistant", Content: "He's hitting .310.", Timestamp: time.Now()},
	}
	for _, turn := range turns {
		if err := h.Append(ctx, "u1", turn); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.Recent(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got))
	}
	if got[0].Role != "user" || got[1].Content != "He's hitting .310." {
		t.Fatalf("unexpected turns: %+v", got)
	}
}

func TestRedisHistoryTrimsToMax(t *testing.T) {
	h := testRedisHistory(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := h.Append(ctx, "u1", Turn{Role: "user", Content: string(rune('a' + i))}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := h.Recent(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected history trimmed to 3, got %d", len(got))
	}
	if got[0].Content != "d" || got[2].Content != "f" {
		t.Fatalf("expected the newest 3 entries, got %+v", got)
	}
}

func TestRedisHistoryClear(t *testing.T) {
	h := testRedisHistory(t, 10)
	ctx := context.Background()

	_ = h.Append(ctx, "u1", Turn{Role: "user", Content: "hi"})
	if err := h.Clear(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	got, err := h.Recent(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

func TestRedisHistoryIsolatesUsers(t *testing.T) {
	h := testRedisHistory(t, 10)
	ctx := context.Background()

	_ = h.Append(ctx, "u1", Turn{Role: "user", Content: "one"})
	_ = h.Append(ctx, "u2", Turn{Role: "user", Content: "two"})

	got, _ := h.Recent(ctx, "u1")
	if len(got) != 1 || got[0].Content != "one" {
		t.Fatalf("histories leaked between users: %+v", got)
	}
}

func TestMemoryHistoryTrimsAndExpires(t *testing.T) {
	h := NewMemoryHistory(50*time.Millisecond, 2)
	ctx := context.Background()

	for _, c := range []string{"a", "b", "c"} {
		_ = h.Append(ctx, "u1", Turn{Role: "user", Content: c})
	}
	got, _ := h.Recent(ctx, "u1")
	if len(got) != 2 || got[0].Content != "b" {
		t.Fatalf("expected trimmed history, got %+v", got)
	}

	time.Sleep(60 * time.Millisecond)
	got, _ = h.Recent(ctx, "u1")
	if len(got) != 0 {
		t.Fatalf("expected expired history, got %+v", got)
	}
}

func TestRender(t *testing.T) {
	if got := Render(nil); got != "(no prior conversation)" {
		t.Fatalf("got %q", got)
	}
	got := Render([]Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if !strings.Contains(got, "user: hi") || !strings.Contains(got, "assistant: hello") {
		t.Fatalf("got %q", got)
	}
}
