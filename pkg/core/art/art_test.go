package art

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vango-go/portfolio/pkg/core"
	"github.com/vango-go/portfolio/pkg/core/content"
)

type fakeGenerator struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	delay time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (g *fakeGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		m := g.maxInflight.Load()
		if n <= m || g.maxInflight.CompareAndSwap(m, n) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	g.calls = append(g.calls, prompt)
	g.mu.Unlock()
	for title := range g.fail {
		if strings.Contains(prompt, "Theme: "+title+".") {
			return "", core.NewImageGenerationError("boom", nil)
		}
	}
	return "data:image/jpeg;base64," + prompt[len(prompt)-4:], nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func threeCards() []Card {
	return Cards([]content.Project{
		{Title: "Grand Plaza", Tech: []string{"Go"}},
		{Title: "Neural Notes"},
		{Title: "Solar Sim"},
	})
}

func TestPrompt(t *testing.T) {
	p := Prompt("Grand Plaza")
	if !strings.Contains(p, "Theme: Grand Plaza.") || !strings.HasPrefix(p, "Create a visually stunning") {
		t.Fatalf("prompt=%q", p)
	}
}

func TestPlaceholderURL(t *testing.T) {
	if got := PlaceholderURL("Grand Plaza: Voice AI"); got != "https://picsum.photos/seed/GrandPlaza:VoiceAI/400/200" {
		t.Fatalf("got %q", got)
	}
	if got := PlaceholderURL("a/b\tc"); got != "https://picsum.photos/seed/a%2Fbc/400/200" {
		t.Fatalf("got %q", got)
	}
	if PlaceholderURL("X Y") != PlaceholderURL("X Y") {
		t.Fatalf("placeholder not deterministic")
	}
}

func TestCards_StartWithPlaceholders(t *testing.T) {
	cards := threeCards()
	for _, c := range cards {
		if c.Image != PlaceholderURL(c.Title) || c.Outcome != "" {
			t.Fatalf("card=%+v", c)
		}
	}
}

func TestGenerateAll_OneFailureFallsBackOnlyThatCard(t *testing.T) {
	gen := &fakeGenerator{fail: map[string]bool{"Neural Notes": true}}
	var outcomes sync.Map
	svc := NewService(gen, Options{
		Logger: discardLogger(),
		Observe: func(o Outcome) {
			v, _ := outcomes.LoadOrStore(o, new(atomic.Int32))
			v.(*atomic.Int32).Add(1)
		},
	})

	in := threeCards()
	out := svc.GenerateAll(context.Background(), in)
	if len(out) != 3 {
		t.Fatalf("len=%d", len(out))
	}
	for i, c := range out {
		if c.Title != in[i].Title {
			t.Fatalf("order changed at %d: %q", i, c.Title)
		}
	}
	if out[1].Image != PlaceholderURL("Neural Notes") || out[1].Outcome != OutcomeFallback {
		t.Fatalf("failed card=%+v", out[1])
	}
	for _, i := range []int{0, 2} {
		if !strings.HasPrefix(out[i].Image, "data:image/jpeg;base64,") || out[i].Outcome != OutcomeGenerated {
			t.Fatalf("card %d=%+v", i, out[i])
		}
	}
	if in[0].Image != PlaceholderURL(in[0].Title) {
		t.Fatalf("input mutated")
	}
	v, _ := outcomes.Load(OutcomeGenerated)
	if v == nil || v.(*atomic.Int32).Load() != 2 {
		t.Fatalf("generated outcomes not observed")
	}
}

func TestGenerateAll_BoundedConcurrency(t *testing.T) {
	gen := &fakeGenerator{delay: 20 * time.Millisecond}
	svc := NewService(gen, Options{Logger: discardLogger(), Concurrency: 2})

	cards := append(threeCards(), threeCards()...)
	svc.GenerateAll(context.Background(), cards)
	if got := gen.maxInflight.Load(); got > 2 {
		t.Fatalf("max inflight=%d", got)
	}
	if gen.callCount() != len(cards) {
		t.Fatalf("calls=%d", gen.callCount())
	}
}

func TestGenerateAll_MissingCredentialFallsBackEverywhere(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "", core.NewConfigMissingError("API_KEY environment variable not set", "API_KEY")
	})
	out := NewService(gen, Options{Logger: discardLogger()}).GenerateAll(context.Background(), threeCards())
	for _, c := range out {
		if c.Outcome != OutcomeFallback || c.Image != PlaceholderURL(c.Title) {
			t.Fatalf("card=%+v", c)
		}
	}
}

type generatorFunc func(context.Context, string) (string, error)

func (f generatorFunc) GenerateImage(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestGenerateAll_UsesCache(t *testing.T) {
	cache, err := NewCache(CacheTypeMemory)
	if err != nil {
		t.Fatal(err)
	}
	gen := &fakeGenerator{}
	svc := NewService(gen, Options{Model: "m", Cache: cache, Logger: discardLogger()})

	first := svc.GenerateAll(context.Background(), threeCards())
	second := svc.GenerateAll(context.Background(), threeCards())
	if gen.callCount() != 3 {
		t.Fatalf("calls=%d, want 3", gen.callCount())
	}
	for i := range second {
		if second[i].Outcome != OutcomeCached || second[i].Image != first[i].Image {
			t.Fatalf("card %d=%+v", i, second[i])
		}
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("down")
}
func (brokenCache) Put(context.Context, string, string) error { return errors.New("down") }
func (brokenCache) Close() error                              { return nil }

func TestGenerateAll_CacheFailureDoesNotFailCard(t *testing.T) {
	svc := NewService(&fakeGenerator{}, Options{Cache: brokenCache{}, Logger: discardLogger()})
	for _, c := range svc.GenerateAll(context.Background(), threeCards()) {
		if c.Outcome != OutcomeGenerated {
			t.Fatalf("card=%+v", c)
		}
	}
}

func TestGenerateAll_NilGenerator(t *testing.T) {
	out := NewService(nil, Options{Logger: discardLogger()}).GenerateAll(context.Background(), threeCards())
	for _, c := range out {
		if c.Outcome != OutcomeFallback {
			t.Fatalf("card=%+v", c)
		}
	}
}

func TestKey(t *testing.T) {
	a := Key("m1", "p")
	if a != Key("m1", "p") {
		t.Fatalf("key not deterministic")
	}
	if a == Key("m2", "p") || a == Key("m1", "q") {
		t.Fatalf("key collision")
	}
	if !strings.HasPrefix(a, "art:") || len(a) != len("art:")+64 {
		t.Fatalf("key=%q", a)
	}
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	c, _ := NewCache(CacheTypeMemory, WithMaxEntries(2))
	ctx := context.Background()
	_ = c.Put(ctx, "a", "1")
	_ = c.Put(ctx, "b", "2")
	_ = c.Put(ctx, "a", "1b")
	_ = c.Put(ctx, "c", "3")

	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Fatalf("b should be evicted")
	}
	if v, ok, _ := c.Get(ctx, "a"); !ok || v != "1b" {
		t.Fatalf("a=%q ok=%v", v, ok)
	}
	if n := c.(*memoryCache).len(); n != 2 {
		t.Fatalf("len=%d", n)
	}
	_ = c.Close()
	if err := c.Put(ctx, "d", "4"); err != nil {
		t.Fatalf("put after close: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "d"); ok {
		t.Fatalf("closed cache returned entry")
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	now := time.Unix(1000, 0)
	c, _ := NewCache(CacheTypeMemory, WithTTL(time.Minute), withClock(func() time.Time { return now }))
	ctx := context.Background()
	_ = c.Put(ctx, "k", "v")
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatalf("fresh entry missing")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expired entry returned")
	}
}

func TestNewCache_Validation(t *testing.T) {
	if _, err := NewCache("bogus"); !errors.Is(err, ErrInvalidCacheType) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewCache(CacheTypeRedis); !errors.Is(err, ErrInvalidCacheConfig) {
		t.Fatalf("err=%v", err)
	}
	if _, err := NewCache(CacheTypePostgres); !errors.Is(err, ErrInvalidCacheConfig) {
		t.Fatalf("err=%v", err)
	}
	c, err := NewCache(CacheTypeNone)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(context.Background(), "k"); ok {
		t.Fatalf("none cache hit")
	}
}

func TestRedisCache_UnreachableIsNonFatal(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	cache, err := NewCache(CacheTypeRedis, WithRedisClient(client))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	out := NewService(&fakeGenerator{}, Options{Cache: cache, Logger: discardLogger()}).
		GenerateAll(context.Background(), threeCards()[:1])
	if out[0].Outcome != OutcomeGenerated {
		t.Fatalf("card=%+v", out[0])
	}
}

func TestOpen_MemoryAndBadURLs(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, CacheConfig{Type: CacheTypeMemory, MaxEntries: 1})
	if err != nil {
		t.Fatal(err)
	}
	if c.(*memoryCache).max != 1 {
		t.Fatalf("max entries not applied")
	}
	if _, err := Open(ctx, CacheConfig{Type: CacheTypeRedis, URL: "://bad"}); err == nil {
		t.Fatalf("expected redis url error")
	}
	if _, err := Open(ctx, CacheConfig{Type: CacheTypePostgres, URL: "postgres://%zz"}); err == nil {
		t.Fatalf("expected postgres url error")
	}
}
