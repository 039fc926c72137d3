package pollqr_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/cache"
	"pollqr.local/internal/app/pollqr/events"
	"pollqr.local/internal/app/pollqr/render"
	"pollqr.local/internal/app/pollqr/signedlink"
)

// fakeRenderer records links and returns a cheap, link-dependent rendition.
type fakeRenderer struct {
	mu    sync.Mutex
	links []string
	err   error
}

func (r *fakeRenderer) Render(_ context.Context, link string) (render.RenderedQR, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return render.RenderedQR{}, r.err
	}
	r.links = append(r.links, link)
	return render.RenderedQR{DataURL: "data:image/png;base64,AAAA", SVG: "<svg>" + link + "</svg>"}, nil
}

func (r *fakeRenderer) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.links) == 0 {
		return ""
	}
	return r.links[len(r.links)-1]
}

type pollStore struct {
	polls map[string]pollqr.Visibility
	calls atomic.Int32
	err   error
}

func (p *pollStore) Lookup(_ context.Context, id string) (pollqr.Visibility, error) {
	p.calls.Add(1)
	if p.err != nil {
		return pollqr.Visibility{}, p.err
	}
	return p.polls[id], nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc      *pollqr.Service
	store    *pollStore
	renderer *fakeRenderer
	cache    *cache.QRCache
	clock    *clock
	signer   *signedlink.Signer
	events   *events.ChannelCollector
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	qc, err := cache.NewQRCache(16)
	require.NoError(t, err)

	f := &fixture{
		store:    &pollStore{polls: map[string]pollqr.Visibility{}},
		renderer: &fakeRenderer{},
		cache:    qc,
		clock:    clk,
		signer:   signedlink.New(secret, "https://polls.example.com", signedlink.WithClock(clk.Now)),
		events:   events.NewChannelCollector(64),
	}
	f.svc = pollqr.NewService(pollqr.Deps{
		Lookup:   f.store,
		Signer:   f.signer,
		Renderer: f.renderer,
		Cache:    qc,
		Hosts:    pollqr.NewHostValidator([]string{"localhost:3000", "polls.example.com"}, "polls.example.com"),
		Events:   f.events,
	}, pollqr.Options{Now: clk.Now})
	return f
}

func (f *fixture) addPoll(private bool) string {
	id := uuid.NewString()
	f.store.polls[id] = pollqr.Visibility{Exists: true, Private: private}
	return id
}

func ttl(s int64) *int64 { return &s }

func TestFetchOrGenerate_PublicThenCached(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	ctx := context.Background()

	res, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id, Host: "localhost:3000"})
	require.NoError(t, err)
	require.False(t, res.CacheHit)
	require.False(t, res.Private)
	require.True(t, res.LinkExpiresAt.IsZero())
	require.Equal(t, "https://localhost:3000/polls/"+id, f.renderer.last())

	again, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id, Host: "http://localhost:3000"})
	require.NoError(t, err)
	require.True(t, again.CacheHit)
	require.Equal(t, res.QR, again.QR)
	require.EqualValues(t, 1, f.store.calls.Load())

	_, ok := f.cache.Get(cache.Key(id, "localhost:3000"))
	require.True(t, ok)
}

func TestFetchOrGenerate_HostsCacheIndependently(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	ctx := context.Background()

	_, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id, Host: "localhost:3000"})
	require.NoError(t, err)
	_, err = f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id, Host: "polls.example.com"})
	require.NoError(t, err)

	require.Equal(t, 2, f.cache.Len())
	require.Equal(t, "https://polls.example.com/polls/"+id, f.renderer.last())
}

func TestFetchOrGenerate_UnknownHostFallsBack(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)

	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id, Host: "evil.example.net"})
	require.NoError(t, err)
	require.Equal(t, "https://polls.example.com/polls/"+id, f.renderer.last())

	_, err = f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.EqualValues(t, 1, f.store.calls.Load(), "empty host uses the same default slot")
}

func TestFetchOrGenerate_ValidationHappensBeforeIO(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)

	tests := []struct {
		name string
		req  pollqr.Request
		want error
	}{
		{"missing id", pollqr.Request{}, pollqr.ErrMissingPollID},
		{"bad id", pollqr.Request{PollID: "not-a-uuid"}, pollqr.ErrInvalidPollID},
		{"bad host", pollqr.Request{PollID: id, Host: "example.com/x"}, pollqr.ErrInvalidHost},
		{"zero ttl", pollqr.Request{PollID: id, TTLSeconds: ttl(0)}, pollqr.ErrInvalidTTL},
		{"negative ttl", pollqr.Request{PollID: id, TTLSeconds: ttl(-1)}, pollqr.ErrInvalidTTL},
		{"ttl over max", pollqr.Request{PollID: id, TTLSeconds: ttl(int64(pollqr.DefaultMaxLinkTTL/time.Second) + 1)}, pollqr.ErrInvalidTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.FetchOrGenerate(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, pollqr.ErrInvalidInput)

			_, err = f.svc.Regenerate(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}
	require.EqualValues(t, 0, f.store.calls.Load())
}

func TestFetchOrGenerate_UppercaseIDSharesSlot(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)

	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
	require.NoError(t, err)
	res, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: strings.ToUpper(id)})
	require.NoError(t, err)
	require.True(t, res.CacheHit)
}

func TestFetchOrGenerate_NotFound(t *testing.T) {
	f := newFixture(t, "k")
	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: uuid.NewString()})
	require.ErrorIs(t, err, pollqr.ErrPollNotFound)
	require.Equal(t, 0, f.cache.Len())
}

func TestFetchOrGenerate_LookupFailure(t *testing.T) {
	f := newFixture(t, "k")
	boom := errors.New("db down")
	f.store.err = boom

	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: uuid.NewString()})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, pollqr.ErrPollNotFound)
}

func TestFetchOrGenerate_RenderFailureNotCached(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	f.renderer.err = &render.RenderError{Op: render.OpSVG, Err: errors.New("encoder exploded")}

	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
	var re *render.RenderError
	require.ErrorAs(t, err, &re)
	require.Equal(t, render.OpSVG, re.Op)
	require.Equal(t, 0, f.cache.Len())
}

func TestFetchOrGenerate_PrivateUsesSignedLink(t *testing.T) {
	f := newFixture(t, "secret")
	id := f.addPoll(true)

	res, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id, Host: "localhost:3000", TTLSeconds: ttl(600)})
	require.NoError(t, err)
	require.True(t, res.Private)
	require.Equal(t, f.clock.Now().Add(600*time.Second), res.LinkExpiresAt)

	u, err := url.Parse(f.renderer.last())
	require.NoError(t, err)
	require.Equal(t, "polls.example.com", u.Host, "signed links always use the site base")
	require.Equal(t, "/polls/"+id, u.Path)

	p, ok := f.signer.Verify(u.Query().Get("token"), u.Query().Get("signature"))
	require.True(t, ok)
	require.Equal(t, id, p.PollID)
	require.Equal(t, res.LinkExpiresAt.UnixMilli(), p.ExpiresAtMillis)
}

func TestFetchOrGenerate_PrivateDefaultTTL(t *testing.T) {
	f := newFixture(t, "secret")
	id := f.addPoll(true)

	res, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().Add(pollqr.DefaultLinkTTL), res.LinkExpiresAt)
}

func TestFetchOrGenerate_PrivateWithoutKey(t *testing.T) {
	f := newFixture(t, "")
	private := f.addPoll(true)
	public := f.addPoll(false)

	_, err := f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: private})
	require.ErrorIs(t, err, signedlink.ErrMissingKey)

	_, err = f.svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: public})
	require.NoError(t, err, "missing key only affects private polls")
}

func TestFetchOrGenerate_StaleAfterFreshnessWindow(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	ctx := context.Background()

	_, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)

	f.clock.Advance(59 * time.Minute)
	res, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.True(t, res.CacheHit)

	f.clock.Advance(time.Minute)
	// The cache still holds the entry; the service treats it as a miss.
	_, ok := f.cache.Get(cache.Key(id, "polls.example.com"))
	require.True(t, ok)

	res, err = f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.False(t, res.CacheHit)
	require.EqualValues(t, 2, f.store.calls.Load())
}

func TestFetchOrGenerate_StaleWhenSignedLinkExpires(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(true)
	ctx := context.Background()

	_, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id, TTLSeconds: ttl(60)})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Second)
	res, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.True(t, res.CacheHit)

	f.clock.Advance(31 * time.Second)
	res, err = f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.False(t, res.CacheHit, "a cached code whose link is dead must not be served")
	require.True(t, res.LinkExpiresAt.After(f.clock.Now()))
}

func TestRegenerate_BypassesFreshCache(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	ctx := context.Background()

	first, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)

	res, err := f.svc.Regenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.True(t, res.Regenerated)
	require.False(t, res.CacheHit)
	require.Equal(t, first.QR, res.QR, "same link, same rendition")
	require.EqualValues(t, 2, f.store.calls.Load())
	require.Equal(t, 1, f.cache.Len())
}

func TestRegenerate_UnknownPollDropsEntry(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)
	ctx := context.Background()

	_, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: id})
	require.NoError(t, err)
	delete(f.store.polls, id)

	_, err = f.svc.Regenerate(ctx, pollqr.Request{PollID: id})
	require.ErrorIs(t, err, pollqr.ErrPollNotFound)
	require.Equal(t, 0, f.cache.Len())
}

func TestFetchOrGenerate_EmitsEventsOnlyWhenRendering(t *testing.T) {
	f := newFixture(t, "k")
	pub := f.addPoll(false)
	priv := f.addPoll(true)
	ctx := context.Background()

	_, err := f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: pub})
	require.NoError(t, err)
	_, err = f.svc.FetchOrGenerate(ctx, pollqr.Request{PollID: pub})
	require.NoError(t, err)
	_, err = f.svc.Regenerate(ctx, pollqr.Request{PollID: priv, TTLSeconds: ttl(120)})
	require.NoError(t, err)

	require.Len(t, f.events.Events(), 2)
	ev := <-f.events.Events()
	require.Equal(t, pub, ev.PollID)
	require.False(t, ev.Private)
	require.Nil(t, ev.LinkExpiresAt)

	ev = <-f.events.Events()
	require.Equal(t, priv, ev.PollID)
	require.True(t, ev.Regenerated)
	require.NotNil(t, ev.LinkExpiresAt)
	require.Equal(t, f.clock.Now().Add(120*time.Second), *ev.LinkExpiresAt)
}

func TestFetchOrGenerate_ConcurrentMissesShareOneRender(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)

	release := make(chan struct{})
	var calls atomic.Int32
	blocking := pollqr.VisibilityLookupFunc(func(ctx context.Context, pollID string) (pollqr.Visibility, error) {
		calls.Add(1)
		<-release
		return pollqr.Visibility{Exists: true}, nil
	})
	svc := pollqr.NewService(pollqr.Deps{
		Lookup:   blocking,
		Signer:   f.signer,
		Renderer: f.renderer,
		Cache:    f.cache,
		Hosts:    pollqr.NewHostValidator(nil, "polls.example.com"),
	}, pollqr.Options{Now: f.clock.Now})

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchOrGenerate_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(t, "k")
	id := f.addPoll(false)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	lookup := pollqr.VisibilityLookupFunc(func(ctx context.Context, pollID string) (pollqr.Visibility, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return pollqr.Visibility{Exists: true}, nil
		case <-ctx.Done():
			return pollqr.Visibility{}, ctx.Err()
		}
	})
	svc := pollqr.NewService(pollqr.Deps{
		Lookup:   lookup,
		Signer:   f.signer,
		Renderer: f.renderer,
		Cache:    f.cache,
		Hosts:    pollqr.NewHostValidator(nil, "polls.example.com"),
	}, pollqr.Options{Now: f.clock.Now})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.FetchOrGenerate(ctxA, pollqr.Request{PollID: id})
		errA <- err
	}()
	<-started

	errB := make(chan error, 1)
	go func() {
		_, err := svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
		errB <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	require.EqualValues(t, 1, calls.Load())

	res, err := svc.FetchOrGenerate(context.Background(), pollqr.Request{PollID: id})
	require.NoError(t, err)
	require.True(t, res.CacheHit, "the shared render was stored despite the cancellation")
}
