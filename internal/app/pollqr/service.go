package pollqr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"pollqr.local/internal/app/pollqr/cache"
	"pollqr.local/internal/app/pollqr/events"
	"pollqr.local/internal/app/pollqr/render"
	"pollqr.local/internal/platform/metrics"
)

const (
	DefaultFreshness  = time.Hour
	DefaultLinkTTL    = 24 * time.Hour
	DefaultMaxLinkTTL = 30 * 24 * time.Hour
)

// LinkSigner issues signed links for private polls.
type LinkSigner interface {
	IssueAt(pollID string, expiresAt time.Time) (string, error)
}

// QRRenderer turns a link into both encodings.
type QRRenderer interface {
	Render(ctx context.Context, link string) (render.RenderedQR, error)
}

type Deps struct {
	Lookup   VisibilityLookup
	Signer   LinkSigner
	Renderer QRRenderer
	Cache    *cache.QRCache
	Hosts    *HostValidator
	Events   events.Collector // optional
}

type Options struct {
	Freshness  time.Duration
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Now        func() time.Time
}

// Request asks for the code of one poll as seen from Host. TTLSeconds, when
// set, overrides the signed-link lifetime for private polls.
type Request struct {
	PollID     string
	Host       string
	TTLSeconds *int64
}

type Result struct {
	QR            render.RenderedQR
	Private       bool
	CacheHit      bool
	Regenerated   bool
	LinkExpiresAt time.Time // zero for public polls
}

type Service struct {
	lookup   VisibilityLookup
	signer   LinkSigner
	renderer QRRenderer
	cache    *cache.QRCache
	hosts    *HostValidator
	events   events.Collector

	freshness  time.Duration
	defaultTTL time.Duration
	maxTTL     time.Duration
	now        func() time.Time

	group  singleflight.Group
	tracer trace.Tracer
}

func NewService(d Deps, opts Options) *Service {
	s := &Service{
		lookup:     d.Lookup,
		signer:     d.Signer,
		renderer:   d.Renderer,
		cache:      d.Cache,
		hosts:      d.Hosts,
		events:     d.Events,
		freshness:  opts.Freshness,
		defaultTTL: opts.DefaultTTL,
		maxTTL:     opts.MaxTTL,
		now:        opts.Now,
		tracer:     otel.Tracer("pollqr.local/internal/app/pollqr"),
	}
	if s.freshness <= 0 {
		s.freshness = DefaultFreshness
	}
	if s.defaultTTL <= 0 {
		s.defaultTTL = DefaultLinkTTL
	}
	if s.maxTTL <= 0 {
		s.maxTTL = DefaultMaxLinkTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.hosts == nil {
		s.hosts = NewHostValidator(nil, "")
	}
	return s
}

type input struct {
	pollID string
	host   string
	key    string
	ttl    time.Duration
}

func (s *Service) prepare(req Request) (input, error) {
	if req.PollID == "" {
		return input{}, ErrMissingPollID
	}
	if !ValidateIdentifier(req.PollID) {
		return input{}, ErrInvalidPollID
	}
	// Upper- and lower-case spellings of one id share a cache slot.
	pollID := strings.ToLower(req.PollID)

	host := s.hosts.Default()
	if req.Host != "" {
		if err := CheckHost(req.Host); err != nil {
			return input{}, err
		}
		host = s.hosts.Validate(req.Host)
	}

	ttl := s.defaultTTL
	if req.TTLSeconds != nil {
		secs := *req.TTLSeconds
		if secs <= 0 || secs > int64(s.maxTTL/time.Second) {
			return input{}, ErrInvalidTTL
		}
		ttl = time.Duration(secs) * time.Second
	}

	return input{pollID: pollID, host: host, key: cache.Key(pollID, host), ttl: ttl}, nil
}

// FetchOrGenerate returns the cached code when fresh, otherwise renders a
// new one. Concurrent misses for one key share a single render.
func (s *Service) FetchOrGenerate(ctx context.Context, req Request) (Result, error) {
	in, err := s.prepare(req)
	if err != nil {
		return Result{}, err
	}

	if e, ok := s.cache.Get(in.key); ok {
		if e.Fresh(s.now(), s.freshness) {
			metrics.CacheOperations.WithLabelValues("qr", "hit").Inc()
			return Result{QR: e.Value, Private: e.Private, CacheHit: true, LinkExpiresAt: e.LinkExpiresAt}, nil
		}
		metrics.CacheOperations.WithLabelValues("qr", "stale").Inc()
	} else {
		metrics.CacheOperations.WithLabelValues("qr", "miss").Inc()
	}

	// The shared render must outlive any single caller; each caller only
	// gives up its own wait when its context ends.
	ch := s.group.DoChan(in.key, func() (any, error) {
		return s.generate(context.WithoutCancel(ctx), in, false)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// Regenerate drops any cached code for the key and renders a new one,
// regardless of freshness.
func (s *Service) Regenerate(ctx context.Context, req Request) (Result, error) {
	in, err := s.prepare(req)
	if err != nil {
		return Result{}, err
	}
	s.cache.Delete(in.key)
	s.group.Forget(in.key)
	return s.generate(ctx, in, true)
}

func (s *Service) generate(ctx context.Context, in input, regenerate bool) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "pollqr.generate", trace.WithAttributes(
		attribute.String("poll.id", in.pollID),
		attribute.String("poll.host", in.host),
		attribute.Bool("qr.regenerate", regenerate),
	))
	defer span.End()

	vis, err := s.lookup.Lookup(ctx, in.pollID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "visibility lookup")
		return Result{}, fmt.Errorf("lookup poll visibility: %w", err)
	}
	if !vis.Exists {
		return Result{}, ErrPollNotFound
	}
	span.SetAttributes(attribute.Bool("poll.private", vis.Private))

	now := s.now()
	var link string
	var linkExpiresAt time.Time
	if vis.Private {
		linkExpiresAt = now.Add(in.ttl)
		link, err = s.signer.IssueAt(in.pollID, linkExpiresAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "issue signed link")
			return Result{}, fmt.Errorf("issue signed link: %w", err)
		}
	} else {
		link = BuildPublicURL(in.host, in.pollID)
	}

	qr, err := s.renderer.Render(ctx, link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		return Result{}, err
	}

	s.cache.Set(in.key, cache.Entry{
		Value:         qr,
		Private:       vis.Private,
		CreatedAt:     now,
		LinkExpiresAt: linkExpiresAt,
	})

	visibility := "public"
	if vis.Private {
		visibility = "private"
	}
	metrics.QRGenerations.WithLabelValues(visibility).Inc()

	if s.events != nil {
		ev := events.IssuedEvent{
			PollID:      in.pollID,
			Host:        in.host,
			Private:     vis.Private,
			Regenerated: regenerate,
			IssuedAt:    now,
		}
		if vis.Private {
			exp := linkExpiresAt
			ev.LinkExpiresAt = &exp
		}
		s.events.Collect(ev)
	}

	slog.InfoContext(ctx, "qr generated",
		"poll_id", in.pollID,
		"host", in.host,
		"private", vis.Private,
		"regenerated", regenerate,
	)
	return Result{QR: qr, Private: vis.Private, Regenerated: regenerate, LinkExpiresAt: linkExpiresAt}, nil
}
