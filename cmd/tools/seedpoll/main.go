// Command seedpoll inserts a poll row for local testing, or flips the
// visibility of an existing one with -id.
//
//	go run ./cmd/tools/seedpoll -title "Lunch?" -private
//	go run ./cmd/tools/seedpoll -id <uuid> -private=false
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"pollqr.local/internal/app/pollqr"
	"pollqr.local/internal/app/pollqr/cache"
	"pollqr.local/internal/app/pollqr/repo"
	platformcache "pollqr.local/internal/platform/cache"
	"pollqr.local/internal/platform/config"
	"pollqr.local/internal/platform/db"
)

func main() {
	title := flag.String("title", "Untitled poll", "poll title")
	private := flag.Bool("private", false, "mark the poll private")
	id := flag.String("id", "", "existing poll id to update instead of inserting")
	flag.Parse()

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DBDSN, 3*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	// Only L2 matters here; the API's L1 entries expire on their own.
	var vis *cache.VisibilityCache
	rdb, err := platformcache.NewRedisClient(ctx, platformcache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, time.Second)
	if err != nil {
		log.Printf("redis unavailable, cached visibility not invalidated: %v", err)
	} else {
		vis = cache.NewVisibilityCache(rdb, nil)
	}
	defer rdb.Close()

	polls := repo.NewPollsRepo(pool, vis)

	if *id != "" {
		if !pollqr.ValidateIdentifier(*id) {
			log.Fatalf("invalid poll id %q", *id)
		}
		if err := polls.SetPrivate(ctx, *id, *private); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s private=%t\n", *id, *private)
		return
	}

	p, err := polls.Create(ctx, repo.Poll{ID: uuid.NewString(), Title: *title, Private: *private})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s private=%t created_at=%s\n", p.ID, p.Private, p.CreatedAt.Format(time.RFC3339))
}
