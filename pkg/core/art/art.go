// Package art replaces project card placeholders with generated cover art.
//
// Every card is generated concurrently and independently: a failed request
// substitutes the card's deterministic placeholder and never affects the
// other cards.
package art

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/portfolio/pkg/core/content"
)

const defaultConcurrency = 4

// Outcome is how a card's image was produced.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeCached    Outcome = "cached"
	OutcomeFallback  Outcome = "fallback"
)

// Prompt builds the fixed cover art prompt for a project title.
func Prompt(title string) string {
	return fmt.Sprintf("Create a visually stunning, abstract, minimalist, premium piece of cover art for a software project. Theme: %s. Use a dark color palette with subtle, glowing accents, reminiscent of Apple's design aesthetic.", title)
}

// PlaceholderURL returns the deterministic placeholder image for a title.
func PlaceholderURL(title string) string {
	seed := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, title)
	return "https://picsum.photos/seed/" + url.PathEscape(seed) + "/400/200"
}

// Card is the presentation data of one project.
type Card struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tech        []string `json:"tech"`
	URL         string   `json:"url"`
	Image       string   `json:"image"`
	Outcome     Outcome  `json:"outcome,omitempty"`
}

// Cards returns the placeholder cards for a set of projects.
func Cards(projects []content.Project) []Card {
	out := make([]Card, 0, len(projects))
	for _, p := range projects {
		out = append(out, Card{
			Title:       p.Title,
			Description: p.Description,
			Tech:        append([]string(nil), p.Tech...),
			URL:         p.URL,
			Image:       PlaceholderURL(p.Title),
		})
	}
	return out
}

// Generator produces one image for a prompt as a data URI.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Options configure a Service. Zero values take defaults.
type Options struct {
	// Model namespaces cache keys.
	Model       string
	Cache       Cache
	Logger      *slog.Logger
	Concurrency int
	// Observe is called once per card with its outcome.
	Observe func(Outcome)
}

type Service struct {
	gen     Generator
	model   string
	cache   Cache
	logger  *slog.Logger
	limit   int
	observe func(Outcome)
}

func NewService(gen Generator, opts Options) *Service {
	s := &Service{
		gen:     gen,
		model:   opts.Model,
		cache:   opts.Cache,
		logger:  opts.Logger,
		limit:   opts.Concurrency,
		observe: opts.Observe,
	}
	if s.cache == nil {
		s.cache = noneCache{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.limit <= 0 {
		s.limit = defaultConcurrency
	}
	return s
}

// GenerateAll returns a copy of cards with each image replaced by generated art
// or, when generation fails, by the card's placeholder. Result order matches
// input order.
func (s *Service) GenerateAll(ctx context.Context, cards []Card) []Card {
	out := make([]Card, len(cards))
	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, c := range cards {
		g.Go(func() error {
			out[i] = s.generate(ctx, c)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) generate(ctx context.Context, c Card) Card {
	prompt := Prompt(c.Title)
	key := Key(s.model, prompt)

	if uri, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("art cache get failed", "title", c.Title, "error", err)
	} else if ok {
		return s.finish(c, uri, OutcomeCached)
	}

	if s.gen == nil {
		s.logger.Warn("art generation unavailable", "title", c.Title)
		return s.finish(c, PlaceholderURL(c.Title), OutcomeFallback)
	}
	uri, err := s.gen.GenerateImage(ctx, prompt)
	if err != nil {
		s.logger.Warn("art generation failed", "title", c.Title, "error", err)
		return s.finish(c, PlaceholderURL(c.Title), OutcomeFallback)
	}
	if err := s.cache.Put(ctx, key, uri); err != nil {
		s.logger.Warn("art cache put failed", "title", c.Title, "error", err)
	}
	return s.finish(c, uri, OutcomeGenerated)
}

func (s *Service) finish(c Card, image string, outcome Outcome) Card {
	c.Image = image
	c.Outcome = outcome
	if s.observe != nil {
		s.observe(outcome)
	}
	return c
}
