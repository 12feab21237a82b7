// Package processing turns a keyword into the reply the bot sends back.
package processing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"shopbot/internal/model"
	"shopbot/internal/paapi"
	"shopbot/internal/reply"
)

// ProductSearcher is satisfied by *paapi.Client.
type ProductSearcher interface {
	SearchItems(ctx context.Context, req paapi.SearchRequest) ([]model.Item, error)
}

// Shortener is satisfied by the shortener package types.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

var (
	categoryResources = []string{paapi.ResourceBrowseNodes}
	detailResources   = []string{
		paapi.ResourceTitle,
		paapi.ResourceLargeImage,
		paapi.ResourceListPrice,
		paapi.ResourceLowestPrice,
	}
)

// Result is the reply for one keyword plus the number of items it shows.
type Result struct {
	Message reply.Message
	Items   int
}

// Service runs the two-step product lookup and builds the reply.
type Service struct {
	search  ProductSearcher
	shorten Shortener
	log     zerolog.Logger
}

// NewService panics on nil collaborators.
func NewService(search ProductSearcher, shorten Shortener, log zerolog.Logger) *Service {
	if search == nil || shorten == nil {
		panic("processing.NewService: nil dependency")
	}
	return &Service{search: search, shorten: shorten, log: log}
}

// SearchAndBuildReply looks up the keyword's category from the first hit,
// searches again within it and renders up to reply.MaxCards items. An empty
// result, or a keyword that is only whitespace, yields the "no results" text
// message with Items == 0.
func (s *Service) SearchAndBuildReply(ctx context.Context, keyword string) (Result, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return Result{Message: reply.NoResults(keyword)}, nil
	}

	first, err := s.search.SearchItems(ctx, paapi.SearchRequest{
		Keywords:  keyword,
		Resources: categoryResources,
	})
	if err != nil {
		return Result{}, fmt.Errorf("category lookup: %w", err)
	}
	if len(first) == 0 {
		return Result{Message: reply.NoResults(keyword)}, nil
	}

	categoryID := first[0].CategoryID()
	if categoryID == "" {
		s.log.Debug().Str("keyword", keyword).Msg("first hit has no browse node, searching without category")
	}

	items, err := s.search.SearchItems(ctx, paapi.SearchRequest{
		Keywords:     keyword,
		BrowseNodeID: categoryID,
		Resources:    detailResources,
		ItemCount:    reply.MaxCards,
	})
	if err != nil {
		return Result{}, fmt.Errorf("item search: %w", err)
	}
	if len(items) == 0 {
		return Result{Message: reply.NoResults(keyword)}, nil
	}
	if len(items) > reply.MaxCards {
		items = items[:reply.MaxCards]
	}

	cards := make([]reply.Bubble, 0, len(items))
	for i, item := range items {
		cards = append(cards, s.buildCard(ctx, item, i+1))
	}
	return Result{Message: reply.BuildCarousel(cards), Items: len(cards)}, nil
}

// buildCard shortens the detail URL and renders the bubble. A shortener
// failure keeps the long URL.
func (s *Service) buildCard(ctx context.Context, item model.Item, rank int) reply.Bubble {
	link, err := s.shorten.Shorten(ctx, item.DetailURL)
	if err != nil {
		s.log.Warn().Err(err).Str("asin", item.ASIN).Msg("shorten failed, using detail url")
		link = item.DetailURL
	}
	return reply.BuildCard(item, rank, link)
}
