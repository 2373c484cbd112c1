// Package composer assembles the dashboard view model from the feed and the
// record store.
package composer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dashd/dashd/internal/feed"
	"github.com/dashd/dashd/internal/storage"
)

const (
	defaultHeadlineLimit = 8
	defaultNotesLimit    = 8
)

// HeadlineSource fetches headlines. Implementations absorb their own
// failures and return an empty slice instead.
type HeadlineSource interface {
	FetchHeadlines(ctx context.Context, query string, limit int) []feed.Item
}

// RecordSource lists the persisted records shown on the dashboard.
type RecordSource interface {
	ListNotes(ctx context.Context, limit int) ([]storage.Note, error)
	ListTodos(ctx context.Context) ([]storage.Todo, error)
	ListAssets(ctx context.Context) ([]storage.AssetRecord, error)
}

// Options tunes what a view contains.
type Options struct {
	Query         string
	HeadlineLimit int
	NotesLimit    int
}

// Headline is a feed item with its display text resolved.
type Headline struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source,omitempty"`
}

// View is the read model rendered by the presentation layer. Slices are never
// nil.
type View struct {
	Headlines   []Headline            `json:"headlines"`
	Notes       []storage.Note        `json:"notes"`
	Todos       []storage.Todo        `json:"todos"`
	Assets      []storage.AssetRecord `json:"assets"`
	GeneratedAt time.Time             `json:"generated_at"`
}

type Composer struct {
	headlines HeadlineSource
	records   RecordSource
	opts      Options
	now       func() time.Time
}

func New(headlines HeadlineSource, records RecordSource, opts Options) *Composer {
	if opts.HeadlineLimit <= 0 {
		opts.HeadlineLimit = defaultHeadlineLimit
	}
	if opts.NotesLimit <= 0 {
		opts.NotesLimit = defaultNotesLimit
	}
	return &Composer{headlines: headlines, records: records, opts: opts, now: time.Now}
}

// Compose fetches every source concurrently. A store failure fails the whole
// view and cancels the other reads; the feed cannot fail it.
func (c *Composer) Compose(ctx context.Context) (View, error) {
	var (
		items  []feed.Item
		notes  []storage.Note
		todos  []storage.Todo
		assets []storage.AssetRecord
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items = c.headlines.FetchHeadlines(gCtx, c.opts.Query, c.opts.HeadlineLimit)
		return nil
	})
	g.Go(func() error {
		var err error
		notes, err = c.records.ListNotes(gCtx, c.opts.NotesLimit)
		if err != nil {
			return fmt.Errorf("listing notes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		todos, err = c.records.ListTodos(gCtx)
		if err != nil {
			return fmt.Errorf("listing todos: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		assets, err = c.records.ListAssets(gCtx)
		if err != nil {
			return fmt.Errorf("listing assets: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return View{}, err
	}

	v := View{
		Headlines:   Headlines(items),
		Notes:       notes,
		Todos:       todos,
		Assets:      assets,
		GeneratedAt: c.now().UTC(),
	}
	if v.Notes == nil {
		v.Notes = []storage.Note{}
	}
	if v.Todos == nil {
		v.Todos = []storage.Todo{}
	}
	if v.Assets == nil {
		v.Assets = []storage.AssetRecord{}
	}
	return v, nil
}

// Headlines resolves the display text of each item.
func Headlines(items []feed.Item) []Headline {
	out := make([]Headline, 0, len(items))
	for _, it := range items {
		out = append(out, Headline{Text: it.Headline(), Title: it.Title, Link: it.Link, Source: it.Source})
	}
	return out
}
