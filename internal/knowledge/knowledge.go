// Package knowledge is the financial knowledge base consulted when advice is
// generated. Articles are held in an embedded chromem collection, optionally
// persisted to disk.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"bankguard/internal/memory/embedding"
	dErrors "bankguard/pkg/domain-errors"
)

const collectionName = "financial_knowledge"

// Article is one unit of knowledge. ID is stable across reseeds.
type Article struct {
	ID       string `yaml:"id"`
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
	Content  string `yaml:"content"`
}

// Text is the form rendered into model context.
func (a Article) Text() string {
	if a.Title == "" {
		return a.Content
	}
	return a.Title + ": " + a.Content
}

type Match struct {
	Article    Article
	Similarity float32
}

type Base struct {
	collection *chromem.Collection
	logger     *slog.Logger
}

type Option func(*options)

type options struct {
	path     string
	compress bool
	logger   *slog.Logger
}

// WithPersistence stores the collection under path.
func WithPersistence(path string, compress bool) Option {
	return func(o *options) {
		o.path = path
		o.compress = compress
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New opens the knowledge base. Embeddings come from embedder so articles and
// queries share one vector space.
func New(embedder embedding.Embedder, opts ...Option) (*Base, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	db := chromem.NewDB()
	if o.path != "" {
		var err error
		db, err = chromem.NewPersistentDB(o.path, o.compress)
		if err != nil {
			return nil, fmt.Errorf("open knowledge base %s: %w", o.path, err)
		}
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(embedder.Embed))
	if err != nil {
		return nil, fmt.Errorf("open knowledge collection: %w", err)
	}
	return &Base{collection: collection, logger: o.logger}, nil
}

// Add upserts articles by id.
func (b *Base) Add(ctx context.Context, articles ...Article) error {
	if len(articles) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(articles))
	for _, a := range articles {
		a.ID = strings.TrimSpace(a.ID)
		a.Content = strings.TrimSpace(a.Content)
		if a.ID == "" || a.Content == "" {
			return dErrors.New(dErrors.CodeValidation, "article id and content are required")
		}
		docs = append(docs, chromem.Document{
			ID:      a.ID,
			Content: a.Content,
			Metadata: map[string]string{
				"title":    a.Title,
				"category": a.Category,
			},
		})
	}
	if err := b.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add knowledge articles: %w", err)
	}
	b.logger.InfoContext(ctx, "knowledge articles added", "count", len(docs), "total", b.collection.Count())
	return nil
}

func (b *Base) Count() int {
	return b.collection.Count()
}

// Search returns up to topK articles most similar to text, best first.
func (b *Base) Search(ctx context.Context, text string, topK int) ([]Match, error) {
	if strings.TrimSpace(text) == "" || topK <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "search text and a positive topK are required")
	}
	// chromem rejects nResults above the collection size.
	n := min(topK, b.collection.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := b.collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query knowledge base: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			Article: Article{
				ID:       r.ID,
				Title:    r.Metadata["title"],
				Category: r.Metadata["category"],
				Content:  r.Content,
			},
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}
