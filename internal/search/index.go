// Package search provides full-text search over the topic projection.
package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/and161185/topiclist/internal/model"
)

// Document kinds.
const (
	KindTopic    = "topic"
	KindSubtopic = "subtopic"
)

// Index is an in-memory Bleve index built from one projection snapshot.
type Index struct {
	index bleve.Index
}

// document is what gets indexed for topics and subtopics alike.
type document struct {
	Kind    string
	Title   string
	Content string
	URL     string
	TopicID float64
}

// Hit is one search result.
type Hit struct {
	Kind       string
	TopicID    int64
	SubtopicID int64 // 0 for topic hits
	Title      string
	Score      float64
}

// Build indexes every topic and subtopic of ts.
func Build(ts []model.Topic) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, t := range ts {
		if err := batch.Index(docID(KindTopic, t.ID), document{Kind: KindTopic, Title: t.Title, TopicID: float64(t.ID)}); err != nil {
			return nil, fmt.Errorf("index topic %d: %w", t.ID, err)
		}
		for _, s := range t.Subtopics {
			doc := document{Kind: KindSubtopic, Title: s.Title, Content: s.Content, URL: s.URL, TopicID: float64(t.ID)}
			if err := batch.Index(docID(KindSubtopic, s.ID), doc); err != nil {
				return nil, fmt.Errorf("index subtopic %d: %w", s.ID, err)
			}
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("Kind", keyword)
	doc.AddFieldMappingsAt("Title", text)
	doc.AddFieldMappingsAt("Content", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("URL", bleve.NewTextFieldMapping())
	doc.AddFieldMappingsAt("TopicID", bleve.NewNumericFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Search runs a query-string query (supports phrases, +/- and fuzzy ~).
// An empty query returns no hits.
func (i *Index) Search(q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(q), limit, 0, false)
	req.Fields = []string{"Kind", "Title", "TopicID"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		kind, id, err := parseDocID(h.ID)
		if err != nil {
			return nil, err
		}
		hit := Hit{Kind: kind, Score: h.Score}
		if title, ok := h.Fields["Title"].(string); ok {
			hit.Title = title
		}
		if tid, ok := h.Fields["TopicID"].(float64); ok {
			hit.TopicID = int64(tid)
		}
		if kind == KindSubtopic {
			hit.SubtopicID = id
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) { return i.index.DocCount() }

// Close releases the index.
func (i *Index) Close() error { return i.index.Close() }

func docID(kind string, id int64) string { return kind + ":" + strconv.FormatInt(id, 10) }

func parseDocID(s string) (string, int64, error) {
	kind, raw, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("bad document id %q", s)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad document id %q: %w", s, err)
	}
	return kind, id, nil
}
