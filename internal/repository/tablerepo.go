package repository

import (
	"context"

	"github.com/and161185/topiclist/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Filter is an equality predicate on a validated column with a typed value.
type Filter struct {
	Column string
	Value  any
}

// Patch maps validated column names to their new values.
type Patch map[string]any

// TopicRepository stores topics. Every call is scoped to the owner userID.
type TopicRepository interface {
	ListTopics(ctx context.Context, userID uuid.UUID, filters []Filter) ([]model.Topic, error)
	InsertTopics(ctx context.Context, userID uuid.UUID, topics []model.Topic) ([]model.Topic, error)
	// UpdateTopics and DeleteTopics return the number of affected rows.
	UpdateTopics(ctx context.Context, userID uuid.UUID, patch Patch, filters []Filter) (int64, error)
	DeleteTopics(ctx context.Context, userID uuid.UUID, filters []Filter) (int64, error)
}

// SubtopicRepository stores subtopics. Every call is scoped to the owner userID.
type SubtopicRepository interface {
	ListSubtopics(ctx context.Context, userID uuid.UUID, filters []Filter) ([]model.Subtopic, error)
	InsertSubtopics(ctx context.Context, userID uuid.UUID, subs []model.Subtopic) ([]model.Subtopic, error)
	UpdateSubtopics(ctx context.Context, userID uuid.UUID, patch Patch, filters []Filter) (int64, error)
	DeleteSubtopics(ctx context.Context, userID uuid.UUID, filters []Filter) (int64, error)
}
