// Package topics reads and writes topics and subtopics through the remote client.
package topics

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/aggregate"
	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/remote"
)

// Repository is the data accessor used by the state controller.
// Remote failures are returned unchanged (as *errs.RemoteError).
type Repository struct {
	c remote.Client
}

// NewRepository constructs a Repository over c.
func NewRepository(c remote.Client) *Repository {
	return &Repository{c: c}
}

// GetUserTopics returns every topic owned by userID.
func (r *Repository) GetUserTopics(ctx context.Context, userID uuid.UUID) ([]model.Topic, error) {
	rows, err := r.c.Topics().List(ctx, nil, remote.Eq(convert.ColUserID, userID))
	if err != nil {
		return nil, err
	}
	ts, err := convert.ToTopics(rows)
	if err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	return ts, nil
}

// ListSubtopics returns the whole subtopics table as visible to the caller.
func (r *Repository) ListSubtopics(ctx context.Context) ([]model.Subtopic, error) {
	rows, err := r.c.Subtopics().List(ctx, convert.SubtopicListColumns)
	if err != nil {
		return nil, err
	}
	return convert.ToSubtopics(rows), nil
}

// Load fetches topics and subtopics and joins them into the nested projection.
func (r *Repository) Load(ctx context.Context, userID uuid.UUID) ([]model.Topic, error) {
	ts, err := r.GetUserTopics(ctx, userID)
	if err != nil {
		return nil, err
	}
	subs, err := r.ListSubtopics(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.Aggregate(ts, subs), nil
}

// InsertTopic creates a topic owned by userID.
func (r *Repository) InsertTopic(ctx context.Context, userID uuid.UUID, title string) error {
	return r.c.Topics().Insert(ctx, convert.NewTopicRow(userID, title))
}

// UpdateTopicTitle renames topic id.
func (r *Repository) UpdateTopicTitle(ctx context.Context, id int64, title string) error {
	return r.c.Topics().Update(ctx, convert.TopicPatch{Title: &title}, remote.Eq(convert.ColID, id))
}

// DeleteTopic removes topic id; its subtopics go with it.
func (r *Repository) DeleteTopic(ctx context.Context, id int64) error {
	return r.c.Topics().Delete(ctx, remote.Eq(convert.ColID, id))
}

// SetSubtopicCompleted sets the completion flag of a subtopic owned by userID.
func (r *Repository) SetSubtopicCompleted(ctx context.Context, userID uuid.UUID, id int64, completed bool) error {
	return r.c.Subtopics().Update(ctx, convert.SubtopicPatch{Completed: &completed},
		remote.Eq(convert.ColID, id),
		remote.Eq(convert.ColUserID, userID),
	)
}

// InsertSubtopic creates an uncompleted subtopic owned by userID.
func (r *Repository) InsertSubtopic(ctx context.Context, userID uuid.UUID, in model.NewSubtopic) error {
	return r.c.Subtopics().Insert(ctx, convert.NewSubtopicRow(userID, in))
}
