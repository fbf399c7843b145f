package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

var (
	topicColumns    = []string{convert.ColID, convert.ColTitle, convert.ColCreatedAt, convert.ColUserID}
	subtopicColumns = convert.SubtopicListColumns
)

type topicRow struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UserID    uuid.UUID `db:"user_id"`
}

type subtopicRow struct {
	ID        int64   `db:"id"`
	Title     string  `db:"title"`
	Completed bool    `db:"completed"`
	TopicID   int64   `db:"topic_id"`
	URL       *string `db:"url"`
	Content   *string `db:"content"`
}

func (r topicRow) model() model.Topic {
	return model.Topic{ID: r.ID, Title: r.Title, CreatedAt: r.CreatedAt, UserID: r.UserID, Subtopics: []model.Subtopic{}}
}

func (r subtopicRow) model() model.Subtopic {
	s := model.Subtopic{ID: r.ID, Title: r.Title, Completed: r.Completed, TopicID: r.TopicID}
	if r.URL != nil {
		s.URL = *r.URL
	}
	if r.Content != nil {
		s.Content = *r.Content
	}
	return s
}

// scoped merges filters with the owner predicate; the owner always wins.
func scoped(userID uuid.UUID, filters []repository.Filter) sq.Eq {
	eq := sq.Eq{}
	for _, f := range filters {
		eq[f.Column] = f.Value
	}
	eq[convert.ColUserID] = userID.String()
	return eq
}

// TableRepo implements TopicRepository and SubtopicRepository.
type TableRepo struct{ db *DB }

var (
	_ repository.TopicRepository    = (*TableRepo)(nil)
	_ repository.SubtopicRepository = (*TableRepo)(nil)
)

// NewTableRepo constructs the topics/subtopics repository.
func NewTableRepo(db *DB) *TableRepo { return &TableRepo{db: db} }

// ListTopics returns the owner's topics in creation order.
func (r *TableRepo) ListTopics(ctx context.Context, userID uuid.UUID, filters []repository.Filter) ([]model.Topic, error) {
	q, args, err := psql.Select(topicColumns...).From(convert.TableTopics).
		Where(scoped(userID, filters)).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []topicRow
	if err := pgxscan.Select(ctx, r.db.Pool, &rows, q, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]model.Topic, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// InsertTopics inserts topics owned by userID and returns the stored rows.
func (r *TableRepo) InsertTopics(ctx context.Context, userID uuid.UUID, topics []model.Topic) ([]model.Topic, error) {
	if len(topics) == 0 {
		return []model.Topic{}, nil
	}
	ins := psql.Insert(convert.TableTopics).Columns(convert.ColTitle, convert.ColUserID)
	for _, t := range topics {
		ins = ins.Values(t.Title, userID)
	}
	q, args, err := ins.Suffix("RETURNING id, title, created_at, user_id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []topicRow
	if err := pgxscan.Select(ctx, r.db.Pool, &rows, q, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]model.Topic, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// UpdateTopics applies patch to the owner's topics matching filters.
func (r *TableRepo) UpdateTopics(ctx context.Context, userID uuid.UUID, patch repository.Patch, filters []repository.Filter) (int64, error) {
	return r.update(ctx, convert.TableTopics, userID, patch, filters)
}

// DeleteTopics removes the owner's topics matching filters; subtopics cascade.
func (r *TableRepo) DeleteTopics(ctx context.Context, userID uuid.UUID, filters []repository.Filter) (int64, error) {
	return r.delete(ctx, convert.TableTopics, userID, filters)
}

// ListSubtopics returns the owner's subtopics in insertion order.
func (r *TableRepo) ListSubtopics(ctx context.Context, userID uuid.UUID, filters []repository.Filter) ([]model.Subtopic, error) {
	q, args, err := psql.Select(subtopicColumns...).From(convert.TableSubtopics).
		Where(scoped(userID, filters)).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []subtopicRow
	if err := pgxscan.Select(ctx, r.db.Pool, &rows, q, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]model.Subtopic, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// InsertSubtopics inserts subtopics owned by userID. A topic_id the owner does
// not own violates the composite foreign key and yields errs.ErrConflict.
func (r *TableRepo) InsertSubtopics(ctx context.Context, userID uuid.UUID, subs []model.Subtopic) ([]model.Subtopic, error) {
	if len(subs) == 0 {
		return []model.Subtopic{}, nil
	}
	ins := psql.Insert(convert.TableSubtopics).Columns(
		convert.ColTitle, convert.ColCompleted, convert.ColTopicID,
		convert.ColUserID, convert.ColURL, convert.ColContent,
	)
	for _, s := range subs {
		ins = ins.Values(s.Title, s.Completed, s.TopicID, userID, s.URL, s.Content)
	}
	q, args, err := ins.Suffix("RETURNING id, title, completed, topic_id, url, content").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []subtopicRow
	if err := pgxscan.Select(ctx, r.db.Pool, &rows, q, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]model.Subtopic, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// UpdateSubtopics applies patch to the owner's subtopics matching filters.
func (r *TableRepo) UpdateSubtopics(ctx context.Context, userID uuid.UUID, patch repository.Patch, filters []repository.Filter) (int64, error) {
	return r.update(ctx, convert.TableSubtopics, userID, patch, filters)
}

// DeleteSubtopics removes the owner's subtopics matching filters.
func (r *TableRepo) DeleteSubtopics(ctx context.Context, userID uuid.UUID, filters []repository.Filter) (int64, error) {
	return r.delete(ctx, convert.TableSubtopics, userID, filters)
}

func (r *TableRepo) update(ctx context.Context, table string, userID uuid.UUID, patch repository.Patch, filters []repository.Filter) (int64, error) {
	q, args, err := psql.Update(table).SetMap(patch).Where(scoped(userID, filters)).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *TableRepo) delete(ctx context.Context, table string, userID uuid.UUID, filters []repository.Filter) (int64, error) {
	q, args, err := psql.Delete(table).Where(scoped(userID, filters)).ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return tag.RowsAffected(), nil
}
