package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

// RawFilter is an equality filter as received on the wire, before typing.
type RawFilter struct {
	Column string
	Value  string
}

// TableService exposes owner-scoped CRUD over the topics and subtopics tables.
type TableService interface {
	// Columns validates a projection against table.
	Columns(table string, cols []string) error

	ListTopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) ([]model.Topic, error)
	InsertTopics(ctx context.Context, userID uuid.UUID, rows []convert.TopicRow) ([]model.Topic, error)
	UpdateTopics(ctx context.Context, userID uuid.UUID, patch convert.TopicPatch, filters []RawFilter) (int64, error)
	DeleteTopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) (int64, error)

	ListSubtopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) ([]model.Subtopic, error)
	InsertSubtopics(ctx context.Context, userID uuid.UUID, rows []convert.SubtopicRow) ([]model.Subtopic, error)
	UpdateSubtopics(ctx context.Context, userID uuid.UUID, patch convert.SubtopicPatch, filters []RawFilter) (int64, error)
	DeleteSubtopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) (int64, error)
}

type colKind int

const (
	kindInt colKind = iota
	kindUUID
	kindBool
	kindText
	kindTime
)

var schemas = map[string]map[string]colKind{
	convert.TableTopics: {
		convert.ColID:        kindInt,
		convert.ColTitle:     kindText,
		convert.ColCreatedAt: kindTime,
		convert.ColUserID:    kindUUID,
	},
	convert.TableSubtopics: {
		convert.ColID:        kindInt,
		convert.ColTitle:     kindText,
		convert.ColCompleted: kindBool,
		convert.ColTopicID:   kindInt,
		convert.ColUserID:    kindUUID,
		convert.ColURL:       kindText,
		convert.ColContent:   kindText,
	},
}

type TableServiceImpl struct {
	topics    repository.TopicRepository
	subtopics repository.SubtopicRepository
}

var _ TableService = (*TableServiceImpl)(nil)

// NewTableService constructs TableService.
func NewTableService(topics repository.TopicRepository, subtopics repository.SubtopicRepository) *TableServiceImpl {
	return &TableServiceImpl{topics: topics, subtopics: subtopics}
}

func schemaOf(table string) (map[string]colKind, error) {
	s, ok := schemas[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", errs.ErrNotFound, table)
	}
	return s, nil
}

func (s *TableServiceImpl) Columns(table string, cols []string) error {
	schema, err := schemaOf(table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if _, ok := schema[c]; !ok {
			return fmt.Errorf("%w: unknown column %q", errs.ErrValidation, c)
		}
	}
	return nil
}

// typedFilters converts raw filters using the column types of table.
func typedFilters(table string, raw []RawFilter) ([]repository.Filter, error) {
	schema, err := schemaOf(table)
	if err != nil {
		return nil, err
	}
	out := make([]repository.Filter, 0, len(raw))
	for _, f := range raw {
		kind, ok := schema[f.Column]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", errs.ErrValidation, f.Column)
		}
		v, err := parseValue(kind, f.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrValidation, f.Column, err)
		}
		out = append(out, repository.Filter{Column: f.Column, Value: v})
	}
	return out, nil
}

func parseValue(kind colKind, raw string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.ParseInt(raw, 10, 64)
	case kindBool:
		return strconv.ParseBool(raw)
	case kindUUID:
		id, err := uuid.FromString(raw)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	case kindTime:
		return time.Parse(time.RFC3339Nano, raw)
	default:
		return raw, nil
	}
}

// otherOwner reports whether a user_id filter names someone other than userID.
// Such a filter can never match under owner scoping.
func otherOwner(filters []repository.Filter, userID uuid.UUID) bool {
	for _, f := range filters {
		if f.Column == convert.ColUserID && f.Value != userID.String() {
			return true
		}
	}
	return false
}

func requireFilters(filters []RawFilter, op, table string) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: %s %s", errs.ErrMissingFilter, op, table)
	}
	return nil
}

func cleanTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", fmt.Errorf("%w: %v", errs.ErrValidation, errs.ErrEmptyTitle)
	}
	return t, nil
}

func (s *TableServiceImpl) ListTopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) ([]model.Topic, error) {
	f, err := typedFilters(convert.TableTopics, filters)
	if err != nil {
		return nil, err
	}
	if otherOwner(f, userID) {
		return []model.Topic{}, nil
	}
	return s.topics.ListTopics(ctx, userID, f)
}

// InsertTopics stores rows for userID; a user_id in the payload is ignored.
func (s *TableServiceImpl) InsertTopics(ctx context.Context, userID uuid.UUID, rows []convert.TopicRow) ([]model.Topic, error) {
	topics := make([]model.Topic, 0, len(rows))
	for i, r := range rows {
		title, err := cleanTitle(r.Title)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		topics = append(topics, model.Topic{Title: title, UserID: userID})
	}
	return s.topics.InsertTopics(ctx, userID, topics)
}

func (s *TableServiceImpl) UpdateTopics(ctx context.Context, userID uuid.UUID, patch convert.TopicPatch, filters []RawFilter) (int64, error) {
	if err := requireFilters(filters, "update", convert.TableTopics); err != nil {
		return 0, err
	}
	if patch.Empty() {
		return 0, fmt.Errorf("%w: empty patch", errs.ErrValidation)
	}
	f, err := typedFilters(convert.TableTopics, filters)
	if err != nil {
		return 0, err
	}
	title, err := cleanTitle(*patch.Title)
	if err != nil {
		return 0, err
	}
	if otherOwner(f, userID) {
		return 0, nil
	}
	return s.topics.UpdateTopics(ctx, userID, repository.Patch{convert.ColTitle: title}, f)
}

func (s *TableServiceImpl) DeleteTopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) (int64, error) {
	if err := requireFilters(filters, "delete", convert.TableTopics); err != nil {
		return 0, err
	}
	f, err := typedFilters(convert.TableTopics, filters)
	if err != nil {
		return 0, err
	}
	if otherOwner(f, userID) {
		return 0, nil
	}
	return s.topics.DeleteTopics(ctx, userID, f)
}

func (s *TableServiceImpl) ListSubtopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) ([]model.Subtopic, error) {
	f, err := typedFilters(convert.TableSubtopics, filters)
	if err != nil {
		return nil, err
	}
	if otherOwner(f, userID) {
		return []model.Subtopic{}, nil
	}
	return s.subtopics.ListSubtopics(ctx, userID, f)
}

// InsertSubtopics stores rows for userID. The parent topic must belong to the
// same user; otherwise the repository reports errs.ErrConflict.
func (s *TableServiceImpl) InsertSubtopics(ctx context.Context, userID uuid.UUID, rows []convert.SubtopicRow) ([]model.Subtopic, error) {
	subs := make([]model.Subtopic, 0, len(rows))
	for i, r := range rows {
		title, err := cleanTitle(r.Title)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if r.TopicID <= 0 {
			return nil, fmt.Errorf("row %d: %w: topic_id is required", i, errs.ErrValidation)
		}
		st := convert.ToSubtopic(r)
		st.ID = 0
		st.Title = title
		subs = append(subs, st)
	}
	return s.subtopics.InsertSubtopics(ctx, userID, subs)
}

func (s *TableServiceImpl) UpdateSubtopics(ctx context.Context, userID uuid.UUID, patch convert.SubtopicPatch, filters []RawFilter) (int64, error) {
	if err := requireFilters(filters, "update", convert.TableSubtopics); err != nil {
		return 0, err
	}
	if patch.Empty() {
		return 0, fmt.Errorf("%w: empty patch", errs.ErrValidation)
	}
	f, err := typedFilters(convert.TableSubtopics, filters)
	if err != nil {
		return 0, err
	}
	p := repository.Patch{}
	if patch.Title != nil {
		title, err := cleanTitle(*patch.Title)
		if err != nil {
			return 0, err
		}
		p[convert.ColTitle] = title
	}
	if patch.Completed != nil {
		p[convert.ColCompleted] = *patch.Completed
	}
	if patch.URL != nil {
		p[convert.ColURL] = strings.TrimSpace(*patch.URL)
	}
	if patch.Content != nil {
		p[convert.ColContent] = *patch.Content
	}
	if otherOwner(f, userID) {
		return 0, nil
	}
	return s.subtopics.UpdateSubtopics(ctx, userID, p, f)
}

func (s *TableServiceImpl) DeleteSubtopics(ctx context.Context, userID uuid.UUID, filters []RawFilter) (int64, error) {
	if err := requireFilters(filters, "delete", convert.TableSubtopics); err != nil {
		return 0, err
	}
	f, err := typedFilters(convert.TableSubtopics, filters)
	if err != nil {
		return 0, err
	}
	if otherOwner(f, userID) {
		return 0, nil
	}
	return s.subtopics.DeleteSubtopics(ctx, userID, f)
}
