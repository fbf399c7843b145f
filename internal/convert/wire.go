// Package convert holds the JSON wire rows of the table/auth protocol and maps them to domain types.
package convert

import (
	"fmt"
	"strings"
	"time"

	model "github.com/and161185/topiclist/internal/model"
	u "github.com/gofrs/uuid/v5"
)

// Table and column names shared by client and server.
const (
	TableTopics    = "topics"
	TableSubtopics = "subtopics"

	ColID        = "id"
	ColTitle     = "title"
	ColCreatedAt = "created_at"
	ColUserID    = "user_id"
	ColCompleted = "completed"
	ColTopicID   = "topic_id"
	ColURL       = "url"
	ColContent   = "content"
)

// SubtopicListColumns is the projection the client requests for subtopics.
var SubtopicListColumns = []string{ColID, ColTitle, ColCompleted, ColTopicID, ColURL, ColContent}

// TopicRow is a topics row as sent over the wire.
type TopicRow struct {
	ID        int64      `json:"id,omitempty"`
	Title     string     `json:"title"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
}

// SubtopicRow is a subtopics row as sent over the wire. url/content are nullable.
type SubtopicRow struct {
	ID        int64   `json:"id,omitempty"`
	Title     string  `json:"title"`
	Completed bool    `json:"completed"`
	TopicID   int64   `json:"topic_id"`
	URL       *string `json:"url"`
	Content   *string `json:"content"`
	UserID    string  `json:"user_id,omitempty"`
}

// TopicPatch is the partial update accepted for topics.
type TopicPatch struct {
	Title *string `json:"title,omitempty"`
}

// SubtopicPatch is the partial update accepted for subtopics.
type SubtopicPatch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	URL       *string `json:"url,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p TopicPatch) Empty() bool { return p.Title == nil }

// Empty reports whether the patch sets no field.
func (p SubtopicPatch) Empty() bool {
	return p.Title == nil && p.Completed == nil && p.URL == nil && p.Content == nil
}

// --- helpers ---

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseOwner(s string) (u.UUID, error) {
	if s == "" {
		return u.Nil, nil
	}
	id, err := u.FromString(s)
	if err != nil {
		return u.Nil, fmt.Errorf("invalid user_id: %w", err)
	}
	return id, nil
}

func ownerString(id u.UUID) string {
	if id == u.Nil {
		return ""
	}
	return id.String()
}

// --- topics ---

// ToTopic converts a wire row to a domain topic with an empty subtopic list.
func ToTopic(r TopicRow) (model.Topic, error) {
	owner, err := parseOwner(r.UserID)
	if err != nil {
		return model.Topic{}, err
	}
	t := model.Topic{ID: r.ID, Title: r.Title, UserID: owner, Subtopics: []model.Subtopic{}}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	return t, nil
}

// ToTopics converts a slice of wire rows, failing on the first malformed row.
func ToTopics(rows []TopicRow) ([]model.Topic, error) {
	out := make([]model.Topic, 0, len(rows))
	for i, r := range rows {
		t, err := ToTopic(r)
		if err != nil {
			return nil, fmt.Errorf("topic[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// FromTopic converts a domain topic to its wire row (subtopics are never sent).
func FromTopic(t model.Topic) TopicRow {
	r := TopicRow{ID: t.ID, Title: t.Title, UserID: ownerString(t.UserID)}
	if !t.CreatedAt.IsZero() {
		ca := t.CreatedAt
		r.CreatedAt = &ca
	}
	return r
}

// NewTopicRow builds the insert payload {title, user_id}.
func NewTopicRow(userID u.UUID, title string) TopicRow {
	return TopicRow{Title: title, UserID: ownerString(userID)}
}

// --- subtopics ---

// ToSubtopic converts a wire row to a domain subtopic.
func ToSubtopic(r SubtopicRow) model.Subtopic {
	return model.Subtopic{
		ID:        r.ID,
		Title:     r.Title,
		Completed: r.Completed,
		TopicID:   r.TopicID,
		URL:       strOrEmpty(r.URL),
		Content:   strOrEmpty(r.Content),
	}
}

// ToSubtopics converts a slice of wire rows.
func ToSubtopics(rows []SubtopicRow) []model.Subtopic {
	out := make([]model.Subtopic, 0, len(rows))
	for _, r := range rows {
		out = append(out, ToSubtopic(r))
	}
	return out
}

// FromSubtopic converts a domain subtopic (owned by userID) to its wire row.
func FromSubtopic(s model.Subtopic, userID u.UUID) SubtopicRow {
	url, content := s.URL, s.Content
	return SubtopicRow{
		ID:        s.ID,
		Title:     s.Title,
		Completed: s.Completed,
		TopicID:   s.TopicID,
		URL:       &url,
		Content:   &content,
		UserID:    ownerString(userID),
	}
}

// NewSubtopicRow builds the insert payload {title, topic_id, completed=false, url, content, user_id}.
// Absent url/content are sent as "".
func NewSubtopicRow(userID u.UUID, in model.NewSubtopic) SubtopicRow {
	return FromSubtopic(model.Subtopic{
		Title:   in.Title,
		TopicID: in.TopicID,
		URL:     strings.TrimSpace(in.URL),
		Content: in.Content,
	}, userID)
}
