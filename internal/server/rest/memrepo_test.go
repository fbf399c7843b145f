package restserver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/convert"
	"github.com/and161185/topiclist/internal/errs"
	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/repository"
)

// memStore is an in-memory stand-in for the postgres repositories with the
// same owner scoping and foreign key rules.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]model.User
	topics []topicRec
	subs   []subRec
	nextID int64
}

type topicRec struct {
	model.Topic
}

type subRec struct {
	model.Subtopic
	owner uuid.UUID
}

var (
	_ repository.UserRepository     = (*memStore)(nil)
	_ repository.TopicRepository    = (*memStore)(nil)
	_ repository.SubtopicRepository = (*memStore)(nil)
)

func newMemStore() *memStore { return &memStore{users: map[uuid.UUID]model.User{}} }

func (m *memStore) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if strings.EqualFold(x.Email, u.Email) {
			return errs.ErrAlreadyExists
		}
	}
	u.CreatedAt = time.Now()
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func topicCol(t topicRec, col string) any {
	switch col {
	case convert.ColID:
		return t.ID
	case convert.ColTitle:
		return t.Title
	case convert.ColUserID:
		return t.UserID.String()
	case convert.ColCreatedAt:
		return t.CreatedAt
	}
	return nil
}

func subCol(s subRec, col string) any {
	switch col {
	case convert.ColID:
		return s.ID
	case convert.ColTitle:
		return s.Title
	case convert.ColCompleted:
		return s.Completed
	case convert.ColTopicID:
		return s.TopicID
	case convert.ColUserID:
		return s.owner.String()
	case convert.ColURL:
		return s.URL
	case convert.ColContent:
		return s.Content
	}
	return nil
}

// matches ignores user_id filters; ownership is enforced separately.
func matches(get func(string) any, filters []repository.Filter) bool {
	for _, f := range filters {
		if f.Column == convert.ColUserID {
			continue
		}
		if get(f.Column) != f.Value {
			return false
		}
	}
	return true
}

func (m *memStore) ListTopics(_ context.Context, userID uuid.UUID, filters []repository.Filter) ([]model.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Topic{}
	for _, t := range m.topics {
		if t.UserID == userID && matches(func(c string) any { return topicCol(t, c) }, filters) {
			out = append(out, t.Topic)
		}
	}
	return out, nil
}

func (m *memStore) InsertTopics(_ context.Context, userID uuid.UUID, topics []model.Topic) ([]model.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Topic, 0, len(topics))
	for _, t := range topics {
		m.nextID++
		t.ID, t.UserID, t.CreatedAt = m.nextID, userID, time.Now()
		m.topics = append(m.topics, topicRec{t})
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) UpdateTopics(_ context.Context, userID uuid.UUID, patch repository.Patch, filters []repository.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, t := range m.topics {
		if t.UserID == userID && matches(func(c string) any { return topicCol(t, c) }, filters) {
			if v, ok := patch[convert.ColTitle]; ok {
				m.topics[i].Title = v.(string)
			}
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteTopics(_ context.Context, userID uuid.UUID, filters []repository.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.topics[:0]
	gone := map[int64]bool{}
	for _, t := range m.topics {
		if t.UserID == userID && matches(func(c string) any { return topicCol(t, c) }, filters) {
			gone[t.ID] = true
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.topics = kept
	subs := m.subs[:0]
	for _, s := range m.subs {
		if !gone[s.TopicID] {
			subs = append(subs, s)
		}
	}
	m.subs = subs
	return n, nil
}

func (m *memStore) ListSubtopics(_ context.Context, userID uuid.UUID, filters []repository.Filter) ([]model.Subtopic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subtopic{}
	for _, s := range m.subs {
		if s.owner == userID && matches(func(c string) any { return subCol(s, c) }, filters) {
			out = append(out, s.Subtopic)
		}
	}
	return out, nil
}

func (m *memStore) InsertSubtopics(_ context.Context, userID uuid.UUID, subs []model.Subtopic) ([]model.Subtopic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subs {
		owned := false
		for _, t := range m.topics {
			if t.ID == s.TopicID && t.UserID == userID {
				owned = true
			}
		}
		if !owned {
			return nil, errs.ErrConflict
		}
	}
	out := make([]model.Subtopic, 0, len(subs))
	for _, s := range subs {
		m.nextID++
		s.ID = m.nextID
		m.subs = append(m.subs, subRec{Subtopic: s, owner: userID})
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) UpdateSubtopics(_ context.Context, userID uuid.UUID, patch repository.Patch, filters []repository.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i, s := range m.subs {
		if s.owner != userID || !matches(func(c string) any { return subCol(s, c) }, filters) {
			continue
		}
		for col, v := range patch {
			switch col {
			case convert.ColTitle:
				m.subs[i].Title = v.(string)
			case convert.ColCompleted:
				m.subs[i].Completed = v.(bool)
			case convert.ColURL:
				m.subs[i].URL = v.(string)
			case convert.ColContent:
				m.subs[i].Content = v.(string)
			}
		}
		n++
	}
	return n, nil
}

func (m *memStore) DeleteSubtopics(_ context.Context, userID uuid.UUID, filters []repository.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.owner == userID && matches(func(c string) any { return subCol(s, c) }, filters) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	m.subs = kept
	return n, nil
}
