package state

import (
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/topiclist/internal/model"
)

// SessionState holds the signed-in session.
type SessionState struct {
	mu sync.Mutex
	s  *model.Session
}

// Set stores a copy of s.
func (st *SessionState) Set(s model.Session) {
	st.mu.Lock()
	st.s = &s
	st.mu.Unlock()
}

// Clear forgets the session.
func (st *SessionState) Clear() {
	st.mu.Lock()
	st.s = nil
	st.mu.Unlock()
}

// Current returns a copy of the session or nil.
func (st *SessionState) Current() *model.Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s == nil {
		return nil
	}
	cp := *st.s
	return &cp
}

// UserID returns the signed-in user's id.
func (st *SessionState) UserID() (uuid.UUID, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.s == nil {
		return uuid.Nil, false
	}
	return st.s.User.ID, true
}

// TopicCache is the aggregated projection of one user's topics.
type TopicCache struct {
	mu     sync.Mutex
	owner  uuid.UUID
	loaded bool
	topics []model.Topic
}

// Replace swaps in a freshly loaded projection for owner.
func (c *TopicCache) Replace(owner uuid.UUID, ts []model.Topic) {
	c.mu.Lock()
	c.owner = owner
	c.loaded = true
	c.topics = ts
	c.mu.Unlock()
}

// Reset drops the projection.
func (c *TopicCache) Reset() {
	c.mu.Lock()
	c.owner = uuid.Nil
	c.loaded = false
	c.topics = nil
	c.mu.Unlock()
}

// LoadedFor reports whether the projection was loaded for owner.
func (c *TopicCache) LoadedFor(owner uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded && c.owner == owner
}

// Snapshot returns a deep copy of the projection (never nil).
func (c *TopicCache) Snapshot() []model.Topic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Topic, len(c.topics))
	for i, t := range c.topics {
		t.Subtopics = append([]model.Subtopic{}, t.Subtopics...)
		out[i] = t
	}
	return out
}

// Topic looks a topic up by id.
func (c *TopicCache) Topic(id int64) (model.Topic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.topics {
		if t.ID == id {
			t.Subtopics = append([]model.Subtopic{}, t.Subtopics...)
			return t, true
		}
	}
	return model.Topic{}, false
}

// Subtopic looks a subtopic up by id.
func (c *TopicCache) Subtopic(id int64) (model.Subtopic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.topics {
		for _, s := range t.Subtopics {
			if s.ID == id {
				return s, true
			}
		}
	}
	return model.Subtopic{}, false
}

// SubtopicDraft is the pending input of the add-subtopic form of one topic.
type SubtopicDraft struct {
	Title   string
	URL     string
	Content string
}

// Inputs holds pending form input: the new-topic title and subtopic drafts
// keyed by topic id.
type Inputs struct {
	mu       sync.Mutex
	newTopic string
	drafts   map[int64]SubtopicDraft
}

// SetNewTopic buffers the title typed into the new-topic field.
func (in *Inputs) SetNewTopic(title string) {
	in.mu.Lock()
	in.newTopic = title
	in.mu.Unlock()
}

// NewTopic returns the buffered new-topic title.
func (in *Inputs) NewTopic() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.newTopic
}

// SetDraft stores the subtopic form input for topicID.
func (in *Inputs) SetDraft(topicID int64, d SubtopicDraft) {
	in.mu.Lock()
	if in.drafts == nil {
		in.drafts = map[int64]SubtopicDraft{}
	}
	in.drafts[topicID] = d
	in.mu.Unlock()
}

// Draft returns the subtopic draft of topicID, zero if none.
func (in *Inputs) Draft(topicID int64) SubtopicDraft {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.drafts[topicID]
}

// ClearDraft drops the subtopic draft of topicID.
func (in *Inputs) ClearDraft(topicID int64) {
	in.mu.Lock()
	delete(in.drafts, topicID)
	in.mu.Unlock()
}

// Drafts returns a copy of all subtopic drafts.
func (in *Inputs) Drafts() map[int64]SubtopicDraft {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make(map[int64]SubtopicDraft, len(in.drafts))
	for k, v := range in.drafts {
		out[k] = v
	}
	return out
}

// Reset clears every buffer.
func (in *Inputs) Reset() {
	in.mu.Lock()
	in.newTopic = ""
	in.drafts = nil
	in.mu.Unlock()
}

// Notice is a non-fatal message for the user.
type Notice struct {
	At      time.Time
	Op      string
	Message string
}

const maxNotices = 20

// Notices is a bounded list of pending notices, oldest first.
type Notices struct {
	mu   sync.Mutex
	list []Notice
}

// Add appends x, dropping the oldest notices beyond maxNotices.
func (n *Notices) Add(x Notice) {
	n.mu.Lock()
	n.list = append(n.list, x)
	if len(n.list) > maxNotices {
		n.list = n.list[len(n.list)-maxNotices:]
	}
	n.mu.Unlock()
}

// List returns pending notices without removing them.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.list...)
}

// Drain returns and removes pending notices.
func (n *Notices) Drain() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.list
	n.list = nil
	return out
}
