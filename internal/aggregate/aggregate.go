// Package aggregate joins flat topic and subtopic collections into the nested projection.
package aggregate

import "github.com/and161185/topiclist/internal/model"

// Aggregate returns a copy of topics where each topic carries exactly the subtopics
// whose TopicID matches its ID, in the order they appear in subtopics.
// Topic order is preserved, topics without matches get an empty (non-nil) slice,
// and neither input is modified. Subtopics referencing unknown topics are dropped.
func Aggregate(topics []model.Topic, subtopics []model.Subtopic) []model.Topic {
	byTopic := make(map[int64][]model.Subtopic, len(topics))
	for _, s := range subtopics {
		byTopic[s.TopicID] = append(byTopic[s.TopicID], s)
	}

	out := make([]model.Topic, len(topics))
	for i, t := range topics {
		subs := byTopic[t.ID]
		t.Subtopics = make([]model.Subtopic, len(subs))
		copy(t.Subtopics, subs)
		out[i] = t
	}
	return out
}
