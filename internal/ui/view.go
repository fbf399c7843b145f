// Package ui renders the controller state as text (CLI) and HTML (web).
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/and161185/topiclist/internal/model"
	"github.com/and161185/topiclist/internal/state"
)

// TitleWidth is the number of characters of a topic title shown in lists.
const TitleWidth = 20

const ellipsis = "..."

// Truncate shortens title to its first n characters followed by "..." when it
// is longer than n characters; otherwise title is returned unchanged.
func Truncate(title string, n int) string {
	if n < 0 {
		n = 0
	}
	r := []rune(title)
	if len(r) <= n {
		return title
	}
	return string(r[:n]) + ellipsis
}

// Modal kinds as seen by templates.
const (
	ModalNone        = ""
	ModalAddSubtopic = "add-subtopic"
	ModalViewContent = "view-content"
	ModalEditTopic   = "edit-topic"
)

// View is the render model of one snapshot.
type View struct {
	SignedIn bool
	Email    string
	NewTopic string
	Topics   []TopicView
	Modal    ModalView
	Notices  []string
}

type TopicView struct {
	ID        int64
	Title     string // full title
	Display   string // truncated for lists
	CreatedAt time.Time
	Subtopics []SubtopicView
}

type SubtopicView struct {
	ID         int64
	TopicID    int64
	Title      string
	Completed  bool
	URL        string
	Content    string
	HasContent bool
}

// ModalView describes the open modal resolved against the projection.
type ModalView struct {
	Kind       string
	TopicID    int64
	TopicTitle string
	Draft      string              // edit-topic title being edited
	SubDraft   state.SubtopicDraft // add-subtopic pending input
	Subtopic   SubtopicView        // view-content target
}

// Open reports whether a modal is shown.
func (m ModalView) Open() bool { return m.Kind != ModalNone }

// BuildView derives the render model. A modal whose target is no longer in the
// projection is rendered as closed.
func BuildView(s state.Snapshot) View {
	v := View{NewTopic: s.NewTopic, Topics: make([]TopicView, 0, len(s.Topics))}
	if s.Session != nil {
		v.SignedIn = true
		v.Email = s.Session.User.Email
	}

	byTopic := map[int64]TopicView{}
	bySub := map[int64]SubtopicView{}
	for _, t := range s.Topics {
		tv := TopicView{
			ID:        t.ID,
			Title:     t.Title,
			Display:   Truncate(t.Title, TitleWidth),
			CreatedAt: t.CreatedAt,
			Subtopics: make([]SubtopicView, 0, len(t.Subtopics)),
		}
		for _, st := range t.Subtopics {
			sv := subtopicView(st)
			tv.Subtopics = append(tv.Subtopics, sv)
			bySub[sv.ID] = sv
		}
		v.Topics = append(v.Topics, tv)
		byTopic[t.ID] = tv
	}

	switch m := s.Modal.(type) {
	case state.AddSubtopic:
		if t, ok := byTopic[m.TopicID]; ok {
			v.Modal = ModalView{Kind: ModalAddSubtopic, TopicID: t.ID, TopicTitle: t.Title, SubDraft: s.Drafts[t.ID]}
		}
	case state.EditTopic:
		if t, ok := byTopic[m.TopicID]; ok {
			v.Modal = ModalView{Kind: ModalEditTopic, TopicID: t.ID, TopicTitle: t.Title, Draft: m.Draft}
		}
	case state.ViewContent:
		if sv, ok := bySub[m.SubtopicID]; ok {
			v.Modal = ModalView{Kind: ModalViewContent, TopicID: sv.TopicID, TopicTitle: byTopic[sv.TopicID].Title, Subtopic: sv}
		}
	}

	for _, n := range s.Notices {
		v.Notices = append(v.Notices, fmt.Sprintf("%s: %s", n.Op, n.Message))
	}
	return v
}

func subtopicView(s model.Subtopic) SubtopicView {
	return SubtopicView{
		ID:         s.ID,
		TopicID:    s.TopicID,
		Title:      s.Title,
		Completed:  s.Completed,
		URL:        s.URL,
		Content:    s.Content,
		HasContent: s.HasContent(),
	}
}

// RenderText writes a plain-text checklist of v.
//
//	#1 Work
//	  [ ] #10 Email  (content)
func RenderText(w io.Writer, v View) error {
	var b strings.Builder
	if len(v.Topics) == 0 {
		b.WriteString("no topics\n")
	}
	for _, t := range v.Topics {
		fmt.Fprintf(&b, "#%d %s\n", t.ID, t.Display)
		if len(t.Subtopics) == 0 {
			b.WriteString("  (no subtopics)\n")
		}
		for _, s := range t.Subtopics {
			mark := " "
			if s.Completed {
				mark = "x"
			}
			fmt.Fprintf(&b, "  [%s] #%d %s", mark, s.ID, s.Title)
			if s.URL != "" {
				fmt.Fprintf(&b, " <%s>", s.URL)
			}
			if s.HasContent {
				b.WriteString("  (content)")
			}
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
