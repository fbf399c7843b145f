package state

import "sync"

// Modal is the dialog currently shown. Exactly one variant is active; Closed
// means no dialog.
type Modal interface{ isModal() }

// Closed means no modal is open.
type Closed struct{}

// AddSubtopic is the add-subtopic dialog for TopicID.
type AddSubtopic struct{ TopicID int64 }

// ViewContent shows the content of SubtopicID.
type ViewContent struct{ SubtopicID int64 }

// EditTopic edits the title of TopicID; Draft is the text being edited.
type EditTopic struct {
	TopicID int64
	Draft   string
}

func (Closed) isModal()      {}
func (AddSubtopic) isModal() {}
func (ViewContent) isModal() {}
func (EditTopic) isModal()   {}

// ModalState holds the open modal. Opening replaces whatever was open.
type ModalState struct {
	mu sync.Mutex
	m  Modal
}

// Current returns the open modal (Closed{} when none).
func (s *ModalState) Current() Modal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		return Closed{}
	}
	return s.m
}

// Open shows m, replacing the previous modal.
func (s *ModalState) Open(m Modal) {
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
}

// Close hides any modal.
func (s *ModalState) Close() { s.Open(Closed{}) }

// CloseIf closes the modal when pred holds for it and reports whether it did.
func (s *ModalState) CloseIf(pred func(Modal) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil || !pred(s.m) {
		return false
	}
	s.m = Closed{}
	return true
}

// Update replaces the modal with fn(current) atomically.
func (s *ModalState) Update(fn func(Modal) Modal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.m
	if cur == nil {
		cur = Closed{}
	}
	s.m = fn(cur)
}
