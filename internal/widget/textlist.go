// Package widget holds the client-side controller for an editable list of
// text items. It is a pure state machine: the embedding UI feeds it focus and
// keyboard events and reads back items and focus, so every transition can be
// driven deterministically in tests.
package widget

import "time"

const focusSettleDelay = 100 * time.Millisecond

// Key is a keyboard event the controller cares about. Structural keys split
// the current item, backspace and delete remove empty items.
type Key int

const (
	KeyComma Key = iota
	KeyEnter
	KeySemicolon
	KeyBackspace
	KeyDelete
)

func (k Key) structural() bool {
	return k == KeyComma || k == KeyEnter || k == KeySemicolon
}

// Decision is the answer to a proposed change. A veto leaves the controller's
// state untouched.
type Decision int

const (
	Accept Decision = iota
	Veto
)

// ProposedChange describes a structural mutation before it happens. Exactly
// one of RemoveIndex or ChangedIndex is set.
type ProposedChange struct {
	RemoveIndex  *int
	ChangedIndex *int
}

// Scheduler defers a callback. The production implementation wraps
// time.AfterFunc; tests substitute a manual one.
type Scheduler interface {
	After(d time.Duration, fn func())
}

type timerScheduler struct{}

func (timerScheduler) After(d time.Duration, fn func()) { time.AfterFunc(d, fn) }

// TextList is the controller for one editable enumeration field.
//
// Three flags govern mutability: editing is granted by the embedding context,
// focusin tracks whether focus is anywhere inside the widget, and
// childEditing (editing AND focusin) is the only flag that actually lets
// items accept keystrokes. focusin is re-evaluated through a short scheduled
// settle so that focus moving between two child items does not flap the
// state.
type TextList struct {
	items      []string
	focusIndex int

	editing      bool
	rawFocus     bool
	focusin      bool
	childEditing bool

	settlePending bool

	lastChangeByUser *time.Time

	now      func() time.Time
	schedule Scheduler
	onChange func(ProposedChange) Decision
}

// Option configures a TextList.
type Option func(*TextList)

// WithClock substitutes the time source.
func WithClock(now func() time.Time) Option {
	return func(l *TextList) { l.now = now }
}

// WithScheduler substitutes the focus-settle scheduler.
func WithScheduler(s Scheduler) Option {
	return func(l *TextList) { l.schedule = s }
}

// WithChangeListener registers the veto hook for proposed structural changes.
func WithChangeListener(fn func(ProposedChange) Decision) Option {
	return func(l *TextList) { l.onChange = fn }
}

func NewTextList(items []string, opts ...Option) *TextList {
	l := &TextList{
		items:      append([]string(nil), items...),
		focusIndex: -1,
		now:        time.Now,
		schedule:   timerScheduler{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Items returns a copy of the current item values.
func (l *TextList) Items() []string {
	return append([]string(nil), l.items...)
}

// FocusIndex returns which item holds focus, or -1.
func (l *TextList) FocusIndex() int { return l.focusIndex }

func (l *TextList) Editing() bool      { return l.editing }
func (l *TextList) Focusin() bool      { return l.focusin }
func (l *TextList) ChildEditing() bool { return l.childEditing }

// LastChangeByUser reports when the user last edited the field locally, or
// nil if they never have.
func (l *TextList) LastChangeByUser() *time.Time {
	if l.lastChangeByUser == nil {
		return nil
	}
	t := *l.lastChangeByUser
	return &t
}

// SetEditing grants or revokes edit mode from the embedding context.
func (l *TextList) SetEditing(editing bool) {
	if l.editing == editing {
		return
	}
	l.editing = editing
	l.recompute()
}

// FocusChild records that focus entered the item at index. Takes effect
// immediately, gaining focus needs no settling.
func (l *TextList) FocusChild(index int) {
	l.rawFocus = true
	if index >= 0 && index < len(l.items) {
		l.focusIndex = index
	}
	l.recompute()
}

// BlurChild records that focus left the widget. The loss is not applied until
// a settle check runs, so focus hopping to a sibling item never drops
// childEditing. Repeated blurs coalesce into one scheduled check.
func (l *TextList) BlurChild() {
	l.rawFocus = false
	if l.settlePending {
		return
	}
	l.settlePending = true
	l.schedule.After(focusSettleDelay, l.settle)
}

func (l *TextList) settle() {
	l.settlePending = false
	if !l.rawFocus {
		l.focusIndex = -1
	}
	l.recompute()
}

func (l *TextList) recompute() {
	l.focusin = l.rawFocus
	was := l.childEditing
	l.childEditing = l.editing && l.focusin
	if l.childEditing == was {
		return
	}
	if l.childEditing {
		// never present an editable list with nothing to type into
		if len(l.items) == 0 {
			l.items = append(l.items, "")
			l.focusIndex = 0
		}
	} else {
		l.pruneEmpty()
	}
}

func (l *TextList) pruneEmpty() {
	kept := l.items[:0]
	for _, item := range l.items {
		if item != "" {
			kept = append(kept, item)
		}
	}
	l.items = kept
	if l.focusIndex >= len(l.items) {
		l.focusIndex = len(l.items) - 1
	}
}

// SetItemText replaces the text of one item, as typed by the user.
func (l *TextList) SetItemText(index int, text string) {
	if !l.childEditing || index < 0 || index >= len(l.items) {
		return
	}
	if l.items[index] == text {
		return
	}
	l.items[index] = text
	l.stamp()
}

// HandleKey processes a keyboard event on the item at index. It reports
// whether the controller consumed the event.
func (l *TextList) HandleKey(index int, key Key) bool {
	if !l.childEditing || index < 0 || index >= len(l.items) {
		return false
	}
	if key.structural() {
		l.insertAfter(index)
		return true
	}
	if l.items[index] != "" {
		// backspace and delete inside text are the item's own concern
		return false
	}
	return l.removeEmpty(index, key)
}

func (l *TextList) insertAfter(index int) {
	at := index + 1
	if l.propose(ProposedChange{ChangedIndex: &at}) == Veto {
		return
	}
	l.items = append(l.items, "")
	copy(l.items[at+1:], l.items[at:])
	l.items[at] = ""
	l.focusIndex = at
	l.stamp()
}

// removeEmpty runs the propose-then-apply protocol: the removal is announced
// first and only happens when no listener vetoes it.
func (l *TextList) removeEmpty(index int, key Key) bool {
	i := index
	if l.propose(ProposedChange{RemoveIndex: &i}) == Veto {
		return false
	}
	l.items = append(l.items[:index], l.items[index+1:]...)
	switch key {
	case KeyBackspace:
		l.focusIndex = index - 1
		if l.focusIndex < 0 && len(l.items) > 0 {
			l.focusIndex = 0
		}
	case KeyDelete:
		if index < len(l.items) {
			l.focusIndex = index
		} else {
			l.focusIndex = len(l.items) - 1
		}
	}
	l.stamp()
	return true
}

func (l *TextList) propose(change ProposedChange) Decision {
	if l.onChange == nil {
		return Accept
	}
	return l.onChange(change)
}

func (l *TextList) stamp() {
	t := l.now()
	l.lastChangeByUser = &t
}

// IsChangedByUserSince answers whether the user's local edits are newer than
// the given reference. A nil reference conservatively assumes they are; a
// field the user never touched never is.
func (l *TextList) IsChangedByUserSince(ref *time.Time) bool {
	if ref == nil {
		return true
	}
	if l.lastChangeByUser == nil {
		return false
	}
	return l.lastChangeByUser.After(*ref)
}

// ApplyRemote overwrites the items with an incoming snapshot value unless the
// user holds a local edit newer than the snapshot's reference time. It
// reports whether the overwrite happened.
func (l *TextList) ApplyRemote(items []string, ref *time.Time) bool {
	if l.IsChangedByUserSince(ref) {
		return false
	}
	l.items = append([]string(nil), items...)
	if l.focusIndex >= len(l.items) {
		l.focusIndex = len(l.items) - 1
	}
	if l.childEditing && len(l.items) == 0 {
		l.items = append(l.items, "")
		l.focusIndex = 0
	}
	return true
}
