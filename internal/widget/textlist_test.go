package widget

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

// manualScheduler collects deferred callbacks so tests decide when focus
// settles.
type manualScheduler struct {
	pending []func()
}

func (s *manualScheduler) After(_ time.Duration, fn func()) {
	s.pending = append(s.pending, fn)
}

func (s *manualScheduler) runAll() {
	fns := s.pending
	s.pending = nil
	for _, fn := range fns {
		fn()
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestList(items []string, sched *manualScheduler, clock *fakeClock, opts ...Option) *TextList {
	all := append([]Option{WithScheduler(sched), WithClock(clock.now)}, opts...)
	return NewTextList(items, all...)
}

func TestChildEditingDerivedFromEditingAndFocus(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a"}, sched, clock)

	assert.Equal(t, l.ChildEditing(), false)

	l.SetEditing(true)
	assert.Equal(t, l.ChildEditing(), false)

	l.FocusChild(0)
	assert.Equal(t, l.ChildEditing(), true)

	l.SetEditing(false)
	assert.Equal(t, l.ChildEditing(), false)
}

func TestAutoAddEmptyItemOnEnterEditing(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList(nil, sched, clock)

	l.SetEditing(true)
	l.FocusChild(0)

	assert.Equal(t, l.Items(), []string{""})
	assert.Equal(t, l.FocusIndex(), 0)
}

func TestNoAutoAddWhenItemsExist(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a", "b"}, sched, clock)

	l.SetEditing(true)
	l.FocusChild(0)
	assert.Equal(t, l.Items(), []string{"a", "b"})

	l.SetEditing(false)
	assert.Equal(t, l.Items(), []string{"a", "b"})
	assert.Equal(t, l.LastChangeByUser(), nil)
}

func TestPruneEmptyItemsOnLeaveEditing(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a", "", "b", ""}, sched, clock)

	l.SetEditing(true)
	l.FocusChild(0)
	l.SetEditing(false)

	assert.Equal(t, l.Items(), []string{"a", "b"})
}

func TestFocusSettleCoalescesAndDropsEditing(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a", "b"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	// blur twice, focus hops to the sibling before the settle runs
	l.BlurChild()
	l.BlurChild()
	assert.Equal(t, len(sched.pending), 1)
	l.FocusChild(1)
	sched.runAll()

	assert.Equal(t, l.ChildEditing(), true)
	assert.Equal(t, l.FocusIndex(), 1)

	// blur for real
	l.BlurChild()
	sched.runAll()
	assert.Equal(t, l.ChildEditing(), false)
	assert.Equal(t, l.FocusIndex(), -1)
}

func TestStructuralKeyInsertsEmptyItemAfterCurrent(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a", "b"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	consumed := l.HandleKey(0, KeyComma)

	assert.Equal(t, consumed, true)
	assert.Equal(t, l.Items(), []string{"a", "", "b"})
	assert.Equal(t, l.FocusIndex(), 1)
	assert.NotEqual(t, l.LastChangeByUser(), nil)
}

func TestKeysIgnoredWhenNotEditing(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a"}, sched, clock)

	assert.Equal(t, l.HandleKey(0, KeyComma), false)
	assert.Equal(t, l.HandleKey(0, KeyBackspace), false)
	assert.Equal(t, l.Items(), []string{"a"})
}

func TestBackspaceOnEmptyItemRemovesAndFocusesPrevious(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}

	var proposed []ProposedChange
	l := newTestList([]string{"a", "b", ""}, sched, clock,
		WithChangeListener(func(c ProposedChange) Decision {
			proposed = append(proposed, c)
			return Accept
		}))
	l.SetEditing(true)
	l.FocusChild(2)

	earlier := clock.t.Add(-time.Minute)
	clock.advance(time.Second)
	consumed := l.HandleKey(2, KeyBackspace)

	assert.Equal(t, consumed, true)
	assert.Equal(t, l.Items(), []string{"a", "b"})
	assert.Equal(t, l.FocusIndex(), 1)
	assert.Equal(t, len(proposed), 1)
	assert.Equal(t, *proposed[0].RemoveIndex, 2)
	assert.Equal(t, l.IsChangedByUserSince(&earlier), true)
}

func TestBackspaceOnFirstEmptyItemKeepsFocusOnNewFirst(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"", "a", "b"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	assert.Equal(t, l.HandleKey(0, KeyBackspace), true)
	assert.Equal(t, l.Items(), []string{"a", "b"})
	assert.Equal(t, l.FocusIndex(), 0)
}

func TestDeleteOnEmptyItemFocusesNext(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"", "a", "b"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	assert.Equal(t, l.HandleKey(0, KeyDelete), true)
	assert.Equal(t, l.Items(), []string{"a", "b"})
	assert.Equal(t, l.FocusIndex(), 0)
}

func TestVetoedRemovalLeavesStateUntouched(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{""}, sched, clock,
		WithChangeListener(func(ProposedChange) Decision { return Veto }))
	l.SetEditing(true)
	l.FocusChild(0)

	assert.Equal(t, l.HandleKey(0, KeyBackspace), false)
	assert.Equal(t, l.Items(), []string{""})
	assert.Equal(t, l.LastChangeByUser(), nil)
}

func TestBackspaceInsideNonEmptyItemNotConsumed(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"ab"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	assert.Equal(t, l.HandleKey(0, KeyBackspace), false)
	assert.Equal(t, l.Items(), []string{"ab"})
}

func TestSetItemTextStampsChange(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	l.SetItemText(0, "abc")

	assert.Equal(t, l.Items(), []string{"abc"})
	assert.Equal(t, *l.LastChangeByUser(), clock.t)
}

func TestIsChangedByUserSince(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a"}, sched, clock)

	// no reference means assume changed
	assert.Equal(t, l.IsChangedByUserSince(nil), true)

	// never touched means not changed
	ref := clock.t
	assert.Equal(t, l.IsChangedByUserSince(&ref), false)

	l.SetEditing(true)
	l.FocusChild(0)
	clock.advance(time.Second)
	l.SetItemText(0, "b")

	assert.Equal(t, l.IsChangedByUserSince(&ref), true)
	later := clock.t.Add(time.Minute)
	assert.Equal(t, l.IsChangedByUserSince(&later), false)
}

func TestApplyRemoteRespectsLocalEdits(t *testing.T) {
	sched := &manualScheduler{}
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestList([]string{"a"}, sched, clock)
	l.SetEditing(true)
	l.FocusChild(0)

	snapshotTime := clock.t
	clock.advance(time.Second)
	l.SetItemText(0, "local")

	// local edit is newer, remote value declined
	assert.Equal(t, l.ApplyRemote([]string{"remote"}, &snapshotTime), false)
	assert.Equal(t, l.Items(), []string{"local"})

	// a newer snapshot wins
	newer := clock.t.Add(time.Second)
	assert.Equal(t, l.ApplyRemote([]string{"remote"}, &newer), true)
	assert.Equal(t, l.Items(), []string{"remote"})
}
