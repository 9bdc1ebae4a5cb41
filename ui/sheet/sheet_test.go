package sheet

import (
	"testing"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersonic-app/nowplaying/backend"
	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

type fakeCarousel struct {
	ctrl     *Controller
	pages    []backend.PlaylistItem
	scrolled []int
}

func (f *fakeCarousel) SetPages(items []backend.PlaylistItem) {
	f.pages = items
}

func (f *fakeCarousel) ScrollTo(index int) {
	f.scrolled = append(f.scrolled, index)
	f.ctrl.OnPageSelected(PageChange{Index: index, Source: Programmatic})
}

type fakeCommands struct {
	skips []int
}

func (f *fakeCommands) SkipTo(index int) {
	f.skips = append(f.skips, index)
}

func newTestController() (*Controller, *fakeCarousel, *fakeCommands) {
	car := &fakeCarousel{}
	cmds := &fakeCommands{}
	c := NewController(car, cmds)
	car.ctrl = c
	return c, car, cmds
}

func snapshot(current string, ids ...string) backend.UiState {
	st := backend.UiState{CurrentIndex: -1}
	if current != "" {
		st.CurrentMediaID = mo.Some(current)
	}
	st.Playlist = lo.Map(ids, func(id string, i int) backend.PlaylistItem {
		isCurrent := id == current && st.CurrentIndex < 0
		if isCurrent {
			st.CurrentIndex = i
		}
		return backend.PlaylistItem{PlaylistEntry: mediaprovider.PlaylistEntry{ID: id}, IsCurrent: isCurrent}
	})
	return st
}

func TestController_HiddenUntilCurrentItem(t *testing.T) {
	c, _, _ := newTestController()
	c.Render(snapshot(""))
	assert.Equal(t, Hidden, c.State())

	c.Render(snapshot("a", "a", "b"))
	assert.Equal(t, Collapsed, c.State(), "never straight to expanded")

	c.Expand()
	assert.Equal(t, Expanded, c.State())

	c.Render(snapshot("", "a", "b"))
	assert.Equal(t, Hidden, c.State())

	c.Render(snapshot("b", "a", "b"))
	assert.Equal(t, Collapsed, c.State())
}

func TestController_CannotExpandWithoutItem(t *testing.T) {
	c, _, _ := newTestController()
	c.Render(snapshot(""))

	assert.False(t, c.Expand())
	c.Drag(1)
	c.Toggle()
	assert.False(t, c.HandleEvent(backend.ShowNotice{Text: "x"}))
	assert.True(t, c.HandleEvent(backend.RequestExpand{}))
	assert.Equal(t, Hidden, c.State())
}

func TestController_Gestures(t *testing.T) {
	c, _, _ := newTestController()
	var transitions []State
	c.OnStateChanged = func(s State) { transitions = append(transitions, s) }
	c.Render(snapshot("a", "a"))

	c.Drag(0.7)
	assert.Equal(t, Expanded, c.State())
	c.Drag(0.5)
	assert.Equal(t, Collapsed, c.State())

	c.Toggle()
	assert.Equal(t, Expanded, c.State())
	assert.True(t, c.Back())
	assert.Equal(t, Collapsed, c.State())
	assert.False(t, c.Back(), "back is not handled while collapsed")

	c.HandleEvent(backend.RequestExpand{})
	assert.Equal(t, Expanded, c.State())

	assert.Equal(t, []State{Collapsed, Expanded, Collapsed, Expanded, Collapsed, Expanded}, transitions)
}

func TestController_CarouselFollowsCurrentItem(t *testing.T) {
	c, car, cmds := newTestController()
	c.Render(snapshot("b", "a", "b", "c"))
	assert.Len(t, car.pages, 3)
	assert.Equal(t, []int{1}, car.scrolled)
	assert.True(t, c.Synced())

	// a position update does not scroll again
	c.Render(snapshot("b", "a", "b", "c"))
	assert.Equal(t, []int{1}, car.scrolled)

	c.Render(snapshot("c", "a", "b", "c"))
	assert.Equal(t, []int{1, 2}, car.scrolled)
	assert.Empty(t, cmds.skips, "programmatic scrolls never skip")
}

func TestController_SwipeSkips(t *testing.T) {
	c, car, cmds := newTestController()
	c.Render(snapshot("a", "a", "b", "c"))

	c.OnPageSelected(PageChange{Index: 2, Source: Interactive})
	assert.Equal(t, []int{2}, cmds.skips)

	// an unrelated snapshot before the skip lands does not snap back
	c.Render(snapshot("a", "a", "b", "c"))
	assert.Equal(t, []int{0}, car.scrolled)

	c.Render(snapshot("c", "a", "b", "c"))
	assert.Equal(t, []int{0}, car.scrolled, "already showing the current page")

	// swiping to the current page is not a skip
	c.OnPageSelected(PageChange{Index: 2, Source: Interactive})
	assert.Equal(t, []int{2}, cmds.skips)
}

func TestController_NoSkipWhileUnsynced(t *testing.T) {
	c, car, cmds := newTestController()
	c.Render(snapshot("a", "a", "b"))

	// playlist replaced; current item not in the new list yet
	c.Render(snapshot("a", "x", "y", "z"))
	assert.False(t, c.Synced())
	assert.Len(t, car.pages, 3)

	c.OnPageSelected(PageChange{Index: 1, Source: Interactive})
	assert.Empty(t, cmds.skips)

	c.Render(snapshot("z", "x", "y", "z"))
	assert.True(t, c.Synced())
	assert.Equal(t, 2, car.scrolled[len(car.scrolled)-1])
}

func TestController_IgnoresOutOfRangePages(t *testing.T) {
	c, _, cmds := newTestController()
	c.Render(snapshot("a", "a", "b"))
	c.OnPageSelected(PageChange{Index: 5, Source: Interactive})
	c.OnPageSelected(PageChange{Index: -1, Source: Interactive})
	assert.Empty(t, cmds.skips)
}

func TestController_UnansweredSwipeSnapsBack(t *testing.T) {
	c, car, cmds := newTestController()
	c.Render(snapshot("a", "a", "b", "c"))

	c.OnPageSelected(PageChange{Index: 2, Source: Interactive})
	require.Equal(t, []int{2}, cmds.skips)

	// the skip never takes effect
	for i := 0; i < swipeSettleRenders-1; i++ {
		c.Render(snapshot("a", "a", "b", "c"))
	}
	assert.Equal(t, []int{0}, car.scrolled, "swipe is held while the skip may still land")

	c.Render(snapshot("a", "a", "b", "c"))
	assert.Equal(t, []int{0, 0}, car.scrolled)
	assert.Equal(t, []int{2}, cmds.skips, "snapping back never skips")

	// further snapshots leave the carousel where it is
	c.Render(snapshot("a", "a", "b", "c"))
	assert.Equal(t, []int{0, 0}, car.scrolled)
}

func TestController_ResyncsWhenItemChangesDuringSwipe(t *testing.T) {
	c, car, _ := newTestController()
	c.Render(snapshot("a", "a", "b", "c"))
	c.OnPageSelected(PageChange{Index: 2, Source: Interactive})

	// playback moved on to another item before the skip landed
	c.Render(snapshot("b", "a", "b", "c"))
	assert.Equal(t, []int{0, 1}, car.scrolled)
}
