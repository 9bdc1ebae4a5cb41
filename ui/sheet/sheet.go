// Package sheet implements the now playing sheet: a player surface that
// is hidden while nothing is playing, and otherwise shown either collapsed
// (mini player) or expanded, with a carousel paging through the playlist.
package sheet

import (
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/supersonic-app/nowplaying/backend"
)

type State int

const (
	Hidden State = iota
	Collapsed
	Expanded
)

func (s State) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	default:
		return "hidden"
	}
}

// PageSource tells who initiated a carousel page change.
type PageSource int

const (
	// The controller scrolled the carousel to follow the current item.
	Programmatic PageSource = iota
	// The user swiped to another page.
	Interactive
)

type PageChange struct {
	Index  int
	Source PageSource
}

// Carousel is a paged view over the playlist.
type Carousel interface {
	SetPages(items []backend.PlaylistItem)
	// ScrollTo shows page index. The resulting page change must be reported
	// to the controller with Source Programmatic.
	ScrollTo(index int)
}

// Commands is the subset of the store's command surface the sheet uses.
type Commands interface {
	SkipTo(index int)
}

// Controller drives the sheet state and keeps the carousel in step with
// the current playlist. It is not safe for concurrent use; call it from
// the UI goroutine only.
type Controller struct {
	// Called after every state transition.
	OnStateChanged func(State)

	carousel Carousel
	cmds     Commands

	state     State
	hasItem   bool
	synced    bool
	pages     []string
	page      int
	lastIndex int

	// page the user swiped to, until it becomes current or is given up on
	swipeTarget  int
	staleRenders int
}

// Number of snapshots a swipe may go unanswered before the carousel
// snaps back to the current item.
const swipeSettleRenders = 5

func NewController(carousel Carousel, cmds Commands) *Controller {
	return &Controller{carousel: carousel, cmds: cmds, page: -1, lastIndex: -1, swipeTarget: -1}
}

func (c *Controller) State() State {
	return c.state
}

// Synced reports whether the carousel pages are known to match the
// playlist, with the current item found in it.
func (c *Controller) Synced() bool {
	return c.synced
}

// Render applies a new state snapshot.
func (c *Controller) Render(st backend.UiState) {
	c.hasItem = st.CurrentMediaID.IsPresent()
	switch {
	case !c.hasItem:
		c.setState(Hidden)
	case c.state == Hidden:
		c.setState(Collapsed)
	}

	ids := make([]string, len(st.Playlist))
	for i, item := range st.Playlist {
		ids[i] = item.ID
	}
	if !slices.Equal(ids, c.pages) {
		c.pages = ids
		c.page = -1
		c.clearSwipe()
		c.carousel.SetPages(st.Playlist)
	}

	c.synced = c.hasItem && st.CurrentIndex >= 0
	indexChanged := st.CurrentIndex != c.lastIndex
	c.lastIndex = st.CurrentIndex
	if !c.synced {
		c.clearSwipe()
		return
	}

	// a swipe in flight holds its page until the skip lands
	if c.swipeTarget >= 0 {
		switch {
		case st.CurrentIndex == c.swipeTarget || indexChanged:
			c.clearSwipe()
		case c.staleRenders+1 < swipeSettleRenders:
			c.staleRenders++
			return
		default:
			log.Debugf("skip to page %d not taken, showing current item", c.swipeTarget)
			c.clearSwipe()
		}
	}
	if c.page != st.CurrentIndex {
		c.carousel.ScrollTo(st.CurrentIndex)
	}
}

func (c *Controller) clearSwipe() {
	c.swipeTarget = -1
	c.staleRenders = 0
}

// OnPageSelected is called by the carousel whenever its visible page changes.
func (c *Controller) OnPageSelected(pc PageChange) {
	c.page = pc.Index
	if pc.Source == Programmatic {
		return
	}
	if !c.synced || pc.Index == c.lastIndex {
		return
	}
	if pc.Index < 0 || pc.Index >= len(c.pages) {
		return
	}
	c.swipeTarget = pc.Index
	c.staleRenders = 0
	c.cmds.SkipTo(pc.Index)
}

// HandleEvent reacts to player events meant for the sheet.
// Returns true if the event was consumed.
func (c *Controller) HandleEvent(e backend.PlayerEvent) bool {
	if _, ok := e.(backend.RequestExpand); ok {
		c.Expand()
		return true
	}
	return false
}

// Expand expands the sheet. It has no effect while nothing is current.
func (c *Controller) Expand() bool {
	if !c.hasItem {
		return false
	}
	c.setState(Expanded)
	return true
}

func (c *Controller) Collapse() {
	if c.state == Expanded {
		c.setState(Collapsed)
	}
}

func (c *Controller) Toggle() {
	if c.state == Expanded {
		c.Collapse()
	} else {
		c.Expand()
	}
}

// Back handles back navigation, collapsing an expanded sheet.
// Returns true if the navigation was handled.
func (c *Controller) Back() bool {
	if c.state != Expanded {
		return false
	}
	c.Collapse()
	return true
}

// Drag settles a drag gesture that ended at fraction (0 = collapsed,
// 1 = fully expanded).
func (c *Controller) Drag(fraction float64) {
	if !c.hasItem {
		return
	}
	if fraction > 0.5 {
		c.setState(Expanded)
	} else {
		c.setState(Collapsed)
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.OnStateChanged != nil {
		c.OnStateChanged(s)
	}
}
