package backend

import (
	"slices"
	"sync"

	"github.com/supersonic-app/nowplaying/backend/mediaprovider"
)

type playbackCommandType int

const (
	cmdLoadPlaylist playbackCommandType = iota // arg: []mediaprovider.PlaylistEntry, arg2: int
	cmdTogglePlayPause
	cmdPause
	cmdSeekTo      // arg: int64
	cmdSkipToIndex // arg: int
	cmdSkipNext
	cmdSkipPrevious
	cmdSyncState
	cmdSyncPosition
	cmdBarrier // arg: chan struct{}
)

type PlaybackCommand struct {
	Type playbackCommandType
	Arg  any
	Arg2 any
}

// CommandQueue buffers engine commands so that callers never block,
// delivering them in order on C(). Commands whose effect is superseded
// by a newer command of the same kind are coalesced.
type CommandQueue struct {
	mutex        sync.Mutex
	queue        []PlaybackCommand
	closed       bool
	cmdAvailable *sync.Cond
	nextChan     chan (PlaybackCommand)
}

func NewCommandQueue() *CommandQueue {
	c := &CommandQueue{nextChan: make(chan PlaybackCommand)}
	c.cmdAvailable = sync.NewCond(&c.mutex)
	go c.chanWriter()
	return c
}

// C returns the channel on which queued commands are delivered.
// It is closed after Close.
func (c *CommandQueue) C() <-chan PlaybackCommand {
	return c.nextChan
}

// Close discards pending commands and closes C().
func (c *CommandQueue) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.closed = true
	c.queue = nil
	c.cmdAvailable.Signal()
}

func (c *CommandQueue) LoadPlaylist(items []mediaprovider.PlaylistEntry, startIndex int) {
	// a new playlist supersedes any pending navigation within the old one
	c.filterCommandsAndAdd([]playbackCommandType{cmdLoadPlaylist, cmdSkipToIndex, cmdSkipNext, cmdSkipPrevious, cmdSeekTo},
		PlaybackCommand{Type: cmdLoadPlaylist, Arg: items, Arg2: startIndex})
}

func (c *CommandQueue) TogglePlayPause() {
	c.add(PlaybackCommand{Type: cmdTogglePlayPause})
}

func (c *CommandQueue) Pause() {
	c.filterCommandsAndAdd([]playbackCommandType{cmdPause},
		PlaybackCommand{Type: cmdPause})
}

func (c *CommandQueue) SeekTo(ms int64) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdSeekTo},
		PlaybackCommand{Type: cmdSeekTo, Arg: ms})
}

func (c *CommandQueue) SkipToIndex(idx int) {
	c.filterCommandsAndAdd([]playbackCommandType{cmdSkipToIndex},
		PlaybackCommand{Type: cmdSkipToIndex, Arg: idx})
}

func (c *CommandQueue) SkipNext() {
	c.add(PlaybackCommand{Type: cmdSkipNext})
}

func (c *CommandQueue) SkipPrevious() {
	c.add(PlaybackCommand{Type: cmdSkipPrevious})
}

func (c *CommandQueue) SyncState() {
	c.filterCommandsAndAdd([]playbackCommandType{cmdSyncState},
		PlaybackCommand{Type: cmdSyncState})
}

func (c *CommandQueue) SyncPosition() {
	c.filterCommandsAndAdd([]playbackCommandType{cmdSyncPosition},
		PlaybackCommand{Type: cmdSyncPosition})
}

// Barrier enqueues a command whose channel is closed once every
// command queued before it has been handled.
func (c *CommandQueue) Barrier() <-chan struct{} {
	done := make(chan struct{})
	c.add(PlaybackCommand{Type: cmdBarrier, Arg: done})
	return done
}

func (c *CommandQueue) add(command PlaybackCommand) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.queue = append(c.queue, command)
	c.cmdAvailable.Signal()
}

func (c *CommandQueue) filterCommandsAndAdd(excludeTypes []playbackCommandType, command PlaybackCommand) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}

	c.queue = slices.DeleteFunc(c.queue, func(cmd PlaybackCommand) bool {
		return slices.Contains(excludeTypes, cmd.Type)
	})
	c.queue = append(c.queue, command)
	c.cmdAvailable.Signal()
}

func (c *CommandQueue) chanWriter() {
	for {
		c.mutex.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.cmdAvailable.Wait()
		}
		if c.closed {
			c.mutex.Unlock()
			close(c.nextChan)
			return
		}
		cmd := c.queue[0]
		copy(c.queue, c.queue[1:])
		c.queue = c.queue[:len(c.queue)-1]
		c.mutex.Unlock()
		c.nextChan <- cmd
	}
}
