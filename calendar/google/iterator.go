package google

import (
	"github.com/guilherme-santos/eventsync/internal"
)

type changeOrError struct {
	c   *internal.Change
	err error
}

// changeIterator is fed by a goroutine paging through the API. cursor and
// abortErr are written by that goroutine before it closes changes.
type changeIterator struct {
	changes  chan changeOrError
	current  changeOrError
	done     bool
	err      error
	cursor   string
	abortErr error
}

func newChangeIterator() *changeIterator {
	return &changeIterator{
		changes: make(chan changeOrError),
	}
}

func (it *changeIterator) Next() (ok bool) {
	if it.done {
		return false
	}
	it.current, ok = <-it.changes
	if it.current.err != nil {
		it.err = it.current.err
		it.done = true
		return false
	}
	if !ok {
		it.err = it.abortErr
		it.done = true
	}
	return ok
}

func (it *changeIterator) Change() *internal.Change {
	c := it.current
	if c.c == nil && c.err == nil {
		panic("google: Change() called before Next()")
	}
	return c.c
}

func (it *changeIterator) Cursor() string {
	if !it.done || it.err != nil {
		return ""
	}
	return it.cursor
}

func (it *changeIterator) Err() error {
	return it.err
}
