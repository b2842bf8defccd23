package repository

import (
	"strconv"

	"github.com/moby/locker"
)

// movieLocks serializes work per movie id. Names are released by the locker once unused.
type movieLocks struct {
	names *locker.Locker
}

func newMovieLocks() *movieLocks {
	return &movieLocks{names: locker.New()}
}

// Lock blocks until movieID is free and returns the matching unlock.
func (m *movieLocks) Lock(movieID int) (unlock func()) {
	name := strconv.Itoa(movieID)
	m.names.Lock(name)
	return func() {
		// Only fails for a name that is not held.
		_ = m.names.Unlock(name)
	}
}
