package capsule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type State string

const (
	StateLocked   State = "LOCKED"
	StateUnlocked State = "UNLOCKED"
	StateOpen     State = "OPEN"
)

var ErrStillLocked = errors.New("capsule is still locked")

// LockedError carries the unlock instant of a capsule that refused a
// reveal or reflection. It matches ErrStillLocked under errors.Is.
type LockedError struct {
	UnlockAt time.Time
}

func (e LockedError) Error() string {
	return fmt.Sprintf("capsule is still locked until %s", e.UnlockAt.UTC().Format(time.RFC3339))
}

func (e LockedError) Is(target error) bool { return target == ErrStillLocked }

// EffectiveState evaluates the lock on read. Once opened, a capsule stays
// open regardless of now or later edits to UnlockAt.
func EffectiveState(c TimeCapsule, now time.Time) State {
	if c.IsOpened {
		return StateOpen
	}
	if !now.Before(c.UnlockAt) {
		return StateUnlocked
	}
	return StateLocked
}

func CanReveal(c TimeCapsule, now time.Time) bool {
	return EffectiveState(c, now) != StateLocked
}

// Reveal is the only transition that sets IsOpened. It is a no-op on a
// capsule that is already open.
func Reveal(c TimeCapsule, now time.Time) (TimeCapsule, error) {
	if !CanReveal(c, now) {
		return c, LockedError{UnlockAt: c.UnlockAt}
	}
	if !c.IsOpened {
		c.IsOpened = true
		opened := now
		c.OpenedAt = &opened
	}
	return c, nil
}

// AppendReflection returns the capsule with the reflection appended, and the
// reflection itself. The input's reflection slice is never modified.
func AppendReflection(c TimeCapsule, authorID uint64, content string, now time.Time) (TimeCapsule, Reflection, error) {
	if !CanReveal(c, now) {
		return c, Reflection{}, LockedError{UnlockAt: c.UnlockAt}
	}
	r := Reflection{
		CapsuleID: c.ID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: now,
	}
	reflections := make([]Reflection, len(c.Reflections), len(c.Reflections)+1)
	copy(reflections, c.Reflections)
	c.Reflections = append(reflections, r)
	return c, r, nil
}

// Partition splits capsules into locked ones, soonest unlock first, and
// revealable ones, latest unlock first.
func Partition(capsules []TimeCapsule, now time.Time) (locked, open []TimeCapsule) {
	for _, c := range capsules {
		if EffectiveState(c, now) == StateLocked {
			locked = append(locked, c)
		} else {
			open = append(open, c)
		}
	}
	sort.SliceStable(locked, func(i, j int) bool {
		return locked[i].UnlockAt.Before(locked[j].UnlockAt)
	})
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].UnlockAt.After(open[j].UnlockAt)
	})
	return locked, open
}
