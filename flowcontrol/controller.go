package flowcontrol

import (
	"time"

	"github.com/rtps-io/rtpscore/history"
)

// ThroughputController is a pure admission-control functor applied to
// an ordered sequence of pending CacheChanges: a token-bucket-style
// bandwidth governor configured with a byte budget per period.
type ThroughputController struct {
	mu reentrantMutex

	bytesPerPeriod int
	period         time.Duration
	accumulated    int

	scheduler *Scheduler
	wake      func()
}

// NewThroughputController builds a controller with the given budget
// and refill period. scheduler owns the refresh timers; wake is
// called once per successful refresh to notify the async sender that
// budget is available again. A nil wake is a no-op.
func NewThroughputController(bytesPerPeriod int, period time.Duration, scheduler *Scheduler, wake func()) *ThroughputController {
	if wake == nil {
		wake = func() {}
	}
	return &ThroughputController{
		bytesPerPeriod: bytesPerPeriod,
		period:         period,
		scheduler:      scheduler,
		wake:           wake,
	}
}

// Accumulated returns the controller's current accumulated byte
// count, for tests and observability.
func (c *ThroughputController) Accumulated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accumulated
}

// Admit walks changes in order and admits a prefix under the
// configured byte budget, per spec.md §4.3. Non-fragmented samples
// are admitted whole or not at all; fragmented samples are admitted
// fragment-by-fragment, clearing PRESENT flags to NOT_PRESENT for the
// fragments admitted this period. A fragmented change with no fragment
// left PRESENT is skipped. It returns the admitted changes (a prefix of
// the input, less any such skipped change) and schedules a refresh that
// restores the admitted bytes after one period.
func (c *ThroughputController) Admit(changes []*history.CacheChange) []*history.CacheChange {
	c.mu.Lock()
	defer c.mu.Unlock()

	admitted := make([]*history.CacheChange, 0, len(changes))
	admittedBytes := 0

	for _, change := range changes {
		if change.IsFragmented() {
			frag := change.Fragmentation
			p := frag.PresentCount()
			if p == 0 {
				continue
			}
			remaining := c.bytesPerPeriod - c.accumulated
			if remaining <= 0 {
				break
			}
			k := remaining / frag.FragmentSize
			if k > p {
				k = p
			}
			if k == 0 {
				break
			}

			admitFragments(frag, k)
			grant := k * frag.FragmentSize
			c.accumulated += grant
			admittedBytes += grant
			admitted = append(admitted, change)
			continue
		}

		l := len(change.Payload)
		if c.accumulated+l > c.bytesPerPeriod {
			break
		}
		c.accumulated += l
		admittedBytes += l
		admitted = append(admitted, change)
	}

	if admittedBytes > 0 && c.scheduler != nil {
		restore := admittedBytes
		c.scheduler.Schedule(c.period, func() {
			c.refresh(restore)
		})
	}

	return admitted
}

// admitFragments clears the last k fragments still flagged PRESENT to
// NOT_PRESENT, marking them as admitted for emission this period. Per
// spec.md §4.3 step 3, the first p-k fragments remain PRESENT and the
// last k become NOT_PRESENT.
func admitFragments(frag *history.Fragmentation, k int) {
	cleared := 0
	for i := len(frag.Flags) - 1; i >= 0; i-- {
		if cleared == k {
			return
		}
		if frag.Flags[i] == history.Present {
			frag.Flags[i] = history.NotPresent
			cleared++
		}
	}
}

// refresh restores up to `restore` bytes of budget and wakes the
// async sender once. Cancellation-safe: the Scheduler skips it when
// Stop was called before its timer fired.
func (c *ThroughputController) refresh(restore int) {
	c.mu.Lock()
	c.accumulated -= restore
	if c.accumulated < 0 {
		c.accumulated = 0
	}
	c.mu.Unlock()

	c.wake()
}
