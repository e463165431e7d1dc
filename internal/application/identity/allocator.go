// Package identity issues temporary subscriber identities (TMSIs).
//
// A TMSI is 32 bits. With node partitioning enabled at width B, bits
// [24-B, 24) carry the node value so cooperating instances never issue the
// same identity; the remaining bits form the counter. Values at or above
// 0xC0000000 are reserved and never issued.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/orris-inc/cellcore/internal/domain/shared"
	"github.com/orris-inc/cellcore/internal/domain/subscriber"
	"github.com/orris-inc/cellcore/internal/shared/alarm"
	"github.com/orris-inc/cellcore/internal/shared/errors"
	"github.com/orris-inc/cellcore/internal/shared/logger"
)

// MaxNodeBits is the widest supported node partition.
const MaxNodeBits = 10

// InUseChecker reports whether a temporary identity is held by a registration.
type InUseChecker interface {
	TemporaryIDInUse(tmsi string) bool
}

// Allocator is safe for concurrent use.
type Allocator struct {
	mu   sync.Mutex
	last uint32
	bits uint
	node uint32

	inUse    InUseChecker
	sections shared.SectionStore
	alarms   *alarm.Board
	logger   logger.Interface
}

func NewAllocator(inUse InUseChecker, sections shared.SectionStore, alarms *alarm.Board, log logger.Interface) *Allocator {
	if log == nil {
		log = logger.NewNop()
	}
	if alarms == nil {
		alarms = alarm.NewBoard(log)
	}
	return &Allocator{
		inUse:    inUse,
		sections: sections,
		alarms:   alarms,
		logger:   log,
	}
}

// Configure applies partition settings. The node value is masked to bits.
func (a *Allocator) Configure(bits, node int) error {
	if bits < 0 || bits > MaxNodeBits {
		return errors.NewConfigError("invalid node partition width", fmt.Sprintf("nnsf_bits=%d, want 0..%d", bits, MaxNodeBits))
	}
	if node < 0 {
		return errors.NewConfigError("invalid node value", fmt.Sprintf("nnsf_node=%d", node))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.bits = uint(bits)
	a.node = uint32(node) & (1<<a.bits - 1)
	if uint32(node) != a.node {
		a.logger.Warnw("node value truncated to partition width",
			"configured", node,
			"bits", bits,
			"node", a.node,
		)
	}
	return nil
}

// Restore seeds the counter with the last issued value.
func (a *Allocator) Restore(last uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = last
}

// Load reads the last issued value from persistence and restores it.
// A missing value leaves the counter at zero.
func (a *Allocator) Load(ctx context.Context) error {
	values, err := a.sections.Load(ctx, shared.SectionTMSI)
	if err != nil {
		return fmt.Errorf("failed to load last tmsi: %w", err)
	}

	raw, ok := values[shared.KeyLastTMSI]
	if !ok {
		return nil
	}
	last, err := subscriber.ParseTMSI(raw)
	if err != nil {
		a.logger.Warnw("ignoring persisted tmsi", "value", raw, "error", err)
		return nil
	}

	a.Restore(last)
	a.logger.Infow("tmsi counter restored", "last", raw)
	return nil
}

// Last returns the last issued value.
func (a *Allocator) Last() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Allocate returns a temporary identity no registration currently holds. The
// value is persisted before it is returned.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cand := a.last
	space := a.counterSpace()
	for i := uint64(0); i < space; i++ {
		cand = a.next(cand)
		tmsi := subscriber.FormatTMSI(cand)
		if a.inUse != nil && a.inUse.TemporaryIDInUse(tmsi) {
			continue
		}

		a.last = cand
		a.persist(ctx, tmsi)
		return tmsi, nil
	}

	return "", errors.NewInternalError("temporary identity space exhausted",
		fmt.Sprintf("nnsf_bits=%d node=%d", a.bits, a.node))
}

// next computes the successor of last within this node's partition.
func (a *Allocator) next(last uint32) uint32 {
	if a.bits == 0 {
		cand := last + 1
		if cand >= subscriber.ReservedTMSI || cand == 0 {
			cand = 1
		}
		return cand
	}

	shift := 24 - a.bits
	lowMask := uint32(1)<<shift - 1

	// pack top byte and low bits into one counter, skipping the node bits
	counter := (last>>24)<<shift | last&lowMask
	counter++

	cand := ((counter>>shift)&0xFF)<<24 | a.node<<shift | counter&lowMask
	if cand >= subscriber.ReservedTMSI {
		cand = a.node<<shift | 1
	}
	return cand
}

// counterSpace is the number of distinct values next can produce.
func (a *Allocator) counterSpace() uint64 {
	return uint64(subscriber.ReservedTMSI>>24) << (24 - a.bits)
}

func (a *Allocator) persist(ctx context.Context, tmsi string) {
	if a.sections == nil {
		return
	}
	if err := a.sections.Set(ctx, shared.SectionTMSI, shared.KeyLastTMSI, tmsi); err != nil {
		a.alarms.Raise(alarm.KindPersistence, shared.SectionTMSI, "failed to persist last tmsi",
			"tmsi", tmsi,
			"error", err,
		)
		return
	}
	a.alarms.Clear(alarm.KindPersistence, shared.SectionTMSI)
}
