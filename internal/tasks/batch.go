package tasks

import (
	"fmt"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/shared"
)

// ListenSource is a pull-based, non-restartable sequence of listens.
// [repositories.ListenCursor] and [Pairer] both satisfy it. Exhaustion is
// terminal: once Scan returns false the source never yields again.
type ListenSource interface {
	Scan() bool
	Listen() models.Listen
	Err() error
}

// NextChunk pulls up to n listens from the source. The returned chunk is
// empty when the source is exhausted; the final chunk of a sequence may be
// smaller than n. No lookahead happens beyond the chunk itself.
func NextChunk(src ListenSource, n int) ([]models.Listen, error) {
	var chunk []models.Listen
	for len(chunk) < n && src.Scan() {
		chunk = append(chunk, src.Listen())
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	return chunk, nil
}

// EncodeFunc serializes a tentative batch into the target wire format so the
// batcher can probe its size. [services.EncodeSubmission] is the production
// implementation.
type EncodeFunc func([]models.Listen) ([]byte, error)

// Batch is an ordered, non-empty group of listens with its serialized body.
type Batch struct {
	Listens []models.Listen
	Body    []byte
}

// batchGrowStep is how much the target batch size grows after a batch fits.
// A tuning parameter, not a correctness requirement: growth only has to be
// slow enough that the one-at-a-time shrink stays infrequent.
const batchGrowStep = 5

// AdaptiveBatcher partitions a listen sequence into batches whose serialized
// size stays within a byte budget, without knowing per-item sizes up front.
//
// It keeps a rolling buffer of unconsumed listens, probes a tentative batch
// of the current target size by serializing it, commits and grows the target
// on a fit, and shrinks the target by one and retries on an overflow. The
// initial target is seeded from an assumed average per-item size.
type AdaptiveBatcher struct {
	src       ListenSource
	encode    EncodeFunc
	maxBytes  int
	n         int
	buf       []models.Listen
	exhausted bool
}

// NewAdaptiveBatcher creates a batcher over src with the given byte budget,
// seeding the target batch size from assumedItemBytes.
func NewAdaptiveBatcher(src ListenSource, encode EncodeFunc, maxBytes, assumedItemBytes int) *AdaptiveBatcher {
	n := maxBytes / assumedItemBytes
	if n < 1 {
		n = 1
	}
	return &AdaptiveBatcher{src: src, encode: encode, maxBytes: maxBytes, n: n}
}

// replenish pulls from upstream while the buffer holds fewer than twice the
// current target, or until upstream is exhausted. Exhaustion is terminal.
func (b *AdaptiveBatcher) replenish() error {
	for !b.exhausted && len(b.buf) < 2*b.n {
		if !b.src.Scan() {
			b.exhausted = true
			return b.src.Err()
		}
		b.buf = append(b.buf, b.src.Listen())
	}
	return nil
}

// Next emits the next batch, or (nil, nil) when the sequence is exhausted.
// An emitted batch is never empty and its body never exceeds the budget.
// A single listen that does not fit even on its own is unrecoverable.
func (b *AdaptiveBatcher) Next() (*Batch, error) {
	if err := b.replenish(); err != nil {
		return nil, err
	}
	if len(b.buf) == 0 {
		return nil, nil
	}

	for {
		take := b.n
		if take > len(b.buf) {
			take = len(b.buf)
		}

		body, err := b.encode(b.buf[:take])
		if err != nil {
			return nil, fmt.Errorf("failed to serialize tentative batch: %w", err)
		}

		if len(body) <= b.maxBytes {
			listens := make([]models.Listen, take)
			copy(listens, b.buf[:take])
			b.buf = b.buf[take:]
			b.n += batchGrowStep
			return &Batch{Listens: listens, Body: body}, nil
		}

		if take == 1 {
			return nil, fmt.Errorf("%w: %d bytes against a %d byte budget", shared.ErrListenTooLarge, len(body), b.maxBytes)
		}

		// Too big. Nothing was consumed; shrink the target and probe again.
		if b.n > take {
			b.n = take
		}
		b.n--
	}
}
