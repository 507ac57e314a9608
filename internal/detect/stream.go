package detect

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/combatclip/internal/classify"
)

// Stream classifies frame samples on a worker pool and re-sequences the
// results into strict frame-index order. The detector downstream depends on
// seeing a gap-free increasing stream, so classification may run out of order
// but delivery never does.
type Stream struct {
	logger            zerolog.Logger
	classifier        classify.Classifier
	workers           int
	mountedEmptySlots int
}

// NewStream creates a classification stage with the given parallelism
func NewStream(logger zerolog.Logger, classifier classify.Classifier, workers, mountedEmptySlots int) *Stream {
	if workers < 1 {
		workers = 1
	}
	return &Stream{
		logger:            logger.With().Str("component", "feature-stream").Logger(),
		classifier:        classifier,
		workers:           workers,
		mountedEmptySlots: mountedEmptySlots,
	}
}

type classified struct {
	features FrameFeatures
	err      error
}

// Run consumes samples until the input channel closes and emits frame
// features in index order on out. It closes out before returning. The first
// classification error aborts the stage.
func (s *Stream) Run(ctx context.Context, in <-chan Sample, out chan<- FrameFeatures) error {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan classified, s.workers*2)

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			s.worker(ctx, in, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	pending := make(map[int]FrameFeatures)
	next := 0

	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}

		pending[r.features.Index] = r.features
		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			select {
			case out <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
			next++
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if len(pending) != 0 {
		return fmt.Errorf("feature stream ended with %d frames stuck after index %d", len(pending), next-1)
	}
	return nil
}

func (s *Stream) worker(ctx context.Context, in <-chan Sample, results chan<- classified) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-in:
			if !ok {
				return
			}

			classes, err := s.classifier.Classify(ctx, sample.Slots)
			var r classified
			if err != nil {
				r = classified{err: fmt.Errorf("classification of frame %d failed: %w", sample.Index, err)}
			} else {
				r = classified{features: NewFrameFeatures(sample.Index, classes, sample.RedScreen, s.mountedEmptySlots)}
			}

			select {
			case results <- r:
			case <-ctx.Done():
				return
			}
		}
	}
}
