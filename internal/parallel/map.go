package parallel

import (
	"context"
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a parallel mapping function, which runs at most limit mapFuncs at
// once and waits for their completion. The input and output are represented
// as iterators, so the typical usage is
//
//	for result, err := range pmap.Iter(input) {}
//
// An error or a panic of one mapFunc is yielded as its result and never
// stops the others. Canceled context stops admitting new entries.
type Map[E, D any] struct {
	parentCtx    context.Context
	cancelParent context.CancelFunc
	g            *errgroup.Group
	gctx         context.Context
	mapped       chan result[D]
	mapFunc      func(context.Context, E) (D, error)
}

func NewMap[E, D any](parentCtx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	parentCtx, cancelParent := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(parentCtx)
	// one extra slot for the feeder goroutine
	g.SetLimit(limit + 1)

	mapped := make(chan result[D], limit)

	return &Map[E, D]{
		parentCtx:    parentCtx,
		cancelParent: cancelParent,
		g:            g,
		gctx:         gctx,
		mapped:       mapped,
		mapFunc:      mapFunc,
	}
}

func (s *Map[E, D]) goWorkers(seq iter.Seq2[E, error]) {
	s.g.Go(func() error {
		for entry, nerr := range seq {
			if s.gctx.Err() != nil {
				return nil
			}
			if nerr != nil {
				var zero D
				s.send(zero, nerr)
				continue
			}
			s.g.Go(func() error {
				d, err := s.call(entry)
				s.send(d, err)
				return nil
			})
		}
		return nil
	})
}

func (s *Map[E, D]) call(entry E) (d D, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.mapFunc(s.gctx, entry)
}

func (s *Map[E, D]) send(d D, err error) {
	select {
	case <-s.gctx.Done():
	case s.mapped <- result[D]{d: d, e: err}:
	}
}

func (s *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		defer s.cancelParent()
		s.goWorkers(seq)

		go func() {
			_ = s.g.Wait()
			close(s.mapped)
		}()

		for r := range s.mapped {
			if s.parentCtx.Err() != nil {
				continue
			}
			if !yield(r.d, r.e) {
				s.cancelParent()
				for range s.mapped {
				}
				return
			}
		}
	}
}
