package utils

import "sync"

// CompletedTask is one finished unit of pool work, e.g. a downloaded frame.
type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool fans queue out over at most maxWorkers goroutines and streams
// results into completed, closing it when the queue drains. Results arrive in
// completion order, not queue order; callers that need ordering (frame batches
// do) should tag inputs with an index. The queue channel must already hold
// every item and be closed, since the worker count is sized from its length.
func RunInPool[In any, Out any](worker func(In) (Out, error), queue chan In, completed chan CompletedTask[Out], maxWorkers int) {
	workers := min(len(queue), maxWorkers)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for next := range queue {
					res, err := worker(next)
					if err != nil {
						completed <- CompletedTask[Out]{Error: err}
					} else {
						completed <- CompletedTask[Out]{Result: res, Error: nil}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}
