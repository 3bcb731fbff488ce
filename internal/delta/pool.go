package delta

import (
	"context"
	"sync"
)

// runJobs executes jobs on a bounded worker pool. Errors are reported in
// submission order, so the chosen job results stay deterministic. A
// failing job does not cancel its siblings; context cancellation makes
// not-yet-started jobs fail fast while jobs already running finish.
func runJobs(ctx context.Context, workers int, jobs []func() error) error {
	if workers < 1 {
		workers = 1
	}
	errs := make([]error, len(jobs))
	jobCh := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				errs[i] = jobs[i]()
			}
		}()
	}
	for i := range jobs {
		jobCh <- i
	}
	close(jobCh)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
