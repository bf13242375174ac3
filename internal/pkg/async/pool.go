// Package async runs independent query tasks concurrently, used by the
// dashboard to fan out its metric queries.
package async

import (
	"context"
	"sync"
)

// Task is one named unit of work.
type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

// Result carries a task's outcome, keyed by its name.
type Result struct {
	Name string
	Data any
	Err  error
}

// Pool executes task batches on a fixed number of workers.
type Pool struct {
	workerCount int
}

// NewPool creates a pool with the given number of workers.
func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs all tasks and returns the results keyed by task name.
// A cancelled context stops scheduling; already-collected results are
// returned as-is.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	taskCh := make(chan Task)
	resultCh := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case task, ok := <-taskCh:
					if !ok {
						return
					}
					data, err := task.Execute(ctx)
					select {
					case resultCh <- Result{Name: task.Name, Data: data, Err: err}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result, len(tasks))
	for i := 0; i < len(tasks); i++ {
		select {
		case result := <-resultCh:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	return results
}
