package goroutine

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Runner запускает фоновые задачи с обработкой panic и позволяет дождаться их при остановке.
type Runner struct {
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

// NewRunner создаёт Runner, который пишет panic в указанный логгер.
func NewRunner(log logrus.FieldLogger) *Runner {
	return &Runner{log: log}
}

// Go запускает fn в отдельной горутине. Panic логируется и не роняет процесс.
func (r *Runner) Go(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.log.WithFields(logrus.Fields{
					"task":  name,
					"panic": p,
					"stack": string(debug.Stack()),
				}).Error("panic в фоновой задаче")
			}
		}()
		fn()
	}()
}

// Wait ждёт завершения всех задач или отмены ctx.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
