// Package async runs background work without letting a failure or a panic
// escape into the process.
//
// Go starts one supervised goroutine:
//
//	async.Go(ctx, logger, "area watcher", watcher.Run)
//
// Queue is a bounded pool of workers for fire and forget tasks such as audit
// writes. Submit never blocks; a full queue rejects the task.
//
//	queue := async.NewQueue("audit", 2, 1024, 5*time.Second, logger)
//	defer queue.Shutdown(ctx)
//	err := queue.Submit(func(ctx context.Context) error { return store.Log(ctx, event) })
package async
