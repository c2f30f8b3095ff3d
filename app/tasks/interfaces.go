package tasks

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background feed synchronization and
// by tasks that spawn follow-up work (a confirmed redirect enqueues a
// migration task).
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
