// Package tasks manages the lifecycle of asynchronous tasks.
//
// A request handler creates a task, hands its ID back to the caller at once,
// and the caller polls for progress and the terminal result instead of
// holding the original connection open.
//
// # Lifecycle
//
// Every task starts in the working status and ends in exactly one terminal
// status:
//
//	working ──► completed | failed | cancelled
//
// Terminal statuses are final. UpdateTaskStatus and StoreTaskResult on a
// terminal task fail with ErrInvalidTransition (or ErrResultAlreadyStored
// when a result exists), and concurrent terminal transitions on one task are
// serialized so exactly one succeeds.
//
// # Stores
//
// Two TaskStore implementations are provided:
//
//   - MemoryTaskStore keeps tasks in process memory and can report an exact
//     live count.
//   - StorageTaskStore serializes tasks into a state.StateStore under
//     "{tenantId}:{keyPrefix}:{taskId}" keys, isolating tenants.
//
// Tasks with a TTL expire once the TTL has elapsed since their last update.
// Expired tasks read as not found; they are removed lazily, or by the
// manager's periodic sweep when one is configured.
//
// # Manager
//
// A Manager picks the store from configuration and owns it together with
// the MessageQueue used to signal running tasks:
//
//	mgr, err := tasks.NewManager(cfg.Tasks, tasks.WithStateStore(kv))
//	if err != nil {
//	    return err
//	}
//	defer mgr.Cleanup()
//
//	task, err := mgr.TaskStore().CreateTask(ctx, tasks.CreateOptions{}, reqID, req)
//
// # Thread Safety
//
// All stores, the Manager and the MessageQueue are safe for concurrent use.
package tasks
