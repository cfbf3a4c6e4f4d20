// Package shutdown tears a task-serving process down in phases.
//
// Components register a Handler under a phase. Run calls the phases in
// ascending order; handlers sharing a phase run concurrently. The phases
// below match the dependency order of a task process: stop taking new
// work, release the task manager, close the persistent store, then flush
// telemetry.
//
//	seq := shutdown.NewSequence(shutdown.Config{Timeout: 10 * time.Second})
//	seq.Register("task-manager", shutdown.PhaseTasks, mgr)
//	seq.RegisterFunc("state-store", shutdown.PhaseStorage, func(context.Context) error {
//	    return kv.Close()
//	})
//	seq.RegisterFunc("tracing", shutdown.PhaseTelemetry, provider.Shutdown)
//
//	<-ctx.Done()
//	if err := seq.Run(context.Background()); err != nil {
//	    log.Printf("shutdown: %v", err)
//	}
//
// Run is idempotent: later calls wait for and return the first run's error.
package shutdown
