// Package errors provides the structured error taxonomy used by the task
// lifecycle packages. Every error carries a code identifying the failure and a
// category that tells callers whether retrying can help.
//
// # Error Categories
//
//   - Permanent: protocol-usage errors that are deterministic for a given
//     sequence of calls (unknown task, terminal task, result already stored).
//   - Transient: faults of the persistent collaborator where retry may succeed.
//   - Internal: unexpected errors indicating bugs or corrupted state.
//
// # Matching
//
// Errors match by code, so the standard library works against sentinels:
//
//	var ErrTaskNotFound = errors.New(errors.ErrCodeNotFound, "task not found")
//
//	err := errors.New(errors.ErrCodeNotFound, "task task_42 not found")
//	stderrors.Is(err, ErrTaskNotFound) // true
//
// Wrap a collaborator fault so it surfaces as a generic failure distinct from
// the domain errors:
//
//	if err != nil {
//	    return errors.WrapWithCode(err, errors.ErrCodeUnavailable, "load task")
//	}
package errors
