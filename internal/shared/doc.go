// Package shared holds the error taxonomy shared by every hotcron component.
//
// Failure classes:
//
//   - ErrConfigUnavailable: the crontab file could not be read or parsed. The
//     registry logs it and continues with an empty job list.
//   - ErrSpawnFailure: a job's process could not be started. It is the only
//     execution outcome reported as Failed.
//   - ErrTelemetryDelivery: a notification channel failed. Logged, never
//     propagated into job execution.
//   - ErrReloadCanceled: a reload waiting for the exclusive section was
//     canceled by a reset.
//
// A non-zero exit code is not an error value; it is a regular process outcome.
//
// Classify with KindOf or the Is* predicates:
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindReloadCanceled:
//	    return http.StatusConflict
//	}
//
// Adapt third-party errors with MarkKind, which keeps the original error in
// the chain:
//
//	if _, err := os.ReadFile(path); err != nil {
//	    return shared.MarkKind(err, shared.KindConfigUnavailable)
//	}
package shared
