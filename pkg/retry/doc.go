// Package retry runs an operation with exponential backoff and jitter.
//
// Every error is retried unless it is wrapped with Permanent, the context is
// done, or the Config's Retryable predicate rejects it:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 4}, func(ctx context.Context) error {
//	    resp, err := send(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if resp.StatusCode == http.StatusBadRequest {
//	        return retry.Permanent(errBadPayload)
//	    }
//	    return nil
//	})
//
// When attempts run out Do returns *ExhaustedError, which unwraps to the last
// error.
package retry
