package jobx

import (
	"errors"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound     = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrEnqueueFailed   = jobxErrors.Register("ENQUEUE_FAILED", errx.TypeExternal, 500, "Failed to enqueue job")
	ErrNoHandler       = jobxErrors.Register("NO_HANDLER", errx.TypeValidation, 400, "No handler registered for job type")
	ErrInvalidJob      = jobxErrors.Register("INVALID_JOB", errx.TypeValidation, 400, "Invalid job definition")
	ErrInvalidPayload  = jobxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Job payload could not be decoded")
	ErrAlreadyRunning  = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
	ErrDuplicateJob    = jobxErrors.Register("DUPLICATE_JOB", errx.TypeConflict, 409, "A job with this unique key is already queued")
	ErrShutdownTimeout = jobxErrors.Register("SHUTDOWN_TIMEOUT", errx.TypeInternal, 500, "Graceful shutdown timed out")
)

// permanentError marks a handler failure that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so the worker fails the job without scheduling retries.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// DuplicateJob reports that uniqueKey is already held by existingID.
func DuplicateJob(uniqueKey, existingID string) error {
	return jobxErrors.New(ErrDuplicateJob).
		WithDetail("unique_key", uniqueKey).
		WithDetail("job_id", existingID)
}

// IsDuplicate reports whether err came from a rejected unique enqueue.
func IsDuplicate(err error) bool {
	return errx.IsCode(err, ErrDuplicateJob)
}
