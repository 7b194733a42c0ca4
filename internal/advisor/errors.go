package advisor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/threatflux/depAuditGoMCP/internal/audit"
	"github.com/threatflux/depAuditGoMCP/internal/github"
	"github.com/threatflux/depAuditGoMCP/internal/target"
	"github.com/threatflux/depAuditGoMCP/internal/utils"
)

// ErrorKind groups failures by how a caller should react to them
type ErrorKind string

// Error kinds
const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindAccessDenied ErrorKind = "access_denied"
	KindRateLimited  ErrorKind = "rate_limited"
	KindScanner      ErrorKind = "scanner"
	KindTimeout      ErrorKind = "timeout"
	KindInternal     ErrorKind = "internal"
)

// Classify maps an operation error to its kind
func Classify(err error) ErrorKind {
	var targetErr *target.ValidationError
	var validationResult *utils.ValidationResult
	var accessErr *github.RemoteAccessError
	var scannerErr *audit.ScannerExecutionError

	switch {
	case errors.As(err, &targetErr), errors.As(err, &validationResult):
		return KindValidation
	case errors.As(err, &accessErr):
		switch accessErr.Kind {
		case github.KindNotFound:
			return KindNotFound
		case github.KindAccessDenied:
			return KindAccessDenied
		case github.KindRateLimited:
			return KindRateLimited
		}
		return KindInternal
	case errors.As(err, &scannerErr):
		return KindScanner
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	}
	return KindInternal
}
