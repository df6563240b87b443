// Package errors provides standardized error handling for fr-service.
//
// # Classification
//
// Every error is one of three classes:
//
//   - Transient: connection loss, timeouts, unavailable sinks or storage (retry is reasonable)
//   - Invalid: bad configuration, malformed keywords, type mismatches (do not retry)
//   - Fatal: resource exhaustion and other unrecoverable states (stop processing)
//
// Classification survives wrapping and works with errors.Is and errors.As.
//
// # Wrapping
//
// All wrapping follows the format
//
//	"component.method: action failed: %w"
//
// using one of
//
//	errors.Wrap(err, "Builder", "Build", "build fn Add")
//	errors.WrapTransient(err, "Client", "Connect", "establish connection")
//	errors.WrapInvalid(err, "Parser", "Parse", "parse keyword")
//	errors.WrapFatal(err, "Server", "Start", "listen")
//
// # Task graph errors
//
// Graph construction fails fast with ErrUnknownKeyword, ErrMalformedKeyword,
// ErrUnknownFunction, ErrMissingInput, ErrMissingOption or ErrInvalidTable.
// Evaluation reports ErrTypeMismatch and ErrPointNotFound as results of a
// pull instead of crashing the owning task. ErrSinkUnavailable is logged by
// export operators and never fails a pull.
package errors
