// Package errs defines the closed error taxonomy shared by every component.
//
// Store adapters and the lookup client are the only places that translate
// backend-native failures into an *Error. Repositories, services and the
// aggregation pipeline forward them untouched or wrap them with more context.
//
//	if errors.Is(err, errs.ErrNotFound) {
//		// 404
//	}
//
// Each error carries a status, an error class, a human message and a list of
// details, one per root cause, each tagged with a unique id.
package errs
