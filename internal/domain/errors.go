package domain

import "errors"

// Error taxonomy for ingestion. Row-level and category-level errors are
// contained inside the pipeline; ErrStorage is the only class that escapes it.
var (
	// ErrSourceUnavailable means a category's source table could not be opened
	// or lacks a required column. The category is skipped for this run.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRowMalformed means a row carried a value that could not be parsed.
	ErrRowMalformed = errors.New("row malformed")

	// ErrRowIncomplete means a row is missing a required value. Such rows are
	// skipped silently.
	ErrRowIncomplete = errors.New("row incomplete")

	// ErrGeocodeNotFound means the geocoder could not locate the address.
	ErrGeocodeNotFound = errors.New("geocode: address not found")

	// ErrGeocodeService means the geocoder was unreachable, timed out, or
	// returned a server-side failure.
	ErrGeocodeService = errors.New("geocode: service error")

	// ErrGeocodeMalformed means the geocoder returned a response that could
	// not be decoded.
	ErrGeocodeMalformed = errors.New("geocode: malformed response")

	// ErrStorage wraps every persistence failure.
	ErrStorage = errors.New("storage error")
)
