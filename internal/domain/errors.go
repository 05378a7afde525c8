package domain

import "errors"

// Failure taxonomy shared by all packages. Callers classify errors with
// errors.Is; wrapping adds call-site context without changing the class.
var (
	// ErrMarketNotFound indicates that no market is registered under the
	// requested identifier.
	ErrMarketNotFound = errors.New("market not found")

	// ErrDataNotFound indicates that the cached data holds no entry for the
	// requested key, for example an SQ date for a month outside the published
	// range. Refreshing the cache may resolve it.
	ErrDataNotFound = errors.New("data not found")

	// ErrUnsupportedCapability indicates that the market does not provide the
	// requested capability, such as SQ date resolution.
	ErrUnsupportedCapability = errors.New("capability not supported")

	// ErrTimezoneRequired indicates that an instant was given without an
	// explicit UTC offset or zone.
	ErrTimezoneRequired = errors.New("timezone-aware instant required")

	// ErrCacheUnavailable indicates that no cached snapshot exists and a fetch
	// could not produce one.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrFetchFailed indicates that downloading authoritative data from the
	// exchange failed.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrInvalidDataFormat indicates that downloaded or stored data does not
	// match the expected layout.
	ErrInvalidDataFormat = errors.New("invalid data format")
)
