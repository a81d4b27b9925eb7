package session

import "errors"

var (
	// ErrInvalidSession is returned for lookups of unknown session ids.
	ErrInvalidSession = errors.New("session not found")

	// ErrEmptyQuery rejects blank chat queries before any retrieval.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrNoContent covers crawls that yield no usable pages and uploads
	// that extract to nothing.
	ErrNoContent = errors.New("no analyzable content")

	// ErrSyncUnsupported is returned for sessions whose content did not
	// come from a domain crawl: URL-list and document-only sessions
	// have no seed to re-crawl.
	ErrSyncUnsupported = errors.New("sync is only available for domain-analyzed sessions")
)
