// Package reddit is a minimal read-only client for public community
// listings.
//
// The client:
//   - Reads /r/{community}/{sort}.json without authentication
//   - Spaces requests with a shared token-bucket limiter
//   - Retries 429 and 5xx responses with jittered exponential backoff
package reddit
