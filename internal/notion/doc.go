// Package notion is a small client for the parts of the Notion REST API the
// publisher needs: creating a page in a database and appending blocks to it.
//
// Requests are paced by a client-side token bucket and every call is retried
// on rate limits and server errors. Error responses map onto the gist error
// taxonomy: 429, 409 and 5xx are transient, 400, 401, 403 and 404 are
// configuration errors (wrong database, missing property, bad token).
package notion
