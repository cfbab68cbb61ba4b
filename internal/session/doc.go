// Package session owns the credential lifecycle of the one session a client
// process has: login, logout, startup revalidation and the single-flight
// refresh that concurrent requests share when their access token expires.
//
// The Manager is the only writer of the credential store and of the bearer
// token applied to outgoing requests. Every login and logout starts a new
// epoch; a refresh that resolves after its epoch ended is discarded, so a
// late success can never bring a logged-out session back.
package session
