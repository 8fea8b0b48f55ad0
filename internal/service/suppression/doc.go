// Package suppression implements the suppression store.
//
// This is the single source of truth for whether an email address may
// receive mail. Suppressions flow in from two sources: explicit
// unsubscribes and bounce records reported by the mail transport. The
// batch processor checks IsSuppressed before every send attempt.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
