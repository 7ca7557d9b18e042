// Package pagedstore provides a generic, cursor-paginated query layer over a
// single-table DynamoDB design for the fleet maintenance service.
//
// # Overview
//
// Every record is stored as a JSON-encoded body under a partition key ("pk")
// and a type-prefixed composite sort key ("sk"). Entities that must be
// reachable by more than one axis are mirrored under several partition keys
// in a single transaction:
//
//   - Checkup schedules: ACCOUNT#<account>, CHASSIS#<chassis>, DEALER#<dealer>
//     with sk SCHEDULE#<state>#<scheduled_at>#<id>
//   - Assistance cases:  CASE#<id> (sk CASE) plus CHASSIS#<chassis>
//     with sk CASE#<state>#<created_at>#<id>
//   - Guard rows:        CHASSIS#<chassis> with sk ACTIVECASE, written with a
//     conditional expression to enforce one active case per vehicle
//
// One Global Secondary Index supports fleet-wide queries:
//
//   - [FleetIndex] — enumerate fleet-visible records across all accounts.
//     All fleet-visible rows of one kind share a partition key value, which
//     creates a hot partition at higher scale; sharding the fleet attribute
//     would require a schema change and a data migration.
//
// # Getting Started
//
// Create a [Store] with [New], supplying an AWS config, the table name, and
// any [Option] values:
//
//	store := pagedstore.New[checkup.Schedule](&awsCfg, tableName,
//	    pagedstore.WithDefaultQueryLimit(50),
//	)
//
// By default, [New] creates an AWS SDK v2 DynamoDB client from the supplied
// [aws.Config] on [Store.Connect]. Supply [WithAPI] to inject a custom or
// mock implementation.
//
// # Pagination
//
// [Store.Query] returns one page of results and an opaque continuation
// cursor. Cursors are transport-safe strings produced by [EncodeCursor];
// a malformed cursor fails with [ErrBadCursor] and must be reported to the
// caller as an invalid page token, never as the end of the result set.
// [Store.PageAt] walks cursors sequentially to reach a numbered page and is
// O(pageNumber) against the store; it exists for bounded admin tooling only.
//
// # Concurrency
//
// [Store] is safe for concurrent use by multiple goroutines after Connect.
package pagedstore
