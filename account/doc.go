// Package account defines the persisted records behind the credential flows
// and the [Store] contract a relational backend implements.
//
// Every record type that must be unique per owner (PendingUser per email,
// PasswordReset per email, TwoFactor and DeleteAccount per user) is written
// with upsert semantics. Multi-record mutations (promotion, reset
// consumption, deletion, identity linking) are single Store calls so the
// backend can run them in one transaction.
package account
