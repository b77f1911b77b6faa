// Package billing provides the domain model for usage-based billing in a
// multi-tenant subscription backend.
//
// This package implements the billing computation bounded context, which is
// responsible for:
//   - Recording immutable usage events per tenant, subscription and feature
//   - Summing usage over a billing period (the usage ledger)
//   - Assembling per-feature charges into a BillingResult
//
// Key types:
//   - UsageRecord: Immutable record of a single usage event
//   - Subscription: A tenant's plan enrollment with its billable features
//   - BillingResult: The outcome of one calculation run, never persisted
//     by this package itself - the caller decides whether to materialize
//     it into an invoice
//
// Pricing arithmetic lives in the pricing package; this package only
// carries the data that flows into and out of a calculation.
package billing
