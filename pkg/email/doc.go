// Package email sends transactional emails through Postmark, or writes them
// to disk in development.
//
// Bodies are rendered from templ components in the templates subpackage.
// PaymentFailedNotifier plugs the sender into subscription reconciliation
// so students hear about failed renewals.
package email
