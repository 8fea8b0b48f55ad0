// Package tracker implements the recipient lifecycle tracker.
//
// Delivery-status transitions (MarkSent, MarkFailed) are called only from
// batch processing; open and click recording is called only from tracking
// callback handlers. The two write paths never touch the same fields.
package tracker
