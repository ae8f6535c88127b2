// Package rpccontroller implements the per-call Controller Record
// (§4.5): the value a Caller Channel mutates to report failure, and the
// caller inspects after the call returns.
//
// A Controller belongs to exactly one in-flight call. It is written by
// the Caller Channel and read by the caller after CallMethod returns;
// nothing else touches it, so it needs no synchronisation.
package rpccontroller

// Controller carries failure state for one RPC call. The zero value is
// a fresh, non-failed controller ready for use.
type Controller struct {
	failed  bool
	errText string
}

// New returns a ready-to-use Controller.
func New() *Controller {
	return &Controller{}
}

// Reset clears failure state so the Controller can be reused for another call.
func (c *Controller) Reset() {
	c.failed = false
	c.errText = ""
}

// SetFailed marks the call failed with a human-readable description.
func (c *Controller) SetFailed(text string) {
	c.failed = true
	c.errText = text
}

// Failed reports whether the call failed.
func (c *Controller) Failed() bool {
	return c.failed
}

// ErrorText returns the failure description, or "" if the call succeeded.
func (c *Controller) ErrorText() string {
	return c.errText
}

// StartCancel, IsCancelled, and NotifyOnCancel satisfy the cancellation
// surface generated stubs expect a controller to expose. Cancellation
// is out of scope for this runtime (§1 non-goals), so they are no-ops:
// a call always runs to completion or fails by transport error.
func (c *Controller) StartCancel() {}

// IsCancelled always reports false; nothing in this runtime cancels a call.
func (c *Controller) IsCancelled() bool { return false }

// NotifyOnCancel never fires, since nothing ever cancels.
func (c *Controller) NotifyOnCancel(chan<- struct{}) {}
