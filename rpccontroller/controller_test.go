package rpccontroller

import "testing"

func TestNewControllerIsNotFailed(t *testing.T) {
	ctrl := New()
	if ctrl.Failed() {
		t.Fatal("fresh controller must not be failed")
	}
	if ctrl.ErrorText() != "" {
		t.Fatalf("fresh controller must have empty error text, got %q", ctrl.ErrorText())
	}
}

func TestSetFailedRecordsText(t *testing.T) {
	ctrl := New()
	ctrl.SetFailed("discovery miss: UserService.Login not found")
	if !ctrl.Failed() {
		t.Fatal("expect Failed() true after SetFailed")
	}
	if ctrl.ErrorText() != "discovery miss: UserService.Login not found" {
		t.Fatalf("unexpected error text: %q", ctrl.ErrorText())
	}
}

func TestResetClearsFailureForReuse(t *testing.T) {
	ctrl := New()
	ctrl.SetFailed("transport error")
	ctrl.Reset()
	if ctrl.Failed() {
		t.Fatal("expect Failed() false after Reset")
	}
	if ctrl.ErrorText() != "" {
		t.Fatalf("expect empty error text after Reset, got %q", ctrl.ErrorText())
	}
}

func TestCancellationSurfaceIsInert(t *testing.T) {
	ctrl := New()
	ctrl.StartCancel()
	if ctrl.IsCancelled() {
		t.Fatal("IsCancelled must always report false: cancellation is out of scope")
	}
	ch := make(chan struct{}, 1)
	ctrl.NotifyOnCancel(ch)
	select {
	case <-ch:
		t.Fatal("NotifyOnCancel must never fire")
	default:
	}
}
