package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := NewValidationError("orderby=Foo", ErrUnknownKeyword)

	if err.Param != "orderby=Foo" {
		t.Errorf("Param = %v, want orderby=Foo", err.Param)
	}
	if !errors.Is(err, ErrUnknownKeyword) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
	if err.Error() == "" {
		t.Error("Error message should not be empty")
	}

	wrapped := fmt.Errorf("search: %w", err)
	var ve *ValidationError
	if !As(wrapped, &ve) {
		t.Fatal("As should find ValidationError through wrapping")
	}
	if ve.Param != "orderby=Foo" {
		t.Errorf("Param = %v, want orderby=Foo", ve.Param)
	}
}

func TestCapabilityError(t *testing.T) {
	err := NewCapabilityError("ARCHIVE", "query option FUZZY not supported")
	want := "capability violation for ARCHIVE: query option FUZZY not supported"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestStateError(t *testing.T) {
	tests := []struct {
		name    string
		err     *StateError
		wantIs  error
		wantMsg string
	}{
		{
			name:    "Without cause",
			err:     NewStateError("build", "BUILT", nil),
			wantMsg: "query session build not allowed in state BUILT",
		},
		{
			name:    "Exhausted",
			err:     NewStateError("nextMatch", "EXECUTED", ErrNoMoreMatches),
			wantIs:  ErrNoMoreMatches,
			wantMsg: "query session nextMatch in state EXECUTED: dicomarc: no more matches",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", tt.err.Error(), tt.wantMsg)
			}
			if tt.wantIs != nil && !Is(tt.err, tt.wantIs) {
				t.Errorf("Is(%v) = false", tt.wantIs)
			}
		})
	}
}

func TestRetrieveError(t *testing.T) {
	err := NewRetrieveError("1.2.3", "transcode", ErrUnsupportedTransfer)
	if !errors.Is(err, ErrUnsupportedTransfer) {
		t.Error("errors.Is should find ErrUnsupportedTransfer")
	}
	if err.SOPInstanceUID != "1.2.3" {
		t.Errorf("SOPInstanceUID = %v, want 1.2.3", err.SOPInstanceUID)
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageError("count", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if err.Error() != "storage error during count: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}
