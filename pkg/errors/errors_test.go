package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	decErr := fmt.Errorf("indexing doc: %w", &DecodingError{Field: "title", Offset: 3})
	if !errors.Is(decErr, ErrDecoding) {
		t.Errorf("expected DecodingError to match ErrDecoding")
	}
	var de *DecodingError
	if !errors.As(decErr, &de) || de.Field != "title" || de.Offset != 3 {
		t.Errorf("errors.As failed or lost context: %+v", de)
	}

	qErr := &InvalidQueryError{Query: "a*", Pos: 1, Reason: "wildcards are not supported"}
	if !errors.Is(qErr, ErrInvalidQuery) {
		t.Errorf("expected InvalidQueryError to match ErrInvalidQuery")
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&InvalidQueryError{Query: "(", Reason: "unbalanced parenthesis"}, http.StatusBadRequest},
		{fmt.Errorf("search: %w", ErrIndexNotReady), http.StatusServiceUnavailable},
		{ErrAlreadyFinalized, http.StatusConflict},
		{ErrDocumentNotFound, http.StatusNotFound},
		{New(ErrInternal, http.StatusTeapot, "custom"), http.StatusTeapot},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
