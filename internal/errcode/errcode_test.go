package errcode

import (
	"errors"
	"fmt"
	"testing"

	"docflow/internal/fields"
	"docflow/internal/geometry"
	"docflow/internal/legacy"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, OK},
		{fmt.Errorf("template 3: %w", fields.ErrNotFound), NotFound},
		{fmt.Errorf("%w: name", fields.ErrDuplicateKey), DuplicateKey},
		{geometry.Validate(0.9, 0, 0.2, 0.1), InvalidGeometry},
		{fields.ErrFieldTemplateMismatch, FieldTemplateMismatch},
		{fmt.Errorf("%w: malformed JSON", legacy.ErrParseFailure), ParseFailure},
		{fields.ErrConcurrentUpdate, ConcurrentUpdate},
		{fields.ErrInvalidInput, InvalidInput},
		{errors.New("connection reset"), SystemError},
	}
	for _, tc := range cases {
		if got := FromError(tc.err); got != tc.want {
			t.Fatalf("FromError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
