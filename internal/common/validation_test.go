package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorCollectsFailures(t *testing.T) {
	exts := map[string]struct{}{"pdf": {}, "png": {}}
	v := NewValidator().
		Field("file_name", "", Required).
		Field("extension", "exe", OneOf(exts)).
		Field("size", int64(11*1024*1024), MaxBytes(10*1024*1024))

	assert.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 3)
	assert.Contains(t, v.ErrorMessage(), "must be one of pdf, png")
	assert.ErrorIs(t, v.Err(), ErrValidation)
}

func TestValidatorPasses(t *testing.T) {
	v := NewValidator().
		Field("file_name", "bill.pdf", Required).
		Field("extension", "PDF", OneOf(map[string]struct{}{"pdf": {}})).
		Field("size", int64(1024), MaxBytes(1024))
	assert.NoError(t, v.Err())
}

func TestMaxBytesRejectsEmpty(t *testing.T) {
	assert.NotNil(t, MaxBytes(10)("size", int64(0)))
	assert.NotNil(t, MaxBytes(10)("size", "ten"))
}
