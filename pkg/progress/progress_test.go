package progress

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelable(t *testing.T) {
	c := NewCancelable(nil)
	assert.False(t, c.Canceled())
	c.BeginTask("build", 2)
	c.Worked(1)
	c.Cancel()
	assert.True(t, c.Canceled())
}

func TestCancelable_WrapsCanceledHandle(t *testing.T) {
	inner := NewCancelable(nil)
	outer := NewCancelable(inner)
	inner.Cancel()
	assert.True(t, outer.Canceled())
}

func TestErrCanceled(t *testing.T) {
	assert.True(t, errors.Is(ErrCanceled, context.Canceled))
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.BeginTask("Building", 2)
	p.Worked(1)
	p.Worked(1)
	p.Done()
	assert.Equal(t, "Building (2)\nBuilding 1/2\nBuilding 2/2\nBuilding done\n", buf.String())
	assert.False(t, p.Canceled())
}
