package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSocketSender_RefusesAfterClose(t *testing.T) {
	// A released socket has a nil conn; a late Send must not reach it.
	s := &socketSender{}
	s.close()

	assert.ErrorIs(t, s.Send([]byte(`{"event":"message:new"}`)), errSocketClosed)
}
