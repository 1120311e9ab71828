package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeExitRunsHooksInReverse(t *testing.T) {
	s := newSafeExit()
	var order []string
	s.Register(func() { order = append(order, "log") })
	s.Register(func() { order = append(order, "pool") })
	s.Register(func() { order = append(order, "server") })

	s.exit()
	s.exit()

	assert.Equal(t, []string{"server", "pool", "log"}, order)
	select {
	case <-s.Done():
	default:
		t.Fatal("done not closed")
	}
}
