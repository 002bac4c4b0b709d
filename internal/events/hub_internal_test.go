package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koopa0/system-design/14-lru-cache/pkg/logger"
)

// TestRegister_AfterStop Stop 之後註冊的連線會被拒絕，不會留在 clients 中
func TestRegister_AfterStop(t *testing.T) {
	h := NewHub(logger.Discard())

	before := &client{hub: h, send: make(chan []byte, 1)}
	assert.True(t, h.register(before))

	h.Stop()

	// Stop 關閉了已註冊連線的 send
	_, open := <-before.send
	assert.False(t, open)

	late := &client{hub: h, send: make(chan []byte, 1)}
	assert.False(t, h.register(late))
	assert.Equal(t, 0, h.ClientCount())
}
