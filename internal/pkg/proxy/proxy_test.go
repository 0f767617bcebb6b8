package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLoopback(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:8080": true,
		"[::1]:8080":     true,
		"example.com:80": false,
		"10.0.0.5:8080":  false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopback(addr), addr)
	}
}

func TestFmtAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8042", fmtAddr("127.0.0.1", 8042))
}
