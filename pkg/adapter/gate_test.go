package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubAddr string

func (a stubAddr) Network() string { return "tcp" }
func (a stubAddr) String() string  { return string(a) }

func TestLoopbackGate_AllowRemoteDisablesGate(t *testing.T) {
	assert.Nil(t, LoopbackGate(true))
	assert.NotNil(t, LoopbackGate(false))
}

func TestIsLocalClient(t *testing.T) {
	cases := []struct {
		addr  string
		local bool
	}{
		{"127.0.0.1:389", true},
		{"127.0.0.53:1024", true},
		{"[::1]:389", true},
		{"[fe80::1]:389", true},
		{"[fe80::1%lo0]:389", true},
		{"192.168.1.10:389", false},
		{"[fe80::2]:389", false},
		{"[2001:db8::1]:389", false},
		{"not-an-ip:389", false},
	}

	for _, tc := range cases {
		t.Run(tc.addr, func(t *testing.T) {
			assert.Equal(t, tc.local, isLocalClient(stubAddr(tc.addr)))
		})
	}
}
