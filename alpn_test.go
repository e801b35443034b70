package s2n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectALPNServerPreferenceOrder(t *testing.T) {
	cases := []struct {
		name       string
		server     []string
		client     []string
		wantProto  string
		wantMatch  bool
	}{
		{"server preference wins", []string{"h2", "http/1.1"}, []string{"http/1.1", "h2"}, "h2", true},
		{"only one in common", []string{"h2", "http/1.1"}, []string{"http/1.1"}, "http/1.1", true},
		{"nothing in common", []string{"h2"}, []string{"spdy/3"}, "", false},
		{"empty client offer", []string{"h2"}, nil, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SelectALPN(tc.server, tc.client)
			assert.Equal(t, tc.wantMatch, ok)
			assert.Equal(t, tc.wantProto, got)
		})
	}
}
