package ipfilter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterBlocksWithinRange(t *testing.T) {
	f := New()
	f.Block(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.10"))

	require.True(t, f.Blocked(net.ParseIP("10.0.0.5")))
	require.True(t, f.Blocked(net.ParseIP("10.0.0.1")))
	require.True(t, f.Blocked(net.ParseIP("10.0.0.10")))
}

func TestFilterAllowsOutsideRange(t *testing.T) {
	f := New()
	f.Block(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.10"))

	require.False(t, f.Blocked(net.ParseIP("10.0.0.11")))
	require.False(t, f.Blocked(net.ParseIP("9.255.255.255")))
}

func TestFilterSupportsMultipleDisjointRanges(t *testing.T) {
	f := New()
	f.Block(net.ParseIP("1.1.1.1"), net.ParseIP("1.1.1.1"))
	f.Block(net.ParseIP("8.8.8.8"), net.ParseIP("8.8.8.9"))

	require.True(t, f.Blocked(net.ParseIP("1.1.1.1")))
	require.True(t, f.Blocked(net.ParseIP("8.8.8.8")))
	require.False(t, f.Blocked(net.ParseIP("4.4.4.4")))
}

func TestFilterResetClearsAllRanges(t *testing.T) {
	f := New()
	f.Block(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.10"))
	f.Reset()
	require.False(t, f.Blocked(net.ParseIP("10.0.0.5")))
}
