package chain

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDefaultEndpoints(t *testing.T) {
	for _, name := range []string{"base", "polygon"} {
		ep, ok := DefaultEndpoints[name]
		require.True(t, ok, "missing endpoint for %s", name)
		require.NotEmpty(t, ep.RPCURL)
		require.True(t, common.IsHexAddress(ep.USDCContract), "bad USDC contract for %s", name)
	}
}

func TestNewRPCVerifierOverrides(t *testing.T) {
	v := NewRPCVerifier(map[string]string{
		"base":    "http://localhost:8545",
		"unknown": "http://localhost:9999",
	})
	require.Equal(t, "http://localhost:8545", v.endpoints["base"].RPCURL)
	// Overrides never change the contract address.
	require.Equal(t, DefaultEndpoints["base"].USDCContract, v.endpoints["base"].USDCContract)
	// Overrides cannot introduce chains.
	_, ok := v.endpoints["unknown"]
	require.False(t, ok)
	// Untouched chains keep their defaults.
	require.Equal(t, DefaultEndpoints["polygon"].RPCURL, v.endpoints["polygon"].RPCURL)
}

func TestVerifyUnsupportedChain(t *testing.T) {
	v := NewRPCVerifier(nil)
	require.False(t, v.Verify(context.Background(), "0xabc", "dogechain", "0x0"))
}

func TestVerifyDegradesWhenRPCUnreachable(t *testing.T) {
	// Port 1 is never listening; the lookup fails and Verify answers false
	// instead of surfacing an error.
	v := NewRPCVerifier(map[string]string{"base": "http://127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.False(t, v.Verify(ctx, "0xabc", "base", "0x1111111111111111111111111111111111111111"))
}

func TestNewDepositAddress(t *testing.T) {
	a, err := NewDepositAddress()
	require.NoError(t, err)
	require.True(t, common.IsHexAddress(a))

	b, err := NewDepositAddress()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
