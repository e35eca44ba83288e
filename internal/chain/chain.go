// Package chain looks up settlement transactions on external EVM chains. It
// is the read-only side of the payment trust boundary: the registry asks it
// whether a client-submitted hash is a successful transaction paying the
// right counterparty.
package chain

import (
	"context"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Verifier reports whether txHash is a finalized, successful transaction on
// the named chain whose counterparty is acceptable for expectedDestination.
// It never returns an error: a chain outage degrades to "cannot verify yet",
// which the caller surfaces as a verification failure, not a system fault.
type Verifier interface {
	Verify(ctx context.Context, txHash, chainName, expectedDestination string) bool
}

// Endpoint is one supported chain: its RPC URL and the USDC contract used as
// an acceptable transaction counterparty.
type Endpoint struct {
	RPCURL       string
	USDCContract string
}

// DefaultEndpoints are the chains the marketplace settles on.
var DefaultEndpoints = map[string]Endpoint{
	"base":    {RPCURL: "https://mainnet.base.org", USDCContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"},
	"polygon": {RPCURL: "https://polygon-rpc.com", USDCContract: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"},
}

// RPCVerifier checks receipts over JSON-RPC. The check is deliberately
// shallow: receipt success plus a counterparty match against the chain's
// USDC contract or the expected destination. It does not decode the token
// transfer log to confirm exact amount and recipient; extending it would
// change the security guarantees and belongs to a separate decision.
type RPCVerifier struct {
	endpoints map[string]Endpoint

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewRPCVerifier builds a verifier over DefaultEndpoints, with per-chain RPC
// URL overrides (chain name -> URL) applied on top.
func NewRPCVerifier(rpcOverrides map[string]string) *RPCVerifier {
	endpoints := make(map[string]Endpoint, len(DefaultEndpoints))
	for name, ep := range DefaultEndpoints {
		if url, ok := rpcOverrides[name]; ok && url != "" {
			ep.RPCURL = url
		}
		endpoints[name] = ep
	}
	return &RPCVerifier{
		endpoints: endpoints,
		clients:   make(map[string]*ethclient.Client),
	}
}

func (v *RPCVerifier) Verify(ctx context.Context, txHash, chainName, expectedDestination string) bool {
	ep, ok := v.endpoints[chainName]
	if !ok {
		log.Printf("chain: unsupported chain %q", chainName)
		return false
	}

	client, err := v.client(chainName, ep)
	if err != nil {
		log.Printf("chain: dial %s: %v", chainName, err)
		return false
	}

	hash := common.HexToHash(txHash)

	receipt, err := client.TransactionReceipt(ctx, hash)
	if err != nil {
		log.Printf("chain: receipt lookup %s on %s: %v", txHash, chainName, err)
		return false
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false
	}

	tx, _, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		log.Printf("chain: tx lookup %s on %s: %v", txHash, chainName, err)
		return false
	}
	to := tx.To()
	if to == nil {
		// Contract creation; no counterparty to match.
		return false
	}

	// common.HexToAddress canonicalizes, so this comparison is
	// case-insensitive over the hex forms.
	return *to == common.HexToAddress(ep.USDCContract) || *to == common.HexToAddress(expectedDestination)
}

func (v *RPCVerifier) client(name string, ep Endpoint) (*ethclient.Client, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if c, ok := v.clients[name]; ok {
		return c, nil
	}
	c, err := ethclient.Dial(ep.RPCURL)
	if err != nil {
		return nil, err
	}
	v.clients[name] = c
	return c, nil
}

// NewDepositAddress generates a fresh EVM address for a registering agent.
// Only the address is kept; the key is discarded because this system never
// spends from deposit addresses.
func NewDepositAddress() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
