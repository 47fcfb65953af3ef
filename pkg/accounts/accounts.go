package accounts

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
)

// Account is a signing identity. It is immutable after construction.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewAccount parses a hex private key with or without the 0x prefix.
func NewAccount(hexKey string) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Account{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (a *Account) String() string {
	return a.Address.Hex()
}

// Short returns the abbreviated address used in log lines.
func (a *Account) Short() string {
	h := a.Address.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}

// SignMessage produces an EIP-191 personal signature over msg, hex encoded
// with the recovery id in {27, 28}.
func (a *Account) SignMessage(msg string) (string, error) {
	sig, err := crypto.Sign(gethaccounts.TextHash([]byte(msg)), a.Key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// ParsePrivateKeys reads keys separated by commas or newlines. Empty entries
// are skipped and a key whose address was already seen is dropped. Having no
// usable key at all is fatal.
func ParsePrivateKeys(raw string) ([]*Account, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', '\n', '\r':
			return true
		default:
			return false
		}
	})

	out := make([]*Account, 0, len(parts))
	seen := make(map[common.Address]struct{}, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		acct, err := NewAccount(part)
		if err != nil {
			return nil, apperr.Fatal("parse private keys", fmt.Errorf("entry %d: %w", i+1, err))
		}
		if _, ok := seen[acct.Address]; ok {
			continue
		}
		seen[acct.Address] = struct{}{}
		out = append(out, acct)
	}

	if len(out) == 0 {
		return nil, apperr.Fatalf("parse private keys", "no private keys found")
	}
	return out, nil
}
