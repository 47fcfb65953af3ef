package accounts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pharos-autotask/pharos-autotask/pkg/apperr"
	"github.com/pharos-autotask/pharos-autotask/pkg/logger"
)

// RecipientCount is the exact size of the verification recipient list.
const RecipientCount = 65

// ParseRecipients decodes a JSON array of hex addresses. The list must hold
// exactly RecipientCount distinct valid addresses; it is returned in file
// order.
func ParseRecipients(data []byte) ([]common.Address, error) {
	const op = "load recipients"

	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Fatal(op, fmt.Errorf("decode recipient list: %w", err))
	}
	if len(raw) != RecipientCount {
		return nil, apperr.Fatalf(op, "recipient list must contain exactly %d addresses, got %d", RecipientCount, len(raw))
	}

	out := make([]common.Address, 0, len(raw))
	seen := make(map[common.Address]int, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if !common.IsHexAddress(s) {
			return nil, apperr.Fatalf(op, "invalid recipient address %q at index %d", s, i)
		}
		addr := common.HexToAddress(s)
		if prev, ok := seen[addr]; ok {
			return nil, apperr.Fatalf(op, "duplicate recipient %s at index %d (first seen at %d)", addr.Hex(), i, prev)
		}
		seen[addr] = i
		out = append(out, addr)
	}
	return out, nil
}

// LoadRecipients reads and validates the recipient file.
func LoadRecipients(path string) ([]common.Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Fatal("load recipients", fmt.Errorf("read %s: %w", path, err))
	}
	return ParseRecipients(data)
}

// ParseProxies returns one egress path per non-empty line. Lines starting
// with # are ignored.
func ParseProxies(data []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

// LoadProxies reads the optional proxy file. A missing file means direct
// egress for every account.
func LoadProxies(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warnf("%s not found, running without proxies", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	proxies := ParseProxies(data)
	logger.Infof("Loaded %d proxies from %s", len(proxies), path)
	return proxies, nil
}
