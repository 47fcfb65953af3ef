package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// BaseValidator provides checks shared by the section validators.
type BaseValidator struct{}

func (v *BaseValidator) ValidateURL(field, raw string) ValidationErrors {
	if raw == "" {
		return ValidationErrors{{Field: field, Message: "URL cannot be empty"}}
	}
	parsedURL, err := url.Parse(raw)
	if err != nil || parsedURL.Host == "" {
		return ValidationErrors{{Field: field, Message: "invalid URL"}}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return ValidationErrors{{Field: field, Message: "URL scheme must be either http or https"}}
	}
	return nil
}

// ValidateAddress accepts all-lowercase addresses and mixed-case ones with a
// valid checksum.
func (v *BaseValidator) ValidateAddress(field, addr string) ValidationErrors {
	if addr == "" {
		return ValidationErrors{{Field: field, Message: "address cannot be empty"}}
	}
	if !common.IsHexAddress(addr) {
		return ValidationErrors{{Field: field, Message: "invalid Ethereum address format"}}
	}
	body := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		checksumAddr := common.HexToAddress(addr).Hex()
		if addr != checksumAddr {
			return ValidationErrors{{
				Field:   field,
				Message: fmt.Sprintf("address should be in checksum format: %s", checksumAddr),
			}}
		}
	}
	return nil
}
