package domain

import "fmt"

// SignatureType is how orders and transactions are authorised for the wallet.
type SignatureType int

const (
	SigEOA        SignatureType = 0
	SigProxy      SignatureType = 1
	SigGnosisSafe SignatureType = 2
)

func (s SignatureType) String() string {
	switch s {
	case SigEOA:
		return "eoa"
	case SigProxy:
		return "proxy"
	case SigGnosisSafe:
		return "gnosis-safe"
	default:
		return fmt.Sprintf("signature-type(%d)", int(s))
	}
}

// Valid reports whether s is a known signature type.
func (s SignatureType) Valid() bool {
	return s >= SigEOA && s <= SigGnosisSafe
}
