package polymarket

// auth.go - authenticated CLOB access.
//
//   L1: EIP-712 ClobAuth signature with the wallet key, used once to derive API credentials
//   L2: HMAC-SHA256 over timestamp+method+path+body on every private request

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polyexit/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	// zero taker = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"
)

type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthClient adds L1/L2 auth and order signing to a Client.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	signer       common.Address
	funder       common.Address
	sigType      domain.SignatureType
	orderBuilder builder.ExchangeOrderBuilder

	mu    sync.Mutex
	creds *apiCredentials
}

// NewAuthClient builds an authenticated client. For proxy and Safe wallets
// funder is the address holding the tokens; for EOA it may be empty.
func NewAuthClient(client *Client, privateKeyHex string, sigType domain.SignatureType, funder string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("polymarket.NewAuthClient: invalid private key: %w", err)
	}
	if !sigType.Valid() {
		return nil, fmt.Errorf("polymarket.NewAuthClient: unknown signature type %d", int(sigType))
	}

	signer := crypto.PubkeyToAddress(key.PublicKey)
	maker := signer
	if sigType != domain.SigEOA {
		if !common.IsHexAddress(funder) {
			return nil, fmt.Errorf("polymarket.NewAuthClient: %s wallet needs a funder address", sigType)
		}
		maker = common.HexToAddress(funder)
	}

	return &AuthClient{
		Client:       client,
		privateKey:   key,
		signer:       signer,
		funder:       maker,
		sigType:      sigType,
		orderBuilder: builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Signer is the EOA that signs orders.
func (ac *AuthClient) Signer() string { return ac.signer.Hex() }

// Funder is the address that holds positions (the signer for EOA wallets).
func (ac *AuthClient) Funder() string { return ac.funder.Hex() }

// EnsureCreds derives API credentials via L1 auth. Credentials are cached.
func (ac *AuthClient) EnsureCreds(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds != nil {
		return nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, 0)
	if err != nil {
		return fmt.Errorf("polymarket.EnsureCreds: sign: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket.EnsureCreds: request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", ac.signer.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket.EnsureCreds: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket.EnsureCreds: %w", &StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return fmt.Errorf("polymarket.EnsureCreds: decode: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return fmt.Errorf("polymarket.EnsureCreds: empty credentials")
	}
	ac.creds = &creds
	return nil
}

func (ac *AuthClient) credentials() (*apiCredentials, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if ac.creds == nil {
		return nil, fmt.Errorf("credentials not derived yet")
	}
	return ac.creds, nil
}

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
	clobAuthDomainSeparator = func() common.Hash {
		var buf []byte
		buf = append(buf, eip712DomainTypeHash.Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
		buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
		buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
		return crypto.Keccak256Hash(buf)
	}()
)

// signClobAuth signs the ClobAuth typed data. The address is always the signer EOA.
func (ac *AuthClient) signClobAuth(timestamp string, nonce int64) (string, error) {
	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(ac.signer.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	raw := append([]byte{0x19, 0x01}, clobAuthDomainSeparator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)

	sig, err := crypto.Sign(crypto.Keccak256(raw), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("0x%x", sig), nil
}

// l2Headers signs one request. path excludes the query string.
func (ac *AuthClient) l2Headers(method, path, body string) (http.Header, error) {
	creds, err := ac.credentials()
	if err != nil {
		return nil, err
	}
	secret, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + strings.ToUpper(method) + path + body))

	h := http.Header{}
	h.Set("POLY_ADDRESS", ac.signer.Hex())
	h.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_API_KEY", creds.APIKey)
	h.Set("POLY_PASSPHRASE", creds.Passphrase)
	return h, nil
}

// doL2 sends an authenticated request through the shared retry loop.
// Headers are rebuilt per attempt so the timestamp stays fresh.
func (ac *AuthClient) doL2(ctx context.Context, method, path, query string, reqBody, out any) error {
	var body string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = string(b)
	}

	url := ac.clobBase + path
	if query != "" {
		url += "?" + query
	}

	return ac.doWithRetry(ctx, ac.clobLimiter, func() (*http.Response, error) {
		headers, err := ac.l2Headers(method, path, body)
		if err != nil {
			return nil, err
		}
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		req.Header = headers
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return ac.http.Do(req)
	}, out)
}

// buildSellOrder signs a SELL of plan.Shares at plan.Price.
func (ac *AuthClient) buildSellOrder(tokenID string, plan sellPlan, negRisk bool) (*gomodel.SignedOrder, error) {
	contract := gomodel.CTFExchange
	if negRisk {
		contract = gomodel.NegRiskCTFExchange
	}

	data := &gomodel.OrderData{
		Maker:         ac.funder.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   plan.MakerAmount.String(),
		TakerAmount:   plan.TakerAmount.String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.signer.Hex(),
		Expiration:    "0",
		Side:          gomodel.SELL,
		SignatureType: gomodel.SignatureType(ac.sigType),
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, data, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}
