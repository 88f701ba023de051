package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"agent-swap/config"
	"agent-swap/pkg/httpapi"
	"agent-swap/pkg/types"
)

const (
	authKeyPrefix        = "wallet-auth:"
	headerAppID          = "privy-app-id"
	headerAuthSignature  = "privy-authorization-signature"
	signTransactionRPC   = "signTransaction"
	defaultDelegatedWait = 20 * time.Second
	walletServiceName    = "privy"
)

// Delegated asks a custodial wallet service to sign on the wallet owner's behalf.
// Every call is one authenticated HTTP round trip.
type Delegated struct {
	wallets   *httpapi.Client
	users     *httpapi.Client
	appID     string
	caip2     string
	authKey   *ecdsa.PrivateKey
	wallet    types.WalletRef
	publicKey solana.PublicKey
	logger    *zap.Logger
}

// DelegatedOption customizes a Delegated signer
type DelegatedOption func(*Delegated)

// WithLogger attaches a logger
func WithLogger(l *zap.Logger) DelegatedOption {
	return func(d *Delegated) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDelegated builds a signer for one delegated wallet
func NewDelegated(cfg config.DelegatedConfig, wallet types.WalletRef, opts ...DelegatedOption) (*Delegated, error) {
	d, err := newDelegatedClient(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if wallet.ID == "" {
		return nil, fmt.Errorf("delegated wallet id not configured")
	}
	pk, err := solana.PublicKeyFromBase58(wallet.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid delegated wallet address %q: %w", wallet.PublicKey, err)
	}
	d.wallet = wallet
	d.publicKey = pk
	return d, nil
}

func newDelegatedClient(cfg config.DelegatedConfig, opts ...DelegatedOption) (*Delegated, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("delegated signing requires app id and app secret")
	}
	key, err := parseAuthorizationKey(cfg.AuthorizationKey)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDelegatedWait
	}
	d := &Delegated{
		appID:   cfg.AppID,
		caip2:   cfg.CAIP2,
		authKey: key,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cfg.AppID+":"+cfg.AppSecret)))
	header.Set(headerAppID, cfg.AppID)
	d.wallets = httpapi.New(walletServiceName, cfg.BaseURL, timeout, d.logger)
	d.wallets.Header = header
	d.users = httpapi.New(walletServiceName, cfg.AuthURL, timeout, d.logger)
	d.users.Header = header
	return d, nil
}

// parseAuthorizationKey accepts a base64 PKCS8 P-256 key, optionally prefixed with "wallet-auth:"
func parseAuthorizationKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), authKeyPrefix)
	if raw == "" {
		return nil, fmt.Errorf("delegated signing requires an authorization key")
	}
	der, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("authorization key is not valid base64: %w", err)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("authorization key must be an ECDSA P-256 key, got %T", parsed)
	}
	return key, nil
}

func (d *Delegated) PublicKey() solana.PublicKey { return d.publicKey }

// Wallet returns the wallet reference this signer acts for
func (d *Delegated) Wallet() types.WalletRef { return d.wallet }

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		SignedTransaction string `json:"signed_transaction"`
		Encoding          string `json:"encoding"`
	} `json:"data"`
}

// Sign sends the transaction to the wallet service and returns its signed form
func (d *Delegated) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	// Reject malformed payloads locally before spending a round trip.
	if _, err := DecodeTransaction(payload); err != nil {
		return nil, err
	}

	path := "/wallets/" + url.PathEscape(d.wallet.ID) + "/rpc"
	body := map[string]interface{}{
		"method": signTransactionRPC,
		"params": map[string]interface{}{
			"transaction": base64.StdEncoding.EncodeToString(payload),
			"encoding":    "base64",
		},
	}
	if d.caip2 != "" {
		body["caip2"] = d.caip2
	}

	bodyBytes, err := canonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign request: %w", err)
	}
	authSig, err := d.authorizationSignature(http.MethodPost, d.wallets.URL(path), body)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var out rpcResponse
	err = d.wallets.PostRaw(ctx, path, bodyBytes, http.Header{headerAuthSignature: {authSig}}, &out)
	if err != nil {
		var upstream *types.UpstreamError
		if errors.As(err, &upstream) && (upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: wallet service returned %d: %s", types.ErrDelegation, upstream.StatusCode, upstream.Message)
		}
		return nil, err
	}
	d.logger.Debug("delegated sign round trip", zap.String("wallet_id", d.wallet.ID), zap.Duration("took", time.Since(start)))

	signed, err := base64.StdEncoding.DecodeString(out.Data.SignedTransaction)
	if err != nil || len(signed) == 0 {
		return nil, fmt.Errorf("%w: wallet service returned no signed transaction", types.ErrDelegation)
	}

	tx, err := DecodeTransaction(signed)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet service returned a malformed transaction", types.ErrDelegation)
	}
	if _, ok := signatureFor(tx, d.publicKey); !ok {
		return nil, fmt.Errorf("%w: wallet service did not sign for %s", types.ErrIncompleteSignature, d.publicKey)
	}
	return EncodeTransaction(tx)
}

// ResolveWallet looks up a user's first delegated embedded Solana wallet
func (d *Delegated) ResolveWallet(ctx context.Context, userID string) (types.WalletRef, error) {
	return resolveWallet(ctx, d, userID)
}

// ResolveWallet looks up a user's delegated wallet without needing a wallet id up front
func ResolveWallet(ctx context.Context, cfg config.DelegatedConfig, userID string, opts ...DelegatedOption) (types.WalletRef, error) {
	d, err := newDelegatedClient(cfg, opts...)
	if err != nil {
		return types.WalletRef{}, err
	}
	return resolveWallet(ctx, d, userID)
}

type linkedAccount struct {
	Type          string `json:"type"`
	ID            string `json:"id"`
	Address       string `json:"address"`
	PublicKey     string `json:"public_key"`
	ChainType     string `json:"chain_type"`
	ConnectorType string `json:"connector_type"`
	Delegated     bool   `json:"delegated"`
}

type userResponse struct {
	ID             string          `json:"id"`
	LinkedAccounts []linkedAccount `json:"linked_accounts"`
}

func resolveWallet(ctx context.Context, d *Delegated, userID string) (types.WalletRef, error) {
	if userID == "" {
		return types.WalletRef{}, fmt.Errorf("%w: user id is required", types.ErrInvalidRequest)
	}
	var user userResponse
	if err := d.users.GetJSON(ctx, "/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return types.WalletRef{}, err
	}

	for _, acct := range user.LinkedAccounts {
		if acct.ConnectorType != "embedded" || !acct.Delegated {
			continue
		}
		if acct.ChainType != "" && acct.ChainType != "solana" {
			continue
		}
		addr := acct.Address
		if addr == "" {
			addr = acct.PublicKey
		}
		if acct.ID == "" || addr == "" {
			continue
		}
		return types.WalletRef{ID: acct.ID, PublicKey: addr}, nil
	}
	return types.WalletRef{}, fmt.Errorf("%w: user %s has no delegated embedded wallet", types.ErrDelegation, userID)
}

// authorizationSignature signs the canonical request envelope with the P-256 authorization key
func (d *Delegated) authorizationSignature(method, endpoint string, body map[string]interface{}) (string, error) {
	payload, err := authorizationPayload(d.appID, method, endpoint, body)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, d.authKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func authorizationPayload(appID, method, endpoint string, body map[string]interface{}) ([]byte, error) {
	envelope := map[string]interface{}{
		"version": 1,
		"method":  method,
		"url":     endpoint,
		"body":    body,
		"headers": map[string]interface{}{headerAppID: appID},
	}
	return canonicalJSON(envelope)
}

// canonicalJSON encodes v with sorted object keys and no HTML escaping
func canonicalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
