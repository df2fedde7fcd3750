package connectors

// REST client for the Jupiter v6 quote/swap API.
// RESTY ONLY + INTERNAL RETRY

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 1 * time.Second
	defaultRetryMaxBackoff = 8 * time.Second
)

const (
	// SolMint is the wrapped SOL mint, the base side of every swap.
	SolMint = "So11111111111111111111111111111111111111112"

	// LamportsPerUnit converts whole token units to lamports on the wire.
	LamportsPerUnit = 1_000_000_000
)

var lamportsPerUnitDec = decimal.New(LamportsPerUnit, 0)

// Quote is the subset of the Jupiter quote response the executor needs.
// The raw body is carried along because the swap endpoint wants the quote
// echoed back verbatim.
type Quote struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
	SlippageBps          int    `json:"slippageBps"`
	ErrorMessage         string `json:"error,omitempty"`

	raw map[string]interface{}
}

// OutAmountUnits returns the quoted output amount converted from lamports
// to whole token units.
func (q *Quote) OutAmountUnits() (decimal.Decimal, error) {
	out, err := decimal.NewFromString(q.OutAmount)
	if err != nil {
		return decimal.Zero, err
	}
	return out.Div(lamportsPerUnitDec), nil
}

type swapRequest struct {
	QuoteResponse    map[string]interface{} `json:"quoteResponse"`
	UserPublicKey    string                 `json:"userPublicKey"`
	WrapAndUnwrapSol bool                   `json:"wrapAndUnwrapSol"`
	AsLegacyTx       bool                   `json:"asLegacyTransaction"`
	ComputeUnitPrice int                    `json:"computeUnitPriceMicroLamports"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	ErrorMessage    string `json:"error,omitempty"`
}

// Signer turns an unsigned swap transaction into a signed one. Key
// custody lives outside this service; the default implementation calls a
// wallet signer sidecar.
type Signer interface {
	SignTransaction(ctx context.Context, txBase64 string) (string, error)
}

// TransactionSender submits a signed transaction to the chain and returns
// its signature.
type TransactionSender interface {
	SendTransaction(ctx context.Context, signedTxBase64 string) (string, error)
}

// JupiterClient implements the quote/swap gateway contract against the
// Jupiter v6 aggregator.
type JupiterClient struct {
	baseURL     string
	slippageBps int
	http        *resty.Client
	signer      Signer
	sender      TransactionSender
}

func NewJupiterClient(baseURL string, slippageBps int, signer Signer, sender TransactionSender) *JupiterClient {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &JupiterClient{
		baseURL:     baseURL,
		slippageBps: slippageBps,
		http:        httpClient,
		signer:      signer,
		sender:      sender,
	}
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// GetQuote fetches a swap quote for the given mints. The amount is in
// whole units of the input side and converted to lamports on the wire.
func (c *JupiterClient) GetQuote(
	ctx context.Context,
	inputMint string,
	outputMint string,
	amount decimal.Decimal,
) (*Quote, error) {

	lamports := amount.Mul(lamportsPerUnitDec).Truncate(0)

	logger.WithFields(map[string]interface{}{
		"component":   "JupiterClient",
		"op":          "GetQuote",
		"input_mint":  inputMint,
		"output_mint": outputMint,
		"lamports":    lamports.String(),
	}).Debug("Requesting quote")

	var raw map[string]interface{}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"inputMint":        inputMint,
			"outputMint":       outputMint,
			"amount":           lamports.String(),
			"slippageBps":      strconv.Itoa(c.slippageBps),
			"onlyDirectRoutes": "false",
			"wrapUnwrapSOL":    "true",
			"platformFeeBps":   "0",
		}).
		SetResult(&raw).
		Get("/quote")
	if err != nil {
		return nil, gatewayErr("quote", err)
	}
	if resp.IsError() {
		return nil, gatewayErrf("quote", "non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}

	quote := quoteFromRaw(raw)
	if quote.ErrorMessage != "" {
		return nil, gatewayErrf("quote", "api error: %s", quote.ErrorMessage)
	}
	if quote.OutAmount == "" {
		return nil, gatewayErrf("quote", "empty quote response")
	}

	logger.WithFields(map[string]interface{}{
		"component":  "JupiterClient",
		"op":         "GetQuote",
		"out_amount": quote.OutAmount,
	}).Debug("Quote received")

	return quote, nil
}

func quoteFromRaw(raw map[string]interface{}) *Quote {
	q := &Quote{raw: raw}

	if s, ok := raw["inputMint"].(string); ok {
		q.InputMint = s
	}
	if s, ok := raw["outputMint"].(string); ok {
		q.OutputMint = s
	}
	if s, ok := raw["inAmount"].(string); ok {
		q.InAmount = s
	}
	if s, ok := raw["outAmount"].(string); ok {
		q.OutAmount = s
	}
	if s, ok := raw["otherAmountThreshold"].(string); ok {
		q.OtherAmountThreshold = s
	}
	if s, ok := raw["priceImpactPct"].(string); ok {
		q.PriceImpactPct = s
	}
	if f, ok := raw["slippageBps"].(float64); ok {
		q.SlippageBps = int(f)
	}
	if s, ok := raw["error"].(string); ok {
		q.ErrorMessage = s
	}

	return q
}

// ExecuteSwap turns a quote into a submitted transaction: request the
// swap transaction from Jupiter, hand it to the signer, then push the
// signed transaction through the RPC sender. Returns the transaction
// signature.
func (c *JupiterClient) ExecuteSwap(
	ctx context.Context,
	quote *Quote,
	walletPubkey string,
) (string, error) {

	logger.WithFields(map[string]interface{}{
		"component": "JupiterClient",
		"op":        "ExecuteSwap",
		"wallet":    walletPubkey,
	}).Debug("Requesting swap transaction")

	var swap swapResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(swapRequest{
			QuoteResponse:    quote.raw,
			UserPublicKey:    walletPubkey,
			WrapAndUnwrapSol: true,
			AsLegacyTx:       true,
			ComputeUnitPrice: 1000,
		}).
		SetResult(&swap).
		Post("/swap")
	if err != nil {
		return "", gatewayErr("swap", err)
	}
	if resp.IsError() {
		return "", gatewayErrf("swap", "non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}
	if swap.ErrorMessage != "" {
		return "", gatewayErrf("swap", "api error: %s", swap.ErrorMessage)
	}
	if swap.SwapTransaction == "" {
		return "", gatewayErrf("swap", "empty swap transaction")
	}

	signedTx, err := c.signer.SignTransaction(ctx, swap.SwapTransaction)
	if err != nil {
		return "", gatewayErr("sign", err)
	}

	signature, err := c.sender.SendTransaction(ctx, signedTx)
	if err != nil {
		return "", gatewayErr("send", err)
	}

	logger.WithFields(map[string]interface{}{
		"component": "JupiterClient",
		"op":        "ExecuteSwap",
		"signature": signature,
	}).Info("Swap submitted")

	return signature, nil
}
