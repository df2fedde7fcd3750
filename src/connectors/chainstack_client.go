package connectors

// Solana JSON-RPC client used for transaction submission and for the
// live-balance reads backing position reconciliation.

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type sendTransactionResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error,omitempty"`
}

type tokenAccountsResponse struct {
	Result struct {
		Value []struct {
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							TokenAmount struct {
								UIAmountString string `json:"uiAmountString"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error,omitempty"`
}

type ChainStackClient struct {
	rpcURL string
	http   *resty.Client
}

func NewChainStackClient(rpcURL string) *ChainStackClient {
	httpClient := resty.New().
		SetBaseURL(rpcURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &ChainStackClient{
		rpcURL: rpcURL,
		http:   httpClient,
	}
}

// SendTransaction submits a signed, base64-encoded transaction and
// returns its signature.
func (c *ChainStackClient) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	logger.WithFields(map[string]interface{}{
		"component": "ChainStackClient",
		"op":        "SendTransaction",
	}).Debug("Submitting transaction")

	var result sendTransactionResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "sendTransaction",
			Params: []interface{}{
				signedTxBase64,
				map[string]interface{}{"encoding": "base64", "skipPreflight": false},
			},
		}).
		SetResult(&result).
		Post("")
	if err != nil {
		return "", gatewayErr("sendTransaction", err)
	}
	if resp.IsError() {
		return "", gatewayErrf("sendTransaction", "non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		return "", gatewayErrf("sendTransaction", "rpc error %d: %s", result.Error.Code, result.Error.Message)
	}
	if result.Result == "" {
		return "", gatewayErrf("sendTransaction", "empty signature in response")
	}

	return result.Result, nil
}

// GetTokenBalance sums the parsed token-account balances a wallet holds
// for one mint. A wallet with no accounts for the mint reads as zero.
func (c *ChainStackClient) GetTokenBalance(ctx context.Context, token, wallet string) (decimal.Decimal, error) {
	logger.WithFields(map[string]interface{}{
		"component": "ChainStackClient",
		"op":        "GetTokenBalance",
		"token":     token,
		"wallet":    wallet,
	}).Debug("Fetching token balance")

	var result tokenAccountsResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rpcRequest{
			JSONRPC: "2.0",
			ID:      1,
			Method:  "getTokenAccountsByOwner",
			Params: []interface{}{
				wallet,
				map[string]interface{}{"mint": token},
				map[string]interface{}{"encoding": "jsonParsed"},
			},
		}).
		SetResult(&result).
		Post("")
	if err != nil {
		return decimal.Zero, gatewayErr("getTokenAccountsByOwner", err)
	}
	if resp.IsError() {
		return decimal.Zero, gatewayErrf("getTokenAccountsByOwner", "non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		return decimal.Zero, gatewayErrf("getTokenAccountsByOwner", "rpc error %d: %s", result.Error.Code, result.Error.Message)
	}

	total := decimal.Zero
	for _, v := range result.Result.Value {
		ui := v.Account.Data.Parsed.Info.TokenAmount.UIAmountString
		if ui == "" {
			continue
		}
		amount, err := decimal.NewFromString(ui)
		if err != nil {
			return decimal.Zero, gatewayErrf("getTokenAccountsByOwner", "malformed balance %q: %v", ui, err)
		}
		total = total.Add(amount)
	}

	return total, nil
}

// WalletBalances adapts the RPC balance lookup to the per-instance
// live-balance contract used by recovery. All instances currently trade
// from one wallet; the instance id is kept in the signature so a
// per-instance wallet map can slot in without touching recovery.
type WalletBalances struct {
	chain  *ChainStackClient
	wallet string
}

func NewWalletBalances(chain *ChainStackClient, wallet string) *WalletBalances {
	return &WalletBalances{chain: chain, wallet: wallet}
}

func (w *WalletBalances) GetLiveBalance(ctx context.Context, instanceID, token string) (decimal.Decimal, error) {
	return w.chain.GetTokenBalance(ctx, token, w.wallet)
}
