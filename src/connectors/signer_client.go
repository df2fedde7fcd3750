package connectors

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

type signRequest struct {
	Transaction string `json:"transaction"`
}

type signResponse struct {
	SignedTransaction string `json:"signedTransaction"`
	ErrorMessage      string `json:"error,omitempty"`
}

// SignerClient calls the wallet signer sidecar. Key custody and the
// actual signing stay outside this service.
type SignerClient struct {
	signURL string
	http    *resty.Client
}

func NewSignerClient(signURL string) *SignerClient {
	httpClient := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &SignerClient{signURL: signURL, http: httpClient}
}

func (c *SignerClient) SignTransaction(ctx context.Context, txBase64 string) (string, error) {
	var result signResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(signRequest{Transaction: txBase64}).
		SetResult(&result).
		Post(c.signURL)
	if err != nil {
		return "", gatewayErr("sign", err)
	}
	if resp.IsError() {
		return "", gatewayErrf("sign", "non-2xx status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.ErrorMessage != "" {
		return "", gatewayErrf("sign", "signer error: %s", result.ErrorMessage)
	}
	if result.SignedTransaction == "" {
		return "", gatewayErrf("sign", "empty signed transaction")
	}

	return result.SignedTransaction, nil
}
