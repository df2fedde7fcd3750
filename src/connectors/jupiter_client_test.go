package connectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubSigner struct {
	signed    string
	err       error
	lastInput string
}

func (s *stubSigner) SignTransaction(ctx context.Context, txBase64 string) (string, error) {
	s.lastInput = txBase64
	if s.err != nil {
		return "", s.err
	}
	return s.signed, nil
}

type stubSender struct {
	signature string
	err       error
	lastInput string
}

func (s *stubSender) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	s.lastInput = signedTxBase64
	if s.err != nil {
		return "", s.err
	}
	return s.signature, nil
}

func TestGetQuoteSendsLamportsAndSlippage(t *testing.T) {
	var gotQuery map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)

		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"inputMint":  SolMint,
			"outputMint": "TOKEN",
			"inAmount":   "1500000000",
			"outAmount":  "42000000000",
		})
	}))
	defer server.Close()

	client := NewJupiterClient(server.URL, 250, nil, nil)

	quote, err := client.GetQuote(context.Background(), SolMint, "TOKEN", decimal.RequireFromString("1.5"))
	require.NoError(t, err)

	require.Equal(t, "1500000000", gotQuery["amount"])
	require.Equal(t, "250", gotQuery["slippageBps"])
	require.Equal(t, SolMint, gotQuery["inputMint"])
	require.Equal(t, "TOKEN", gotQuery["outputMint"])

	require.Equal(t, "42000000000", quote.OutAmount)

	units, err := quote.OutAmountUnits()
	require.NoError(t, err)
	require.True(t, units.Equal(decimal.RequireFromString("42")), "got %s", units)
}

func TestGetQuoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "No routes found",
		})
	}))
	defer server.Close()

	client := NewJupiterClient(server.URL, 250, nil, nil)

	_, err := client.GetQuote(context.Background(), SolMint, "TOKEN", decimal.NewFromInt(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "No routes found")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	require.Equal(t, "quote", gwErr.Op)
}

func TestGetQuoteNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad amount", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewJupiterClient(server.URL, 250, nil, nil)

	_, err := client.GetQuote(context.Background(), SolMint, "TOKEN", decimal.NewFromInt(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

func TestExecuteSwapFullFlow(t *testing.T) {
	var gotSwap map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"inputMint":  SolMint,
				"outputMint": "TOKEN",
				"outAmount":  "1000000000",
			})
		case "/swap":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotSwap))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"swapTransaction": "unsigned-tx-base64",
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	signer := &stubSigner{signed: "signed-tx-base64"}
	sender := &stubSender{signature: "tx-signature"}
	client := NewJupiterClient(server.URL, 250, signer, sender)

	ctx := context.Background()
	quote, err := client.GetQuote(ctx, SolMint, "TOKEN", decimal.NewFromInt(1))
	require.NoError(t, err)

	signature, err := client.ExecuteSwap(ctx, quote, "wallet-pubkey")
	require.NoError(t, err)
	require.Equal(t, "tx-signature", signature)

	// The quote body is echoed back to the swap endpoint verbatim.
	echoed, ok := gotSwap["quoteResponse"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "1000000000", echoed["outAmount"])
	require.Equal(t, "wallet-pubkey", gotSwap["userPublicKey"])

	// Unsigned tx goes to the signer; the signed tx goes on chain.
	require.Equal(t, "unsigned-tx-base64", signer.lastInput)
	require.Equal(t, "signed-tx-base64", sender.lastInput)
}

func TestExecuteSwapSignerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"swapTransaction": "unsigned-tx-base64",
		})
	}))
	defer server.Close()

	signer := &stubSigner{err: gatewayErrf("sign", "signer unavailable")}
	sender := &stubSender{signature: "never-used"}
	client := NewJupiterClient(server.URL, 250, signer, sender)

	_, err := client.ExecuteSwap(context.Background(), &Quote{OutAmount: "1"}, "wallet-pubkey")
	require.Error(t, err)
	require.Contains(t, err.Error(), "signer unavailable")
	require.Empty(t, sender.lastInput)
}

func TestIsRetryableResp(t *testing.T) {
	require.True(t, isRetryableResp(nil, context.DeadlineExceeded))
	require.False(t, isRetryableResp(nil, nil))
}
