package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	JupiterBaseURL  string `envconfig:"JUPITER_BASE_URL" default:"https://quote-api.jup.ag/v6"`
	SlippageBps     int    `envconfig:"DEFAULT_SLIPPAGE_BPS" default:"250"`
	RPCEndpoint     string `envconfig:"RPC_ENDPOINT"`
	WalletSignerURL string `envconfig:"WALLET_SIGNER_URL" default:"http://localhost:8899/sign"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
