package executor

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WalletAddress   string `envconfig:"WALLET_ADDRESS"`
	MaxTradeSizeSOL string `envconfig:"MAX_TRADE_SIZE_SOL" default:"10.0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
