package managerd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"lumixd/src/connectors"
	"lumixd/src/database"
	"lumixd/src/executor"
	"lumixd/src/manager"
	"lumixd/src/notify"
	"lumixd/src/recovery"
	"lumixd/src/repository"
	"lumixd/src/scheduler"
	"lumixd/src/server"
)

// Service wires the order lifecycle manager: storage, gateway clients,
// scheduler, executor, recovery and the HTTP API.
type Service struct{}

func (s *Service) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	connConfig := connectors.GetConfig()
	execConfig := executor.GetConfig()

	chain := connectors.NewChainStackClient(connConfig.RPCEndpoint)
	signer := connectors.NewSignerClient(connConfig.WalletSignerURL)
	jupiter := connectors.NewJupiterClient(connConfig.JupiterBaseURL, connConfig.SlippageBps, signer, chain)
	oracle := connectors.NewPriceTracker(jupiter)
	balances := connectors.NewWalletBalances(chain, execConfig.WalletAddress)

	orders := repository.NewOrderRepository()
	positions := repository.NewPositionRepository()

	hub := notify.NewHub()
	sched := scheduler.New()
	defer sched.Stop()

	exec := executor.New(orders, positions, jupiter, oracle, hub)

	// Recovery runs before the manager accepts new orders: it is the
	// single source of truth for re-arming after a restart.
	rec := recovery.New(orders, positions, sched, exec, hub, balances)
	if err := rec.Run(ctx); err != nil {
		logrus.WithError(err).Error("Startup recovery failed")
		return err
	}

	mgr := manager.New(orders, sched, exec, hub)

	server.StartServer(ctx, mgr, hub)

	return nil
}
