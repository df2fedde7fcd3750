package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"lumixd/cmd/managerd"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Lumixd CMD"
	app.Usage = "The Lumixd command line interface"

	app.Commands = []cli.Command{
		managerCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var managerCMD = cli.Command{
	Name:        "manager",
	Usage:       "run the order lifecycle manager",
	Action:      managerAction,
	ArgsUsage:   "",
	Flags:       []cli.Flag{},
	Description: `Run the order manager: recovery, scheduler, API server`,
}

func managerAction(_ *cli.Context) error {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on process env")
	}

	setupLogger()

	logrus.Info("Starting manager CMD")

	svc := &managerd.Service{}
	if err := svc.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func setupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logrus.SetLevel(level)
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
