package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
)

func initLogs(verbose bool) {
	log.SetOutput(os.Stdout)
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// commandContext is canceled on SIGINT and SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	initLogs(os.Getenv("VERBOSE") != "")

	app := cli.NewApp()
	app.Name = "HiOrg CLI"
	app.Usage = "Interact with HiOrg-Server's EFS API and single sign-on through the CLI"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: "config.json",
			Usage: "path of the JSON configuration file",
		},
		cli.StringFlag{
			Name:  "ticket",
			Value: "auth-ticket.json",
			Usage: "where the SSO token is kept between 'login' and 'whoami' or 'logout'",
		},
	}
	app.Commands = commands()

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
