package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fabien-chebel/hiorg-cli/hiorg"
	"github.com/fabien-chebel/hiorg-cli/relay"
	"github.com/fabien-chebel/hiorg-cli/scrape"
	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"
)

const defaultRelayAddr = "127.0.0.1:8080"

func initClient(c *cli.Context, adjust func(*hiorg.Config)) (Config, *hiorg.Client, error) {
	configData, err := parseConfig(c.GlobalString("config"))
	if err != nil {
		return configData, nil, err
	}
	clientConfig, err := configData.clientConfig()
	if err != nil {
		return configData, nil, err
	}
	if adjust != nil {
		adjust(&clientConfig)
	}
	client := hiorg.New(clientConfig)
	log.Debugf("initialized %s for organization '%s'", client, configData.OrganizationCode)
	return configData, client, nil
}

func operationID(c *cli.Context) (int64, error) {
	arg := c.Args().Get(0)
	if arg == "" {
		return 0, fmt.Errorf("missing operation id")
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid operation id '%s': %w", arg, err)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:  "check-key",
			Usage: "Check the EFS API key and show the organization it belongs to",
			Action: func(c *cli.Context) error {
				_, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				org, err := client.CheckAPIKey(ctx)
				if err != nil {
					return err
				}
				log.Infof("API key is valid for '%s' (HiOrg id %s)", org.Name, org.ID)
				return nil
			},
		},
		{
			Name:  "operations",
			Usage: "List the operations of the organization",
			Action: func(c *cli.Context) error {
				_, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				summaryService := SummaryService{client: client, location: time.Local}
				summary, err := summaryService.OperationsSummary(ctx)
				if err != nil {
					return err
				}
				log.Info(summary)
				return nil
			},
		},
		{
			Name:      "operation",
			Usage:     "Show every field of a single operation",
			ArgsUsage: "<operation id>",
			Action: func(c *cli.Context) error {
				id, err := operationID(c)
				if err != nil {
					return err
				}
				_, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				details, err := client.GetOperationDetails(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(details)
			},
		},
		{
			Name:  "resources",
			Usage: "List free resources matching a filter",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "filter", Usage: "resource filter, at least two characters"},
				cli.Int64Flag{Name: "start", Usage: "start of the period as a unix timestamp"},
				cli.Int64Flag{Name: "end", Usage: "end of the period as a unix timestamp"},
			},
			Action: func(c *cli.Context) error {
				_, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				summaryService := SummaryService{client: client, location: time.Local}
				summary, err := summaryService.ResourcesSummary(ctx, c.String("filter"), c.Int64("start"), c.Int64("end"))
				if err != nil {
					return err
				}
				log.Info(summary)
				return nil
			},
		},
		{
			Name:  "login",
			Usage: "Exchange username and password for an SSO token",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "username", Usage: "overrides the configured username"},
				cli.StringFlag{Name: "password", Usage: "overrides the configured password"},
			},
			Action: func(c *cli.Context) error {
				configData, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				username, password := configData.Username, configData.Password
				if c.String("username") != "" {
					username = c.String("username")
				}
				if c.String("password") != "" {
					password = c.String("password")
				}

				result, err := client.Login(ctx, hiorg.LoginRequest{Username: username, Password: password})
				if err != nil {
					return err
				}
				err = saveAuthTicket(c.GlobalString("ticket"), configData.OrganizationCode, result.Token)
				if err != nil {
					return err
				}
				log.Info("Authentication succeeded.")
				return nil
			},
		},
		{
			Name:  "whoami",
			Usage: "Get the user information behind the stored SSO token",
			Action: func(c *cli.Context) error {
				configData, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ticket, err := loadAuthTicket(c.GlobalString("ticket"), configData.OrganizationCode)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				user, err := client.FetchUserData(ctx, ticket.Token)
				if client.State() == hiorg.StateLoggedOut || errors.Is(err, hiorg.ErrInvalidToken) {
					log.Debug("SSO token is no longer usable, removing authentication ticket")
					if removeErr := removeAuthTicket(c.GlobalString("ticket")); removeErr != nil {
						log.Warnf("failed to remove authentication ticket: %s", removeErr)
					}
				}
				if err != nil {
					return err
				}
				log.Infof("Hallo %s %s (%s, user id %s) !", user.FirstName, user.LastName, user.Username, user.UserID)
				return nil
			},
		},
		{
			Name:  "logout",
			Usage: "End the SSO session of the stored token",
			Action: func(c *cli.Context) error {
				configData, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ticket, err := loadAuthTicket(c.GlobalString("ticket"), configData.OrganizationCode)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				if _, err := client.Logout(ctx, ticket.Token); err != nil {
					return err
				}
				return removeAuthTicket(c.GlobalString("ticket"))
			},
		},
		{
			Name:  "sso-url",
			Usage: "Print the SSO login URL a browser has to be sent to",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "return", Usage: "where the browser lands after login"},
				cli.StringFlag{Name: "abort", Usage: "where the browser lands when there is no session"},
			},
			Action: func(c *cli.Context) error {
				_, client, err := initClient(c, func(cfg *hiorg.Config) {
					cfg.Mode = hiorg.ModeRedirect
					cfg.DisableAutoRedirect = true
				})
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				result, err := client.Login(ctx, hiorg.LoginRequest{
					ReturnURL: c.String("return"),
					AbortURL:  c.String("abort"),
				})
				if err != nil {
					return err
				}
				fmt.Println(result.RedirectURL)
				return nil
			},
		},
		{
			Name:  "extract-users",
			Usage: "Export every member of the organization to a CSV file, using the configured admin account",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "output", Usage: "CSV file to write, defaults to user-export-<organization>.csv"},
			},
			Action: func(c *cli.Context) error {
				configData, err := parseConfig(c.GlobalString("config"))
				if err != nil {
					return err
				}
				extractorConfig, err := configData.extractorConfig()
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				users, err := scrape.NewExtractor(extractorConfig).ExtractUsers(ctx, configData.Username, configData.Password)
				if err != nil {
					return err
				}

				output := c.String("output")
				if output == "" {
					output = fmt.Sprintf("user-export-%s.csv", configData.OrganizationCode)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()

				w := csv.NewWriter(f)
				err = w.Write([]string{"name", "vorname", "kuerzel", "quali", "user_id", "username", "perms"})
				if err != nil {
					return err
				}
				for _, user := range users {
					record := []string{user.LastName, user.FirstName, user.Ident, user.Qualification, user.UserID, user.Username, user.Permissions}
					err = w.Write(record)
					if err != nil {
						return err
					}
				}
				w.Flush()
				if err := w.Error(); err != nil {
					return err
				}

				log.Infof("exported %d users to '%s'", len(users), output)
				return nil
			},
		},
		{
			Name:      "working-hours",
			Usage:     "Derive the working hours of every helper of an operation",
			ArgsUsage: "<operation id>",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "upload", Usage: "send the working hours back to HiOrg-Server"},
			},
			Action: func(c *cli.Context) error {
				id, err := operationID(c)
				if err != nil {
					return err
				}
				_, client, err := initClient(c, nil)
				if err != nil {
					return err
				}
				ctx, cancel := commandContext()
				defer cancel()

				details, err := client.GetOperationDetails(ctx, id)
				if err != nil {
					return err
				}
				op, err := details.Operation()
				if err != nil {
					return fmt.Errorf("failed to read operation %d: %w", id, err)
				}
				hours := scrape.ExtractPersonnelHours(op)
				if err := printJSON(WorkingHoursExport{OperationID: op.ID, Hours: hours}); err != nil {
					return err
				}

				if !c.Bool("upload") {
					return nil
				}
				err = client.SetWorkingHours(ctx, id, hours)
				if errors.Is(err, hiorg.ErrUnsupportedOperation) {
					log.Warn("HiOrg-Server does not accept working hours through the EFS API yet")
					return nil
				}
				return err
			},
		},
		{
			Name:  "relay",
			Usage: "Serve the token callback used by backend logins",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr", Usage: "listen address, defaults to relay_addr or " + defaultRelayAddr},
				cli.StringFlag{Name: "path", Value: relay.DefaultPath, Usage: "callback path"},
			},
			Action: func(c *cli.Context) error {
				addr := c.String("addr")
				if addr == "" {
					if configData, err := parseConfig(c.GlobalString("config")); err == nil {
						addr = configData.RelayAddr
					}
				}
				if addr == "" {
					addr = defaultRelayAddr
				}
				ctx, cancel := commandContext()
				defer cancel()

				return relay.ListenAndServe(ctx, addr, relay.NewRouter(c.String("path"), log.StandardLogger()), log.StandardLogger())
			},
		},
	}
}
