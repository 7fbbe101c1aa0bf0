// Command notifyclient is the terminal notification client: a bell with an
// unread badge, an inbox, and live alerts for pushed notifications.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nhle/notification-sync/internal/app"
	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/credential"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/logging"
	"github.com/nhle/notification-sync/internal/model"
	appsync "github.com/nhle/notification-sync/internal/sync"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "notifyclient:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("notifyclient", pflag.ContinueOnError)
	configPath := fs.String("config", model.DefaultConfigPath(), "path to config file")
	fs.String("api-url", "", "REST API base URL")
	fs.String("push-url", "", "push channel WebSocket URL")
	fs.String("user", "", "user id (overrides the token subject)")
	fs.String("log-level", "", "log level")
	fs.String("log-file", "", "append JSON logs to this file")
	token := fs.String("token", "", "store this session token before starting")
	selectID := fs.String("select", "", "open this notification once it is available")
	logout := fs.Bool("logout", false, "forget the stored session token and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := model.LoadConfig(*configPath, fs)
	if err != nil {
		return err
	}

	log, closer, err := logging.New(cfg.Log, logging.Discard)
	if err != nil {
		return err
	}
	defer closer.Close()

	vault, err := credential.Open()
	if err != nil {
		return err
	}

	if *logout {
		if err := vault.DeleteToken(); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	}

	if *token != "" {
		if err := vault.SaveToken(*token); err != nil {
			return err
		}
	}

	tok, err := vault.Token()
	if errors.Is(err, credential.ErrNoToken) {
		return errors.New("not logged in: pass --token (e.g. from `notifyd token --user <id>`)")
	}
	if err != nil {
		return err
	}

	identity, err := credential.Resolve(tok, cfg.Session.UserID)
	if err != nil {
		return fmt.Errorf("%w: log in again with --token", err)
	}
	log = log.With().Str("user_id", identity.UserID).Logger()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+identity.Token)

	session := appsync.New(appsync.Options{
		UserID:  identity.UserID,
		Gateway: gateway.NewClient(cfg.API.BaseURL, identity.Token, cfg.API.Timeout(), log),
		Channel: channel.Options{
			URL:            cfg.Push.URL,
			Dialer:         channel.WebsocketDialer{Header: header},
			InitialBackoff: cfg.Push.InitialBackoff(),
			MaxBackoff:     cfg.Push.MaxBackoff(),
		},
		Logger: log,
	})

	m := app.New(app.Options{
		Session: session,
		Config:  *cfg,
		SaveConfig: func(c *model.AppConfig) error {
			return model.SaveConfig(*configPath, c)
		},
		SelectID: *selectID,
		Logout:   vault.DeleteToken,
		Logger:   log,
	})

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	session.Close()
	// Let in-flight mark-read calls land before exiting.
	session.Wait()
	if err != nil {
		return err
	}

	if fm, ok := final.(app.Model); ok && fm.LoggedOut() {
		fmt.Println("Logged out.")
	}
	return nil
}
