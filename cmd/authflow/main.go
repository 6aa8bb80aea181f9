package main

import (
	"fmt"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/masterhub/authflow/csrfstate"
	"github.com/masterhub/authflow/flow"
	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/intent"
	"github.com/masterhub/authflow/internal/config"
	"github.com/masterhub/authflow/session"
	"github.com/masterhub/authflow/storage"
	"github.com/masterhub/authflow/telegram"
)

// app bundles everything the commands need.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	api   *identity.Client
	store storage.Store

	sessions *session.Store
	vault    *csrfstate.Vault
	intents  *intent.Cache
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "authflow",
		Short:         "Authentication client for the services marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; the environment may carry everything.
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			level := zerolog.InfoLevel
			if cfg.Debug {
				level = zerolog.DebugLevel
			}
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()

			store := storage.NewFile(cfg.StateFile())
			sessions, err := session.NewStore(store)
			if err != nil {
				return err
			}
			vault, err := csrfstate.New(store)
			if err != nil {
				return err
			}
			intents, err := intent.New(store)
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.log = log
			a.api = identity.New(cfg.APIBaseURL, identity.WithLogger(log))
			a.store = store
			a.sessions = sessions
			a.vault = vault
			a.intents = intents
			return nil
		},
	}

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newOAuthCmd(a),
		newRecoverCmd(a),
		newWhoamiCmd(a),
		newLogoutCmd(a),
	)
	return root
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

// noWidgetPresenter satisfies the Telegram presenter capability in a host
// with no surface to render the widget in.
type noWidgetPresenter struct{}

func (noWidgetPresenter) Present(string, func(telegram.Message)) (telegram.Disposer, error) {
	return nil, fmt.Errorf("the telegram widget needs a browser host")
}

// newMachine assembles the flow state machine around a navigator.
func (a *app) newMachine(nav navigatorFunc, onSuccess flow.SuccessFunc) (*flow.Machine, error) {
	if nav == nil {
		nav = func(url string) error {
			return fmt.Errorf("this command cannot open a browser")
		}
	}
	ctrl, err := newController(a, nav)
	if err != nil {
		return nil, err
	}
	bridge, err := telegram.NewBridge(a.api, a.intents, noWidgetPresenter{},
		telegram.WithOrigin(a.cfg.Telegram.WidgetOrigin),
		telegram.WithLogger(a.log),
	)
	if err != nil {
		return nil, err
	}
	return flow.NewMachine(flow.Deps{
		API:      a.api,
		Sessions: a.sessions,
		Vault:    a.vault,
		Intents:  a.intents,
		OAuth:    ctrl,
		Telegram: bridge,
	}, flow.WithLogger(a.log), flow.WithSuccessHandler(onSuccess))
}
