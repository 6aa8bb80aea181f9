package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/masterhub/authflow/flow"
	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/internal/loopback"
	"github.com/masterhub/authflow/oauth"
	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/session"
)

const oauthWaitTimeout = 5 * time.Minute

// navigatorFunc adapts a function to the oauth.Navigator capability.
type navigatorFunc func(url string) error

func (f navigatorFunc) Navigate(url string) error { return f(url) }

func newController(a *app, nav navigatorFunc) (*oauth.Controller, error) {
	return oauth.NewController(a.api, a.vault, a.intents, nav, oauth.WithLogger(a.log))
}

func newLoginCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newMachine(nil, printSuccess)
			if err != nil {
				return err
			}
			m.Open()
			m.ClickLogin()
			return m.SubmitCredentials(cmd.Context(), email, password)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var form flow.RegistrationForm
	var role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := roles.Parse(role)
			if err != nil {
				return err
			}
			form.Role = r

			m, err := a.newMachine(nil, printSuccess)
			if err != nil {
				return err
			}
			m.Open()
			m.ClickRegister()
			if err := m.SubmitRegistration(cmd.Context(), form); err != nil {
				return err
			}
			fmt.Println("Registered. Check your inbox for the confirmation link.")
			return nil
		},
	}
	cmd.Flags().StringVar(&form.Email, "email", "", "account email")
	cmd.Flags().StringVar(&form.Password, "password", "", "account password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "password confirmation")
	cmd.Flags().StringVar(&form.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&form.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", "client", "account role: master or client")
	cmd.Flags().IntVar(&form.SpecialtyID, "specialty", 0, "specialty id (masters only)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("confirm-password")
	return cmd
}

func newOAuthCmd(a *app) *cobra.Command {
	var role string
	var specialty int

	cmd := &cobra.Command{
		Use:   "oauth <google|facebook|instagram>",
		Short: "Sign in through an OAuth provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := identity.Provider(args[0])
			if !provider.Redirecting() {
				return errors.Errorf("unsupported provider %q", args[0])
			}
			r, err := roles.Parse(role)
			if err != nil {
				return err
			}

			displayAppname(a.cfg.AppName)

			listener := loopback.New(a.cfg.CallbackAddr)
			returnURL, err := listener.Start()
			if err != nil {
				return err
			}
			defer func() { _ = listener.Shutdown() }()
			a.log.Info().Str("return_url", returnURL).Msg("waiting for provider redirect")

			m, err := a.newMachine(openBrowser, printSuccess)
			if err != nil {
				return err
			}
			m.Open()
			m.ClickLogin()
			if err := m.StartOAuth(cmd.Context(), provider, r, specialty); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), oauthWaitTimeout)
			defer cancel()
			params, err := listener.Wait(ctx)
			if err != nil {
				return err
			}

			if err := m.ResumeFromURL(params); err != nil {
				return err
			}
			if !m.HasPendingCallback() {
				return errors.New("redirect carried no oauth callback")
			}
			confirmedRole, confirmedSpecialty := m.PendingRole()
			return m.CompleteOAuth(cmd.Context(), confirmedRole, confirmedSpecialty)
		},
	}
	cmd.Flags().StringVar(&role, "role", "client", "account role: master or client")
	cmd.Flags().IntVar(&specialty, "specialty", 0, "specialty id (masters only)")
	return cmd
}

func newRecoverCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover a forgotten password",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.newMachine(nil, printSuccess)
			if err != nil {
				return err
			}
			m.Open()
			m.ClickLogin()
			m.ClickForgot()
			if err := m.SubmitForgotEmail(cmd.Context(), email); err != nil {
				return err
			}

			reader := bufio.NewReader(os.Stdin)
			code, err := prompt(reader, "Reset code: ")
			if err != nil {
				return err
			}
			if err := m.SubmitVerifyCode(cmd.Context(), code); err != nil {
				return err
			}

			password, err := prompt(reader, "New password: ")
			if err != nil {
				return err
			}
			confirm, err := prompt(reader, "Confirm password: ")
			if err != nil {
				return err
			}
			if err := m.SubmitNewPassword(cmd.Context(), password, confirm); err != nil {
				return err
			}
			fmt.Println("Password updated. You can sign in now.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.sessions.Load()
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Println("Not signed in.")
				return nil
			}
			fmt.Printf("User ID:  %d\n", sess.UserID)
			fmt.Printf("Email:    %s\n", sess.Email)
			fmt.Printf("Role:     %s\n", sess.Role)
			fmt.Printf("Expires:  %s\n", sess.ExpiresAt.Format(time.RFC3339))
			if claims, err := session.TokenClaims(sess.Token); err == nil {
				if sub, _ := claims.GetSubject(); sub != "" {
					fmt.Printf("Subject:  %s\n", sub)
				}
			}
			return nil
		},
	}
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Destroy the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sessions.Clear(); err != nil {
				return err
			}
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func printSuccess(token, email string) {
	fmt.Printf("Signed in as %s\n", email)
	fmt.Printf("Token: %s\n", token)
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// openBrowser points the system browser at url, falling back to printing it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Printf("Open this URL in your browser:\n\n  %s\n\n", url)
	}
	return nil
}
