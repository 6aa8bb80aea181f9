// Package flow contains the finite-state controller that sequences the
// authentication screens and unifies password login, registration, the OAuth
// redirect flow and the Telegram widget flow into one session result.
package flow

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/masterhub/authflow/csrfstate"
	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/intent"
	autherrors "github.com/masterhub/authflow/internal/errors"
	"github.com/masterhub/authflow/oauth"
	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/session"
	"github.com/masterhub/authflow/telegram"
)

// SuccessFunc is notified exactly once per successful authentication.
type SuccessFunc func(token, email string)

// Deps holds all component dependencies for the Machine.
type Deps struct {
	API      *identity.Client
	Sessions *session.Store
	Vault    *csrfstate.Vault
	Intents  *intent.Cache
	OAuth    *oauth.Controller
	Telegram *telegram.Bridge
}

// Machine is the single entry and exit point the view layer drives. The view
// dispatches intents and reads only the current Screen (plus the pending
// OAuth callback flag) to decide what to render.
type Machine struct {
	deps      Deps
	onSuccess SuccessFunc
	log       zerolog.Logger

	mu          sync.Mutex
	open        bool
	screen      Screen
	pending     *oauth.Callback
	pendingRole roles.Role
	pendingSpec int
	resetEmail  string
	resetCode   string
}

// Option modifies a Machine.
type Option func(*Machine)

// WithLogger sets the machine logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// WithSuccessHandler registers the callback fired on reaching the terminal
// authenticated state.
func WithSuccessHandler(fn SuccessFunc) Option {
	return func(m *Machine) {
		m.onSuccess = fn
	}
}

// NewMachine creates a Machine with required dependencies.
func NewMachine(deps Deps, options ...Option) (*Machine, error) {
	if deps.API == nil {
		return nil, errors.New("[NewMachine] identity client is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("[NewMachine] session store is required")
	}
	if deps.Vault == nil {
		return nil, errors.New("[NewMachine] csrf vault is required")
	}
	if deps.Intents == nil {
		return nil, errors.New("[NewMachine] intent cache is required")
	}
	if deps.OAuth == nil {
		return nil, errors.New("[NewMachine] oauth controller is required")
	}
	if deps.Telegram == nil {
		return nil, errors.New("[NewMachine] telegram bridge is required")
	}

	m := &Machine{
		deps:   deps,
		screen: ScreenWelcome,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Screen returns the current screen.
func (m *Machine) Screen() Screen {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screen
}

// IsOpen reports whether the flow is active.
func (m *Machine) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Open activates the flow on the welcome screen.
func (m *Machine) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	m.screen = ScreenWelcome
}

// Close deactivates the flow and resets it to the welcome screen. Any live
// Telegram overlay is torn down so no stale callback can fire afterwards.
func (m *Machine) Close() {
	m.deps.Telegram.Close()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	m.open = false
}

// reset clears transient screen state. Caller holds the lock.
func (m *Machine) reset() {
	m.screen = ScreenWelcome
	m.pending = nil
	m.pendingRole = ""
	m.pendingSpec = 0
	m.resetEmail = ""
	m.resetCode = ""
}

// transition moves from any of the screens in from to the screen to. Events
// fired on a screen they are not wired for are ignored.
func (m *Machine) transition(to Screen, from ...Screen) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range from {
		if m.screen == f {
			m.screen = to
			return
		}
	}
}

// ClickLogin moves Welcome -> Login.
func (m *Machine) ClickLogin() {
	m.transition(ScreenLogin, ScreenWelcome)
}

// ClickRegister moves Welcome -> Register.
func (m *Machine) ClickRegister() {
	m.transition(ScreenRegister, ScreenWelcome)
}

// ClickForgot moves Login -> ForgotPassword.
func (m *Machine) ClickForgot() {
	m.transition(ScreenForgotPassword, ScreenLogin)
}

// ClickTelegram moves Login or Register -> TelegramRoleSelect.
func (m *Machine) ClickTelegram() {
	m.transition(ScreenTelegramRoleSelect, ScreenLogin, ScreenRegister)
}

// Back returns to the parent screen of the current one.
func (m *Machine) Back() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.screen {
	case ScreenLogin, ScreenRegister, ScreenConfirmEmail:
		m.screen = ScreenWelcome
	case ScreenForgotPassword, ScreenTelegramRoleSelect:
		m.screen = ScreenLogin
	case ScreenVerifyCode:
		m.screen = ScreenForgotPassword
	case ScreenNewPassword:
		m.screen = ScreenVerifyCode
	}
}

// SubmitCredentials performs a password login from the login screen. On
// failure the machine stays on Login so the user can correct and retry.
func (m *Machine) SubmitCredentials(ctx context.Context, email, password string) error {
	if err := m.require(ScreenLogin); err != nil {
		return err
	}
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	token, err := m.deps.API.LoginPassword(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "[SubmitCredentials]")
	}

	user, err := m.deps.API.Me(ctx, token)
	if err != nil {
		return errors.Wrap(err, "[SubmitCredentials] profile")
	}
	if user.Email == "" {
		user.Email = email
	}
	return m.finalize(token, *user)
}

// SubmitRegistration creates an account from the register screen and moves to
// the email-confirmation screen. Local validation failures (including a
// password/confirm mismatch) never issue a network call.
func (m *Machine) SubmitRegistration(ctx context.Context, form RegistrationForm) error {
	if err := m.require(ScreenRegister); err != nil {
		return err
	}
	if err := form.validate(); err != nil {
		return err
	}

	registration := identity.Registration{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
		Role:      form.Role,
	}
	if form.SpecialtyID > 0 {
		registration.Occupation = &form.SpecialtyID
	}
	if _, err := m.deps.API.Register(ctx, registration); err != nil {
		return errors.Wrap(err, "[SubmitRegistration]")
	}

	m.transition(ScreenConfirmEmail, ScreenRegister)
	return nil
}

// ConfirmEmail confirms a registration with the emailed token and moves to
// the login screen.
func (m *Machine) ConfirmEmail(ctx context.Context, token string) error {
	if err := m.require(ScreenConfirmEmail); err != nil {
		return err
	}
	if err := m.deps.API.ConfirmEmail(ctx, token); err != nil {
		return errors.Wrap(err, "[ConfirmEmail]")
	}
	m.transition(ScreenLogin, ScreenConfirmEmail)
	return nil
}

// SubmitForgotEmail requests a reset code and moves to the verify screen.
func (m *Machine) SubmitForgotEmail(ctx context.Context, email string) error {
	if err := m.require(ScreenForgotPassword); err != nil {
		return err
	}
	if msg := validateEmail(email); msg != "" {
		return autherrors.NewValidation(msg)
	}
	if err := m.deps.API.ForgotPassword(ctx, email); err != nil {
		return errors.Wrap(err, "[SubmitForgotEmail]")
	}

	m.mu.Lock()
	m.resetEmail = email
	m.screen = ScreenVerifyCode
	m.mu.Unlock()
	return nil
}

// SubmitVerifyCode checks the emailed reset code and moves to the
// new-password screen.
func (m *Machine) SubmitVerifyCode(ctx context.Context, code string) error {
	if err := m.require(ScreenVerifyCode); err != nil {
		return err
	}
	if code == "" {
		return autherrors.NewValidation("code is required")
	}

	m.mu.Lock()
	email := m.resetEmail
	m.mu.Unlock()

	if err := m.deps.API.VerifyResetCode(ctx, email, code); err != nil {
		return errors.Wrap(err, "[SubmitVerifyCode]")
	}

	m.mu.Lock()
	m.resetCode = code
	m.screen = ScreenNewPassword
	m.mu.Unlock()
	return nil
}

// SubmitNewPassword sets the new password and returns to the login screen.
func (m *Machine) SubmitNewPassword(ctx context.Context, password, confirm string) error {
	if err := m.require(ScreenNewPassword); err != nil {
		return err
	}
	if msg := validatePasswordStrength(password); msg != "" {
		return autherrors.NewValidation(msg)
	}
	if password != confirm {
		return autherrors.NewValidation("passwords do not match")
	}

	m.mu.Lock()
	email, code := m.resetEmail, m.resetCode
	m.mu.Unlock()

	if err := m.deps.API.ResetPassword(ctx, email, code, password); err != nil {
		return errors.Wrap(err, "[SubmitNewPassword]")
	}

	m.mu.Lock()
	m.resetEmail = ""
	m.resetCode = ""
	m.screen = ScreenLogin
	m.mu.Unlock()
	return nil
}

// StartOAuth begins a redirect-based provider attempt with the user's
// declared role and specialty. The controller rolls its staging back if the
// redirect cannot begin, so a failed start leaves no stale state behind.
func (m *Machine) StartOAuth(ctx context.Context, provider identity.Provider, role roles.Role, specialtyID int) error {
	return m.deps.OAuth.Start(ctx, provider, role, specialtyID)
}

// ResumeFromURL inspects the query parameters of a fresh page load. When an
// OAuth callback is present the machine enters the completion sub-mode on the
// login screen and replays the staged intent as the role prefill. The caller
// must strip the query string from the address afterwards; no OAuth material
// may stay in history.
func (m *Machine) ResumeFromURL(query url.Values) error {
	cb, err := m.deps.OAuth.Resume(query)
	if err != nil {
		// A provider-reported denial is user visible on the login screen.
		m.mu.Lock()
		m.open = true
		m.screen = ScreenLogin
		m.mu.Unlock()
		return err
	}
	if cb == nil {
		return nil
	}

	staged, err := m.deps.Intents.Consume(cb.Provider)
	if err != nil {
		m.log.Warn().Err(err).Str("provider", string(cb.Provider)).Msg("failed to read staged intent")
	}
	role, specialty := roles.Default, 0
	if staged != nil {
		role, specialty = staged.Role, staged.SpecialtyID
	}

	m.mu.Lock()
	m.open = true
	m.screen = ScreenLogin
	m.pending = cb
	m.pendingRole = role
	m.pendingSpec = specialty
	m.mu.Unlock()
	return nil
}

// HasPendingCallback reports whether the machine is in the OAuth completion
// sub-mode.
func (m *Machine) HasPendingCallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// PendingRole returns the role prefill replayed from the staged intent, valid
// while a callback is pending.
func (m *Machine) PendingRole() (roles.Role, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingRole, m.pendingSpec
}

// CompleteOAuth finishes the pending callback with the confirmed role. The
// callback is consumed by this single attempt whatever the outcome; a failed
// exchange keeps the user on the login screen with the attempt's staging
// already gone.
func (m *Machine) CompleteOAuth(ctx context.Context, role roles.Role, specialtyID int) error {
	m.mu.Lock()
	cb := m.pending
	m.pending = nil
	m.pendingRole = ""
	m.pendingSpec = 0
	m.mu.Unlock()

	if cb == nil {
		return autherrors.ErrNoPendingCallback
	}

	result, err := m.deps.OAuth.Complete(ctx, cb, role, specialtyID)
	if err != nil {
		return errors.Wrap(err, "[CompleteOAuth]")
	}
	return m.finalize(result.Token, result.User)
}

// ConfirmTelegramRole launches the widget flow from the role-selection screen.
// The exchange result arrives asynchronously through the bridge.
func (m *Machine) ConfirmTelegramRole(ctx context.Context, role roles.Role, specialtyID int) error {
	if err := m.require(ScreenTelegramRoleSelect); err != nil {
		return err
	}
	return m.deps.Telegram.Launch(ctx, role, specialtyID, func(result *identity.AuthResult, err error) {
		if err != nil {
			m.log.Warn().Err(err).Msg("telegram login failed")
			return
		}
		if err := m.finalize(result.Token, result.User); err != nil {
			m.log.Error().Err(err).Msg("telegram session finalization failed")
		}
	})
}

// Logout destroys the persisted session.
func (m *Machine) Logout() error {
	return m.deps.Sessions.Clear()
}

// CurrentSession returns the persisted session, nil when absent or expired.
func (m *Machine) CurrentSession() (*session.Session, error) {
	return m.deps.Sessions.Load()
}

// finalize performs the terminal authenticated transition: resolve the role,
// persist the session, clear staged state for every provider, notify the
// caller once and reset to the welcome screen. A store failure aborts before
// the notification, leaving the machine in its pre-terminal state.
func (m *Machine) finalize(token string, user identity.User) error {
	role := roles.Resolve(user.Roles)

	sess := session.Session{
		Token:  token,
		Role:   role,
		UserID: user.ID,
		Email:  user.Email,
	}
	if err := m.deps.Sessions.Save(sess); err != nil {
		return errors.Wrap(err, "[finalize] persist session")
	}

	// Staged state from any abandoned earlier attempt goes with it.
	m.deps.Vault.AbandonAll()
	m.deps.Intents.ClearAll()

	m.log.Info().Int64("user_id", user.ID).Str("role", role.String()).Msg("authenticated")
	if m.onSuccess != nil {
		m.onSuccess(token, user.Email)
	}

	m.mu.Lock()
	m.reset()
	m.open = false
	m.mu.Unlock()
	return nil
}

// require fails when the machine is not on the expected screen. Submit
// operations are wired to exactly one screen; reaching them from elsewhere is
// a caller bug, not a user path.
func (m *Machine) require(screen Screen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.screen != screen {
		return errors.Errorf("operation requires screen %q, current screen is %q", screen, m.screen)
	}
	return nil
}
