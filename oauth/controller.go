// Package oauth drives the authorization-code leg of a provider login:
// obtain the authorization URL, leave for the provider, resume on return and
// exchange code plus state for a session payload.
package oauth

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/masterhub/authflow/csrfstate"
	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/intent"
	autherrors "github.com/masterhub/authflow/internal/errors"
	"github.com/masterhub/authflow/internal/utils"
	"github.com/masterhub/authflow/roles"
)

// Navigator is the capability that performs the redirect-away. In a browser
// this is a location change; the CLI opens the system browser.
type Navigator interface {
	Navigate(url string) error
}

// Callback carries the raw parameters of a provider's return URL. It is
// transient: consumed by exactly one completion attempt, then discarded.
type Callback struct {
	Provider identity.Provider
	Code     string
	State    string
}

// Controller sequences one provider attempt:
// Idle -> AwaitingRedirect -> (navigation) -> ReturnedWithCallback ->
// Exchanging -> Completed | Failed. State crossing the navigation boundary
// lives in the vault and intent cache, keyed per provider, so concurrent
// attempts for different providers cannot corrupt each other.
type Controller struct {
	api     *identity.Client
	vault   *csrfstate.Vault
	intents *intent.Cache
	nav     Navigator
	log     zerolog.Logger
}

// Option modifies a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// NewController creates a Controller with required dependencies.
func NewController(api *identity.Client, vault *csrfstate.Vault, intents *intent.Cache, nav Navigator, options ...Option) (*Controller, error) {
	if api == nil {
		return nil, errors.New("[NewController] identity client is required")
	}
	if vault == nil {
		return nil, errors.New("[NewController] csrf vault is required")
	}
	if intents == nil {
		return nil, errors.New("[NewController] intent cache is required")
	}
	if nav == nil {
		return nil, errors.New("[NewController] navigator is required")
	}

	c := &Controller{
		api:     api,
		vault:   vault,
		intents: intents,
		nav:     nav,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Start stages the declared intent, begins a CSRF state, fetches the
// provider's authorization URL and navigates away. Any failure before the
// navigation rolls back both the staged intent and the CSRF state, and no
// redirect happens.
func (c *Controller) Start(ctx context.Context, provider identity.Provider, role roles.Role, specialtyID int) error {
	if !provider.Redirecting() {
		return errors.Errorf("[Start] provider %q does not use the redirect flow", provider)
	}

	attemptID := uuid.NewString()
	log := c.log.With().Str("provider", string(provider)).Str("attempt_id", attemptID).Logger()

	if err := c.intents.Stage(intent.PendingIntent{Provider: provider, Role: role, SpecialtyID: specialtyID}); err != nil {
		return errors.Wrap(err, "[Start] stage intent")
	}

	state, err := c.vault.Begin(provider)
	if err != nil {
		c.intents.Clear(provider)
		return errors.Wrap(err, "[Start] begin csrf state")
	}

	authURL, err := c.api.AuthorizationURL(ctx, provider, state)
	if err != nil {
		c.vault.Abandon(provider)
		c.intents.Clear(provider)
		return errors.Wrap(err, "[Start] authorization url")
	}

	log.Info().Msg("redirecting to provider")
	if err := c.nav.Navigate(authURL); err != nil {
		c.vault.Abandon(provider)
		c.intents.Clear(provider)
		return errors.Wrap(err, "[Start] navigate")
	}
	return nil
}

// Resume inspects the query parameters of the page the provider redirected
// back to. A provider-reported error surfaces as ErrProviderDenied. A
// complete code/state/provider triple comes back as a Callback; anything else
// means the URL carried no OAuth material and (nil, nil) is returned.
//
// CSRF is deliberately not validated here. The flow may still need a role
// selection screen before completing, so validation is deferred to Complete.
func (c *Controller) Resume(query url.Values) (*Callback, error) {
	if errParam := query.Get("error"); errParam != "" {
		detail := strings.TrimSpace(errParam + " " + query.Get("error_description"))
		return nil, autherrors.Wrapf(autherrors.ErrProviderDenied, "[Resume] %s", detail)
	}

	code := query.Get("code")
	state := query.Get("state")
	provider := identity.Provider(query.Get("provider"))
	if code == "" || state == "" || !provider.Redirecting() {
		return nil, nil
	}

	c.log.Info().Str("provider", string(provider)).Msg("resumed with oauth callback")
	return &Callback{Provider: provider, Code: code, State: state}, nil
}

// Complete validates the CSRF state for the callback's provider and, only on
// a match, exchanges the code for a session payload. A mismatch fails with
// ErrCSRFMismatch before any network call. The server's error text is kept
// verbatim where available.
func (c *Controller) Complete(ctx context.Context, cb *Callback, role roles.Role, specialtyID int) (*identity.AuthResult, error) {
	if cb == nil {
		return nil, autherrors.ErrNoPendingCallback
	}
	if !c.vault.Validate(cb.Provider, cb.State) {
		return nil, autherrors.Wrapf(autherrors.ErrCSRFMismatch, "[Complete] provider %s", cb.Provider)
	}
	if !role.Valid() {
		role = roles.Default
	}

	exchange := identity.OAuthExchange{
		Code:  cb.Code,
		State: cb.State,
		Role:  role,
	}
	if specialtyID > 0 {
		exchange.Occupation = utils.Ptr(specialtyID)
	}

	result, err := c.api.OAuthCallback(ctx, cb.Provider, exchange)
	if err != nil {
		return nil, errors.Wrap(err, "[Complete] exchange")
	}
	c.log.Info().Str("provider", string(cb.Provider)).Int64("user_id", result.User.ID).Msg("oauth exchange completed")
	return result, nil
}
