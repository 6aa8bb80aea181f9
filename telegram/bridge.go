// Package telegram drives the Login Widget flow. Unlike the redirect-based
// providers, the widget talks back through origin-tagged messages while the
// process stays alive, so the bridge keeps its attempt state in memory and
// uses the staged intent only as a crash-recovery fallback.
package telegram

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/intent"
	"github.com/masterhub/authflow/internal/utils"
	"github.com/masterhub/authflow/roles"
)

// DefaultWidgetOrigin is the only origin widget messages are accepted from
// unless overridden. The origin check is the sole authenticity check at this
// layer; the widget protocol carries no separate signature the client could
// verify.
const DefaultWidgetOrigin = "https://oauth.telegram.org"

const eventAuthCallback = "auth_callback"

// AuthPayload is the identity payload the widget delivers on a successful
// login, field names as the widget emits them.
type AuthPayload struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// Message is one widget message together with the origin it arrived from.
type Message struct {
	Origin  string
	Event   string
	Payload AuthPayload
}

// Disposer tears down a presented widget overlay and detaches its message
// routing.
type Disposer func()

// Presenter is the host capability that renders the login widget and routes
// its messages back to the bridge. The bridge itself never touches the DOM
// (or any other host surface).
type Presenter interface {
	Present(origin string, onMessage func(Message)) (Disposer, error)
}

// ResultFunc receives the outcome of an accepted widget login.
type ResultFunc func(result *identity.AuthResult, err error)

// Bridge converts an accepted widget payload into the same session-exchange
// contract the OAuth controller uses.
type Bridge struct {
	api       *identity.Client
	intents   *intent.Cache
	presenter Presenter
	origin    string
	log       zerolog.Logger

	mu          sync.Mutex
	dispose     Disposer
	active      bool
	ctx         context.Context
	role        roles.Role
	specialtyID int
	onResult    ResultFunc
}

// Option modifies a Bridge.
type Option func(*Bridge)

// WithOrigin overrides the expected widget origin.
func WithOrigin(origin string) Option {
	return func(b *Bridge) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Bridge) {
		b.log = log
	}
}

// NewBridge creates a Bridge with required dependencies.
func NewBridge(api *identity.Client, intents *intent.Cache, presenter Presenter, options ...Option) (*Bridge, error) {
	if api == nil {
		return nil, errors.New("[NewBridge] identity client is required")
	}
	if intents == nil {
		return nil, errors.New("[NewBridge] intent cache is required")
	}
	if presenter == nil {
		return nil, errors.New("[NewBridge] presenter is required")
	}

	b := &Bridge{
		api:       api,
		intents:   intents,
		presenter: presenter,
		origin:    DefaultWidgetOrigin,
		log:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Launch stages the declared intent, presents the widget overlay and starts
// listening for its messages. A previous overlay, if any, is torn down first:
// at most one attempt runs at a time and the second launch cancels the first.
func (b *Bridge) Launch(ctx context.Context, role roles.Role, specialtyID int, onResult ResultFunc) error {
	if !role.Valid() {
		role = roles.Default
	}

	b.Close()

	// Staged for symmetry with the redirect flow and for crash recovery; a
	// staging failure is survivable because the in-memory role still covers
	// the exchange.
	if err := b.intents.Stage(intent.PendingIntent{Provider: identity.Telegram, Role: role, SpecialtyID: specialtyID}); err != nil {
		b.log.Warn().Err(err).Msg("failed to stage telegram intent")
	}

	b.mu.Lock()
	b.active = true
	b.ctx = ctx
	b.role = role
	b.specialtyID = specialtyID
	b.onResult = onResult
	b.mu.Unlock()

	dispose, err := b.presenter.Present(b.origin, b.handleMessage)
	if err != nil {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
		b.intents.Clear(identity.Telegram)
		return errors.Wrap(err, "[Launch] present widget")
	}

	b.mu.Lock()
	b.dispose = dispose
	b.mu.Unlock()
	return nil
}

// Close tears down the overlay and detaches the message handler. Messages
// delivered after Close are ignored. Safe to call repeatedly and on a bridge
// that was never launched.
func (b *Bridge) Close() {
	b.mu.Lock()
	dispose := b.dispose
	b.dispose = nil
	b.active = false
	b.onResult = nil
	b.mu.Unlock()

	if dispose != nil {
		dispose()
	}
}

// handleMessage is invoked by the presenter for every message it routes.
// Messages from any origin other than the expected widget origin are dropped
// silently; that is the authenticity boundary, not an error condition.
func (b *Bridge) handleMessage(msg Message) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	if msg.Origin != b.origin {
		b.mu.Unlock()
		b.log.Debug().Str("origin", msg.Origin).Msg("dropping widget message from unexpected origin")
		return
	}
	if msg.Event != eventAuthCallback {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	role := b.role
	specialtyID := b.specialtyID
	onResult := b.onResult
	b.mu.Unlock()

	// Prefer the staged choice; the launch-time values cover a lost staging
	// write.
	if staged, err := b.intents.Consume(identity.Telegram); err == nil && staged != nil {
		role = staged.Role
		specialtyID = staged.SpecialtyID
	}

	exchange := identity.TelegramExchange{
		ID:        msg.Payload.ID,
		Username:  msg.Payload.Username,
		FirstName: msg.Payload.FirstName,
		LastName:  msg.Payload.LastName,
		PhotoURL:  msg.Payload.PhotoURL,
		AuthDate:  msg.Payload.AuthDate,
		Hash:      msg.Payload.Hash,
		Role:      role,
	}
	if specialtyID > 0 {
		exchange.Occupation = utils.Ptr(specialtyID)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	result, err := b.api.TelegramCallback(ctx, exchange)
	if err != nil {
		b.log.Warn().Err(err).Msg("telegram exchange failed")
	} else {
		b.log.Info().Int64("user_id", result.User.ID).Msg("telegram exchange completed")
		b.Close()
	}
	if onResult != nil {
		onResult(result, err)
	}
}
