package oauth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/masterhub/authflow/csrfstate"
	"github.com/masterhub/authflow/identity"
	"github.com/masterhub/authflow/intent"
	autherrors "github.com/masterhub/authflow/internal/errors"
	"github.com/masterhub/authflow/oauth"
	"github.com/masterhub/authflow/roles"
	"github.com/masterhub/authflow/storage"
)

type fakeNavigator struct {
	urls []string
	err  error
}

func (n *fakeNavigator) Navigate(url string) error {
	if n.err != nil {
		return n.err
	}
	n.urls = append(n.urls, url)
	return nil
}

// testFixture holds all controller dependencies around a stub identity API.
type testFixture struct {
	srv       *httptest.Server
	vault     *csrfstate.Vault
	intents   *intent.Cache
	nav       *fakeNavigator
	ctrl      *oauth.Controller
	exchanges *atomic.Int64
	urlStatus int
	result    identity.AuthResult
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		nav:       &fakeNavigator{},
		exchanges: &atomic.Int64{},
		urlStatus: http.StatusOK,
		result: identity.AuthResult{
			User:  identity.User{ID: 9, Roles: []string{"ROLE_MASTER"}},
			Token: "t2",
		},
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/google/url":
			if f.urlStatus != http.StatusOK {
				w.WriteHeader(f.urlStatus)
				return
			}
			redirect := "https://accounts.example.com/authorize?state=" + r.URL.Query().Get("state")
			_ = json.NewEncoder(w).Encode(map[string]string{"url": redirect})
		case "/api/auth/google/callback":
			f.exchanges.Add(1)
			_ = json.NewEncoder(w).Encode(f.result)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)

	store := storage.NewMemory(0)
	vault, err := csrfstate.New(store)
	require.NoError(t, err)
	intents, err := intent.New(store)
	require.NoError(t, err)

	ctrl, err := oauth.NewController(identity.New(f.srv.URL), vault, intents, f.nav)
	require.NoError(t, err)

	f.vault = vault
	f.intents = intents
	f.ctrl = ctrl
	return f
}

// stateFromNavigation extracts the state parameter embedded in the last
// authorization URL the navigator was sent to.
func (f *testFixture) stateFromNavigation(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.nav.urls)
	u, err := url.Parse(f.nav.urls[len(f.nav.urls)-1])
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func callbackQuery(provider, code, state string) url.Values {
	return url.Values{
		"provider": {provider},
		"code":     {code},
		"state":    {state},
	}
}

func TestStartStagesAndNavigates(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.ctrl.Start(context.Background(), identity.Google, roles.Master, 3))
	require.Len(t, f.nav.urls, 1)

	state := f.stateFromNavigation(t)

	staged, err := f.intents.Consume(identity.Google)
	require.NoError(t, err)
	require.NotNil(t, staged)
	require.Equal(t, roles.Master, staged.Role)
	require.Equal(t, 3, staged.SpecialtyID)

	require.True(t, f.vault.Validate(identity.Google, state))
}

func TestStartFailureRollsBackAndNeverNavigates(t *testing.T) {
	f := setupTestFixture(t)
	f.urlStatus = http.StatusInternalServerError

	err := f.ctrl.Start(context.Background(), identity.Google, roles.Master, 0)
	require.Error(t, err)
	require.Empty(t, f.nav.urls)

	staged, err := f.intents.Consume(identity.Google)
	require.NoError(t, err)
	require.Nil(t, staged)
}

func TestStartNavigateFailureRollsBack(t *testing.T) {
	f := setupTestFixture(t)
	f.nav.err = errNavigate

	require.Error(t, f.ctrl.Start(context.Background(), identity.Google, roles.Client, 0))

	staged, err := f.intents.Consume(identity.Google)
	require.NoError(t, err)
	require.Nil(t, staged)
}

var errNavigate = errNavigateType{}

type errNavigateType struct{}

func (errNavigateType) Error() string { return "no browser" }

func TestStartRejectsTelegram(t *testing.T) {
	f := setupTestFixture(t)
	require.Error(t, f.ctrl.Start(context.Background(), identity.Telegram, roles.Client, 0))
}

func TestResumeProviderError(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.ctrl.Resume(url.Values{
		"error":             {"access_denied"},
		"error_description": {"The user denied the request"},
	})
	require.ErrorIs(t, err, autherrors.ErrProviderDenied)
	require.Contains(t, err.Error(), "access_denied")
}

func TestResumeWithoutCallbackMaterial(t *testing.T) {
	f := setupTestFixture(t)

	cb, err := f.ctrl.Resume(url.Values{})
	require.NoError(t, err)
	require.Nil(t, cb)

	// A partial triple is not a callback.
	cb, err = f.ctrl.Resume(url.Values{"code": {"c"}})
	require.NoError(t, err)
	require.Nil(t, cb)

	cb, err = f.ctrl.Resume(callbackQuery("vk", "c", "s"))
	require.NoError(t, err)
	require.Nil(t, cb)
}

func TestCompleteHappyPath(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.ctrl.Start(context.Background(), identity.Google, roles.Master, 3))
	state := f.stateFromNavigation(t)

	cb, err := f.ctrl.Resume(callbackQuery("google", "code-1", state))
	require.NoError(t, err)
	require.NotNil(t, cb)

	result, err := f.ctrl.Complete(context.Background(), cb, roles.Master, 3)
	require.NoError(t, err)
	require.Equal(t, "t2", result.Token)
	require.EqualValues(t, 1, f.exchanges.Load())
}

func TestCompleteCSRFMismatchSkipsExchange(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.ctrl.Start(context.Background(), identity.Google, roles.Client, 0))

	cb := &oauth.Callback{Provider: identity.Google, Code: "code-1", State: "forged"}
	_, err := f.ctrl.Complete(context.Background(), cb, roles.Client, 0)
	require.ErrorIs(t, err, autherrors.ErrCSRFMismatch)
	require.EqualValues(t, 0, f.exchanges.Load())
}

// Starting a second attempt for the same provider overwrites the first's
// CSRF state, so completing with the first state must fail.
func TestSecondStartInvalidatesFirstAttempt(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.ctrl.Start(context.Background(), identity.Google, roles.Master, 3))
	firstState := f.stateFromNavigation(t)

	require.NoError(t, f.ctrl.Start(context.Background(), identity.Google, roles.Master, 3))

	cb, err := f.ctrl.Resume(callbackQuery("google", "code-1", firstState))
	require.NoError(t, err)
	require.NotNil(t, cb)

	_, err = f.ctrl.Complete(context.Background(), cb, roles.Master, 3)
	require.ErrorIs(t, err, autherrors.ErrCSRFMismatch)
	require.EqualValues(t, 0, f.exchanges.Load())
}

func TestCompleteNilCallback(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.ctrl.Complete(context.Background(), nil, roles.Client, 0)
	require.ErrorIs(t, err, autherrors.ErrNoPendingCallback)
}
