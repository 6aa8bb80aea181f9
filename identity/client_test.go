package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/masterhub/authflow/identity"
	autherrors "github.com/masterhub/authflow/internal/errors"
	"github.com/masterhub/authflow/roles"
)

func TestLoginPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/authentication_token", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a@b.com", body.Email)
		require.Equal(t, "Valid1!pw", body.Password)

		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t1"})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	token, err := client.LoginPassword(context.Background(), "a@b.com", "Valid1!pw")
	require.NoError(t, err)
	require.Equal(t, "t1", token)
}

func TestLoginPasswordMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	_, err := client.LoginPassword(context.Background(), "a@b.com", "pw")
	require.ErrorIs(t, err, autherrors.ErrMissingToken)
}

func TestLoginPasswordNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := identity.New(srv.URL)
	_, err := client.LoginPassword(context.Background(), "a@b.com", "pw")
	require.ErrorIs(t, err, autherrors.ErrNetwork)
}

func TestValidationErrorSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"violations": []map[string]string{
				{"propertyPath": "email", "message": "This value is already used."},
				{"propertyPath": "password", "message": "This value is too short."},
			},
		})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	_, err := client.Register(context.Background(), identity.Registration{
		Email: "a@b.com", Password: "pw", Role: roles.Client,
	})

	var verr *autherrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Violations, 2)
	require.Equal(t, "This value is already used.", verr.Violations[0].Message)
	require.Contains(t, verr.Error(), "email: This value is already used.")
}

func TestServerMessageKeptVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "authorization code expired"})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	_, err := client.OAuthCallback(context.Background(), identity.Google, identity.OAuthExchange{
		Code: "c", State: "s", Role: roles.Client,
	})
	require.ErrorIs(t, err, autherrors.ErrExchangeFailed)
	require.Contains(t, err.Error(), "authorization code expired")
}

func TestUnparseableErrorBodyIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	_, err := client.LoginPassword(context.Background(), "a@b.com", "pw")
	require.ErrorIs(t, err, autherrors.ErrNetwork)
}

func TestAuthorizationURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/google/url", r.URL.Path)
		require.Equal(t, "csrf-123", r.URL.Query().Get("state"))
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://accounts.example.com/authorize?state=csrf-123"})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	authURL, err := client.AuthorizationURL(context.Background(), identity.Google, "csrf-123")
	require.NoError(t, err)
	require.Contains(t, authURL, "state=csrf-123")
}

func TestAuthorizationURLEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	_, err := client.AuthorizationURL(context.Background(), identity.Google, "s")
	require.ErrorIs(t, err, autherrors.ErrExchangeFailed)
}

func TestOAuthCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/google/callback", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "code-1", body["code"])
		require.Equal(t, "state-1", body["state"])
		require.Equal(t, "master", body["role"])
		require.Equal(t, float64(3), body["occupation"])

		_ = json.NewEncoder(w).Encode(identity.AuthResult{
			User:  identity.User{ID: 9, Roles: []string{"ROLE_MASTER"}},
			Token: "t2",
		})
	}))
	defer srv.Close()

	occupation := 3
	client := identity.New(srv.URL)
	result, err := client.OAuthCallback(context.Background(), identity.Google, identity.OAuthExchange{
		Code: "code-1", State: "state-1", Role: roles.Master, Occupation: &occupation,
	})
	require.NoError(t, err)
	require.Equal(t, "t2", result.Token)
	require.Equal(t, int64(9), result.User.ID)
}

func TestTelegramCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/telegram/callback", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(111), body["id"])
		require.Equal(t, "Jane", body["firstName"])
		require.Equal(t, "client", body["role"])

		_ = json.NewEncoder(w).Encode(identity.AuthResult{
			User:  identity.User{ID: 5, Roles: []string{"ROLE_CLIENT"}},
			Token: "t3",
		})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	result, err := client.TelegramCallback(context.Background(), identity.TelegramExchange{
		ID: 111, FirstName: "Jane", Role: roles.Client,
	})
	require.NoError(t, err)
	require.Equal(t, "t3", result.Token)
}

func TestMeSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/me", r.URL.Path)
		require.Equal(t, "Bearer t1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(identity.User{ID: 7, Roles: []string{"ROLE_CLIENT"}})
	}))
	defer srv.Close()

	client := identity.New(srv.URL)
	user, err := client.Me(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.Equal(t, []string{"ROLE_CLIENT"}, user.Roles)
}
