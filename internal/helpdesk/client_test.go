package helpdesk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMostRecentOpenCaseSkipsClosed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/cases/search", r.URL.Path)
		require.Equal(t, "447911123456@wa.example.com", r.URL.Query().Get("requester"))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		now := time.Now()
		_ = json.NewEncoder(w).Encode([]Case{
			{ID: "9", State: "closed", UpdatedAt: now},
			{ID: "7", State: "open", UpdatedAt: now.Add(-time.Hour)},
			{ID: "5", State: "open", UpdatedAt: now.Add(-2 * time.Hour)},
		})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	id, err := c.MostRecentOpenCase(context.Background(), "447911123456@wa.example.com")
	require.NoError(t, err)
	require.Equal(t, "7", id)
}

func TestSearchCasesSendsQueryString(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/cases/search", r.URL.Path)
		require.Equal(t, "requester=447911123456%40wa.example.com", r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode([]Case{})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	_, err := c.SearchCases(context.Background(), "447911123456@wa.example.com")
	require.NoError(t, err)
}

func TestFindOrCreateUserSendsQueryString(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/users/search", r.URL.Path)
		require.Equal(t, "447911123456@wa.example.com", r.URL.Query().Get("email"))
		_ = json.NewEncoder(w).Encode([]User{{ID: "u-1"}})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	user, err := c.FindOrCreateUser(context.Background(), "447911123456@wa.example.com", "Ada Lovelace")
	require.NoError(t, err)
	require.Equal(t, "u-1", user.ID)
}

func TestMostRecentOpenCaseEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Case{})
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	id, err := c.MostRecentOpenCase(context.Background(), "447911123456@wa.example.com")
	require.NoError(t, err)
	require.Equal(t, "", id)
}

func TestAPIFailureWrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	_, err := c.MostRecentOpenCase(context.Background(), "447911123456@wa.example.com")
	require.ErrorIs(t, err, ErrAPIFailure)
}

func TestCreateCaseReusesExistingUser(t *testing.T) {
	t.Parallel()

	var createdUser, createdCase bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/users/search":
			_ = json.NewEncoder(w).Encode([]User{{ID: "u-1", Email: r.URL.Query().Get("email")}})
		case r.URL.Path == "/api/v1/users" && r.Method == http.MethodPost:
			createdUser = true
			_ = json.NewEncoder(w).Encode(User{ID: "u-2"})
		case r.URL.Path == "/api/v1/cases" && r.Method == http.MethodPost:
			createdCase = true
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Equal(t, "u-1", payload["requester"])
			_ = json.NewEncoder(w).Encode(Case{ID: "case-33"})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	id, err := c.CreateCase(context.Background(), "WhatsApp conversation", "447911123456@wa.example.com", "Ada Lovelace", "Hello")
	require.NoError(t, err)
	require.Equal(t, "case-33", id)
	require.False(t, createdUser)
	require.True(t, createdCase)
}

func TestAppendMessageAttribution(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/cases/case-33/articles", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "Customer", payload["sender"])
		require.Equal(t, "note", payload["type"])
		require.Equal(t, true, payload["internal"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(nil, srv.URL, "secret")
	err := c.AppendMessage(context.Background(), Article{
		CaseID:      "case-33",
		Body:        "We've shipped it",
		Channel:     ChannelNote,
		Attribution: AttributeRequester,
	})
	require.NoError(t, err)
}
