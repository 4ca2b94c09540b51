package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/procurement-gateway/internal/odata"
)

type fakePLM struct {
	users      map[string]any // $filter login -> collection body
	userDetail map[string]any // user id -> keyed body
	vaults     map[string]any // vault id -> body
	userStatus int
	vaultCalls int
}

func (f *fakePLM) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+r.Header.Get("X-Expect-Token"), r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/odata/User":
			if f.userStatus != 0 {
				w.WriteHeader(f.userStatus)
				return
			}
			filter := r.URL.Query().Get("$filter")
			assert.Equal(t, "id,login_name,default_vault", r.URL.Query().Get("$select"))
			body, ok := f.users[filter]
			if !ok {
				body = map[string]any{"value": []any{}}
			}
			_ = json.NewEncoder(w).Encode(body)
		case "/odata/User('U1')":
			assert.Equal(t, "default_vault", r.URL.Query().Get("$select"))
			_ = json.NewEncoder(w).Encode(f.userDetail["U1"])
		case "/odata/Vault('V1')":
			f.vaultCalls++
			body, ok := f.vaults["V1"]
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newResolver(t *testing.T, f *fakePLM) (*Resolver, string) {
	t.Helper()
	tok := token(t, map[string]any{"preferred_username": "jdoe"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("X-Expect-Token", tok)
		f.handler(t).ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)
	return NewResolver(odata.New(server.URL+"/odata", time.Second), nil), tok
}

func jdoe() map[string]any {
	return map[string]any{"value": []any{map[string]any{"id": "U1", "login_name": "jdoe"}}}
}

func TestResolveVault_AnnotatedID(t *testing.T) {
	f := &fakePLM{
		users: map[string]any{"login_name eq 'jdoe'": jdoe()},
		userDetail: map[string]any{"U1": map[string]any{
			"default_vault@aras.id": "V1",
			"default_vault":         "IGNORED",
		}},
		vaults: map[string]any{"V1": map[string]any{"id": "V1", "vault_url": "http://vault/x"}},
	}
	r, tok := newResolver(t, f)

	ref, err := r.ResolveVault(context.Background(), "Bearer "+tok)
	require.NoError(t, err)
	assert.Equal(t, VaultRef{LoginName: "jdoe", UserID: "U1", VaultID: "V1", VaultURL: "http://vault/x"}, ref)
}

func TestResolveVault_PlainID_VaultURLBestEffort(t *testing.T) {
	f := &fakePLM{
		users:      map[string]any{"login_name eq 'jdoe'": jdoe()},
		userDetail: map[string]any{"U1": map[string]any{"default_vault": "V1"}},
	}
	r, tok := newResolver(t, f)

	ref, err := r.ResolveVault(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "V1", ref.VaultID)
	assert.Empty(t, ref.VaultURL)
	assert.Equal(t, 1, f.vaultCalls)
}

func TestResolveVault_FallsBackToCollectionRow(t *testing.T) {
	f := &fakePLM{
		users: map[string]any{"login_name eq 'jdoe'": map[string]any{"value": []any{
			map[string]any{"id": "U1", "default_vault@aras.id": "V1"},
		}}},
		userDetail: map[string]any{"U1": map[string]any{}},
		vaults:     map[string]any{"V1": map[string]any{"id": "V1"}},
	}
	r, tok := newResolver(t, f)

	ref, err := r.ResolveVault(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, "V1", ref.VaultID)
}

func TestResolveVault_NotConfigured(t *testing.T) {
	f := &fakePLM{
		users:      map[string]any{"login_name eq 'jdoe'": jdoe()},
		userDetail: map[string]any{"U1": map[string]any{"default_vault": nil}},
	}
	r, tok := newResolver(t, f)

	_, err := r.ResolveVault(context.Background(), tok)
	assert.ErrorIs(t, err, ErrVaultNotConfigured)
	assert.Zero(t, f.vaultCalls)
}

func TestResolveVault_UserNotFound(t *testing.T) {
	r, tok := newResolver(t, &fakePLM{})

	_, err := r.ResolveVault(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveVault_UserLookupFailed(t *testing.T) {
	r, tok := newResolver(t, &fakePLM{userStatus: http.StatusUnauthorized})

	_, err := r.ResolveVault(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUserLookupFailed)
	oe, ok := odata.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, oe.StatusCode)
}

func TestResolveVault_MalformedCredential(t *testing.T) {
	r, _ := newResolver(t, &fakePLM{})

	_, err := r.ResolveVault(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestExtractVaultID(t *testing.T) {
	row := func(s string) userRow {
		var r userRow
		require.NoError(t, json.Unmarshal([]byte(s), &r))
		return r
	}
	tests := []struct {
		body string
		want string
		ok   bool
	}{
		{`{"default_vault@aras.id":"A","default_vault":"B"}`, "A", true},
		{`{"default_vault":"B"}`, "B", true},
		{`{"default_vault":{"id":"C","name":"Default"}}`, "C", true},
		{`{"default_vault":""}`, "", false},
		{`{"default_vault":null}`, "", false},
		{`{"default_vault@aras.id":""}`, "", false},
		{`{}`, "", false},
	}
	for _, tc := range tests {
		got, ok := extractVaultID(row(tc.body))
		assert.Equal(t, tc.ok, ok, tc.body)
		assert.Equal(t, tc.want, got, tc.body)
	}
}

func TestLookupUser(t *testing.T) {
	r, tok := newResolver(t, &fakePLM{users: map[string]any{"login_name eq 'jdoe'": jdoe()}})

	u, err := r.LookupUser(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "U1", LoginName: "jdoe"}, u)
}

func TestLookupUser_RejectedCredential(t *testing.T) {
	r, tok := newResolver(t, &fakePLM{userStatus: http.StatusUnauthorized})

	_, err := r.LookupUser(context.Background(), tok)
	assert.ErrorIs(t, err, ErrUserLookupFailed)
	oe, ok := odata.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, oe.StatusCode)
}
