package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/crmgate/pkg/apperror"
	"github.com/platinummonkey/crmgate/pkg/crm"
	"github.com/platinummonkey/crmgate/pkg/httputil"
	"github.com/platinummonkey/crmgate/pkg/identity"
	"github.com/platinummonkey/crmgate/pkg/paging"
	"github.com/platinummonkey/crmgate/pkg/reports"
	"github.com/platinummonkey/crmgate/pkg/tenants"
	"github.com/platinummonkey/crmgate/pkg/users"
)

type testEnv struct {
	*Env
	out     *bytes.Buffer
	errOut  *bytes.Buffer
	session string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return &testEnv{
		Env: &Env{
			Out:    out,
			Err:    errOut,
			Getenv: func(string) string { return "" },
		},
		out:     out,
		errOut:  errOut,
		session: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (e *testEnv) run(server string, args ...string) error {
	global := []string{"--session", e.session}
	if server != "" {
		global = append(global, "--server", server)
	}
	return NewRootCommand().Execute(context.Background(), e.Env, append(global, args...))
}

func (e *testEnv) storeSession(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, saveSession(e.session, &identity.Session{
		Token:                  token,
		RefreshToken:           "refresh",
		ValidTo:                time.Now().Add(time.Hour),
		RefreshTokenExpiryTime: time.Now().Add(24 * time.Hour),
	}))
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "crmgate-cli", root.Name)
	for _, name := range []string{"login", "logout", "whoami", "clients", "reassign", "report", "seed"} {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, 7)
}

func TestExecuteUsage(t *testing.T) {
	t.Run("no command", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run("")
		assert.Equal(t, ExitUsage, ExitCode(err))
		assert.Contains(t, env.errOut.String(), "Usage: crmgate-cli")
	})

	t.Run("help", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.run("", "help"))
		assert.Contains(t, env.out.String(), "reassign")
		assert.Contains(t, env.out.String(), "Move a client to another salesperson")
	})

	t.Run("unknown command", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run("", "nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown command: nonexistent")
		assert.Equal(t, ExitUsage, ExitCode(err))
	})

	t.Run("bad flag", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run("", "clients", "--no-such-flag")
		assert.Equal(t, ExitUsage, ExitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{usagef("missing"), ExitUsage},
		{apperror.Authentication("expired"), ExitAuthentication},
		{apperror.PermissionDenied("nope"), ExitPermissionDenied},
		{apperror.NotFound("gone"), ExitFailure},
		{apperror.Network(errors.New("refused"), "down"), ExitFailure},
		{errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestLoginThenWhoami(t *testing.T) {
	tenantID := int64(1)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/User/Login", func(w http.ResponseWriter, r *http.Request) {
		var req users.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "Speccon123!" {
			httputil.WriteErrorMessage(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		httputil.WriteSuccess(w, identity.Session{
			Token:                  "access",
			RefreshToken:           "refresh",
			ValidTo:                time.Now().Add(time.Hour),
			RefreshTokenExpiryTime: time.Now().Add(24 * time.Hour),
		})
	})
	mux.HandleFunc("/api/User/GetCurrentUser", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		httputil.WriteSuccess(w, users.User{ID: 1, Email: "hein@speccon.co.za", DisplayName: "Hein", Role: "admin", TenantID: &tenantID})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	env := newTestEnv(t)
	err := env.run(srv.URL, "login", "--email", "hein@speccon.co.za", "--password", "wrong")
	assert.Equal(t, ExitAuthentication, ExitCode(err))
	_, statErr := os.Stat(env.session)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, env.run(srv.URL, "login", "--email", "hein@speccon.co.za", "--password", "Speccon123!"))
	info, err := os.Stat(env.session)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	env.out.Reset()
	require.NoError(t, env.run(srv.URL, "whoami"))
	assert.Contains(t, env.out.String(), "hein@speccon.co.za (Hein)")
	assert.Contains(t, env.out.String(), "tenant: 1")

	require.NoError(t, env.run(srv.URL, "logout"))
	err = env.run(srv.URL, "whoami")
	assert.Equal(t, ExitAuthentication, ExitCode(err))
}

func TestLoginRequiresCredentials(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("http://127.0.0.1:1", "login", "--email", "hein@speccon.co.za")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestClientsPrintsTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/Client/GetAll", r.URL.Path)
		assert.Equal(t, "Prospect", r.URL.Query().Get("status"))
		page := paging.NewPage([]*crm.Client{
			{ID: 104, Name: "SP-A2-02", Status: crm.ClientProspect, AssignedSalesPersonID: 6, ForecastValue: 300000},
		}, 1, paging.Params{Page: 1, PageSize: 25})
		httputil.WriteSuccess(w, page.ToResult())
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t)
	env.storeSession(t, "access")
	require.NoError(t, env.run(srv.URL, "clients", "--status", "Prospect"))

	out := env.out.String()
	assert.Contains(t, out, "SP-A2-02")
	assert.Contains(t, out, "3000.00")
	assert.Contains(t, out, "1 client(s), page 1 of 1")
}

func TestReassign(t *testing.T) {
	t.Run("flags required", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run("http://127.0.0.1:1", "reassign", "--client", "101")
		assert.Equal(t, ExitUsage, ExitCode(err))
	})

	t.Run("denied", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteErrorMessage(w, http.StatusForbidden, "user 7 is outside your scope")
		}))
		t.Cleanup(srv.Close)

		env := newTestEnv(t)
		env.storeSession(t, "access")
		err := env.run(srv.URL, "reassign", "--client", "101", "--to", "7")
		assert.Equal(t, ExitPermissionDenied, ExitCode(err))
		assert.Contains(t, err.Error(), "outside your scope")
	})

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/Client/Reassign/101", r.URL.Path)
			var req crm.ReassignRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			httputil.WriteSuccess(w, crm.Client{ID: 101, Name: "SP-A1-01", AssignedSalesPersonID: req.AssignedSalesPersonID})
		}))
		t.Cleanup(srv.Close)

		env := newTestEnv(t)
		env.storeSession(t, "access")
		require.NoError(t, env.run(srv.URL, "reassign", "--client", "101", "--to", "6"))
		assert.Contains(t, env.out.String(), "Client 101 (SP-A1-01) is now assigned to user 6")
	})
}

func TestReportPrintsSummary(t *testing.T) {
	speccon := &tenants.Tenant{ID: 1, FinancialYearStartMonth: 3, FinancialYearEndMonth: 2}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026", r.URL.Query().Get("year"))
		httputil.WriteSuccess(w, reports.Summary{
			TenantID:       1,
			TenantName:     "Speccon",
			CurrencySymbol: "R",
			FinancialYear:  speccon.FinancialYearEnding(2026),
			Totals:         reports.Totals{Clients: 2, AnnualValue: 2000000},
			Salespeople: []reports.SalespersonTotals{
				{UserID: 5, DisplayName: "Tom", Totals: reports.Totals{Clients: 2, AnnualValue: 2000000}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	env := newTestEnv(t)
	env.storeSession(t, "access")
	require.NoError(t, env.run(srv.URL, "report", "--year", "2026"))

	out := env.out.String()
	assert.Contains(t, out, "Speccon FY2026 (2025-03-01 to 2026-02-28)")
	assert.Contains(t, out, "Tom")
	assert.Contains(t, out, "R20000.00")
	assert.Contains(t, out, "TOTAL")

	err := env.run(srv.URL, "report", "--all", "--tenant", "2")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestSeedRequiresDatabaseURL(t *testing.T) {
	env := newTestEnv(t)
	err := env.run("", "seed")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", money(0))
	assert.Equal(t, "12.05", money(1205))
	assert.Equal(t, "-0.50", money(-50))
}
