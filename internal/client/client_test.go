package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/GophFill/internal/certgen"
	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/repository"
	"github.com/atinyakov/GophFill/internal/search"
	handler "github.com/atinyakov/GophFill/internal/server/handler/http"
	"github.com/atinyakov/GophFill/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticCorpus []models.PasswordEntry

func (c staticCorpus) Entries(context.Context) ([]models.PasswordEntry, error) { return c, nil }

func newRouter(t *testing.T, requireCert bool) http.Handler {
	t.Helper()
	log := zap.NewNop()
	corpus := staticCorpus{
		{RelPath: "bank.example/alice.gpg", AbsPath: "/store/bank.example/alice.gpg"},
		{RelPath: "bank.example/bob.gpg", AbsPath: "/store/bank.example/bob.gpg"},
		{RelPath: "mail.example/carol.gpg", AbsPath: "/store/mail.example/carol.gpg"},
	}
	engine := search.NewEngine(directory.FileBased, 0, log)
	matches := service.NewMatchService(repository.NewMemoryMatchRepository())
	flows := flow.NewRegistry(log)
	t.Cleanup(flows.CancelAll)

	fill := &handler.FillHandler{
		NewFlow: func(req flow.Request) (*flow.Flow, error) {
			return flow.New(req, flow.Deps{
				Engine:          engine,
				Corpus:          corpus,
				Matches:         matches,
				Decrypter:       flow.DecrypterFunc(func(context.Context, flow.DecryptRequest) error { return nil }),
				StrictByDefault: true,
				Log:             log,
			})
		},
		Flows: flows,
		Log:   log,
	}
	return handler.NewRouter(fill, &handler.MatchHandler{MatchService: matches}, log, requireCert)
}

func TestClient_FillRoundTrip(t *testing.T) {
	srv := httptest.NewServer(newRouter(t, false))
	defer srv.Close()
	c := New(srv.URL, srv.Client())
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	fill, err := c.StartFill(ctx, Origin{Web: "https://bank.example/login"}, []byte("state-1"))
	require.NoError(t, err)
	assert.True(t, fill.Strict)

	res, err := c.WaitResults(ctx, fill.FlowID, fill.Generation)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "alice", res.Results[0].Subtitle)

	gen, err := c.SetStrict(ctx, fill.FlowID, false)
	require.NoError(t, err)
	gen, err = c.SetQuery(ctx, fill.FlowID, "carol")
	require.NoError(t, err)
	res, err = c.WaitResults(ctx, fill.FlowID, gen)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "mail.example/carol.gpg", res.Results[0].Path)

	done, err := c.Select(ctx, fill.FlowID, "mail.example/carol.gpg", false, true)
	require.NoError(t, err)
	assert.Equal(t, []byte("state-1"), done.ClientState)
	assert.True(t, done.MatchPersisted)

	paths, err := c.Matches(ctx, Origin{Web: "bank.example"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mail.example/carol.gpg"}, paths)

	require.NoError(t, c.ClearMatches(ctx, Origin{Web: "bank.example"}))
	paths, err = c.Matches(ctx, Origin{Web: "bank.example"})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestClient_APIErrors(t *testing.T) {
	srv := httptest.NewServer(newRouter(t, false))
	defer srv.Close()
	c := New(srv.URL, nil)
	ctx := context.Background()

	_, err := c.StartFill(ctx, Origin{}, []byte("s"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	err = c.Cancel(ctx, "no-such-flow")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	fill, err := c.StartFill(ctx, Origin{App: "com.bank.app"}, []byte("s"))
	require.NoError(t, err)
	require.NoError(t, c.Cancel(ctx, fill.FlowID))
}

func TestClient_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, certgen.WriteBundle(dir, []string{"127.0.0.1"}, []string{"cli"}))

	serverCert, err := tls.LoadX509KeyPair(filepath.Join(dir, certgen.ServerCertFile), filepath.Join(dir, certgen.ServerKeyFile))
	require.NoError(t, err)
	caPEM, err := os.ReadFile(filepath.Join(dir, certgen.CACertFile))
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	srv := httptest.NewUnstartedServer(newRouter(t, true))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    pool,
	}
	srv.StartTLS()
	defer srv.Close()

	httpClient, err := LoadClientCertificate(filepath.Join(dir, "cli.crt"), filepath.Join(dir, "cli.key"), filepath.Join(dir, certgen.CACertFile))
	require.NoError(t, err)
	c := New(srv.URL, httpClient)
	_, err = c.Matches(context.Background(), Origin{App: "com.bank.app"})
	assert.NoError(t, err)

	// Without a client certificate only the health probe is allowed.
	anon := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	c = New(srv.URL, anon)
	assert.NoError(t, c.Health(context.Background()))
	_, err = c.Matches(context.Background(), Origin{App: "com.bank.app"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestLoadClientCertificate_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadClientCertificate(filepath.Join(dir, "x.crt"), filepath.Join(dir, "x.key"), filepath.Join(dir, "ca.crt"))
	assert.Error(t, err)
}
