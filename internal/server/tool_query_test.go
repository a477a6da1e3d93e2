package server

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/pondworks/duckmcp/internal/duck"
)

func testServer(t *testing.T, connector duck.Connector, readOnly bool) *Server {
	t.Helper()

	cfg := validConfig(t)
	cfg.Connector = connector
	cfg.ReadOnly = readOnly
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestServer_ToolQuery_RunQuery(t *testing.T) {
	t.Parallel()

	t.Run("select one", func(t *testing.T) {
		t.Parallel()

		s := testServer(t, testConnector(t), false)
		out, qerr := s.runQuery(t.Context(), `SELECT 1 AS x`)
		require.Nil(t, qerr)
		require.Equal(t, []string{"x"}, out.Columns)
		require.Equal(t, [][]any{{int32(1)}}, out.Rows)
		require.Equal(t, 1, out.Count)
	})

	t.Run("writes persist across invocations on a shared handle", func(t *testing.T) {
		t.Parallel()

		s := testServer(t, testConnector(t), false)

		_, qerr := s.runQuery(t.Context(), `CREATE TABLE notes (id INTEGER, body VARCHAR)`)
		require.Nil(t, qerr)
		_, qerr = s.runQuery(t.Context(), `INSERT INTO notes VALUES (1, 'hi')`)
		require.Nil(t, qerr)

		out, qerr := s.runQuery(t.Context(), `SELECT id, body FROM notes`)
		require.Nil(t, qerr)
		require.Equal(t, [][]any{{int32(1), "hi"}}, out.Rows)
	})

	t.Run("syntax errors come back classified", func(t *testing.T) {
		t.Parallel()

		s := testServer(t, testConnector(t), false)
		_, qerr := s.runQuery(t.Context(), `SELEC 1`)
		require.NotNil(t, qerr)
		require.Equal(t, duck.KindSyntax, qerr.Kind)
	})

	t.Run("read-only guard rejects writes before acquiring", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "ro.db")
		setup, err := duck.NewConnector(duck.ResolveAddress(path), duck.Policy{}, testLogger(t))
		require.NoError(t, err)
		db, release, err := setup.Acquire(t.Context())
		require.NoError(t, err)
		_, err = db.ExecContext(t.Context(), `CREATE TABLE notes (id INTEGER)`)
		require.NoError(t, err)
		release()
		require.NoError(t, setup.Close())

		ro, err := duck.NewConnector(duck.ResolveAddress(path), duck.Policy{ReadOnly: true}, testLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = ro.Close() })

		s := testServer(t, ro, true)

		_, qerr := s.runQuery(t.Context(), `INSERT INTO notes VALUES (1)`)
		require.NotNil(t, qerr)
		require.Equal(t, duck.KindPermission, qerr.Kind)

		// Reads still flow through.
		out, qerr := s.runQuery(t.Context(), `SELECT count(*) AS n FROM notes`)
		require.Nil(t, qerr)
		require.Equal(t, []string{"n"}, out.Columns)
	})

	t.Run("missing credential leaves the server responsive", func(t *testing.T) {
		t.Parallel()

		cloud, err := duck.NewConnector(duck.Address{Kind: duck.AddressCloudDefault}, duck.Policy{}, testLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = cloud.Close() })

		s := testServer(t, cloud, false)

		for range 3 {
			_, qerr := s.runQuery(t.Context(), `SELECT 1`)
			require.NotNil(t, qerr)
			require.Equal(t, duck.KindMissingCredential, qerr.Kind)
		}
	})

	t.Run("bad local path fails with a connection error", func(t *testing.T) {
		t.Parallel()

		bad, err := duck.NewConnector(duck.ResolveAddress("/this-directory-does-not-exist/x.db"), duck.Policy{}, testLogger(t))
		require.NoError(t, err)
		t.Cleanup(func() { _ = bad.Close() })

		s := testServer(t, bad, false)
		_, qerr := s.runQuery(t.Context(), `SELECT 1`)
		require.NotNil(t, qerr)
		require.Equal(t, duck.KindConnection, qerr.Kind)
	})
}

func TestServer_ToolQuery_RoundTrip(t *testing.T) {
	t.Parallel()

	s := testServer(t, testConnector(t), false)

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := s.mcp.Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	t.Run("successful query", func(t *testing.T) {
		res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      queryToolName,
			Arguments: map[string]any{"query": "SELECT 1 AS x"},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		sc, ok := res.StructuredContent.(map[string]any)
		require.True(t, ok)
		require.Equal(t, []any{"x"}, sc["columns"])
		require.Equal(t, []any{[]any{float64(1)}}, sc["rows"])
	})

	t.Run("failed query comes back as a tool result, not a protocol error", func(t *testing.T) {
		res, err := cs.CallTool(t.Context(), &mcp.CallToolParams{
			Name:      queryToolName,
			Arguments: map[string]any{"query": "SELEC 1"},
		})
		require.NoError(t, err, "failures must flow through the tool result shape")
		require.True(t, res.IsError)
		require.NotEmpty(t, res.Content)

		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)

		var decoded duck.Error
		require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
		require.Equal(t, duck.KindSyntax, decoded.Kind)
		require.NotEmpty(t, decoded.Message)
	})
}

func TestServer_ToolQuery_ErrorResult(t *testing.T) {
	t.Parallel()

	res := errorResult(&duck.Error{Kind: duck.KindPermission, Message: "INSERT is not allowed on a read-only database"})
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var decoded duck.Error
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	require.Equal(t, duck.KindPermission, decoded.Kind)
	require.Equal(t, "INSERT is not allowed on a read-only database", decoded.Message)
}
