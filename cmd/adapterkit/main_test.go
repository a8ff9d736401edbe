package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	akerrors "github.com/randalmurphal/adapterkit/pkg/adapterkit/errors"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/features"
	"github.com/randalmurphal/adapterkit/pkg/adapterkit/sim"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var out, errOut bytes.Buffer
	app := newApp(stdin, &out, &errOut)
	err := app.RunContext(t.Context(), append([]string{"adapterkit"}, args...))
	return out.String(), err
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"table", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    features.OperationKind
		wantErr bool
	}{
		{"", features.OperationInvoke, false},
		{"invoke", features.OperationInvoke, false},
		{"stream", features.OperationStream, false},
		{"duplex", features.OperationDuplexStream, false},
		{"duplex-stream", features.OperationDuplexStream, false},
		{"unary", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := loadSettings("")
		require.NoError(t, err)
		assert.Equal(t, "adapterkit", s.Adapter.ID)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("adapter:\n  id: cli-test\nsimulator:\n  tags: 2\n"), 0o600))

		s, err := loadSettings(path)
		require.NoError(t, err)
		assert.Equal(t, "cli-test", s.Adapter.ID)
		assert.Equal(t, 2, s.Simulator.Tags)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestApp_Features(t *testing.T) {
	out, err := run(t, nil, "features")
	require.NoError(t, err)

	var descs []features.FeatureDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &descs))

	uris := make([]features.FeatureKey, len(descs))
	for i, d := range descs {
		uris[i] = d.URI
	}
	assert.Contains(t, uris, features.KeyHealthCheck)
	assert.Contains(t, uris, features.KeyReadProcessedTagValues)
	assert.Contains(t, uris, sim.PingKey)
}

func TestApp_YAMLFormat(t *testing.T) {
	out, err := run(t, nil, "--format", "yaml", "features")
	require.NoError(t, err)
	assert.Contains(t, out, string(sim.PingKey))
	assert.False(t, strings.HasPrefix(out, "["))
}

func TestApp_Health(t *testing.T) {
	out, err := run(t, nil, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "simulator is running")
}

func TestApp_Snapshot(t *testing.T) {
	out, err := run(t, nil, "snapshot", "--tag", "wave-00")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "wave-00", results[0]["tag_id"])
}

func TestApp_SnapshotAllTags(t *testing.T) {
	out, err := run(t, nil, "snapshot")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	// Four waves plus the state tag.
	assert.Len(t, results, 5)
}

func TestApp_SnapshotUnknownTag(t *testing.T) {
	_, err := run(t, nil, "snapshot", "--tag", "nope")
	assert.ErrorIs(t, err, akerrors.ErrUnknownTag)
}

func TestApp_Processed(t *testing.T) {
	out, err := run(t, nil, "processed", "--tag", "wave-00", "--func", "MIN", "--window", "5m", "--interval", "1m")
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "MIN", r["data_function"])
		assert.Equal(t, "wave-00", r["tag_id"])
	}
}

func TestApp_ProcessedList(t *testing.T) {
	out, err := run(t, nil, "processed", "--list")
	require.NoError(t, err)

	var funcs []features.DataFunctionDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &funcs))
	assert.Len(t, funcs, 9)
}

func TestApp_EventsEmpty(t *testing.T) {
	out, err := run(t, nil, "events")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestApp_InvokeListsOperations(t *testing.T) {
	out, err := run(t, nil, "invoke")
	require.NoError(t, err)

	var ops []features.ExtensionOperationDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &ops))
	assert.Len(t, ops, 3)
}

func TestApp_Invoke(t *testing.T) {
	out, err := run(t, nil, "invoke", "--op", "Ping", `{"message":"hi"}`)
	require.NoError(t, err)

	var resp sim.PingResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "hi", resp.Message)
	assert.False(t, resp.ReceivedAt.IsZero())
}

func TestApp_InvokeStream(t *testing.T) {
	out, err := run(t, nil, "invoke", "--kind", "stream", "--op", "Countdown", `{"from":2}`)
	require.NoError(t, err)
	assert.Equal(t, "2\n1\n0\n", out)
}

func TestApp_InvokeDuplex(t *testing.T) {
	in := strings.NewReader("{\"message\":\"a\"}\n\n{\"message\":\"b\"}\n")
	out, err := run(t, in, "invoke", "--kind", "duplex", "--op", "Shout")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"message":"A"}`, lines[0])
	assert.JSONEq(t, `{"message":"B"}`, lines[1])
}

func TestApp_InvokeValidationError(t *testing.T) {
	_, err := run(t, nil, "invoke", "--kind", "stream", "--op", "Countdown", `{"from":-1}`)
	assert.True(t, akerrors.IsValidation(err))
}

func TestApp_InvokeUnknownOperation(t *testing.T) {
	_, err := run(t, nil, "invoke", "--op", "Missing")
	assert.ErrorIs(t, err, akerrors.ErrOperationNotFound)
}
