package hclconfig

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/testutil"
)

const nodeHCL = `
node "self" {
  address = "00:12:74:01:00:01:01:01"
}
`

func load(t *testing.T, files map[string]string, opts ...Option) (*config.Model, error) {
	t.Helper()
	dir := testutil.WriteFiles(t, files)
	ctx, _ := testutil.LogContext(t)
	return NewLoader(opts...).Load(ctx, dir)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	m, err := load(t, map[string]string{"node.hcl": nodeHCL})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultScheduler(), m.Scheduler)
	assert.Equal(t, config.Node{Name: "self", Address: "00:12:74:01:00:01:01:01"}, m.Node)
	assert.Nil(t, m.Simulation)
	assert.Nil(t, m.Telemetry)
}

func TestLoad_FullConfig(t *testing.T) {
	files := map[string]string{
		"node.hcl": nodeHCL,
		"scheduler.hcl": `
scheduler {
  group_amount      = 8
  group_size        = min(defaults.group_size + 4, 15)
  add_threshold     = 4
  delete_threshold  = 2
  debounce_cycles   = 5
  noack_backoff     = 2
  maintain_interval = "2m"
  multichannel      = 2
  hash              = "fold"
}
`,
		"sim/traffic.hcl": `
simulation {
  parent   = "00:12:74:02:00:02:02:02"
  children = ["00:07", "00:0b"]

  phase "burst" {
    cycles          = 20
    uplink_packets  = 6
    child_request   = 5
    rx_per_interval = 3
    noack_every     = 4
    maintain_every  = 5
  }

  phase "idle" {
    cycles    = 30
    drop_acks = true
  }
}

telemetry {
  socketio_url = "http://${env.TELEMETRY_HOST}:3000/"
  namespace    = "/tsch"
}
`,
	}

	m, err := load(t, files, WithEnv(map[string]string{"TELEMETRY_HOST": "collector"}))
	require.NoError(t, err)

	want := &config.Model{
		Scheduler: config.Scheduler{
			GroupAmount:      8,
			GroupSize:        12,
			AddThreshold:     4,
			DeleteThreshold:  2,
			DebounceCycles:   5,
			NoAckBackoff:     2,
			Multichannel:     2,
			MaintainInterval: 2 * time.Minute,
			Hash:             config.HashFold,
		},
		Node: config.Node{Name: "self", Address: "00:12:74:01:00:01:01:01"},
		Simulation: &config.Simulation{
			Parent:   "00:12:74:02:00:02:02:02",
			Children: []string{"00:07", "00:0b"},
			Phases: []*config.Phase{
				{Name: "burst", Cycles: 20, UplinkPackets: 6, ChildRequest: 5, RxPerInterval: 3, NoAckEvery: 4, MaintainEvery: 5},
				{Name: "idle", Cycles: 30, DropAcks: true},
			},
		},
		Telemetry: &config.Telemetry{SocketIOURL: "http://collector:3000/", Namespace: "/tsch"},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("loaded model mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_TelemetryNamespaceDefaultsToRoot(t *testing.T) {
	m, err := load(t, map[string]string{
		"main.hcl": nodeHCL + `
telemetry {
  socketio_url = "http://localhost:3000/"
}
`,
	})
	require.NoError(t, err)
	require.NotNil(t, m.Telemetry)
	assert.Equal(t, "/", m.Telemetry.Namespace)
}

func TestLoad_SingleFilePath(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{"a.hcl": nodeHCL, "b.txt": "not hcl"})

	m, err := NewLoader(WithEnv(map[string]string{})).Load(context.Background(), filepath.Join(dir, "a.hcl"), filepath.Join(dir, "missing.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "self", m.Node.Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "syntax error",
			files:   map[string]string{"bad.hcl": `scheduler {`},
			wantErr: "failed to parse HCL file",
		},
		{
			name:    "unknown attribute",
			files:   map[string]string{"bad.hcl": nodeHCL + "scheduler {\n  slots = 3\n}\n"},
			wantErr: "failed to decode HCL file",
		},
		{
			name: "duplicate block across files",
			files: map[string]string{
				"a.hcl": nodeHCL + "scheduler {}\n",
				"b.hcl": "scheduler {}\n",
			},
			wantErr: "scheduler block defined in both",
		},
		{
			name:    "bad duration",
			files:   map[string]string{"a.hcl": nodeHCL + "scheduler {\n  maintain_interval = \"soon\"\n}\n"},
			wantErr: "invalid maintain_interval",
		},
		{
			name:    "validation",
			files:   map[string]string{"a.hcl": nodeHCL + "scheduler {\n  group_size = 16\n}\n"},
			wantErr: "group_size",
		},
		{
			name:    "missing node",
			files:   map[string]string{"a.hcl": "scheduler {}\n"},
			wantErr: "node address is required",
		},
		{
			name:    "no files",
			files:   map[string]string{"readme.md": "nothing here"},
			wantErr: "no .hcl files found",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(t, tc.files)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_ValidationErrorIsSentinel(t *testing.T) {
	_, err := load(t, map[string]string{"a.hcl": nodeHCL + "scheduler {\n  debounce_cycles = 0\n}\n"})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
