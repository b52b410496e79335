package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/groupsched/internal/config"
	"github.com/vk/groupsched/internal/ctxlog"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

var _ config.Loader = (*Loader)(nil)

// Option configures a Loader.
type Option func(*Loader)

// WithEnv replaces the process environment exposed as env.* to expressions.
func WithEnv(env map[string]string) Option {
	return func(l *Loader) { l.env = env }
}

// NewLoader creates a new HCL configuration loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if l.env == nil {
		l.env = processEnv()
	}
	return l
}

func processEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// Load parses every HCL file under paths, merges their blocks into one model,
// applies defaults and validates the result.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	evalCtx, err := newEvalContext(l.env)
	if err != nil {
		return nil, err
	}

	m := &merger{model: &config.Model{Scheduler: config.DefaultScheduler()}}
	parser := hclparse.NewParser()

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := m.merge(file, &root); err != nil {
			return nil, err
		}
	}

	if err := m.model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("HCL loading complete.",
		"node", m.model.Node.Address,
		"group_amount", m.model.Scheduler.GroupAmount,
		"group_size", m.model.Scheduler.GroupSize,
		"simulation", m.model.Simulation != nil,
		"telemetry", m.model.Telemetry != nil,
	)
	return m.model, nil
}

// merger folds decoded files into a model. A block may only be defined in
// one file.
type merger struct {
	model  *config.Model
	origin map[string]string
}

func (m *merger) claim(block, file string) error {
	if m.origin == nil {
		m.origin = make(map[string]string)
	}
	if prev, ok := m.origin[block]; ok {
		return fmt.Errorf("%s block defined in both %s and %s", block, prev, file)
	}
	m.origin[block] = file
	return nil
}

func (m *merger) merge(file string, root *fileRoot) error {
	if root.Scheduler != nil {
		if err := m.claim("scheduler", file); err != nil {
			return err
		}
		if err := applyScheduler(&m.model.Scheduler, root.Scheduler); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}
	for _, n := range root.Nodes {
		if err := m.claim("node", file); err != nil {
			return err
		}
		m.model.Node = config.Node{Name: n.Name, Address: n.Address}
	}
	if root.Simulation != nil {
		if err := m.claim("simulation", file); err != nil {
			return err
		}
		m.model.Simulation = translateSimulation(root.Simulation)
	}
	if root.Telemetry != nil {
		if err := m.claim("telemetry", file); err != nil {
			return err
		}
		m.model.Telemetry = &config.Telemetry{
			SocketIOURL: root.Telemetry.SocketIOURL,
			Namespace:   root.Telemetry.Namespace,
		}
		if m.model.Telemetry.Namespace == "" {
			m.model.Telemetry.Namespace = "/"
		}
	}
	return nil
}

func applyScheduler(dst *config.Scheduler, b *schedulerBlock) error {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setInt(&dst.GroupAmount, b.GroupAmount)
	setInt(&dst.GroupSize, b.GroupSize)
	setInt(&dst.AddThreshold, b.AddThreshold)
	setInt(&dst.DeleteThreshold, b.DeleteThreshold)
	setInt(&dst.DebounceCycles, b.DebounceCycles)
	setInt(&dst.NoAckBackoff, b.NoAckBackoff)
	setInt(&dst.Multichannel, b.Multichannel)
	if b.Hash != nil {
		dst.Hash = *b.Hash
	}
	if b.MaintainInterval != nil {
		d, err := time.ParseDuration(*b.MaintainInterval)
		if err != nil {
			return fmt.Errorf("invalid maintain_interval %q: %w", *b.MaintainInterval, err)
		}
		dst.MaintainInterval = d
	}
	return nil
}

func translateSimulation(b *simulationBlock) *config.Simulation {
	sim := &config.Simulation{
		Parent:   b.Parent,
		Children: append([]string(nil), b.Children...),
	}
	for _, p := range b.Phases {
		sim.Phases = append(sim.Phases, &config.Phase{
			Name:          p.Name,
			Cycles:        p.Cycles,
			UplinkPackets: p.UplinkPackets,
			ChildRequest:  p.ChildRequest,
			RxPerInterval: p.RxPerInterval,
			NoAckEvery:    p.NoAckEvery,
			MaintainEvery: p.MaintainEvery,
			DropAcks:      p.DropAcks,
		})
	}
	return sim
}

// findAllHCLFiles walks all given paths and returns a sorted list of all .hcl
// files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				add(path)
			}
			continue
		}
		err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
