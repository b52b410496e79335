package hclconfig

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/groupsched/internal/config"
)

// defaultsView exposes the scheduler defaults to expressions.
type defaultsView struct {
	GroupAmount      int    `cty:"group_amount"`
	GroupSize        int    `cty:"group_size"`
	AddThreshold     int    `cty:"add_threshold"`
	DeleteThreshold  int    `cty:"delete_threshold"`
	DebounceCycles   int    `cty:"debounce_cycles"`
	NoAckBackoff     int    `cty:"noack_backoff"`
	Multichannel     int    `cty:"multichannel"`
	MaintainInterval string `cty:"maintain_interval"`
	Hash             string `cty:"hash"`
}

func toCtyValue(v any) (cty.Value, error) {
	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, err
	}
	return gocty.ToCtyValue(v, ty)
}

// newEvalContext builds the evaluation context shared by every file.
func newEvalContext(env map[string]string) (*hcl.EvalContext, error) {
	d := config.DefaultScheduler()
	defaults, err := toCtyValue(defaultsView{
		GroupAmount:      d.GroupAmount,
		GroupSize:        d.GroupSize,
		AddThreshold:     d.AddThreshold,
		DeleteThreshold:  d.DeleteThreshold,
		DebounceCycles:   d.DebounceCycles,
		NoAckBackoff:     d.NoAckBackoff,
		Multichannel:     d.Multichannel,
		MaintainInterval: d.MaintainInterval.String(),
		Hash:             d.Hash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to convert scheduler defaults: %w", err)
	}

	envVal := cty.MapValEmpty(cty.String)
	if len(env) > 0 {
		envVal, err = gocty.ToCtyValue(env, cty.Map(cty.String))
		if err != nil {
			return nil, fmt.Errorf("failed to convert environment: %w", err)
		}
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env":      envVal,
			"defaults": defaults,
		},
		Functions: map[string]function.Function{
			"min":    stdlib.MinFunc,
			"max":    stdlib.MaxFunc,
			"upper":  stdlib.UpperFunc,
			"lower":  stdlib.LowerFunc,
			"format": stdlib.FormatFunc,
			"concat": stdlib.ConcatFunc,
		},
	}, nil
}
