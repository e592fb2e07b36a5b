package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"predictd/internal/common/fsutil"
	"predictd/pkg/client"
	"predictd/pkg/types"
)

type runFlags struct {
	addr       string
	modelPath  string
	paramsPath string
	inputsPath string
	lite       bool
	timeout    time.Duration
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Send one model to a predictd server and print the outputs as JSON",
		Example: "  predictd run --model net.onnx --inputs inputs.yaml\n  predictd run --addr 10.0.0.5:18812 --model m.json --params p.json --inputs in.json --lite",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), f, cmd.OutOrStdout())
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", envOr("PREDICTD_ADDR", client.DefaultAddr), "Server address")
	fl.StringVar(&f.modelPath, "model", "", "Model file (required)")
	fl.StringVar(&f.paramsPath, "params", "", "Params file (optional)")
	fl.StringVar(&f.inputsPath, "inputs", "", "YAML/JSON/TOML file mapping input names to tensors")
	fl.BoolVar(&f.lite, "lite", false, "Call RunLiteModel instead of RunModel")
	fl.DurationVar(&f.timeout, "timeout", time.Minute, "Call timeout")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func runOnce(ctx context.Context, f runFlags, out io.Writer) error {
	model, err := fsutil.ReadFile(f.modelPath)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}
	var params []byte
	if f.paramsPath != "" {
		if params, err = fsutil.ReadFile(f.paramsPath); err != nil {
			return fmt.Errorf("params: %w", err)
		}
	}
	var inputs map[string]types.InputTensor
	if f.inputsPath != "" {
		if inputs, err = loadInputs(f.inputsPath); err != nil {
			return fmt.Errorf("inputs: %w", err)
		}
	}

	var opts []client.Option
	if f.lite {
		opts = append(opts, client.WithLiteMethod())
	}
	c, err := client.New(f.addr, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	outputs, err := c.RunModel(ctx, model, params, inputs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(outputs)
}

// loadInputs decodes a name -> InputTensor map. YAML and TOML documents are
// normalized to JSON first so every format uses the wire field names.
func loadInputs(path string) (map[string]types.InputTensor, error) {
	b, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
	case ".yaml", ".yml", ".toml":
		if ext == ".toml" {
			err = toml.Unmarshal(b, &generic)
		} else {
			err = yaml.Unmarshal(b, &generic)
		}
		if err != nil {
			return nil, err
		}
		if b, err = json.Marshal(generic); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported inputs extension: %s", ext)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var inputs map[string]types.InputTensor
	if err := dec.Decode(&inputs); err != nil {
		return nil, err
	}
	for name, in := range inputs {
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return inputs, nil
}
