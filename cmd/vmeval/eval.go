package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/scriptvm/internal/evaluator"
	"github.com/GriffinCanCode/scriptvm/internal/globals"
	"github.com/GriffinCanCode/scriptvm/internal/sandbox"
)

type evalOptions struct {
	globalsFile string
	envFile     string
	deps        []string
	backend     string
	timeout     time.Duration
	memoryMB    int64
	modifyEnv   string
	render      bool
	code        string
	server      string
	retries     int
}

// output is what eval prints on success
type output struct {
	ID         string          `json:"id"`
	Value      sandbox.Value   `json:"value"`
	HTML       string          `json:"html,omitempty"`
	Text       string          `json:"text,omitempty"`
	Console    []string        `json:"console"`
	Warnings   []string        `json:"warnings"`
	DurationMS float64         `json:"durationMs"`
	Backend    sandbox.Backend `json:"backend"`
}

// failure is what eval prints when the script fails
type failure struct {
	Error   string `json:"error"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

func newEvalCmd(root *rootOptions) *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval [file|-]",
		Short: "Evaluate a script and print the result as JSON",
		Long: `Evaluate a script read from a file, from stdin ("-" or no argument), or
from --code, and print the result as JSON on stdout. Logs go to stderr.`,
		Example: `  vmeval eval script.js --globals input.yaml
  echo '1 + 1' | vmeval eval -
  vmeval eval --code 'data.name' --globals data.json --deps polyfill
  vmeval eval script.js --server http://localhost:8000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cmd, root, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.code, "code", "", "Script source (instead of a file)")
	f.StringVarP(&opts.globalsFile, "globals", "g", "", "JSON, YAML or TOML file whose top-level keys become globals")
	f.StringVar(&opts.envFile, "env", "", "Extra environment script run before the code")
	f.StringSliceVarP(&opts.deps, "deps", "d", nil, "Dependency bundles to load, in order")
	f.StringVar(&opts.backend, "backend", string(sandbox.BackendNative), "Sandbox backend (native|interpreted)")
	f.DurationVar(&opts.timeout, "timeout", sandbox.DefaultTimeout, "Evaluation timeout")
	f.Int64Var(&opts.memoryMB, "memory", sandbox.DefaultMemoryLimitMB, "Heap ceiling in MB")
	f.StringVar(&opts.modifyEnv, "modify-env", "", "Script run after globals are bound; failures are warnings")
	f.BoolVar(&opts.render, "render", false, "Treat the result as HTML and sanitize it")
	f.StringVar(&opts.server, "server", "", "Evaluate on a running server at this base URL instead of locally")
	f.IntVar(&opts.retries, "retries", 2, "Retries for --server on connection errors and 502/503/504")

	return cmd
}

func runEval(cmd *cobra.Command, root *rootOptions, opts *evalOptions, args []string) error {
	code, err := readCode(cmd.InOrStdin(), opts.code, args)
	if err != nil {
		return err
	}

	req := &evaluator.Request{
		Code:      code,
		Deps:      opts.deps,
		Timeout:   opts.timeout,
		ModifyEnv: opts.modifyEnv,
	}
	if opts.globalsFile != "" {
		if req.Globals, err = globals.Load(opts.globalsFile); err != nil {
			return err
		}
	}
	if opts.envFile != "" {
		env, err := os.ReadFile(opts.envFile)
		if err != nil {
			return fmt.Errorf("failed to read env: %w", err)
		}
		req.AdditionalDeps = []string{string(env)}
	}

	if opts.server != "" {
		return runRemote(cmd, opts, req)
	}

	logger := root.logger()
	defer logger.Sync()

	reg, err := root.registry(logger)
	if err != nil {
		return err
	}

	svc := evaluator.New(evaluator.Config{
		Backend:       sandbox.Backend(opts.backend),
		MemoryLimitMB: opts.memoryMB,
		Timeout:       opts.timeout,
		PoolSize:      1,
		MaxEngines:    1,
	}, reg, nil, logger)
	defer svc.Close()

	var res *evaluator.Result
	if opts.render {
		res, err = svc.Render(cmd.Context(), req)
	} else {
		res, err = svc.Evaluate(cmd.Context(), req)
	}
	if err != nil {
		fail := failure{Error: err.Error()}
		var rt *sandbox.RuntimeError
		if errors.As(err, &rt) {
			fail.Name, fail.Message = rt.Name, rt.Message
		}
		return writeFailure(cmd.OutOrStdout(), fail, err)
	}

	return writeJSON(cmd.OutOrStdout(), output{
		ID:         res.ID,
		Value:      res.Value,
		HTML:       res.HTML,
		Text:       res.Text,
		Console:    res.Console,
		Warnings:   res.Warnings,
		DurationMS: float64(res.Duration.Microseconds()) / 1000,
		Backend:    res.Backend,
	})
}

func runRemote(cmd *cobra.Command, opts *evalOptions, req *evaluator.Request) error {
	// Leave the server room to report its own timeout.
	client := newRemoteClient(opts.server, opts.retries, opts.timeout+30*time.Second)

	out, err := client.evaluate(cmd.Context(), req, opts.render)
	if err != nil {
		fail := failure{Error: err.Error()}
		var rerr *remoteError
		if errors.As(err, &rerr) {
			fail = failure{Error: rerr.Body.Error, Name: rerr.Body.Name, Message: rerr.Body.Message}
		}
		return writeFailure(cmd.OutOrStdout(), fail, err)
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeFailure(w io.Writer, fail failure, err error) error {
	if werr := writeJSON(w, fail); werr != nil {
		return werr
	}
	return err
}

func readCode(stdin io.Reader, inline string, args []string) (string, error) {
	if inline != "" {
		if len(args) > 0 {
			return "", errors.New("pass either --code or a file, not both")
		}
		return inline, nil
	}

	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
