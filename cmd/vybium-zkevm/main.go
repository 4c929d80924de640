package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/holiman/uint256"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/vybium/vybium-zkevm/pkg/vybium-zkevm"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Log level (trace, debug, info, warn, error)",
		Value: "info",
	}
	gasFlag = &cli.Uint64Flag{
		Name:  "gas",
		Usage: "Gas allocation, overrides the config file",
	}
	traceFlag = &cli.BoolFlag{
		Name:  "trace",
		Usage: "Print every trace row",
	}
	curveFlag = &cli.StringFlag{
		Name:  "curve",
		Usage: "Curve name (secp256k1, bn254)",
		Value: "secp256k1",
	}
	parityFlag = &cli.Uint64Flag{
		Name:  "parity",
		Usage: "Parity of the recovered y coordinate",
	}

	runCommand = &cli.Command{
		Action:    runProgram,
		Name:      "run",
		Usage:     "Execute a program, check its trace and print the commitment",
		ArgsUsage: "<hex code>",
		Flags:     []cli.Flag{gasFlag, traceFlag},
	}
	recoverCommand = &cli.Command{
		Action:    recoverPoint,
		Name:      "recover",
		Usage:     "Recover the y coordinate of a curve point from x",
		ArgsUsage: "<hex x>",
		Flags:     []cli.Flag{curveFlag, parityFlag},
	}
)

func main() {
	app := &cli.App{
		Name:     "vybium-zkevm",
		Usage:    "arithmetized EVM trace generator",
		Flags:    []cli.Flag{configFlag, verbosityFlag},
		Before:   setupLogger,
		Commands: []*cli.Command{runCommand, recoverCommand},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "vybium-zkevm:", err)
		os.Exit(1)
	}
}

func setupLogger(ctx *cli.Context) error {
	level, err := zerolog.ParseLevel(ctx.String(verbosityFlag.Name))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func logger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Str("module", "zkevm").Logger()
}

func loadConfig(ctx *cli.Context) (*vybiumzkevm.Config, error) {
	cfg := vybiumzkevm.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := vybiumzkevm.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if ctx.IsSet(gasFlag.Name) {
		cfg.WithGasAllocation(ctx.Uint64(gasFlag.Name))
	}
	return cfg, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

func runProgram(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("required arguments: %v", ctx.Command.ArgsUsage)
	}
	code, err := decodeHex(ctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid code: %w", err)
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	log := logger()
	zkevm, err := vybiumzkevm.NewZKEVM(cfg, log)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
	defer stop()

	log.Info().Int("code_len", len(code)).Uint64("allocation", cfg.GasAllocation).Msg("Executing program")
	trace, err := zkevm.Execute(runCtx, code)
	if err != nil {
		return err
	}
	result, err := zkevm.Verify(trace)
	if err != nil {
		return err
	}
	log.Info().Int("cycles", trace.CycleCount).Int("rows", len(trace.Rows)).Int64("elapsed_ms", result.VerificationTimeMs).
		Msg("Trace checked")

	if ctx.Bool(traceFlag.Name) {
		printTrace(trace)
	}
	printSummary(trace, result)
	return result.Err()
}

func printTrace(trace *vybiumzkevm.ExecutionTrace) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Row", "PC", "Opcode", "Flag", "Kernel", "Gas", "Len", "Top"})
	for i := range trace.Rows {
		r := &trace.Rows[i]
		flag := "padding"
		if f, ok := r.Op.Active(); ok {
			flag = f.String()
		}
		top := "-"
		if v, ok := r.Top().Uint256(); ok {
			top = v.Hex()
		}
		table.Append([]string{
			fmt.Sprint(i),
			fmt.Sprint(r.ProgramCounter.Value()),
			fmt.Sprintf("%#02x", r.Opcode.Value()),
			flag,
			fmt.Sprint(r.IsKernelMode.Value()),
			fmt.Sprint(r.Gas.Value()),
			fmt.Sprint(r.StackLen.Value()),
			top,
		})
	}
	table.Render()
}

func printSummary(trace *vybiumzkevm.ExecutionTrace, result *vybiumzkevm.VerificationResult) {
	stack := make([]string, len(trace.Stack))
	for i, v := range trace.Stack {
		stack[i] = v.Hex()
	}
	data := [][]string{
		{"Outcome", trace.Outcome.String()},
		{"Cycles", fmt.Sprint(trace.CycleCount)},
		{"Rows", fmt.Sprint(len(trace.Rows))},
		{"Gas used", fmt.Sprint(trace.GasUsed)},
		{"Stack", strings.Join(stack, " ")},
		{"Hints", fmt.Sprint(len(trace.Hints))},
		{"Transcript", fmt.Sprintf("%x", trace.TranscriptDigest)},
		{"Root", fmt.Sprintf("%x", result.Root)},
		{"Valid", fmt.Sprint(result.Valid)},
	}
	for _, h := range trace.Hints {
		data = append(data, []string{"Hint " + h.Routine, fmt.Sprintf("%s(%s) = %s exists=%v", h.Kind, h.Input.Hex(), h.Output.Hex(), h.Exists)})
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.AppendBulk(data)
	table.Render()
}

func recoverPoint(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("required arguments: %v", ctx.Command.ArgsUsage)
	}
	raw, err := decodeHex(ctx.Args().First())
	if err != nil || len(raw) > 32 {
		return fmt.Errorf("invalid x coordinate %q", ctx.Args().First())
	}
	x := new(uint256.Int).SetBytes(raw)
	y, err := vybiumzkevm.RecoverPoint(ctx.String(curveFlag.Name), x, ctx.Uint64(parityFlag.Name))
	if err != nil {
		return err
	}
	fmt.Println(y.Hex())
	return nil
}
