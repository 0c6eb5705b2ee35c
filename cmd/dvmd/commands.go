package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/dfinance/dvm-sub000/address"
	"github.com/dfinance/dvm-sub000/core"
	"github.com/dfinance/dvm-sub000/internal/workspace"
	"github.com/dfinance/dvm-sub000/pkg/config"
)

// depLoadLimiter rate-limits the dependency loader's remote fetches
// (core/depload.go) the same way the teacher's virtual_machine.go HTTP
// handlers rate-limit inbound requests; a standalone CLI process talks
// to at most one StateView, so a generous fixed budget stands in for the
// per-request limiter a server process would configure.
func depLoadLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(50), 10)
}

func newVM(view core.StateView) (*core.VM, error) {
	natives := core.NewNativeRegistry()
	core.RegisterOracle(natives, core.ModuleID{Addr: address.Core, Name: "Oracle"})
	core.RegisterWallet(natives, core.ModuleID{Addr: address.Core, Name: "Wallet"})
	return core.NewVM(view, natives, config.AppConfig.VM.ModuleCacheCapacity, nil)
}

// compileUnit runs core.CompileUnit inside a scoped workspace rooted at
// config.AppConfig.VM.WorkspaceRoot -- the scratch directory §4.5 step 4
// requires be removed on every exit path -- rather than letting
// CompileUnit fall back to an ad hoc directory under the OS temp dir.
func compileUnit(ctx context.Context, view core.StateView, label, hrp, src string) (core.CompileResult, error) {
	var result core.CompileResult
	err := workspace.Run(config.AppConfig.VM.WorkspaceRoot, label, func(w *workspace.Workspace) error {
		r, err := core.CompileUnit(ctx, view, w, hrp, src, depLoadLimiter())
		result = r
		return err
	})
	return result, err
}

func readRequest(v any) error {
	return json.NewDecoder(os.Stdin).Decode(v)
}

func writeResponse(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultGas(maxUnits, unitPrice uint64) core.Gas {
	if maxUnits == 0 {
		maxUnits = config.AppConfig.VM.MaxGasUnits
	}
	if unitPrice == 0 {
		unitPrice = 1
	}
	return core.Gas{MaxUnits: maxUnits, UnitPrice: unitPrice}
}

type compileRequest struct {
	Source string `json:"source"`
	HRP    string `json:"hrp"`
}

type compileResponse struct {
	Kind        string `json:"kind"`
	ModuleID    string `json:"module_id,omitempty"`
	SignerArity int    `json:"signer_arity,omitempty"`
	Blob        []byte `json:"blob"`
}

func compileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "compile a module or script from stdin JSON {source, hrp} to a bytecode blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req compileRequest
			if err := readRequest(&req); err != nil {
				return fmt.Errorf("cmd/dvmd: decode request: %w", err)
			}
			view, err := loadState(statePath)
			if err != nil {
				return err
			}
			result, err := compileUnit(context.Background(), view, "compile", req.HRP, req.Source)
			if err != nil {
				return err
			}
			switch {
			case result.Module != nil:
				blob, err := result.Module.MarshalBinary()
				if err != nil {
					return err
				}
				return writeResponse(compileResponse{Kind: "module", ModuleID: result.Module.SelfID().String(), Blob: blob})
			case result.Script != nil:
				blob, err := result.Script.MarshalBinary()
				if err != nil {
					return err
				}
				return writeResponse(compileResponse{Kind: "script", SignerArity: result.Script.SignerArity(), Blob: blob})
			default:
				return fmt.Errorf("cmd/dvmd: compile produced neither a module nor a script")
			}
		},
	}
}

type resultResponse struct {
	Status    string `json:"status"`
	GasUsed   uint64 `json:"gas_used"`
	Aborted   bool   `json:"aborted"`
	AbortCode uint64 `json:"abort_code,omitempty"`
	Writes    int    `json:"writes"`
	Events    int    `json:"events"`
	Err       string `json:"error,omitempty"`
}

func toResultResponse(r core.ExecutionResult) resultResponse {
	resp := resultResponse{
		Status:    r.Status.String(),
		GasUsed:   r.GasUsed,
		Aborted:   r.Aborted,
		AbortCode: r.AbortCode,
		Writes:    len(r.WriteSet),
		Events:    len(r.Events),
	}
	if r.Err != nil {
		resp.Err = r.Err.Error()
	}
	return resp
}

type publishRequest struct {
	Sender    string `json:"sender"`
	Source    string `json:"source"`
	HRP       string `json:"hrp"`
	MaxGas    uint64 `json:"max_gas"`
	UnitPrice uint64 `json:"unit_price"`
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish-module",
		Short: "compile and publish a module from stdin JSON {sender, source, hrp, max_gas, unit_price}",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req publishRequest
			if err := readRequest(&req); err != nil {
				return fmt.Errorf("cmd/dvmd: decode request: %w", err)
			}
			sender, err := address.ParseHex(req.Sender)
			if err != nil {
				return err
			}
			view, err := loadState(statePath)
			if err != nil {
				return err
			}
			compiled, err := compileUnit(context.Background(), view, "publish-module", req.HRP, req.Source)
			if err != nil {
				return err
			}
			if compiled.Module == nil {
				return fmt.Errorf("cmd/dvmd: publish-module: source did not produce a module")
			}
			vm, err := newVM(view)
			if err != nil {
				return err
			}
			result, err := vm.Publish(sender, compiled.Module, defaultGas(req.MaxGas, req.UnitPrice))
			if err != nil {
				return err
			}
			if result.Status == core.StatusKeep {
				view.ApplyWriteSet(result.WriteSet)
				if err := saveState(statePath, view); err != nil {
					return err
				}
			}
			return writeResponse(toResultResponse(result))
		},
	}
}

type executeRequest struct {
	Senders     []string  `json:"senders"`
	Source      string    `json:"source"`
	HRP         string    `json:"hrp"`
	Args        []argSpec `json:"args"`
	MaxGas      uint64    `json:"max_gas"`
	UnitPrice   uint64    `json:"unit_price"`
	BlockHeight uint64    `json:"block_height"`
	Timestamp   uint64    `json:"timestamp"`
}

func executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute-script",
		Short: "compile and execute a script from stdin JSON {senders, source, hrp, args, max_gas, unit_price, block_height, timestamp}",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req executeRequest
			if err := readRequest(&req); err != nil {
				return fmt.Errorf("cmd/dvmd: decode request: %w", err)
			}
			senders := make([]address.Address, 0, len(req.Senders))
			for _, s := range req.Senders {
				a, err := address.ParseHex(s)
				if err != nil {
					return err
				}
				senders = append(senders, a)
			}
			vals, err := toValues(req.Args)
			if err != nil {
				return err
			}
			view, err := loadState(statePath)
			if err != nil {
				return err
			}
			compiled, err := compileUnit(context.Background(), view, "execute-script", req.HRP, req.Source)
			if err != nil {
				return err
			}
			if compiled.Script == nil {
				return fmt.Errorf("cmd/dvmd: execute-script: source did not produce a script")
			}
			vm, err := newVM(view)
			if err != nil {
				return err
			}
			result, err := vm.Execute(senders, compiled.Script, vals, defaultGas(req.MaxGas, req.UnitPrice), req.BlockHeight, req.Timestamp)
			if err != nil {
				return err
			}
			if result.Status == core.StatusKeep && !result.Aborted {
				view.ApplyWriteSet(result.WriteSet)
				if err := saveState(statePath, view); err != nil {
					return err
				}
			}
			return writeResponse(toResultResponse(result))
		},
	}
}

type disasmRequest struct {
	Addr string `json:"addr"`
	Name string `json:"name"`
}

type disasmResponse struct {
	Source string `json:"source"`
}

func disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm",
		Short: "disassemble a published module's bytecode from stdin JSON {addr, name}",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req disasmRequest
			if err := readRequest(&req); err != nil {
				return fmt.Errorf("cmd/dvmd: decode request: %w", err)
			}
			addr, err := address.ParseHex(req.Addr)
			if err != nil {
				return err
			}
			view, err := loadState(statePath)
			if err != nil {
				return err
			}
			blob, ok, err := view.GetCode(core.ModuleID{Addr: addr, Name: req.Name})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cmd/dvmd: disasm: module %s::%s not found in %s", addr.Hex(), req.Name, statePath)
			}
			mod := &core.CompiledModule{}
			if err := mod.UnmarshalBinary(blob); err != nil {
				return err
			}
			src, err := core.Disassemble(mod, core.ModeInterface)
			if err != nil {
				return err
			}
			return writeResponse(disasmResponse{Source: src})
		},
	}
}
