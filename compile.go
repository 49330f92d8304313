// Completion: 100% - Compilation driver complete
package backend

import (
	"fmt"
	"os"
	"sync"
)

// Per-function and per-module compilation drivers. A function compiles
// strictly sequentially into its own CodeBuffer; parallelism exists only
// at whole-function granularity, with no shared mutable state between
// workers.

// Function is one register-allocated function awaiting encoding. Body
// operands are already physical registers or computed frame offsets.
type Function struct {
	Name             string
	Params           []ArgParam
	Results          []ArgParam
	Body             []Instr
	Clobbers         []string // exact registers written, from the allocator
	FixedFrameSize   int64
	OutgoingArgsSize int64
	IsLeaf           bool
	NeedsRetArea     bool
}

// CompiledFunction is the finalized result handed downstream: committed
// bytes with their side tables, plus the frame layout and classification
// so unwind/stack-map generators need not recompute the ABI.
type CompiledFunction struct {
	Name           string
	Object         *Object
	Frame          *FrameLayout
	Params         []ArgSlot
	Results        []ArgSlot
	StackArgsBytes int64
	RetAreaIdx     int
}

// CompileFunction lowers one function to bytes: classify, build the
// frame, encode prologue/body/epilogue, finalize. Internal-consistency
// panics abort this function and surface as errors; no partial output is
// returned.
func CompileFunction(cc CallingConvention, fn *Function) (cf *CompiledFunction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InternalError)
			if !ok {
				panic(r)
			}
			cf = nil
			err = fmt.Errorf("compiling %s: %w", fn.Name, ie)
		}
	}()

	params, stackArgs, _, err := Classify(cc, fn.Params, false, false)
	if err != nil {
		return nil, attribute(err, fn.Name)
	}
	results, _, retAreaIdx, err := Classify(cc, fn.Results, true, fn.NeedsRetArea)
	if err != nil {
		return nil, attribute(err, fn.Name)
	}

	frame, err := BuildFrame(cc, fn.FixedFrameSize, fn.OutgoingArgsSize,
		stackArgs-cc.ShadowSpaceSize(), fn.Clobbers, fn.IsLeaf)
	if err != nil {
		return nil, attribute(err, fn.Name)
	}

	cb := NewCodeBuffer(cc.Arch())
	enc, err := NewEncoder(cc, cb)
	if err != nil {
		return nil, attribute(err, fn.Name)
	}

	prologue := GenClobberSave(frame)
	for i := range prologue {
		if err := enc.Emit(&prologue[i]); err != nil {
			return nil, attribute(err, fn.Name)
		}
	}

	for i := range fn.Body {
		inst := &fn.Body[i]
		if inst.Op == Ret {
			// The epilogue is expanded here so each of its instructions
			// carries its own size budget.
			restore := GenClobberRestore(frame)
			for j := range restore {
				if err := enc.Emit(&restore[j]); err != nil {
					return nil, attribute(err, fn.Name)
				}
			}
		}
		if err := enc.Emit(inst); err != nil {
			return nil, attributeInstr(err, fn.Name, i)
		}
	}

	if VerboseMode {
		fmt.Fprintf(os.Stderr, "\ncompiled %s: %d bytes\n", fn.Name, cb.CurOffset())
	}

	return &CompiledFunction{
		Name:           fn.Name,
		Object:         cb.Finalize(),
		Frame:          frame,
		Params:         params,
		Results:        results,
		StackArgsBytes: stackArgs,
		RetAreaIdx:     retAreaIdx,
	}, nil
}

// CompileModule compiles functions concurrently on up to workers
// goroutines. Each function owns its buffer and tables; results come back
// in input order. The first failure is reported after all workers drain.
func CompileModule(cc CallingConvention, fns []*Function, workers int) ([]*CompiledFunction, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]*CompiledFunction, len(fns))
	errs := make([]error, len(fns))

	var wg sync.WaitGroup
	work := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				results[i], errs[i] = CompileFunction(cc, fns[i])
			}
		}()
	}
	for i := range fns {
		work <- i
	}
	close(work)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func attribute(err error, fnName string) error {
	if ue, ok := err.(*UnsupportedError); ok && ue.Where == "" {
		ue.Where = fnName
	}
	return err
}

func attributeInstr(err error, fnName string, idx int) error {
	if ue, ok := err.(*UnsupportedError); ok && ue.Where == "" {
		ue.Where = fmt.Sprintf("%s, instruction %d", fnName, idx)
	}
	return err
}
