package rkllm

import (
	"fmt"
	"strings"
	"unsafe"
)

// arena pins Go allocations whose addresses are embedded in ABI structs, so
// the collector cannot move or reclaim them while a native call is running.
// One arena lives exactly as long as the call (or the async stream) that
// uses it.
type arena struct {
	bytes  [][]byte
	i32s   [][]int32
	f32s   [][]float32
	ptrs   [][]uintptr
	pins   []unsafe.Pointer
}

// cstring copies s into a NUL-terminated buffer and returns its address.
// An empty string marshals to a null pointer.
func (a *arena) cstring(s string) uintptr {
	if s == "" {
		return 0
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	a.bytes = append(a.bytes, b)
	return uintptr(unsafe.Pointer(&b[0]))
}

// int32s pins v and returns its base address (0 for empty).
func (a *arena) int32s(v []int32) uintptr {
	if len(v) == 0 {
		return 0
	}
	a.i32s = append(a.i32s, v)
	return uintptr(unsafe.Pointer(&v[0]))
}

// float32s pins v and returns its base address (0 for empty).
func (a *arena) float32s(v []float32) uintptr {
	if len(v) == 0 {
		return 0
	}
	a.f32s = append(a.f32s, v)
	return uintptr(unsafe.Pointer(&v[0]))
}

// uintptrs pins a pointer array and returns its base address.
func (a *arena) uintptrs(v []uintptr) uintptr {
	if len(v) == 0 {
		return 0
	}
	a.ptrs = append(a.ptrs, v)
	return uintptr(unsafe.Pointer(&v[0]))
}

// hold pins an arbitrary struct allocation referenced by pointer fields.
func (a *arena) hold(p unsafe.Pointer) uintptr {
	a.pins = append(a.pins, p)
	return uintptr(p)
}

// goCString reads a NUL-terminated native string. A null pointer reads as "".
func goCString(p uintptr) string {
	if p == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	if n == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}

// goFloat32s copies n float32 values out of native memory.
func goFloat32s(p uintptr, n int) []float32 {
	if p == 0 || n <= 0 {
		return nil
	}
	src := unsafe.Slice((*float32)(unsafe.Pointer(p)), n)
	out := make([]float32, n)
	copy(out, src)
	return out
}

// goInt32s copies n int32 values out of native memory.
func goInt32s(p uintptr, n int) []int32 {
	if p == 0 || n <= 0 {
		return nil
	}
	src := unsafe.Slice((*int32)(unsafe.Pointer(p)), n)
	out := make([]int32, n)
	copy(out, src)
	return out
}

func nativeBool(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// hostBool maps any non-zero native value to true.
func hostBool[T int8 | int16 | int32 | uint8](v T) bool { return v != 0 }

// toNativeParam converts a RuntimeConfig into the ABI create-params struct.
// The reserved region of the extend params is zero-filled. Only presence of
// the model path is validated; numeric values pass through verbatim.
func toNativeParam(cfg *RuntimeConfig, a *arena) (*abiParam, error) {
	if cfg == nil {
		return nil, ErrContractViolation("nil runtime config")
	}
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, ErrContractViolation("model path is empty")
	}
	p := &abiParam{
		ModelPath:        a.cstring(cfg.ModelPath),
		MaxContextLen:    cfg.MaxContextLen,
		MaxNewTokens:     cfg.MaxNewTokens,
		TopK:             cfg.TopK,
		NKeep:            cfg.NKeep,
		TopP:             cfg.TopP,
		Temperature:      cfg.Temperature,
		RepeatPenalty:    cfg.RepeatPenalty,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		Mirostat:         cfg.Mirostat,
		MirostatTau:      cfg.MirostatTau,
		MirostatEta:      cfg.MirostatEta,
		SkipSpecialToken: nativeBool(cfg.SkipSpecialToken),
		ImgStart:         a.cstring(cfg.ImgStart),
		ImgEnd:           a.cstring(cfg.ImgEnd),
		ImgContent:       a.cstring(cfg.ImgContent),
	}
	p.Extend = abiExtendParam{
		BaseDomainID:    cfg.Extend.BaseDomainID,
		EmbedFlash:      int16(nativeBool(cfg.Extend.EmbedFlash)),
		EnabledCPUSNum:  cfg.Extend.EnabledCPUSNum,
		EnabledCPUSMask: cfg.Extend.EnabledCPUSMask,
		NBatch:          cfg.Extend.BatchSize,
		UseCrossAttn:    int8(nativeBool(cfg.Extend.UseCrossAttn)),
	}
	return p, nil
}

// fromNativeParam converts the ABI create-params struct back into a
// RuntimeConfig. The reserved region and the internal async flag are not
// part of the data model and are not read.
func fromNativeParam(p *abiParam) RuntimeConfig {
	return RuntimeConfig{
		ModelPath:        goCString(p.ModelPath),
		MaxContextLen:    p.MaxContextLen,
		MaxNewTokens:     p.MaxNewTokens,
		TopK:             p.TopK,
		NKeep:            p.NKeep,
		TopP:             p.TopP,
		Temperature:      p.Temperature,
		RepeatPenalty:    p.RepeatPenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Mirostat:         p.Mirostat,
		MirostatTau:      p.MirostatTau,
		MirostatEta:      p.MirostatEta,
		SkipSpecialToken: hostBool(p.SkipSpecialToken),
		ImgStart:         goCString(p.ImgStart),
		ImgEnd:           goCString(p.ImgEnd),
		ImgContent:       goCString(p.ImgContent),
		Extend: ExtendConfig{
			BaseDomainID:    p.Extend.BaseDomainID,
			EmbedFlash:      hostBool(p.Extend.EmbedFlash),
			EnabledCPUSNum:  p.Extend.EnabledCPUSNum,
			EnabledCPUSMask: p.Extend.EnabledCPUSMask,
			BatchSize:       p.Extend.NBatch,
			UseCrossAttn:    hostBool(p.Extend.UseCrossAttn),
		},
	}
}

// toNativeInput converts an Input union. The discriminant must match the
// populated payload; numeric-buffer variants must declare a count equal to
// the buffer length. Violations reject before any native call.
func toNativeInput(in *Input, a *arena) (*abiInput, error) {
	if in == nil {
		return nil, ErrContractViolation("nil input")
	}
	out := &abiInput{
		Role:           a.cstring(in.Role),
		EnableThinking: nativeBool(in.EnableThinking),
	}
	switch in.Type {
	case InputPrompt:
		if in.Prompt == "" {
			return nil, ErrContractViolation("prompt input has empty prompt")
		}
		out.InputType = abiInputPrompt
		out.setPromptUnion(a.cstring(in.Prompt))
	case InputTokens:
		if len(in.Tokens) == 0 {
			return nil, ErrContractViolation("token input has no tokens")
		}
		if in.TokenCount != len(in.Tokens) {
			return nil, ErrContractViolation(fmt.Sprintf(
				"token count %d does not match buffer length %d", in.TokenCount, len(in.Tokens)))
		}
		out.InputType = abiInputToken
		out.setTokenUnion(abiTokenInput{
			InputIDs: a.int32s(in.Tokens),
			NTokens:  uint64(in.TokenCount),
		})
	case InputEmbedding:
		if len(in.Embedding) == 0 {
			return nil, ErrContractViolation("embedding input has no values")
		}
		if in.EmbedCount != len(in.Embedding) {
			return nil, ErrContractViolation(fmt.Sprintf(
				"embedding count %d does not match buffer length %d", in.EmbedCount, len(in.Embedding)))
		}
		out.InputType = abiInputEmbed
		out.setEmbedUnion(abiEmbedInput{
			Embed:   a.float32s(in.Embedding),
			NTokens: uint64(in.EmbedCount),
		})
	case InputMultimodal:
		mm := in.Multimodal
		if mm == nil {
			return nil, ErrContractViolation("multimodal input has no payload")
		}
		if mm.ImageEmbedCount != len(mm.ImageEmbed) {
			return nil, ErrContractViolation(fmt.Sprintf(
				"image embed count %d does not match buffer length %d", mm.ImageEmbedCount, len(mm.ImageEmbed)))
		}
		out.InputType = abiInputMultimodal
		out.setMultimodalUnion(abiMultimodalInput{
			Prompt:       a.cstring(mm.Prompt),
			ImageEmbed:   a.float32s(mm.ImageEmbed),
			NImageTokens: uint64(mm.ImageEmbedCount),
			NImage:       uint64(mm.ImageCount),
			ImageWidth:   uint64(mm.ImageWidth),
			ImageHeight:  uint64(mm.ImageHeight),
		})
	default:
		return nil, ErrContractViolation(fmt.Sprintf("unknown input type %d", in.Type))
	}
	// A payload for a different variant than the discriminant is a bug in
	// the caller; reject rather than partially marshal.
	if err := checkUnionExclusive(in); err != nil {
		return nil, err
	}
	return out, nil
}

// checkUnionExclusive rejects inputs carrying payloads for variants other
// than the discriminant.
func checkUnionExclusive(in *Input) error {
	if in.Type != InputPrompt && in.Prompt != "" {
		return ErrContractViolation("prompt payload set on " + in.Type.String() + " input")
	}
	if in.Type != InputTokens && len(in.Tokens) != 0 {
		return ErrContractViolation("token payload set on " + in.Type.String() + " input")
	}
	if in.Type != InputEmbedding && len(in.Embedding) != 0 {
		return ErrContractViolation("embedding payload set on " + in.Type.String() + " input")
	}
	if in.Type != InputMultimodal && in.Multimodal != nil {
		return ErrContractViolation("multimodal payload set on " + in.Type.String() + " input")
	}
	return nil
}

// fromNativeInput converts an ABI input back to the canonical union. Buffer
// contents are copied out of native memory.
func fromNativeInput(in *abiInput) (Input, error) {
	out := Input{
		Role:           goCString(in.Role),
		EnableThinking: hostBool(in.EnableThinking),
	}
	switch in.InputType {
	case abiInputPrompt:
		out.Type = InputPrompt
		out.Prompt = goCString(in.promptUnion())
	case abiInputToken:
		t := in.tokenUnion()
		out.Type = InputTokens
		out.Tokens = goInt32s(t.InputIDs, int(t.NTokens))
		out.TokenCount = int(t.NTokens)
	case abiInputEmbed:
		e := in.embedUnion()
		out.Type = InputEmbedding
		out.Embedding = goFloat32s(e.Embed, int(e.NTokens))
		out.EmbedCount = int(e.NTokens)
	case abiInputMultimodal:
		m := in.multimodalUnion()
		out.Type = InputMultimodal
		out.Multimodal = &MultimodalInput{
			Prompt:          goCString(m.Prompt),
			ImageEmbed:      goFloat32s(m.ImageEmbed, int(m.NImageTokens)),
			ImageEmbedCount: int(m.NImageTokens),
			ImageCount:      int(m.NImage),
			ImageWidth:      int(m.ImageWidth),
			ImageHeight:     int(m.ImageHeight),
		}
	default:
		return Input{}, ErrContractViolation(fmt.Sprintf("unknown native input type %d", in.InputType))
	}
	return out, nil
}

// toNativeInferParam converts InferParams. Absent optionals marshal to null
// pointers, never an error.
func toNativeInferParam(p *InferParams, a *arena) (*abiInferParam, error) {
	if p == nil {
		return nil, ErrContractViolation("nil infer params")
	}
	out := &abiInferParam{KeepHistory: int32(nativeBool(p.KeepHistory))}
	switch p.Mode {
	case InferGenerate:
		out.Mode = abiInferGenerate
	case InferGetLastHiddenLayer:
		out.Mode = abiInferHiddenLayer
	case InferGetLogits:
		out.Mode = abiInferLogits
	default:
		return nil, ErrContractViolation(fmt.Sprintf("unknown infer mode %d", p.Mode))
	}
	if len(p.Adapters) > 0 {
		names := make([]uintptr, len(p.Adapters))
		for i, n := range p.Adapters {
			if strings.TrimSpace(n) == "" {
				return nil, ErrContractViolation("adapter selection has empty name")
			}
			names[i] = a.cstring(n)
		}
		lp := &abiLoraParam{Names: a.uintptrs(names), NNames: uint64(len(names))}
		out.LoraParams = a.hold(unsafe.Pointer(lp))
	}
	if p.PromptCache != nil {
		if strings.TrimSpace(p.PromptCache.Path) == "" {
			return nil, ErrContractViolation("prompt cache path is empty")
		}
		pc := &abiPromptCacheParam{
			Save: int32(nativeBool(p.PromptCache.Save)),
			Path: a.cstring(p.PromptCache.Path),
		}
		out.PromptCache = a.hold(unsafe.Pointer(pc))
	}
	return out, nil
}

// fromNativeInferParam converts an ABI infer-param struct back.
func fromNativeInferParam(p *abiInferParam) (InferParams, error) {
	out := InferParams{KeepHistory: hostBool(p.KeepHistory)}
	switch p.Mode {
	case abiInferGenerate:
		out.Mode = InferGenerate
	case abiInferHiddenLayer:
		out.Mode = InferGetLastHiddenLayer
	case abiInferLogits:
		out.Mode = InferGetLogits
	default:
		return InferParams{}, ErrContractViolation(fmt.Sprintf("unknown native infer mode %d", p.Mode))
	}
	if p.LoraParams != 0 {
		lp := (*abiLoraParam)(unsafe.Pointer(p.LoraParams))
		if lp.NNames > 0 && lp.Names != 0 {
			ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(lp.Names)), lp.NNames)
			out.Adapters = make([]string, len(ptrs))
			for i, sp := range ptrs {
				out.Adapters[i] = goCString(sp)
			}
		}
	}
	if p.PromptCache != 0 {
		pc := (*abiPromptCacheParam)(unsafe.Pointer(p.PromptCache))
		out.PromptCache = &PromptCacheParams{
			Path: goCString(pc.Path),
			Save: hostBool(pc.Save),
		}
	}
	return out, nil
}

// toNativeLora converts an adapter descriptor.
func toNativeLora(ad *LoraAdapter, a *arena) (*abiLoraAdapter, error) {
	if ad == nil {
		return nil, ErrContractViolation("nil adapter descriptor")
	}
	if strings.TrimSpace(ad.Path) == "" {
		return nil, ErrContractViolation("adapter path is empty")
	}
	if strings.TrimSpace(ad.Name) == "" {
		return nil, ErrContractViolation("adapter name is empty")
	}
	return &abiLoraAdapter{
		Path:  a.cstring(ad.Path),
		Name:  a.cstring(ad.Name),
		Scale: ad.Scale,
	}, nil
}

// fromNativeLora converts an ABI adapter descriptor back.
func fromNativeLora(ad *abiLoraAdapter) LoraAdapter {
	return LoraAdapter{
		Path:  goCString(ad.Path),
		Name:  goCString(ad.Name),
		Scale: ad.Scale,
	}
}

// toNativeCrossAttn converts cross-attention parameters. The mask count is
// length-paired per the buffer invariant.
func toNativeCrossAttn(p *CrossAttnParams, a *arena) (*abiCrossAttnParam, error) {
	if p == nil {
		return nil, ErrContractViolation("nil cross-attention params")
	}
	if p.MaskCount != len(p.Mask) {
		return nil, ErrContractViolation(fmt.Sprintf(
			"mask count %d does not match buffer length %d", p.MaskCount, len(p.Mask)))
	}
	return &abiCrossAttnParam{
		EncoderKCache: a.float32s(p.EncoderKCache),
		EncoderVCache: a.float32s(p.EncoderVCache),
		EncoderMask:   a.float32s(p.Mask),
		NMask:         uint64(p.MaskCount),
		NumTokens:     p.NumTokens,
	}, nil
}

// fromNativeCrossAttn converts an ABI cross-attention struct back. K/V cache
// lengths are not recoverable from the struct alone and are left empty.
func fromNativeCrossAttn(p *abiCrossAttnParam) CrossAttnParams {
	return CrossAttnParams{
		Mask:      goFloat32s(p.EncoderMask, int(p.NMask)),
		MaskCount: int(p.NMask),
		NumTokens: p.NumTokens,
	}
}

// maxTensorElems bounds tensor sizes accepted from the native side; counts
// beyond this are treated as corrupt rather than allocated.
const maxTensorElems = 1 << 28

// fromNativeResult converts a callback result struct. A payload whose
// length/pointer fields are inconsistent yields a stream-fault error; the
// bridge turns that into a terminal error result instead of crashing.
func fromNativeResult(r *abiResult, state int32) (Result, error) {
	var out Result
	switch state {
	case abiStateNormal:
		out.State = CallNormal
	case abiStateWaiting:
		out.State = CallWaiting
	case abiStateFinish:
		out.State = CallFinish
	case abiStateError:
		out.State = CallError
	default:
		return Result{}, ErrStreamFault(fmt.Sprintf("unknown call state %d", state))
	}
	if r == nil {
		if out.State.Terminal() {
			return out, nil
		}
		return Result{}, ErrStreamFault("nil result for non-terminal callback")
	}
	out.Text = goCString(r.Text)
	out.TokenID = r.TokenID
	out.Perf = PerfStats{
		PrefillTokens:  r.Perf.PrefillTokens,
		PrefillTimeMS:  r.Perf.PrefillTimeMS,
		GenerateTokens: r.Perf.GenerateTokens,
		GenerateTimeMS: r.Perf.GenerateTimeMS,
		MemoryUsageMB:  r.Perf.MemoryUsageMB,
	}
	if hl := r.HiddenLayer; hl.HiddenStates != 0 || hl.EmbdSize != 0 || hl.NumTokens != 0 {
		n := int64(hl.EmbdSize) * int64(hl.NumTokens)
		switch {
		case hl.EmbdSize < 0 || hl.NumTokens < 0 || n > maxTensorElems:
			return Result{}, ErrStreamFault(fmt.Sprintf(
				"hidden layer dims %dx%d out of range", hl.NumTokens, hl.EmbdSize))
		case hl.HiddenStates == 0 && n > 0:
			return Result{}, ErrStreamFault("hidden layer has null buffer with non-zero dims")
		case n > 0:
			out.HiddenLayer = &HiddenLayerTensor{
				States:    goFloat32s(hl.HiddenStates, int(n)),
				EmbdSize:  hl.EmbdSize,
				NumTokens: hl.NumTokens,
			}
		}
	}
	if lg := r.Logits; lg.Logits != 0 || lg.VocabSize != 0 || lg.NumTokens != 0 {
		n := int64(lg.VocabSize) * int64(lg.NumTokens)
		switch {
		case lg.VocabSize < 0 || lg.NumTokens < 0 || n > maxTensorElems:
			return Result{}, ErrStreamFault(fmt.Sprintf(
				"logits dims %dx%d out of range", lg.NumTokens, lg.VocabSize))
		case lg.Logits == 0 && n > 0:
			return Result{}, ErrStreamFault("logits have null buffer with non-zero dims")
		case n > 0:
			out.Logits = &LogitsTensor{
				Logits:    goFloat32s(lg.Logits, int(n)),
				VocabSize: lg.VocabSize,
				NumTokens: lg.NumTokens,
			}
		}
	}
	return out, nil
}
