package rkllm

import "unsafe"

// Fixed-layout mirrors of the librkllmrt ABI structs, field for field. All
// layouts assume the 64-bit targets the vendor ships for (aarch64 Linux and
// Android; x86_64 covered for the simulator build). Pointers are held as
// uintptr; the backing Go memory is pinned by an arena (marshal.go) for the
// duration of the native call.
//
// Nothing outside marshal.go and the runtime_* call paths may touch these.

// Call-state discriminant values (LLMCallState).
const (
	abiStateNormal  int32 = 0
	abiStateWaiting int32 = 1
	abiStateFinish  int32 = 2
	abiStateError   int32 = 3
)

// Input discriminant values (RKLLMInputType).
const (
	abiInputPrompt     int32 = 0
	abiInputToken      int32 = 1
	abiInputEmbed      int32 = 2
	abiInputMultimodal int32 = 3
)

// Inference mode values (RKLLMInferMode).
const (
	abiInferGenerate    int32 = 0
	abiInferHiddenLayer int32 = 1
	abiInferLogits      int32 = 2
)

// abiExtendParam mirrors RKLLMExtendParam. The reserved region is not part
// of the data model: zero-filled going in, never read coming out.
type abiExtendParam struct {
	BaseDomainID   int32
	EmbedFlash     int16
	EnabledCPUSNum int8
	_              [1]byte
	EnabledCPUSMask uint32
	NBatch         uint8
	UseCrossAttn   int8
	Reserved       [104]byte
}

// abiParam mirrors RKLLMParam, the create-params struct passed to init.
type abiParam struct {
	ModelPath        uintptr // const char*
	MaxContextLen    int32
	MaxNewTokens     int32
	TopK             int32
	NKeep            int32
	TopP             float32
	Temperature      float32
	RepeatPenalty    float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Mirostat         int32
	MirostatTau      float32
	MirostatEta      float32
	SkipSpecialToken uint8
	IsAsync          uint8
	_                [6]byte
	ImgStart         uintptr // const char*
	ImgEnd           uintptr // const char*
	ImgContent       uintptr // const char*
	Extend           abiExtendParam
}

// abiTokenInput mirrors RKLLMTokenInput.
type abiTokenInput struct {
	InputIDs uintptr // int32_t*
	NTokens  uint64
}

// abiEmbedInput mirrors RKLLMEmbedInput.
type abiEmbedInput struct {
	Embed   uintptr // float*
	NTokens uint64
}

// abiMultimodalInput mirrors RKLLMMultiModelInput.
type abiMultimodalInput struct {
	Prompt       uintptr // const char*
	ImageEmbed   uintptr // float*
	NImageTokens uint64
	NImage       uint64
	ImageWidth   uint64
	ImageHeight  uint64
}

// abiInputUnionSize is the size of the largest RKLLMInput union member
// (the multimodal variant).
const abiInputUnionSize = unsafe.Sizeof(abiMultimodalInput{})

// abiInput mirrors RKLLMInput. The union region holds exactly one of
// prompt pointer / abiTokenInput / abiEmbedInput / abiMultimodalInput,
// selected by InputType.
type abiInput struct {
	Role           uintptr // const char*
	EnableThinking uint8
	_              [3]byte
	InputType      int32
	Union          [abiInputUnionSize]byte
}

// abiLoraAdapter mirrors RKLLMLoraAdapter (load-adapter call).
type abiLoraAdapter struct {
	Path  uintptr // const char*
	Name  uintptr // const char*
	Scale float32
	_     [4]byte
}

// abiLoraParam mirrors RKLLMLoraParam: the per-call adapter selection, a
// pointer to an array of adapter-name pointers plus its element count.
type abiLoraParam struct {
	Names  uintptr // const char**
	NNames uint64
}

// abiPromptCacheParam mirrors RKLLMPromptCacheParam.
type abiPromptCacheParam struct {
	Save int32
	_    [4]byte
	Path uintptr // const char*
}

// abiInferParam mirrors RKLLMInferParam.
type abiInferParam struct {
	Mode        int32
	_           [4]byte
	LoraParams  uintptr // RKLLMLoraParam*
	PromptCache uintptr // RKLLMPromptCacheParam*
	KeepHistory int32
	_           [4]byte
}

// abiCrossAttnParam mirrors RKLLMCrossAttnParam.
type abiCrossAttnParam struct {
	EncoderKCache uintptr // float*
	EncoderVCache uintptr // float*
	EncoderMask   uintptr // float*
	NMask         uint64
	NumTokens     int32
	_             [4]byte
}

// abiHiddenLayer mirrors RKLLMResultLastHiddenLayer.
type abiHiddenLayer struct {
	HiddenStates uintptr // float*
	EmbdSize     int32
	NumTokens    int32
}

// abiLogits mirrors RKLLMResultLogits.
type abiLogits struct {
	Logits    uintptr // float*
	VocabSize int32
	NumTokens int32
}

// abiPerfStat mirrors RKLLMPerfStat.
type abiPerfStat struct {
	PrefillTokens  int32
	PrefillTimeMS  float32
	GenerateTokens int32
	GenerateTimeMS float32
	MemoryUsageMB  float32
}

// abiResult mirrors RKLLMResult, the struct handed to the result callback.
type abiResult struct {
	Text        uintptr // const char*
	TokenID     int32
	_           [4]byte
	HiddenLayer abiHiddenLayer
	Logits      abiLogits
	Perf        abiPerfStat
	_           [4]byte
}

// setPromptUnion stores the prompt-pointer variant into the input union.
func (in *abiInput) setPromptUnion(p uintptr) {
	*(*uintptr)(unsafe.Pointer(&in.Union[0])) = p
}

// setTokenUnion stores the token variant into the input union.
func (in *abiInput) setTokenUnion(t abiTokenInput) {
	*(*abiTokenInput)(unsafe.Pointer(&in.Union[0])) = t
}

// setEmbedUnion stores the embedding variant into the input union.
func (in *abiInput) setEmbedUnion(e abiEmbedInput) {
	*(*abiEmbedInput)(unsafe.Pointer(&in.Union[0])) = e
}

// setMultimodalUnion stores the multimodal variant into the input union.
func (in *abiInput) setMultimodalUnion(m abiMultimodalInput) {
	*(*abiMultimodalInput)(unsafe.Pointer(&in.Union[0])) = m
}

func (in *abiInput) promptUnion() uintptr {
	return *(*uintptr)(unsafe.Pointer(&in.Union[0]))
}

func (in *abiInput) tokenUnion() abiTokenInput {
	return *(*abiTokenInput)(unsafe.Pointer(&in.Union[0]))
}

func (in *abiInput) embedUnion() abiEmbedInput {
	return *(*abiEmbedInput)(unsafe.Pointer(&in.Union[0]))
}

func (in *abiInput) multimodalUnion() abiMultimodalInput {
	return *(*abiMultimodalInput)(unsafe.Pointer(&in.Union[0]))
}
