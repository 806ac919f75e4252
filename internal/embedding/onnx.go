package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath string
	VocabPath string
	LibPath   string
	MaxSeqLen int
	Dimension int
}

// ONNXEmbedder runs a sentence-transformer model locally with mean pooling
// and L2 normalization. The session is created on first use and reused.
type ONNXEmbedder struct {
	cfg ONNXConfig

	mu        sync.Mutex
	inited    bool
	tokenizer *WordPieceTokenizer
	session   *ort.AdvancedSession
	inputs    map[string]*ort.Tensor[int64]
	output    *ort.Tensor[float32]
}

func NewONNXEmbedder(cfg ONNXConfig) *ONNXEmbedder {
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 256
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	return &ONNXEmbedder{cfg: cfg}
}

func (e *ONNXEmbedder) Dimension() int { return e.cfg.Dimension }

// initOnce loads the shared library, vocab and session. Caller holds e.mu.
func (e *ONNXEmbedder) initOnce() error {
	if e.inited {
		return nil
	}

	if e.cfg.LibPath != "" {
		ort.SetSharedLibraryPath(e.cfg.LibPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("onnx init environment: %w", err)
		}
	}

	tok, err := LoadVocab(e.cfg.VocabPath)
	if err != nil {
		return err
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(e.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		return fmt.Errorf("onnx model has no inputs or outputs")
	}

	seqShape := ort.NewShape(1, int64(e.cfg.MaxSeqLen))
	inputs := make(map[string]*ort.Tensor[int64], len(inputsInfo))
	inputNames := make([]string, 0, len(inputsInfo))
	inputValues := make([]ort.Value, 0, len(inputsInfo))
	destroyInputs := func() {
		for _, t := range inputs {
			t.Destroy()
		}
	}
	for _, info := range inputsInfo {
		switch info.Name {
		case "input_ids", "attention_mask", "token_type_ids":
		default:
			destroyInputs()
			return fmt.Errorf("onnx model has unexpected input %q", info.Name)
		}
		t, err := ort.NewEmptyTensor[int64](seqShape)
		if err != nil {
			destroyInputs()
			return fmt.Errorf("onnx new input tensor: %w", err)
		}
		inputs[info.Name] = t
		inputNames = append(inputNames, info.Name)
		inputValues = append(inputValues, t)
	}
	if inputs["input_ids"] == nil || inputs["attention_mask"] == nil {
		destroyInputs()
		return fmt.Errorf("onnx model lacks input_ids or attention_mask")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.MaxSeqLen), int64(e.cfg.Dimension)))
	if err != nil {
		destroyInputs()
		return fmt.Errorf("onnx new output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(e.cfg.ModelPath, inputNames, []string{outputsInfo[0].Name},
		inputValues, []ort.Value{output}, nil)
	if err != nil {
		output.Destroy()
		destroyInputs()
		return fmt.Errorf("onnx new session: %w", err)
	}

	e.tokenizer = tok
	e.inputs = inputs
	e.output = output
	e.session = session
	e.inited = true
	return nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initOnce(); err != nil {
		return nil, err
	}
	return e.run(ctx, text)
}

func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.initOnce(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.run(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// run embeds one text. Caller holds e.mu.
func (e *ONNXEmbedder) run(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := e.tokenizer.Encode(text, e.cfg.MaxSeqLen)
	idData := e.inputs["input_ids"].GetData()
	maskData := e.inputs["attention_mask"].GetData()
	var typeData []int64
	if t := e.inputs["token_type_ids"]; t != nil {
		typeData = t.GetData()
	}
	for i := range idData {
		if i < len(ids) {
			idData[i] = ids[i]
			maskData[i] = 1
		} else {
			idData[i] = e.tokenizer.PadID()
			maskData[i] = 0
		}
		if typeData != nil {
			typeData[i] = 0
		}
	}

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return meanPool(e.output.GetData(), maskData, e.cfg.Dimension), nil
}

func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inited {
		return nil
	}
	var closeErr error
	if err := e.session.Destroy(); err != nil {
		closeErr = err
	}
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	_ = e.output.Destroy()
	e.inited = false
	return closeErr
}

// meanPool averages token vectors under the attention mask and L2-normalizes.
func meanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for tok := range mask {
		if mask[tok] == 0 {
			continue
		}
		row := hidden[tok*dim : (tok+1)*dim]
		for j, v := range row {
			out[j] += v
		}
		count++
	}
	if count == 0 {
		return out
	}
	var norm float64
	for j := range out {
		out[j] /= count
		norm += float64(out[j]) * float64(out[j])
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for j := range out {
			out[j] *= inv
		}
	}
	return out
}
