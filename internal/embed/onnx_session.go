package embed

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

var ortInitOnce sync.Once
var ortInitErr error

// ensureRuntimeInitialized initializes the ONNX Runtime shared library at
// most once per process; onnxruntime_go requires this before any session
// is created.
func ensureRuntimeInitialized() error {
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// onnxSession wraps an onnxruntime_go dynamic session advertising the
// model's declared input names, and runs inference selecting the output
// tensor per selectOutputName.
type onnxSession struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func createSession(modelPath string) (sessionBackend, error) {
	if err := ensureRuntimeInitialized(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnx runtime: %w", err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect onnx model io: %w", err)
	}

	inputNames := make([]string, 0, len(inputInfo))
	for _, info := range inputInfo {
		inputNames = append(inputNames, info.Name)
	}
	outputNames := make([]string, 0, len(outputInfo))
	for _, info := range outputInfo {
		outputNames = append(outputNames, info.Name)
	}

	sess, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}

	return &onnxSession{session: sess, inputNames: inputNames, outputNames: outputNames}, nil
}

func (s *onnxSession) InputNames() []string { return s.inputNames }

func (s *onnxSession) Run(floatInputs map[string]*ort.Tensor[float32], intInputs map[string]*ort.Tensor[int64]) (string, []float32, []int64, error) {
	inputValues := make([]ort.Value, len(s.inputNames))
	for i, name := range s.inputNames {
		if t, ok := intInputs[name]; ok {
			inputValues[i] = t
			continue
		}
		if t, ok := floatInputs[name]; ok {
			inputValues[i] = t
			continue
		}
		return "", nil, nil, fmt.Errorf("no tensor supplied for declared input %q", name)
	}

	outputValues := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run(inputValues, outputValues); err != nil {
		return "", nil, nil, fmt.Errorf("session run failed: %w", err)
	}

	outputName := selectOutputName(s.outputNames)
	for i, name := range s.outputNames {
		if name != outputName {
			continue
		}
		out, ok := outputValues[i].(*ort.Tensor[float32])
		if !ok {
			return "", nil, nil, fmt.Errorf("output %q is not a float32 tensor", name)
		}
		return name, out.GetData(), out.GetShape(), nil
	}
	return "", nil, nil, fmt.Errorf("no matching output tensor found among %v", s.outputNames)
}

func (s *onnxSession) Close() error {
	return s.session.Destroy()
}

// sugarmeTokenizer adapts *tokenizer.Tokenizer to tokenizerBackend.
type sugarmeTokenizer struct {
	inner *tokenizer.Tokenizer
	padID int64
}

func loadTokenizer(path string) (tokenizerBackend, error) {
	tok, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer from %s: %w", path, err)
	}

	padID := int64(0)
	if id, ok := tok.TokenToId("[PAD]"); ok {
		padID = int64(id)
	}

	return &sugarmeTokenizer{inner: tok, padID: padID}, nil
}

func (t *sugarmeTokenizer) PadID() int64 { return t.padID }

func (t *sugarmeTokenizer) EncodeBatch(texts []string) ([][]int64, [][]int64, [][]int64, error) {
	ids := make([][]int64, len(texts))
	mask := make([][]int64, len(texts))
	types := make([][]int64, len(texts))

	for i, text := range texts {
		enc, err := t.inner.EncodeSingle(text, true)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to tokenize text %d: %w", i, err)
		}

		idsRow := make([]int64, len(enc.Ids))
		for j, v := range enc.Ids {
			idsRow[j] = int64(v)
		}
		maskRow := make([]int64, len(enc.AttentionMask))
		for j, v := range enc.AttentionMask {
			maskRow[j] = int64(v)
		}
		typeRow := make([]int64, len(enc.TypeIds))
		for j, v := range enc.TypeIds {
			typeRow[j] = int64(v)
		}

		ids[i] = idsRow
		mask[i] = maskRow
		types[i] = typeRow
	}

	return ids, mask, types, nil
}
