package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/localkb/knowledgebase/internal/errors"
)

// ONNXRepositoryID is the stable artifact-repository identifier for the
// fixed sentence-embedding model.
const ONNXRepositoryID = "onnx-community/all-MiniLM-L6-v2-ONNX"

// ONNXDimensions is the output dimension of the MiniLM sentence embedding.
const ONNXDimensions = 384

// MicroBatchSize bounds peak memory during EmbedBatch.
const MicroBatchSize = 8

// MaxSequenceTokens is the right-truncation limit applied to tokenized input.
const MaxSequenceTokens = 512

// preferredModelFiles and preferredTokenizerFiles list artifact candidates
// in resolution order, per the artifact-repository preference order.
var preferredModelFiles = []string{
	"onnx/model_quantized.onnx",
	"onnx/model.onnx",
	"model_quantized.onnx",
	"model.onnx",
}

var preferredTokenizerFiles = []string{
	"tokenizer.json",
	"onnx/tokenizer.json",
}

// LoadStage names one step of the lazy, at-most-once initialization sequence.
type LoadStage string

const (
	StageStarting           LoadStage = "starting"
	StageResolvingArtifacts LoadStage = "resolving_artifacts"
	StageLoadingTokenizer   LoadStage = "loading_tokenizer"
	StageCreatingSession    LoadStage = "creating_session"
	StageReady              LoadStage = "ready"
	StageFailed             LoadStage = "failed"
)

// LoadProgressFunc reports load progress; progress is monotone in [0,1].
type LoadProgressFunc func(stage LoadStage, progress float64)

// tokenizerBackend is the minimal surface ONNXEmbedder needs from a
// HuggingFace-compatible tokenizer; satisfied by *tokenizer.Tokenizer.
type tokenizerBackend interface {
	EncodeBatch(texts []string) (ids [][]int64, attentionMask [][]int64, typeIDs [][]int64, err error)
	PadID() int64
}

// sessionBackend is the minimal surface ONNXEmbedder needs from an ONNX
// Runtime session: run a named-input/named-output inference call.
type sessionBackend interface {
	InputNames() []string
	Run(inputs map[string]*ort.Tensor[float32], inputsInt map[string]*ort.Tensor[int64]) (name string, values []float32, shape []int64, err error)
	Close() error
}

// ONNXEmbedder runs the fixed MiniLM sentence-embedding model through
// onnxruntime_go, tokenizing with sugarme/tokenizer. Its own mutex
// serializes every inference call on the instance. The package keeps no
// process-wide instance: kb.Service constructs one embedder per service,
// at most once.
type ONNXEmbedder struct {
	mu        sync.Mutex
	modelID   string
	tokenizer tokenizerBackend
	session   sessionBackend
	closed    bool
}

// ONNXConfig configures artifact resolution for ONNXEmbedder.
type ONNXConfig struct {
	// CacheDir is the local artifact cache directory (DefaultONNXConfig
	// takes it from the KB_ONNX_CACHE_DIR environment variable).
	CacheDir string
	// RepositoryID overrides ONNXRepositoryID, mostly for tests.
	RepositoryID string
}

// DefaultONNXConfig resolves the artifact cache directory from the
// environment, falling back to a dotfile under the user's home directory.
func DefaultONNXConfig() ONNXConfig {
	dir := os.Getenv("KB_ONNX_CACHE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".cache", "localkb", "onnx")
	}
	return ONNXConfig{CacheDir: dir, RepositoryID: ONNXRepositoryID}
}

// NewONNXEmbedder resolves artifacts, loads the tokenizer, and creates the
// ONNX Runtime session, reporting progress through onProgress (which may be
// nil). Initialization is at-most-once per embedder instance.
func NewONNXEmbedder(ctx context.Context, cfg ONNXConfig, onProgress LoadProgressFunc) (*ONNXEmbedder, error) {
	report := func(stage LoadStage, progress float64) {
		if onProgress != nil {
			onProgress(stage, progress)
		}
	}

	report(StageStarting, 0)

	report(StageResolvingArtifacts, 0.2)
	modelPath, tokenizerPath, err := resolveArtifacts(ctx, cfg)
	if err != nil {
		report(StageFailed, 0.2)
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "failed to resolve embedding model artifacts", err)
	}

	report(StageLoadingTokenizer, 0.5)
	tok, err := loadTokenizer(tokenizerPath)
	if err != nil {
		report(StageFailed, 0.5)
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "failed to load tokenizer", err)
	}

	report(StageCreatingSession, 0.8)
	sess, err := createSession(modelPath)
	if err != nil {
		report(StageFailed, 0.8)
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "failed to create onnx session", err)
	}

	report(StageReady, 1.0)

	return &ONNXEmbedder{
		modelID:   cfg.RepositoryID,
		tokenizer: tok,
		session:   sess,
	}, nil
}

// resolveArtifacts locates the quantized-or-full model file and the
// tokenizer file within the cached artifact repository snapshot under
// cfg.CacheDir. It does not download anything: a missing file is an error.
func resolveArtifacts(ctx context.Context, cfg ONNXConfig) (modelPath, tokenizerPath string, err error) {
	repoDir := filepath.Join(cfg.CacheDir, sanitizeRepoID(cfg.RepositoryID))

	for _, candidate := range preferredModelFiles {
		p := filepath.Join(repoDir, candidate)
		if fileExists(p) {
			modelPath = p
			break
		}
	}
	if modelPath == "" {
		return "", "", fmt.Errorf("no onnx model artifact found under %s (expected one of %v); fetch the %s repository first",
			repoDir, preferredModelFiles, cfg.RepositoryID)
	}

	for _, candidate := range preferredTokenizerFiles {
		p := filepath.Join(repoDir, candidate)
		if fileExists(p) {
			tokenizerPath = p
			break
		}
	}
	if tokenizerPath == "" {
		return "", "", fmt.Errorf("no tokenizer.json found under %s", repoDir)
	}

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	default:
	}

	return modelPath, tokenizerPath, nil
}

func sanitizeRepoID(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Embed embeds a single text; a thin wrapper over EmbedBatch.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in micro-batches of MicroBatchSize, serialized
// behind the embedder's mutex.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, errors.New(errors.ErrCodeEmbeddingEmptyInput, "embedding input must not be blank", nil)
		}
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "embedder is closed", nil)
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MicroBatchSize {
		end := start + MicroBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vecs, err := e.embedMicroBatch(texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, vecs...)
	}
	return results, nil
}

func (e *ONNXEmbedder) embedMicroBatch(texts []string) ([][]float32, error) {
	ids, mask, typeIDs, err := e.tokenizer.EncodeBatch(texts)
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "tokenization failed", err)
	}

	ids, mask, typeIDs = truncateRight(ids, mask, typeIDs, MaxSequenceTokens)
	padID := e.tokenizer.PadID()
	padded, paddedMask, paddedTypes, seqLen := padBatch(ids, mask, typeIDs, padID)

	inputsInt, err := buildModelInputs(e.session.InputNames(), padded, paddedMask, paddedTypes, seqLen, len(texts))
	if err != nil {
		return nil, err
	}

	_, values, shape, err := e.session.Run(nil, inputsInt)
	if err != nil {
		return nil, errors.New(errors.ErrCodeEmbeddingModelLoad, "onnx inference failed", err)
	}

	pooled, err := poolOutput(values, shape, paddedMask, len(texts))
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(pooled))
	for i, v := range pooled {
		out[i] = normalizeVector(v)
	}
	return out, nil
}

// truncateRight right-truncates every sequence in the batch to maxLen.
func truncateRight(ids, mask, typeIDs [][]int64, maxLen int) ([][]int64, [][]int64, [][]int64) {
	tr := func(batch [][]int64) [][]int64 {
		out := make([][]int64, len(batch))
		for i, seq := range batch {
			if len(seq) > maxLen {
				seq = seq[:maxLen]
			}
			out[i] = seq
		}
		return out
	}
	return tr(ids), tr(mask), tr(typeIDs)
}

// padBatch right-pads every sequence to the batch's max length using padID
// (0 for the attention mask and token type ids).
func padBatch(ids, mask, typeIDs [][]int64, padID int64) (padded, paddedMask, paddedTypes [][]int64, seqLen int) {
	for _, seq := range ids {
		if len(seq) > seqLen {
			seqLen = len(seq)
		}
	}
	if seqLen == 0 {
		seqLen = 1
	}

	pad := func(batch [][]int64, fill int64) [][]int64 {
		out := make([][]int64, len(batch))
		for i, seq := range batch {
			row := make([]int64, seqLen)
			copy(row, seq)
			for j := len(seq); j < seqLen; j++ {
				row[j] = fill
			}
			out[i] = row
		}
		return out
	}

	return pad(ids, padID), pad(mask, 0), pad(typeIDs, 0), seqLen
}

// buildModelInputs maps tokenizer output onto the session's declared input
// names, recognizing the standard transformer input family plus
// past-key-values/cache-position inputs used by some exported graphs.
func buildModelInputs(inputNames []string, ids, mask, typeIDs [][]int64, seqLen, batchSize int) (map[string]*ort.Tensor[int64], error) {
	flatten := func(rows [][]int64) []int64 {
		out := make([]int64, 0, len(rows)*seqLen)
		for _, r := range rows {
			out = append(out, r...)
		}
		return out
	}

	shape := ort.NewShape(int64(batchSize), int64(seqLen))

	inputs := make(map[string]*ort.Tensor[int64])
	for _, name := range inputNames {
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "input_ids"):
			t, err := ort.NewTensor(shape, flatten(ids))
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build input_ids tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "attention_mask"):
			t, err := ort.NewTensor(shape, flatten(mask))
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build attention_mask tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "token_type_ids"):
			t, err := ort.NewTensor(shape, flatten(typeIDs))
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build token_type_ids tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "position_ids"):
			positions := make([]int64, 0, batchSize*seqLen)
			for b := 0; b < batchSize; b++ {
				for s := 0; s < seqLen; s++ {
					positions = append(positions, int64(s))
				}
			}
			t, err := ort.NewTensor(shape, positions)
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build position_ids tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "past_key_values"):
			// Empty past: shape [B, heads, 0, head_dim]; heads/head_dim are
			// symbolic and unknown to us here, so allocate a minimal
			// [B, 1, 0, 1] tensor, matching an empty past of any head config.
			t, err := ort.NewTensor(ort.NewShape(int64(batchSize), 1, 0, 1), []int64{})
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build past_key_values tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "use_cache_branch"):
			t, err := ort.NewTensor(ort.NewShape(1), []int64{0})
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build use_cache_branch tensor", err)
			}
			inputs[name] = t

		case strings.Contains(lower, "cache_position"):
			positions := make([]int64, seqLen)
			for s := 0; s < seqLen; s++ {
				positions[s] = int64(s)
			}
			t, err := ort.NewTensor(ort.NewShape(int64(seqLen)), positions)
			if err != nil {
				return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape, "failed to build cache_position tensor", err)
			}
			inputs[name] = t

		default:
			return nil, errors.New(errors.ErrCodeEmbeddingUnsupportedInput, "unrecognized onnx model input: "+name, nil)
		}
	}
	return inputs, nil
}

// preferredOutputNames lists output-name candidates in selection order.
var preferredOutputNames = []string{"sentence_embedding", "embedding", "last_hidden_state"}

// poolOutput selects the pooled [B, D] embedding from a rank-2 or rank-3
// output tensor, per the last-attended-position pooling rule.
func poolOutput(values []float32, shape []int64, mask [][]int64, batchSize int) ([][]float32, error) {
	switch len(shape) {
	case 2:
		b, d := int(shape[0]), int(shape[1])
		if b != batchSize && b == len(mask[0]) {
			// single-sequence output whose first dim is actually the
			// sequence length; treat as one pooled row.
			b = 1
		}
		out := make([][]float32, b)
		for i := 0; i < b; i++ {
			out[i] = append([]float32{}, values[i*d:(i+1)*d]...)
		}
		return out, nil

	case 3:
		b, s, d := int(shape[0]), int(shape[1]), int(shape[2])
		out := make([][]float32, b)
		for i := 0; i < b; i++ {
			lastAttended := 0
			if i < len(mask) {
				for pos, m := range mask[i] {
					if m > 0 {
						lastAttended = pos
					}
				}
			}
			if lastAttended >= s {
				lastAttended = s - 1
			}
			offset := (i*s + lastAttended) * d
			out[i] = append([]float32{}, values[offset:offset+d]...)
		}
		return out, nil

	default:
		return nil, errors.New(errors.ErrCodeEmbeddingInvalidShape,
			fmt.Sprintf("unsupported onnx output rank %d", len(shape)), nil)
	}
}

// selectOutputName picks the output tensor by exact, then substring, match.
func selectOutputName(outputNames []string) string {
	for _, want := range preferredOutputNames {
		for _, name := range outputNames {
			if name == want {
				return name
			}
		}
	}
	for _, want := range preferredOutputNames {
		for _, name := range outputNames {
			if strings.Contains(strings.ToLower(name), want) {
				return name
			}
		}
	}
	if len(outputNames) > 0 {
		return outputNames[0]
	}
	return ""
}

// Dimensions returns ONNXDimensions.
func (e *ONNXEmbedder) Dimensions() int { return ONNXDimensions }

// ModelName returns the artifact repository id.
func (e *ONNXEmbedder) ModelName() string { return e.modelID }

// Available reports whether the session is loaded and open.
func (e *ONNXEmbedder) Available(_ context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Close releases the ONNX Runtime session.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.session.Close()
}

// SetBatchIndex is a no-op; the ONNX engine has no thermal-timeout progression.
func (e *ONNXEmbedder) SetBatchIndex(_ int) {}

// SetFinalBatch is a no-op; the ONNX engine has no thermal-timeout progression.
func (e *ONNXEmbedder) SetFinalBatch(_ bool) {}

// ContentHash computes sha256(sourceText + "\0" + modelID) as hex, the
// document-level embedding cache key.
func ContentHash(sourceText, modelID string) string {
	h := sha256.Sum256([]byte(sourceText + "\x00" + modelID))
	return hex.EncodeToString(h[:])
}

// ChunkContentHash computes the shared chunk-hash for a document's chunk set.
func ChunkContentHash(chunks []string, modelID string) string {
	joined := "chunks\x00" + strings.Join(chunks, "\x00") + "\x00" + modelID
	h := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(h[:])
}
