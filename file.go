package medcrypt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krathor2212/medcrypt/internal/cryptoerr"
	"github.com/krathor2212/medcrypt/internal/workerpool"
)

// PayloadKind tags how an encrypted file's blocks are laid out.
type PayloadKind uint8

const (
	// PayloadSingle holds exactly one block carrying the whole file.
	PayloadSingle PayloadKind = iota + 1
	// PayloadChunked holds one block per chunk, in file order.
	PayloadChunked
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadSingle:
		return "single"
	case PayloadChunked:
		return "chunked"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

func (k PayloadKind) MarshalText() ([]byte, error) {
	switch k {
	case PayloadSingle, PayloadChunked:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("%w: unknown payload kind %d", ErrInvalidPayload, uint8(k))
}

func (k *PayloadKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "single":
		*k = PayloadSingle
	case "chunked":
		*k = PayloadChunked
	default:
		return fmt.Errorf("%w: unknown payload kind '%s'", ErrInvalidPayload, text)
	}
	return nil
}

// EncryptedPayload is the ciphertext of a file. Blocks is indexed by chunk
// position; a PayloadSingle payload has exactly one element.
type EncryptedPayload struct {
	Kind   PayloadKind      `json:"kind"`
	Blocks []EncryptedBlock `json:"blocks"`
}

// EncryptedFile is an encrypted patient file with its metadata.
type EncryptedFile struct {
	ID           string           `json:"id"`
	OwnerID      string           `json:"owner_id"`
	MimeType     string           `json:"mime_type"`
	OriginalSize int64            `json:"original_size"`
	Payload      EncryptedPayload `json:"payload"`
	CreatedAt    time.Time        `json:"created_at"`
}

// FileInput is a plaintext file to encrypt.
type FileInput struct {
	OwnerID  string
	MimeType string
	Data     []byte
}

// FileCryptoEngine encrypts whole files with ElGamal. Files up to the single
// block threshold become one block; larger files are split into
// MaxBlockBytes chunks encrypted in parallel on the worker pool.
type FileCryptoEngine struct {
	cipher    *ElGamalCipher
	threshold int
	pool      *workerpool.Pool
	ownsPool  bool
	clock     Clock
	instr     instrument
}

// NewFileCryptoEngine creates an engine. threshold zero means
// DefaultSingleBlockThreshold, capped at the group's MaxBlockBytes. An
// explicit threshold above MaxBlockBytes fails with ErrDomainParameter.
func NewFileCryptoEngine(cipher *ElGamalCipher, threshold int, opts ...Option) (*FileCryptoEngine, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = defaultThreshold(cipher.Params().MaxBlockBytes())
	}
	if limit := cipher.Params().MaxBlockBytes(); threshold < 0 || threshold > limit {
		return nil, fmt.Errorf("%w: single block threshold %d outside [0, %d]", ErrDomainParameter, threshold, limit)
	}

	e := &FileCryptoEngine{
		cipher:    cipher,
		threshold: threshold,
		pool:      s.pool,
		clock:     s.clock,
		instr:     s.instrument("files"),
	}
	if e.pool == nil {
		e.pool = workerpool.New(workerpool.Config{})
		e.ownsPool = true
	}
	return e, nil
}

func defaultThreshold(maxBlockBytes int) int {
	return min(DefaultSingleBlockThreshold, maxBlockBytes)
}

// Close releases the worker pool if the engine created it.
func (e *FileCryptoEngine) Close() {
	if e.ownsPool {
		e.pool.Close()
	}
}

// SingleBlockThreshold returns the largest size stored as one block.
func (e *FileCryptoEngine) SingleBlockThreshold() int { return e.threshold }

// EncryptFile encrypts in.Data under pub.
func (e *FileCryptoEngine) EncryptFile(ctx context.Context, in FileInput, pub *PublicKey) (*EncryptedFile, error) {
	metadata := map[string]any{"owner_id": in.OwnerID, "size": len(in.Data)}
	var file *EncryptedFile
	err := e.instr.run(ctx, OpEncryptFile, metadata, func() error {
		payload, err := e.encryptPayload(ctx, in.Data, pub)
		if err != nil {
			return err
		}
		metadata["kind"] = payload.Kind.String()
		metadata["blocks"] = len(payload.Blocks)
		file = &EncryptedFile{
			ID:           uuid.NewString(),
			OwnerID:      in.OwnerID,
			MimeType:     in.MimeType,
			OriginalSize: int64(len(in.Data)),
			Payload:      payload,
			CreatedAt:    e.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (e *FileCryptoEngine) encryptPayload(ctx context.Context, data []byte, pub *PublicKey) (EncryptedPayload, error) {
	if err := ctx.Err(); err != nil {
		return EncryptedPayload{}, err
	}

	if len(data) <= e.threshold {
		block, err := e.cipher.EncryptBytes(data, pub)
		if err != nil {
			return EncryptedPayload{}, asInvariant(err)
		}
		return EncryptedPayload{Kind: PayloadSingle, Blocks: []EncryptedBlock{block}}, nil
	}

	size := e.cipher.Params().MaxBlockBytes()
	count := (len(data) + size - 1) / size
	blocks, err := workerpool.Map(ctx, e.pool, count, func(ctx context.Context, i int) (EncryptedBlock, error) {
		end := min((i+1)*size, len(data))
		return e.cipher.EncryptBytes(data[i*size:end], pub)
	})
	if err != nil {
		return EncryptedPayload{}, asInvariant(err)
	}
	return EncryptedPayload{Kind: PayloadChunked, Blocks: blocks}, nil
}

// asInvariant reports a codec overflow during encryption as a bug: chunks
// are sized so they always fit.
func asInvariant(err error) error {
	if errors.Is(err, ErrBlockTooLarge) {
		return cryptoerr.NewInvariantError(cryptoerr.Encrypt, err)
	}
	return err
}

// DecryptFile decrypts file with priv and returns exactly OriginalSize bytes.
func (e *FileCryptoEngine) DecryptFile(ctx context.Context, file *EncryptedFile, priv *PrivateKey) ([]byte, error) {
	if file == nil {
		return nil, fmt.Errorf("%w: file is nil", ErrInvalidPayload)
	}
	metadata := map[string]any{"file_id": file.ID, "owner_id": file.OwnerID, "kind": file.Payload.Kind.String()}
	var out []byte
	err := e.instr.run(ctx, OpDecryptFile, metadata, func() error {
		var err error
		out, err = e.decryptPayload(ctx, file, priv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *FileCryptoEngine) decryptPayload(ctx context.Context, file *EncryptedFile, priv *PrivateKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if file.OriginalSize < 0 {
		return nil, fmt.Errorf("%w: negative original size", ErrInvalidPayload)
	}
	blocks := file.Payload.Blocks

	switch file.Payload.Kind {
	case PayloadSingle:
		if len(blocks) != 1 {
			return nil, fmt.Errorf("%w: single payload has %d blocks", ErrInvalidPayload, len(blocks))
		}
		out, err := e.cipher.DecryptBytes(blocks[0], priv)
		if err != nil {
			return nil, err
		}
		if int64(len(out)) != file.OriginalSize {
			return nil, fmt.Errorf("%w: block holds %d bytes, file records %d", ErrInvalidPayload, len(out), file.OriginalSize)
		}
		return out, nil

	case PayloadChunked:
		if len(blocks) == 0 {
			return nil, fmt.Errorf("%w: chunked payload has no blocks", ErrInvalidPayload)
		}
		if capacity := int64(len(blocks)) * int64(e.cipher.Params().MaxBlockBytes()); file.OriginalSize > capacity {
			return nil, fmt.Errorf("%w: %d chunks cannot hold %d bytes", ErrInvalidPayload, len(blocks), file.OriginalSize)
		}
		chunks, err := workerpool.Map(ctx, e.pool, len(blocks), func(ctx context.Context, i int) ([]byte, error) {
			return e.cipher.DecryptBytes(blocks[i], priv)
		})
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, file.OriginalSize)
		for _, chunk := range chunks {
			out = append(out, chunk...)
		}
		if int64(len(out)) < file.OriginalSize {
			return nil, fmt.Errorf("%w: chunks hold %d bytes, file records %d", ErrInvalidPayload, len(out), file.OriginalSize)
		}
		return out[:file.OriginalSize], nil

	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", ErrInvalidPayload, uint8(file.Payload.Kind))
	}
}

// DecryptFileWithSerializedKey parses a serialized private key and decrypts
// file with it. A malformed key fails with ErrKeyFormat.
func (e *FileCryptoEngine) DecryptFileWithSerializedKey(ctx context.Context, file *EncryptedFile, privateKey []byte) ([]byte, error) {
	priv, err := e.cipher.Params().ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return e.DecryptFile(ctx, file, priv)
}
