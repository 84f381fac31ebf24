package commit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"tundra/storage"
	"tundra/table"
)

var (
	// ErrStale is the compare-and-swap failure: the pointer moved since the
	// token was read. The commit loop reacts by rebasing, never by blind
	// retry.
	ErrStale = errors.New("metadata pointer moved")
)

// Token identifies one published metadata version. Swapping succeeds only
// when the pointer still matches the token it was loaded with.
type Token struct {
	Version int
	Path    string
}

// Pointer is the single serialization point of the commit protocol. The
// store-backed implementation simulates compare-and-swap with
// version-numbered immutable files; a SQL catalog can supply a native one.
type Pointer interface {
	// Init publishes the first metadata version of a new table.
	Init(ctx context.Context, md *table.Metadata) (Token, error)

	// Load reads the current metadata and its token.
	Load(ctx context.Context) (*table.Metadata, Token, error)

	// Swap atomically publishes md if the pointer still equals base,
	// failing with ErrStale otherwise. If a failed swap already wrote a
	// metadata object, the returned token carries its path so the caller
	// can account for the orphan.
	Swap(ctx context.Context, base Token, md *table.Metadata) (Token, error)
}

var versionRe = regexp.MustCompile(`v(\d+)\.metadata\.json$`)

// StorePointer keeps the pointer in the object store itself: metadata
// versions are immutable objects named by version, created with
// put-if-absent. Creating version N+1 is the swap; whoever creates it
// first wins. A version-hint object is written best-effort for readers.
type StorePointer struct {
	Store    storage.Storage
	Location string
}

func (p *StorePointer) metadataPath(version int) string {
	return fmt.Sprintf("metadata/v%05d.metadata.json", version)
}

func (p *StorePointer) Init(ctx context.Context, md *table.Metadata) (Token, error) {
	return p.write(ctx, 1, md)
}

func (p *StorePointer) Load(ctx context.Context) (*table.Metadata, Token, error) {
	paths, err := p.Store.List(ctx, p.Location+"/metadata/")
	if err != nil {
		return nil, Token{}, fmt.Errorf("listing metadata versions: %w", err)
	}

	version := 0
	for _, path := range paths {
		m := versionRe.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err == nil && v > version {
			version = v
		}
	}
	if version == 0 {
		return nil, Token{}, fmt.Errorf("loading table at %s: %w", p.Location, storage.ErrNotFound)
	}

	path := p.metadataPath(version)
	data, err := storage.ReadAll(ctx, p.Store, p.Location+"/"+path)
	if err != nil {
		return nil, Token{}, fmt.Errorf("reading metadata v%d: %w", version, err)
	}
	md, err := table.ParseMetadata(data)
	if err != nil {
		return nil, Token{}, fmt.Errorf("reading metadata v%d: %w", version, err)
	}

	return md, Token{Version: version, Path: path}, nil
}

func (p *StorePointer) Swap(ctx context.Context, base Token, md *table.Metadata) (Token, error) {
	return p.write(ctx, base.Version+1, md)
}

func (p *StorePointer) write(ctx context.Context, version int, md *table.Metadata) (Token, error) {
	data, err := md.Marshal()
	if err != nil {
		return Token{}, fmt.Errorf("encoding metadata: %w", err)
	}

	path := p.metadataPath(version)
	if err := p.Store.PutIfAbsent(ctx, p.Location+"/"+path, bytes.NewReader(data)); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Token{}, fmt.Errorf("publishing metadata v%d: %w", version, ErrStale)
		}
		return Token{}, fmt.Errorf("publishing metadata v%d: %w", version, err)
	}

	// Advisory only; losing this write never loses the commit.
	hint := []byte(strconv.Itoa(version))
	_ = p.Store.Write(ctx, p.Location+"/metadata/version-hint.text", bytes.NewReader(hint))

	return Token{Version: version, Path: path}, nil
}
