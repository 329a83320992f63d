// Package packed implements the database-backend=packed persistence
// strategy: the same one-file-per-object layout as plaintext, but the
// content is the typed packer's byte stream rather than a readable text
// format (spec.md §4.4 "Packed-binary").
package packed

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dbbackend/filestore"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
	"github.com/toontownretro/otp-server/internal/protocol"
)

// Backend persists each object as "<dir>/<doId><ext>": a leading
// (maj,min,sub) version triplet, className, doId, uuId, then a
// sequence of (fieldName, packedArgs) records read until EOF, each
// restricted to db fields (spec.md §4.4).
type Backend struct {
	dir      string
	ext      string
	registry *dclass.Registry
	accounts *filestore.AccountDirectory

	mu sync.Mutex
}

func New(dir, ext string, registry *dclass.Registry) *Backend {
	return &Backend{
		dir:      dir,
		ext:      ext,
		registry: registry,
		accounts: &filestore.AccountDirectory{Dir: dir + "/accounts"},
	}
}

func (b *Backend) AccountDirectory() dbbackend.AccountDirectory { return b.accounts }

func (b *Backend) Exists(_ context.Context, doID model.DoID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return filestore.Exists(b.dir, doID, b.ext)
}

func (b *Backend) NextDoID(_ context.Context) (model.DoID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return filestore.NextDoID(b.dir, b.ext)
}

func (b *Backend) Save(_ context.Context, obj *model.DatabaseObject) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %q: %w", b.dir, err)
	}

	w := protocol.NewWriter(64)
	w.WriteUint8(obj.SchemaVersion.Major)
	w.WriteUint8(obj.SchemaVersion.Minor)
	w.WriteUint8(obj.SchemaVersion.Sub)
	w.WriteString(obj.Class.Name)
	w.WriteUint32(uint32(obj.DoID))
	w.WriteBytes(obj.UUID[:])

	snapshot := obj.Snapshot()
	for _, f := range obj.Class.Fields {
		if !f.IsDB() {
			continue
		}
		v, ok := snapshot[f.Name]
		if !ok {
			continue
		}
		w.WriteString(f.Name)
		w.WriteBlob(dclass.Pack(v))
	}

	path := filestore.Path(b.dir, obj.DoID, b.ext)
	if err := os.WriteFile(path, w.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing database object %d: %w", obj.DoID, err)
	}
	return nil
}

func (b *Backend) Load(_ context.Context, doID model.DoID) (*model.DatabaseObject, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := filestore.Path(b.dir, doID, b.ext)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading database object %d: %w", doID, err)
	}

	r := protocol.NewReader(data)
	maj, err := r.ReadUint8()
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	min, err := r.ReadUint8()
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	sub, err := r.ReadUint8()
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	version := model.Version{Major: maj, Minor: min, Sub: sub}
	if version.Less(model.MinSupportedVersion) || version.Greater(model.CurrentVersion) {
		return nil, false, fmt.Errorf("database object %d: %w (%d.%d.%d)", doID, dbbackend.ErrUnsupportedVersion, maj, min, sub)
	}

	className, err := r.ReadString()
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	storedDoID, err := r.ReadUint32()
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	uuidBytes, err := r.ReadBytes(16)
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}
	var uuId uuid.UUID
	copy(uuId[:], uuidBytes)

	class, err := b.registry.ClassByName(className)
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}

	fields := make(dclass.FieldValues)
	for r.Remaining() > 0 {
		name, err := r.ReadString()
		if err != nil {
			return nil, false, fmt.Errorf("database object %d: reading field name: %w", doID, err)
		}
		packed, err := r.ReadBlob()
		if err != nil {
			return nil, false, fmt.Errorf("database object %d: reading field %q: %w", doID, name, err)
		}
		v, _, err := dclass.Unpack(packed)
		if err != nil {
			return nil, false, fmt.Errorf("database object %d: unpacking field %q: %w", doID, name, err)
		}
		fields[name] = v
	}

	obj := model.NewDatabaseObject(model.DoID(storedDoID), class, uuId)
	obj.SchemaVersion = version
	obj.Fields = fields
	return obj, true, nil
}
