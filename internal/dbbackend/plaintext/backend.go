// Package plaintext implements the database-backend=raw persistence
// strategy: one human-readable file per object (spec.md §4.4
// "Plain-text").
package plaintext

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/toontownretro/otp-server/internal/dbbackend"
	"github.com/toontownretro/otp-server/internal/dbbackend/filestore"
	"github.com/toontownretro/otp-server/internal/dclass"
	"github.com/toontownretro/otp-server/internal/model"
)

const header = "# DatabaseObject"

// Backend persists each object as "<dir>/<doId><ext>", a header line
// followed by className, version, uuId, and one "field" line per db
// field holding its hex-encoded packed value.
type Backend struct {
	dir      string
	ext      string
	registry *dclass.Registry
	accounts *filestore.AccountDirectory

	mu sync.Mutex
}

// New builds a plain-text backend rooted at dir, using ext as the
// per-object file suffix (e.g. ".db") and registry to resolve a loaded
// object's class by name.
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

	var sb strings.Builder
	fmt.Fprintln(&sb, header)
	fmt.Fprintf(&sb, "className %s\n", obj.Class.Name)
	fmt.Fprintf(&sb, "version %d.%d.%d\n", obj.SchemaVersion.Major, obj.SchemaVersion.Minor, obj.SchemaVersion.Sub)
	fmt.Fprintf(&sb, "doId %d\n", uint32(obj.DoID))
	fmt.Fprintf(&sb, "uuId %s\n", obj.UUID.String())

	snapshot := obj.Snapshot()
	for _, f := range obj.Class.Fields {
		if !f.IsDB() {
			continue
		}
		v, ok := snapshot[f.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "field %s %s\n", f.Name, hex.EncodeToString(dclass.Pack(v)))
	}

	path := filestore.Path(b.dir, obj.DoID, b.ext)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing database object %d: %w", obj.DoID, err)
	}
	return nil
}

func (b *Backend) Load(_ context.Context, doID model.DoID) (*model.DatabaseObject, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := filestore.Path(b.dir, doID, b.ext)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("opening database object %d: %w", doID, err)
	}
	defer f.Close()

	var (
		className string
		version   model.Version
		uuId      uuid.UUID
		fields    = make(dclass.FieldValues)
	)

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			if line != header {
				return nil, false, fmt.Errorf("database object %d: missing %q header", doID, header)
			}
			first = false
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 2 {
			continue
		}
		switch parts[0] {
		case "className":
			className = parts[1]
		case "version":
			var maj, min, sub int
			if _, err := fmt.Sscanf(parts[1], "%d.%d.%d", &maj, &min, &sub); err != nil {
				return nil, false, fmt.Errorf("database object %d: bad version %q: %w", doID, parts[1], err)
			}
			version = model.Version{Major: uint8(maj), Minor: uint8(min), Sub: uint8(sub)}
		case "uuId":
			parsed, err := uuid.Parse(parts[1])
			if err != nil {
				return nil, false, fmt.Errorf("database object %d: bad uuId: %w", doID, err)
			}
			uuId = parsed
		case "field":
			if len(parts) < 3 {
				continue
			}
			raw, err := hex.DecodeString(parts[2])
			if err != nil {
				return nil, false, fmt.Errorf("database object %d: bad field %q encoding: %w", doID, parts[1], err)
			}
			v, _, err := dclass.Unpack(raw)
			if err != nil {
				return nil, false, fmt.Errorf("database object %d: unpacking field %q: %w", doID, parts[1], err)
			}
			fields[parts[1]] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("reading database object %d: %w", doID, err)
	}

	if version.Less(model.MinSupportedVersion) || version.Greater(model.CurrentVersion) {
		return nil, false, fmt.Errorf("database object %d: %w (%d.%d.%d)", doID, dbbackend.ErrUnsupportedVersion, version.Major, version.Minor, version.Sub)
	}

	class, err := b.registry.ClassByName(className)
	if err != nil {
		return nil, false, fmt.Errorf("database object %d: %w", doID, err)
	}

	obj := model.NewDatabaseObject(doID, class, uuId)
	obj.SchemaVersion = version
	obj.Fields = fields
	return obj, true, nil
}
