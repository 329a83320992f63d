// Package filestore holds the directory-scanning and account-index
// helpers shared by the plain-text and packed-binary database backends
// (spec.md §4.4): both address an object by "<doId><ext>" under a
// configured root directory and keep an account-name -> doId index
// alongside it.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/toontownretro/otp-server/internal/model"
)

// NextDoID scans dir for files named "<digits><ext>" and returns
// max(existing)+1, or model.FirstPersistentDoID if the directory holds
// no object files yet (spec.md §4.4 "ID allocation").
func NextDoID(dir, ext string) (model.DoID, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return model.FirstPersistentDoID, nil
		}
		return 0, fmt.Errorf("reading database directory %q: %w", dir, err)
	}

	var max uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ext) {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		n, err := strconv.ParseUint(stem, 10, 32)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return model.FirstPersistentDoID, nil
	}
	next := model.DoID(max + 1)
	if next < model.FirstPersistentDoID {
		return model.FirstPersistentDoID, nil
	}
	return next, nil
}

// Path returns the object file path for doID under dir.
func Path(dir string, doID model.DoID, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%d%s", uint32(doID), ext))
}

// Exists reports whether doID's object file is present under dir.
func Exists(dir string, doID model.DoID, ext string) (bool, error) {
	_, err := os.Stat(Path(dir, doID, ext))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %q: %w", Path(dir, doID, ext), err)
}

// AccountDirectory implements dbbackend.AccountDirectory as one file per
// account name, "<dir>/<accountName>.txt" holding the bound doId as
// decimal text (original_source/client_agent.py's account-file
// directory). Access is serialised by mu; the backend this is embedded
// in expects the same region to guard object load/save (spec.md §5
// "Account directory: guarded by the same region as object load/save").
type AccountDirectory struct {
	Dir string
	mu  sync.Mutex
}

func (d *AccountDirectory) path(accountName string) string {
	return filepath.Join(d.Dir, accountName+".txt")
}

func (d *AccountDirectory) Lookup(_ context.Context, accountName string) (model.DoID, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path(accountName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("reading account file for %q: %w", accountName, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, false, fmt.Errorf("parsing account file for %q: %w", accountName, err)
	}
	return model.DoID(n), true, nil
}

func (d *AccountDirectory) Bind(_ context.Context, accountName string, doID model.DoID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating account directory %q: %w", d.Dir, err)
	}
	body := fmt.Sprintf("%d\n", uint32(doID))
	if err := os.WriteFile(d.path(accountName), []byte(body), 0o644); err != nil {
		return fmt.Errorf("writing account file for %q: %w", accountName, err)
	}
	return nil
}
