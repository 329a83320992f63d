package dbserver

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/toontownretro/otp-server/internal/model"
)

// maxLiveCodesPerAvatar caps how many unexpired codes a single avatar
// may hold at once (spec.md §4.4 REQUEST_SECRET).
const maxLiveCodesPerAvatar = 11

// secretTTL is how long a minted code remains redeemable.
const secretTTL = 48 * time.Hour

const secretAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

type secretEntry struct {
	avID   model.DoID
	expiry time.Time
}

// secretTable is the process-wide friend-secret-code table
// (original_source/database_server.py's in-memory code dict), seeded
// once at boot and reseeded per-avatar after every successful mint so
// consecutive requests for the same avatar never collide immediately
// (spec.md §4.4, §9 "Module-level state").
type secretTable struct {
	mu      sync.Mutex
	rng     *rand.Rand
	byCode  map[string]secretEntry
	byAvID  map[model.DoID]int // live code count per avatar
}

func newSecretTable(seed uint64) *secretTable {
	return &secretTable{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		byCode: make(map[string]secretEntry),
		byAvID: make(map[model.DoID]int),
	}
}

// request mints a new code for avID, or returns ("", false) if avID
// already holds maxLiveCodesPerAvatar unexpired codes.
func (t *secretTable) request(avID model.DoID, now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(now)

	if t.byAvID[avID] >= maxLiveCodesPerAvatar {
		return "", false
	}

	code := t.generateCodeLocked()
	t.byCode[code] = secretEntry{avID: avID, expiry: now.Add(secretTTL)}
	t.byAvID[avID]++

	t.rng = rand.New(rand.NewPCG(uint64(avID), uint64(avID)^0x9e3779b97f4a7c15))
	return code, true
}

// submit consumes code if it is live and unexpired. Returns:
//   - (avID, 1) on success, code consumed
//   - (0, 3) if avID == requesterID
//   - (0, 0) if code is unknown or expired
func (t *secretTable) submit(requesterID model.DoID, code string, now time.Time) (model.DoID, uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.expireLocked(now)

	entry, ok := t.byCode[code]
	if !ok {
		return 0, 0
	}

	delete(t.byCode, code)
	t.byAvID[entry.avID]--
	if t.byAvID[entry.avID] <= 0 {
		delete(t.byAvID, entry.avID)
	}

	if entry.avID == requesterID {
		return 0, 3
	}
	return entry.avID, 1
}

func (t *secretTable) expireLocked(now time.Time) {
	for code, entry := range t.byCode {
		if now.After(entry.expiry) {
			delete(t.byCode, code)
			t.byAvID[entry.avID]--
			if t.byAvID[entry.avID] <= 0 {
				delete(t.byAvID, entry.avID)
			}
		}
	}
}

func (t *secretTable) generateCodeLocked() string {
	var buf [7]byte
	for {
		for i := range buf {
			if i == 3 {
				buf[i] = ' '
				continue
			}
			buf[i] = secretAlphabet[t.rng.IntN(len(secretAlphabet))]
		}
		code := string(buf[:])
		if _, exists := t.byCode[code]; !exists {
			return code
		}
	}
}
