package peer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Misbehavior scores applied to a peer's standing. Crossing BanThreshold
// bans the peer's address for BanDuration.
const (
	ScoreOversized  = 50
	ScoreDecodeFail = 20
	ScoreInvalidMsg = 10
	BanThreshold    = 100
	BanDuration     = time.Hour
)

const banPrefix = "ban:"

// banRecord is the persisted form of an active ban.
type banRecord struct {
	Host    string    `json:"host"`
	Score   int       `json:"score"`
	Until   time.Time `json:"until"`
	Reason  string    `json:"reason"`
	Created time.Time `json:"created"`
}

// Ban represents an active ban for reporting.
type Ban struct {
	Host   string    `json:"host"`
	Score  int       `json:"score"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

// BanList tracks misbehavior scores per peer address and persists active
// bans so they survive a restart.
type BanList struct {
	mu     sync.Mutex
	scores map[string]int
	db     *leveldb.DB
}

// NewBanList opens the ban database at the specified path and loads any
// bans still in force.
func NewBanList(dbPath string) (*BanList, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open ban database: %w", err)
	}

	bl := BanList{
		scores: make(map[string]int),
		db:     db,
	}

	if err := bl.pruneExpired(); err != nil {
		db.Close()
		return nil, err
	}

	return &bl, nil
}

// Close releases the underlying database.
func (bl *BanList) Close() error {
	return bl.db.Close()
}

// AddScore raises the peer's misbehavior score and bans it when the
// accumulated score crosses the threshold. It reports whether the peer is
// now banned.
func (bl *BanList) AddScore(host string, score int, reason string) (bool, error) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	bl.scores[host] += score
	if bl.scores[host] < BanThreshold {
		return false, nil
	}

	rec := banRecord{
		Host:    host,
		Score:   bl.scores[host],
		Until:   time.Now().UTC().Add(BanDuration),
		Reason:  reason,
		Created: time.Now().UTC(),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return true, fmt.Errorf("marshal ban record: %w", err)
	}
	if err := bl.db.Put([]byte(banPrefix+host), data, nil); err != nil {
		return true, fmt.Errorf("persist ban: %w", err)
	}

	return true, nil
}

// IsBanned reports whether the host currently has a ban in force. An
// expired ban is removed on first sight.
func (bl *BanList) IsBanned(host string) bool {
	data, err := bl.db.Get([]byte(banPrefix+host), nil)
	if err != nil {
		return false
	}

	var rec banRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		bl.db.Delete([]byte(banPrefix+host), nil)
		return false
	}

	if time.Now().UTC().After(rec.Until) {
		bl.db.Delete([]byte(banPrefix+host), nil)

		bl.mu.Lock()
		delete(bl.scores, host)
		bl.mu.Unlock()

		return false
	}

	return true
}

// Unban lifts any ban on the host and resets its score.
func (bl *BanList) Unban(host string) error {
	bl.mu.Lock()
	delete(bl.scores, host)
	bl.mu.Unlock()

	return bl.db.Delete([]byte(banPrefix+host), nil)
}

// Active returns every ban currently in force.
func (bl *BanList) Active() ([]Ban, error) {
	now := time.Now().UTC()

	var bans []Ban
	iter := bl.db.NewIterator(util.BytesPrefix([]byte(banPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var rec banRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if now.After(rec.Until) {
			continue
		}
		bans = append(bans, Ban{
			Host:   rec.Host,
			Score:  rec.Score,
			Until:  rec.Until,
			Reason: rec.Reason,
		})
	}

	return bans, iter.Error()
}

// pruneExpired removes bans whose term has passed.
func (bl *BanList) pruneExpired() error {
	now := time.Now().UTC()

	iter := bl.db.NewIterator(util.BytesPrefix([]byte(banPrefix)), nil)
	defer iter.Release()

	var stale [][]byte
	for iter.Next() {
		var rec banRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil || now.After(rec.Until) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			stale = append(stale, key)
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan ban database: %w", err)
	}

	for _, key := range stale {
		if err := bl.db.Delete(key, nil); err != nil {
			return fmt.Errorf("prune ban: %w", err)
		}
	}

	return nil
}
