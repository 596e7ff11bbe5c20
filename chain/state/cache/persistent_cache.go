package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/crytic/forkdb/logging"
	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	stateObjectBucket = []byte("stateObjects")
	slotBucket        = []byte("slots")
	blockHashBucket   = []byte("blockHashes")
)

// CacheDirectoryName is the directory created under the working directory to hold persistent cache files.
const CacheDirectoryName = ".forkdbcache"

// persistentCache provides a thread-safe cache for storing objects/slots that persists the cache to disk. Entries read
// back from disk are promoted into the in-memory cache, so enumeration only covers what this session resolved.
type persistentCache struct {
	memCache *nonPersistentStateCache
	db       *bbolt.DB

	pendingWriteMutex sync.Mutex
	pendingWrites     []pendingWrite
	flushThreshold    int

	closeOnce sync.Once
	closeErr  error
}

type pendingWrite struct {
	bucket []byte
	key    []byte
	value  []byte
}

func newPersistentCache(ctx context.Context, workingDir string, rpcAddr string, blockKey string) (*persistentCache, error) {
	cacheDir, err := createCacheDirectory(workingDir)
	if err != nil {
		return nil, err
	}
	cacheFile := filepath.Join(cacheDir, getCacheFilename(rpcAddr, blockKey))
	db, err := bbolt.Open(cacheFile, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open cache database %s", cacheFile)
	}

	// create the buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{stateObjectBucket, slotBucket, blockHashBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}

	p := &persistentCache{
		memCache:       newNonPersistentStateCache(),
		db:             db,
		flushThreshold: 25,
		pendingWrites:  []pendingWrite{},
	}

	// close db if context cancelled
	go func() {
		<-ctx.Done()
		if err := p.Close(); err != nil {
			logging.GlobalLogger.NewSubLogger("module", logging.CACHE_SERVICE).Error("Failed to close the persistent fork cache", err)
		}
	}()

	return p, nil
}

func (p *persistentCache) getFromPersist(bucket []byte, key []byte, value any) (bool, error) {
	found := false
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, value)
	})
	if err != nil {
		return false, errors.Wrap(err, "could not read from cache database")
	}
	return found, nil
}

func (p *persistentCache) writeToPersist(bucket []byte, key []byte, value any) error {
	serialized, err := json.Marshal(value)
	if err != nil {
		return errors.WithStack(err)
	}

	p.pendingWriteMutex.Lock()
	defer p.pendingWriteMutex.Unlock()

	p.pendingWrites = append(p.pendingWrites, pendingWrite{bucket: bucket, key: key, value: serialized})
	if len(p.pendingWrites) >= p.flushThreshold {
		return p.flushWrites()
	}
	return nil
}

// flushWrites commits all pending writes in a single transaction. The caller must hold pendingWriteMutex.
func (p *persistentCache) flushWrites() error {
	if len(p.pendingWrites) == 0 {
		return nil
	}
	err := p.db.Update(func(tx *bbolt.Tx) error {
		for _, pw := range p.pendingWrites {
			if err := tx.Bucket(pw.bucket).Put(pw.key, pw.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "could not flush cache database")
	}
	p.pendingWrites = p.pendingWrites[:0]
	return nil
}

func (p *persistentCache) GetStateObject(addr common.Address) (*StateObject, error) {
	so, err := p.memCache.GetStateObject(addr)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return so, err
	}

	// check persistent cache
	s := StateObject{}
	exists, err := p.getFromPersist(stateObjectBucket, addr.Bytes(), &s)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCacheMiss
	}
	err = p.memCache.WriteStateObject(addr, s)
	return &s, err
}

func (p *persistentCache) GetSlotData(addr common.Address, slot common.Hash) (common.Hash, error) {
	data, err := p.memCache.GetSlotData(addr, slot)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return data, err
	}

	// check persistent cache
	data = common.Hash{}
	exists, err := p.getFromPersist(slotBucket, slotKey(addr, slot), &data)
	if err != nil {
		return common.Hash{}, err
	}
	if !exists {
		return common.Hash{}, ErrCacheMiss
	}
	err = p.memCache.WriteSlotData(addr, slot, data)
	return data, err
}

func (p *persistentCache) GetBlockHash(number uint64) (common.Hash, error) {
	hash, err := p.memCache.GetBlockHash(number)
	if err == nil || !errors.Is(err, ErrCacheMiss) {
		return hash, err
	}

	hash = common.Hash{}
	exists, err := p.getFromPersist(blockHashBucket, blockNumberKey(number), &hash)
	if err != nil {
		return common.Hash{}, err
	}
	if !exists {
		return common.Hash{}, ErrCacheMiss
	}
	err = p.memCache.WriteBlockHash(number, hash)
	return hash, err
}

func (p *persistentCache) WriteStateObject(addr common.Address, data StateObject) error {
	if err := p.memCache.WriteStateObject(addr, data); err != nil {
		return err
	}
	return p.writeToPersist(stateObjectBucket, addr.Bytes(), data)
}

func (p *persistentCache) WriteSlotData(addr common.Address, slot common.Hash, data common.Hash) error {
	if err := p.memCache.WriteSlotData(addr, slot, data); err != nil {
		return err
	}
	return p.writeToPersist(slotBucket, slotKey(addr, slot), data)
}

func (p *persistentCache) WriteBlockHash(number uint64, hash common.Hash) error {
	if err := p.memCache.WriteBlockHash(number, hash); err != nil {
		return err
	}
	return p.writeToPersist(blockHashBucket, blockNumberKey(number), hash)
}

func (p *persistentCache) ForEachStateObject(fn func(addr common.Address, obj StateObject)) {
	p.memCache.ForEachStateObject(fn)
}

func (p *persistentCache) ForEachSlot(fn func(addr common.Address, slot common.Hash, data common.Hash)) {
	p.memCache.ForEachSlot(fn)
}

func (p *persistentCache) ForEachBlockHash(fn func(number uint64, hash common.Hash)) {
	p.memCache.ForEachBlockHash(fn)
}

// Close flushes any pending writes and closes the database. It is safe to call more than once.
func (p *persistentCache) Close() error {
	p.closeOnce.Do(func() {
		p.pendingWriteMutex.Lock()
		defer p.pendingWriteMutex.Unlock()

		if err := p.flushWrites(); err != nil {
			p.closeErr = err
			_ = p.db.Close()
			return
		}
		p.closeErr = errors.WithStack(p.db.Close())
	})
	return p.closeErr
}

func slotKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, common.AddressLength+common.HashLength)
	key = append(key, addr.Bytes()...)
	return append(key, slot.Bytes()...)
}

func blockNumberKey(number uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, number)
	return key
}

func createCacheDirectory(workingDir string) (string, error) {
	cachePath := filepath.Join(workingDir, CacheDirectoryName)
	_, err := os.Stat(cachePath)
	if os.IsNotExist(err) {
		// Create directory with 0755 permissions if it doesn't exist
		err = os.Mkdir(cachePath, 0755)
		if err != nil {
			return "", errors.Wrap(err, "failed to create cache directory")
		}
	} else if err != nil {
		return "", errors.Wrap(err, "failed to check cache directory")
	}
	return cachePath, nil
}

// getCacheFilename derives a file name unique to the RPC endpoint and pinned block, so caches for different networks
// or blocks never mix.
func getCacheFilename(rpcAddr string, blockKey string) string {
	h := sha256.New()
	h.Write([]byte(rpcAddr))
	bs := h.Sum(nil)

	return fmt.Sprintf("%s-%x.dat", blockKey, bs[0:10])
}
