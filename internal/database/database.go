package database

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	ErrNotFound      = errors.New("database: dataset not found")
	ErrExists        = errors.New("database: group already exists")
	ErrShapeMismatch = errors.New("database: dataset shape mismatch")
	ErrOutOfRange    = errors.New("database: configuration range out of bounds")
	ErrBadPath       = errors.New("database: dataset path must be group/property")
)

var (
	rootBucket   = []byte("datasets")
	framesBucket = []byte("frames")
	infoKey      = []byte("info")
)

const DefaultCacheSize = 4096

type DatasetInfo struct {
	Path           string `json:"path"`
	Atoms          int    `json:"atoms"`
	Dim            int    `json:"dim"`
	Configurations int    `json:"configurations"`
}

type Options struct {
	// CacheSize bounds the number of decoded configurations kept in memory.
	CacheSize int
	Logger    *zap.Logger
}

// Database stores per-configuration property vectors in a bbolt file.
// Datasets are addressed as "group/property"; groups are species or, for
// system-wide quantities, the property name itself.
type Database struct {
	db    *bolt.DB
	path  string
	enc   *zstd.Encoder
	dec   *zstd.Decoder
	cache *lru.Cache[string, []float64]
	log   *zap.Logger

	// gen counts committed writes; a reader only caches frames if no
	// write committed since its transaction began.
	cacheMu sync.Mutex
	gen     uint64
}

func Open(path string, opts Options) (*Database, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	cache, err := lru.New[string, []float64](opts.CacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, path: path, enc: enc, dec: dec, cache: cache, log: opts.Logger}, nil
}

func (d *Database) Close() error {
	d.dec.Close()
	d.enc.Close()
	d.cache.Purge()
	return d.db.Close()
}

func (d *Database) Path() string {
	return d.path
}

// Size is the size of the database file in bytes.
func (d *Database) Size() (int64, error) {
	fi, err := os.Stat(d.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func splitPath(path string) (string, string, error) {
	group, prop, ok := strings.Cut(path, "/")
	if !ok || group == "" || prop == "" || strings.Contains(prop, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	return group, prop, nil
}

func Join(group, property string) string {
	return group + "/" + property
}

func datasetBucket(tx *bolt.Tx, path string) (*bolt.Bucket, error) {
	group, prop, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	g := tx.Bucket(rootBucket).Bucket([]byte(group))
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	b := g.Bucket([]byte(prop))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return b, nil
}

func readInfo(b *bolt.Bucket, path string) (DatasetInfo, error) {
	var info DatasetInfo
	if err := json.Unmarshal(b.Get(infoKey), &info); err != nil {
		return info, fmt.Errorf("dataset %s: %w", path, err)
	}
	return info, nil
}

func writeInfo(b *bolt.Bucket, info DatasetInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return b.Put(infoKey, data)
}

// AddDataset creates an empty dataset. An existing dataset with the same
// shape is left untouched.
func (d *Database) AddDataset(path string, atoms, dim int) error {
	group, prop, err := splitPath(path)
	if err != nil {
		return err
	}
	return d.db.Update(func(tx *bolt.Tx) error {
		g, err := tx.Bucket(rootBucket).CreateBucketIfNotExists([]byte(group))
		if err != nil {
			return err
		}
		if b := g.Bucket([]byte(prop)); b != nil {
			info, err := readInfo(b, path)
			if err != nil {
				return err
			}
			if info.Atoms != atoms || info.Dim != dim {
				return fmt.Errorf("%w: %s is (%d, %d), requested (%d, %d)", ErrShapeMismatch, path, info.Atoms, info.Dim, atoms, dim)
			}
			return nil
		}
		b, err := g.CreateBucket([]byte(prop))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucket(framesBucket); err != nil {
			return err
		}
		d.log.Debug("dataset created", zap.String("path", path), zap.Int("atoms", atoms), zap.Int("dim", dim))
		return writeInfo(b, DatasetInfo{Path: path, Atoms: atoms, Dim: dim})
	})
}

func (d *Database) Exists(path string) bool {
	_, err := d.Info(path)
	return err == nil
}

func (d *Database) Info(path string) (DatasetInfo, error) {
	var info DatasetInfo
	err := d.db.View(func(tx *bolt.Tx) error {
		b, err := datasetBucket(tx, path)
		if err != nil {
			return err
		}
		info, err = readInfo(b, path)
		return err
	})
	return info, err
}

// Datasets lists every dataset sorted by path.
func (d *Database) Datasets() ([]DatasetInfo, error) {
	var out []DatasetInfo
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEach(func(group, v []byte) error {
			if v != nil {
				return nil
			}
			g := tx.Bucket(rootBucket).Bucket(group)
			return g.ForEach(func(prop, v []byte) error {
				if v != nil {
					return nil
				}
				path := Join(string(group), string(prop))
				info, err := readInfo(g.Bucket(prop), path)
				if err != nil {
					return err
				}
				out = append(out, info)
				return nil
			})
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, err
}

// Groups lists the top-level groups.
func (d *Database) Groups() ([]string, error) {
	var out []string
	err := d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rootBucket).ForEach(func(k, v []byte) error {
			if v == nil {
				out = append(out, string(k))
			}
			return nil
		})
	})
	sort.Strings(out)
	return out, err
}

func frameKey(c int) []byte {
	var k [4]byte
	binary.BigEndian.PutUint32(k[:], uint32(c))
	return k[:]
}

func cacheKey(path string, c int) string {
	return fmt.Sprintf("%s#%d", path, c)
}

func (d *Database) encode(values []float64) []byte {
	raw := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return d.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
}

func (d *Database) decode(data []byte, n int) ([]float64, error) {
	raw, err := d.dec.DecodeAll(data, make([]byte, 0, 8*n))
	if err != nil {
		return nil, err
	}
	if len(raw) != 8*n {
		return nil, fmt.Errorf("database: corrupt frame, %d bytes for %d values", len(raw), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

// Write stores frames starting at configuration start, extending the
// dataset if needed. Each frame holds Atoms*Dim values in atom-major order.
func (d *Database) Write(path string, start int, frames [][]float64) (int, error) {
	var total int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b, err := datasetBucket(tx, path)
		if err != nil {
			return err
		}
		info, err := readInfo(b, path)
		if err != nil {
			return err
		}
		if start < 0 || start > info.Configurations {
			return fmt.Errorf("%w: write at %d, dataset %s has %d", ErrOutOfRange, start, path, info.Configurations)
		}
		fb := b.Bucket(framesBucket)
		size := info.Atoms * info.Dim
		for i, frame := range frames {
			if len(frame) != size {
				return fmt.Errorf("%w: frame of %d values for %s, expected %d", ErrShapeMismatch, len(frame), path, size)
			}
			c := start + i
			if err := fb.Put(frameKey(c), d.encode(frame)); err != nil {
				return err
			}
		}
		if end := start + len(frames); end > info.Configurations {
			info.Configurations = end
		}
		total = info.Configurations
		return writeInfo(b, info)
	})
	if err != nil {
		return 0, err
	}
	d.invalidate(path, start, start+len(frames))
	return total, nil
}

// Append adds frames after the last stored configuration and returns the
// new configuration count.
func (d *Database) Append(path string, frames [][]float64) (int, error) {
	info, err := d.Info(path)
	if err != nil {
		return 0, err
	}
	return d.Write(path, info.Configurations, frames)
}

func (d *Database) generation() uint64 {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	return d.gen
}

// remember caches a frame read in a transaction that started at gen.
func (d *Database) remember(gen uint64, key string, frame []float64) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if gen == d.gen {
		d.cache.Add(key, frame)
	}
}

// invalidate drops configurations [from, to) of path after a commit.
func (d *Database) invalidate(path string, from, to int) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.gen++
	for c := from; c < to; c++ {
		d.cache.Remove(cacheKey(path, c))
	}
}

func (d *Database) purge() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.gen++
	d.cache.Purge()
}

// Truncate drops every configuration from n onwards. Truncating to the
// current length or beyond is a no-op.
func (d *Database) Truncate(path string, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: truncate to %d", ErrOutOfRange, n)
	}
	var old int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b, err := datasetBucket(tx, path)
		if err != nil {
			return err
		}
		info, err := readInfo(b, path)
		if err != nil {
			return err
		}
		old = info.Configurations
		if n >= old {
			return nil
		}
		fb := b.Bucket(framesBucket)
		for c := n; c < old; c++ {
			if err := fb.Delete(frameKey(c)); err != nil {
				return err
			}
		}
		info.Configurations = n
		return writeInfo(b, info)
	})
	if err != nil {
		return err
	}
	if n < old {
		d.invalidate(path, n, old)
		d.log.Debug("dataset truncated", zap.String("path", path), zap.Int("from", old), zap.Int("to", n))
	}
	return nil
}

// Load reads configurations [start, stop) of a dataset. A nil atoms slice
// selects every atom.
func (d *Database) Load(path string, start, stop int, atoms []int) (*Tensor, error) {
	if stop < start {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrOutOfRange, start, stop)
	}
	indices := make([]int, stop-start)
	for i := range indices {
		indices[i] = start + i
	}
	return d.LoadConfigurations(path, indices, atoms)
}

// LoadConfigurations reads an arbitrary list of configurations.
func (d *Database) LoadConfigurations(path string, configs []int, atoms []int) (*Tensor, error) {
	var t *Tensor
	gen := d.generation()
	err := d.db.View(func(tx *bolt.Tx) error {
		b, err := datasetBucket(tx, path)
		if err != nil {
			return err
		}
		info, err := readInfo(b, path)
		if err != nil {
			return err
		}
		if atoms == nil {
			atoms = make([]int, info.Atoms)
			for i := range atoms {
				atoms[i] = i
			}
		}
		for _, a := range atoms {
			if a < 0 || a >= info.Atoms {
				return fmt.Errorf("%w: atom %d of %d in %s", ErrOutOfRange, a, info.Atoms, path)
			}
		}

		fb := b.Bucket(framesBucket)
		t = NewTensor(len(atoms), len(configs), info.Dim)
		for ci, c := range configs {
			if c < 0 || c >= info.Configurations {
				return fmt.Errorf("%w: configuration %d of %d in %s", ErrOutOfRange, c, info.Configurations, path)
			}
			frame, ok := d.cache.Get(cacheKey(path, c))
			if !ok {
				data := fb.Get(frameKey(c))
				if data == nil {
					return fmt.Errorf("%w: configuration %d missing in %s", ErrNotFound, c, path)
				}
				frame, err = d.decode(data, info.Atoms*info.Dim)
				if err != nil {
					return err
				}
				d.remember(gen, cacheKey(path, c), frame)
			}
			for ai, a := range atoms {
				copy(t.Data[t.Index(ai, ci, 0):t.Index(ai, ci, 0)+info.Dim], frame[a*info.Dim:(a+1)*info.Dim])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a dataset, and its group when it becomes empty.
func (d *Database) Delete(path string) error {
	group, prop, err := splitPath(path)
	if err != nil {
		return err
	}
	err = d.db.Update(func(tx *bolt.Tx) error {
		g := tx.Bucket(rootBucket).Bucket([]byte(group))
		if g == nil || g.Bucket([]byte(prop)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if err := g.DeleteBucket([]byte(prop)); err != nil {
			return err
		}
		if k, _ := g.Cursor().First(); k == nil {
			return tx.Bucket(rootBucket).DeleteBucket([]byte(group))
		}
		return nil
	})
	if err == nil {
		d.purge()
	}
	return err
}

// RenameGroup moves every dataset of a group under a new name.
func (d *Database) RenameGroup(from, to string) error {
	err := d.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		src := root.Bucket([]byte(from))
		if src == nil {
			return fmt.Errorf("%w: group %s", ErrNotFound, from)
		}
		if root.Bucket([]byte(to)) != nil {
			return fmt.Errorf("%w: %s", ErrExists, to)
		}
		dst, err := root.CreateBucket([]byte(to))
		if err != nil {
			return err
		}
		if err := copyBucket(src, dst); err != nil {
			return err
		}
		err = dst.ForEach(func(prop, v []byte) error {
			if v != nil {
				return nil
			}
			b := dst.Bucket(prop)
			info, err := readInfo(b, string(prop))
			if err != nil {
				return err
			}
			info.Path = Join(to, string(prop))
			return writeInfo(b, info)
		})
		if err != nil {
			return err
		}
		return root.DeleteBucket([]byte(from))
	})
	if err == nil {
		d.purge()
		d.log.Debug("group renamed", zap.String("from", from), zap.String("to", to))
	}
	return err
}

func copyBucket(src, dst *bolt.Bucket) error {
	return src.ForEach(func(k, v []byte) error {
		if v != nil {
			return dst.Put(append([]byte(nil), k...), append([]byte(nil), v...))
		}
		child, err := dst.CreateBucket(append([]byte(nil), k...))
		if err != nil {
			return err
		}
		return copyBucket(src.Bucket(k), child)
	})
}
