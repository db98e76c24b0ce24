package sandbox

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// compiledProgram pairs a goja program with the size it occupies in the
// cache's LRU accounting (approximated by source length).
type compiledProgram struct {
	program *goja.Program
	size    int
}

// cacheKey hashes normalized source (leading/trailing whitespace
// stripped), per spec §9 "Compilation cache keying".
func cacheKey(source string) string {
	normalized := strings.TrimSpace(source)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// compileCache is a content-addressed, size-bounded LRU cache of compiled
// bytecode, per spec §4.1 "Compilation cache". When diskDir is set, the
// raw source of each cached entry is also written there (goja programs
// are not serializable) and removed when the entry is evicted; this
// package never reads those files back.
type compileCache struct {
	mu       sync.Mutex
	maxBytes int
	curBytes int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	diskDir string

	hits   int64
	misses int64
}

type cacheEntry struct {
	key     string
	program *compiledProgram
}

func newCompileCache(maxBytes int, diskDir string) *compileCache {
	c := &compileCache{
		maxBytes: maxBytes,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		diskDir:  diskDir,
	}
	if diskDir != "" {
		_ = os.MkdirAll(diskDir, 0o755)
	}
	return c
}

// getOrCompile returns the cached program for source, compiling and
// inserting it on a miss. The returned bool is true on a cache hit.
func (c *compileCache) getOrCompile(source string) (*compiledProgram, string, bool, error) {
	key := cacheKey(source)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		c.hits++
		prog := el.Value.(*cacheEntry).program
		c.mu.Unlock()
		return prog, key, true, nil
	}
	c.misses++
	c.mu.Unlock()

	program, err := goja.Compile(key, source, false)
	if err != nil {
		return nil, key, false, err
	}
	cp := &compiledProgram{program: program, size: len(source)}

	c.insert(key, cp)
	c.persistSource(key, source)
	return cp, key, false, nil
}

func (c *compileCache) insert(key string, cp *compiledProgram) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).program = cp
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, program: cp})
	c.entries[key] = el
	c.curBytes += cp.size

	for c.maxBytes > 0 && c.curBytes > c.maxBytes && c.order.Len() > 1 {
		back := c.order.Back()
		entry := back.Value.(*cacheEntry)
		c.order.Remove(back)
		delete(c.entries, entry.key)
		c.curBytes -= entry.program.size
		c.evictDisk(entry.key)
	}
}

func (c *compileCache) persistSource(key, source string) {
	if c.diskDir == "" {
		return
	}
	_ = os.WriteFile(filepath.Join(c.diskDir, key+".js"), []byte(source), 0o644)
}

func (c *compileCache) evictDisk(key string) {
	if c.diskDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(c.diskDir, key+".js"))
}

// hitRate returns the fraction of getOrCompile calls that hit cache.
func (c *compileCache) hitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}
