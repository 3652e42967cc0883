package pack

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/meta/memdb"
	"github.com/FlorianSauer/fragstore/store"
)

func newTestCache(cfg Config) (*Cache, meta.Metadata) {
	db, err := memdb.Open(":memory:")
	Expect(err).NotTo(HaveOccurred())
	backend := store.NewMemory(1<<20, "")
	return NewCache(cfg, db, meta.NewPending(), backend), db
}

var _ = Describe("Cache", func() {
	var (
		c   *Cache
		ctx = context.Background()
	)

	BeforeEach(func() {
		cfg := DefaultConfig()
		cfg.MinFill = 0.9
		c, _ = newTestCache(cfg)
	})

	It("dedups identical payloads by hash on Add", func() {
		data := []byte("hello fragment")
		f1, err := c.Add(ctx, int64(len(data)), data)
		Expect(err).NotTo(HaveOccurred())
		f2, err := c.Add(ctx, int64(len(data)), data)
		Expect(err).NotTo(HaveOccurred())
		Expect(f2.ID).To(Equal(f1.ID))
		Expect(f2.Hash).To(Equal(f1.Hash))
	})

	It("serves a buffered fragment's bytes back out via Load before any flush", func() {
		data := []byte("round trip me")
		f, err := c.Add(ctx, int64(len(data)), data)
		Expect(err).NotTo(HaveOccurred())

		got, err := c.Load(ctx, f.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
	})

	It("uploads a forced flush and still serves the fragment back via the backend path", func() {
		data := []byte("forced flush payload")
		f, err := c.Add(ctx, int64(len(data)), data)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.Flush(ctx, true)).To(Succeed())

		got, err := c.Load(ctx, f.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(data))
	})

	It("computes the SHA-256 hash deterministically", func() {
		data := []byte("fixed content")
		f, err := c.Add(ctx, int64(len(data)), data)
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Hash).To(Equal(cos.SHA256(data)))
	})
})
