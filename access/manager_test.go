package access

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var m *Manager[string]

	BeforeEach(func() {
		m = NewManager[string](func(v string) string { return v })
	})

	It("allows multiple parallel holders on the same value", func() {
		Expect(m.Parallel("a", true, 0)).To(Succeed())
		Expect(m.Parallel("a", true, 0)).To(Succeed())
		m.ParallelRelease("a")
		m.ParallelRelease("a")
	})

	It("blocks a non-blocking exclusive acquire against a held parallel lock", func() {
		Expect(m.Parallel("a", true, 0)).To(Succeed())
		h := NewHolder()
		err := m.Exclusive("a", h, false, 0)
		Expect(err).To(Equal(ErrNonBlocking))
		m.ParallelRelease("a")
	})

	It("is re-entrant for the same Holder", func() {
		h := NewHolder()
		Expect(m.Exclusive("a", h, true, 0)).To(Succeed())
		Expect(m.Exclusive("a", h, true, 0)).To(Succeed())
		m.ExclusiveRelease("a", h)
		// still held once more by h
		Expect(m.Exclusive("a", NewHolder(), false, 0)).To(Equal(ErrNonBlocking))
		m.ExclusiveRelease("a", h)
	})

	It("wakes a blocked exclusive waiter once the holder releases", func() {
		h1, h2 := NewHolder(), NewHolder()
		Expect(m.Exclusive("a", h1, true, 0)).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			Expect(m.Exclusive("a", h2, true, 0)).To(Succeed())
			close(done)
		}()

		Consistently(done, 50*time.Millisecond).ShouldNot(BeClosed())
		m.ExclusiveRelease("a", h1)
		Eventually(done, time.Second).Should(BeClosed())
		m.ExclusiveRelease("a", h2)
	})

	It("times out a blocking acquire past its deadline", func() {
		h1, h2 := NewHolder(), NewHolder()
		Expect(m.Exclusive("a", h1, true, 0)).To(Succeed())
		start := time.Now()
		err := m.Exclusive("a", h2, true, 20*time.Millisecond)
		Expect(err).To(Equal(ErrTimeout))
		Expect(time.Since(start)).To(BeNumerically(">=", 15*time.Millisecond))
		m.ExclusiveRelease("a", h1)
	})

	It("drops the lock object for a namespace value once idle", func() {
		Expect(m.Parallel("a", true, 0)).To(Succeed())
		m.ParallelRelease("a")
		sh := m.shardFor(m.keyOf("a"))
		sh.mu.Lock()
		_, ok := sh.entries["a"]
		sh.mu.Unlock()
		Expect(ok).To(BeFalse())
	})

	It("mass-acquires values in canonical order regardless of caller order", func() {
		var wg sync.WaitGroup
		wg.Add(2)
		var order []string
		var mu sync.Mutex
		record := func(tag string) {
			mu.Lock()
			order = append(order, tag)
			mu.Unlock()
		}

		release1, err1 := m.MassAcquire([]string{"b", "a"}, true, true, 0)
		Expect(err1).NotTo(HaveOccurred())
		record("first")

		go func() {
			defer wg.Done()
			defer GinkgoRecover()
			release2, err2 := m.MassAcquire([]string{"a", "b"}, true, true, time.Second)
			Expect(err2).NotTo(HaveOccurred())
			record("second")
			release2()
		}()

		time.Sleep(20 * time.Millisecond)
		release1()
		wg.Wait()
		Expect(order).To(Equal([]string{"first", "second"}))
	})

	It("releases everything already acquired on partial MassAcquire failure", func() {
		h := NewHolder()
		Expect(m.Exclusive("b", h, true, 0)).To(Succeed())

		release, err := m.MassAcquire([]string{"a", "b"}, true, false, 0)
		Expect(err).To(Equal(ErrNonBlocking))
		Expect(release).To(BeNil())

		// "a" must have been released again, so it is immediately available.
		Expect(m.Parallel("a", false, 0)).To(Succeed())
		m.ParallelRelease("a")
		m.ExclusiveRelease("b", h)
	})
})
