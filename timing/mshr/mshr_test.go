package mshr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/prefetchsim/timing/mshr"
)

var _ = Describe("Queue", func() {
	var q *mshr.Queue

	BeforeEach(func() {
		q = mshr.New(2, 10)
	})

	It("should panic on a bad geometry", func() {
		Expect(func() { mshr.New(0, 10) }).To(Panic())
		Expect(func() { mshr.New(4, -1) }).To(Panic())
	})

	It("should track outstanding requests", func() {
		e, ok := q.Add(0x1000, 5)
		Expect(ok).To(BeTrue())
		Expect(e.Addr).To(Equal(uint64(0x1000)))
		Expect(e.IssuedAt).To(Equal(int64(5)))
		Expect(e.ReadyAt).To(Equal(int64(15)))
		Expect(e.ID).NotTo(BeEmpty())

		Expect(q.Contains(0x1000)).To(BeTrue())
		Expect(q.Contains(0x2000)).To(BeFalse())
		Expect(q.Len()).To(Equal(1))
		Expect(q.Capacity()).To(Equal(2))
	})

	It("should give every request its own ID", func() {
		a, _ := q.Add(0x1000, 0)
		b, _ := q.Add(0x2000, 0)
		Expect(a.ID).NotTo(Equal(b.ID))
	})

	It("should refuse duplicates", func() {
		q.Add(0x1000, 0)
		_, ok := q.Add(0x1000, 1)
		Expect(ok).To(BeFalse())
		Expect(q.Len()).To(Equal(1))
	})

	It("should refuse requests when full", func() {
		q.Add(0x1000, 0)
		q.Add(0x2000, 0)

		Expect(q.IsFull()).To(BeTrue())
		_, ok := q.Add(0x3000, 0)
		Expect(ok).To(BeFalse())
		Expect(q.Contains(0x3000)).To(BeFalse())
	})

	It("should retire requests once they are ready", func() {
		q.Add(0x1000, 0)
		q.Add(0x2000, 4)

		Expect(q.Retire(9)).To(BeEmpty())

		done := q.Retire(12)
		Expect(done).To(HaveLen(1))
		Expect(done[0].Addr).To(Equal(uint64(0x1000)))
		Expect(q.Contains(0x1000)).To(BeFalse())
		Expect(q.IsFull()).To(BeFalse())

		done = q.Retire(100)
		Expect(done).To(HaveLen(1))
		Expect(done[0].Addr).To(Equal(uint64(0x2000)))
		Expect(q.Len()).To(Equal(0))
	})

	It("should drain in issue order", func() {
		q.Add(0x2000, 0)
		q.Add(0x1000, 1)

		done := q.Drain()
		Expect(done).To(HaveLen(2))
		Expect(done[0].Addr).To(Equal(uint64(0x2000)))
		Expect(done[1].Addr).To(Equal(uint64(0x1000)))
		Expect(q.Len()).To(Equal(0))
	})

	It("should forget everything on reset", func() {
		q.Add(0x1000, 0)
		q.Reset()

		Expect(q.Len()).To(Equal(0))
		Expect(q.Contains(0x1000)).To(BeFalse())
	})
})
