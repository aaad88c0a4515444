package monitor

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Monitor lifecycle", func() {
	var (
		gcCount atomic.Uint64
		heap    atomic.Uint64
		m       *Monitor
		sink    *recordingSink
	)

	BeforeEach(func() {
		gcCount.Store(0)
		heap.Store(16 * mb)
		sink = &recordingSink{}
		m = New(SourceFunc(func(context.Context) (Reading, error) {
			return Reading{
				HeapUsed:      heap.Load(),
				HeapCommitted: 64 * mb,
				HeapMax:       HeapMaxUnknown,
				GCCount:       gcCount.Load(),
			}, nil
		}))
	})

	AfterEach(func() {
		Expect(m.Stop()).To(Succeed())
	})

	It("starts stopped", func() {
		Expect(m.Running()).To(BeFalse())
		Expect(m.Stop()).To(Succeed())
	})

	It("moves to running and back", func() {
		Expect(m.Start(0, 2*time.Millisecond, sink)).To(Succeed())
		Expect(m.Running()).To(BeTrue())
		Eventually(func() int { return len(sink.Snapshots()) }).Should(BeNumerically(">=", 3))

		Expect(m.Stop()).To(Succeed())
		Expect(m.Running()).To(BeFalse())

		delivered := len(sink.Snapshots())
		Consistently(func() int { return len(sink.Snapshots()) }, 20*time.Millisecond).Should(Equal(delivered))
	})

	It("waits for the initial delay", func() {
		Expect(m.Start(50*time.Millisecond, time.Millisecond, sink)).To(Succeed())
		Consistently(func() int { return len(sink.Snapshots()) }, 25*time.Millisecond).Should(BeZero())
		Eventually(func() int { return len(sink.Snapshots()) }).Should(BeNumerically(">", 0))
	})

	It("reports each collection increase exactly once", func() {
		gcCount.Store(3)
		Expect(m.Start(0, 2*time.Millisecond, sink)).To(Succeed())
		Eventually(func() int { return len(sink.Snapshots()) }).Should(BeNumerically(">=", 2))
		Expect(sink.Events()).To(BeEmpty())

		gcCount.Store(5)
		Eventually(func() []GCEvent { return sink.Events() }).Should(HaveLen(1))
		Consistently(func() []GCEvent { return sink.Events() }, 20*time.Millisecond).Should(HaveLen(1))
		Expect(sink.Events()[0].GCCount).To(Equal(uint64(5)))
	})

	It("does not replay collections that happened while stopped", func() {
		gcCount.Store(1)
		Expect(m.Start(0, 2*time.Millisecond, sink)).To(Succeed())
		Eventually(func() int { return len(sink.Snapshots()) }).Should(BeNumerically(">=", 1))
		Expect(m.Stop()).To(Succeed())

		gcCount.Store(25)
		heap.Store(512 * mb)

		restarted := &recordingSink{}
		Expect(m.Start(0, 2*time.Millisecond, restarted)).To(Succeed())
		Eventually(func() int { return len(restarted.Snapshots()) }).Should(BeNumerically(">=", 2))

		Expect(restarted.Resets()).To(Equal(1))
		Expect(restarted.Snapshots()[0].AllocationRateMBps).To(BeZero())
		Expect(restarted.Events()).To(BeEmpty())
	})
})
