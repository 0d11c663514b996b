package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/events/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		Expect(p.Publish(context.Background(), nil)).To(MatchError(events.ErrNilEvent))
	})

	It("accepts events and closes cleanly", func() {
		p := nop.NewPublisher()
		event := events.New(events.EventTypeMemoryStored, "memory")

		Expect(p.Publish(context.Background(), event)).To(Succeed())
		Expect(p.Close()).To(Succeed())
	})
})
