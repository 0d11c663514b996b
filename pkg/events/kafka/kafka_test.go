package kafka_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/events/kafka"
)

var _ = Describe("Publisher", func() {
	It("requires at least one broker", func() {
		_, err := kafka.NewPublisher(kafka.Config{Topic: "strata.events"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("broker"))
	})

	It("requires a topic", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("topic"))
	})

	It("builds a publisher without dialing the brokers", func() {
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: []string{"localhost:9092"},
			Topic:   "strata.events",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})
})
