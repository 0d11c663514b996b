package static_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/completion"
	"github.com/papercomputeco/strata/pkg/completion/static"
)

var _ = Describe("Provider", func() {
	ctx := context.Background()

	It("plays the script in order and repeats the final step", func() {
		p := static.NewProvider(
			&completion.Resolution{Decision: completion.DecisionInvokeTool, ToolName: "clock"},
			&completion.Resolution{Decision: completion.DecisionRespond, Text: "done"},
		)

		first, err := p.Complete(ctx, completion.Request{Prompt: "what time is it"})
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Decision).To(Equal(completion.DecisionInvokeTool))

		second, err := p.Complete(ctx, completion.Request{Prompt: "what time is it"})
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Decision).To(Equal(completion.DecisionRespond))

		third, err := p.Complete(ctx, completion.Request{Prompt: "what time is it"})
		Expect(err).NotTo(HaveOccurred())
		Expect(third).To(Equal(second))
	})

	It("answers directly with an empty script", func() {
		p := static.NewProvider()

		res, err := p.Complete(ctx, completion.Request{Prompt: "hello"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Decision).To(Equal(completion.DecisionRespond))
		Expect(res.Text).To(ContainSubstring("hello"))
	})
})
