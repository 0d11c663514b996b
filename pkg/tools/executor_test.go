package tools_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/tools"
)

// echoTool repeats its "text" argument, optionally failing or stalling.
type echoTool struct {
	name  string
	fail  error
	stall time.Duration
}

func (t *echoTool) Name() string { return t.name }

func (t *echoTool) Description() string { return "echoes text back" }

func (t *echoTool) Category() string { return "test" }

func (t *echoTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required":             []string{"text"},
		"additionalProperties": false,
	}
}

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.fail != nil {
		return "", t.fail
	}

	if t.stall > 0 {
		select {
		case <-time.After(t.stall):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	text, _ := args["text"].(string)
	return text, nil
}

func failureKind(err error) tools.FailureKind {
	var failure *tools.Failure
	ExpectWithOffset(1, errors.As(err, &failure)).To(BeTrue())
	return failure.Kind
}

var _ = Describe("Executor", func() {
	var (
		exec *tools.Executor
		ctx  context.Context
	)

	BeforeEach(func() {
		exec = tools.NewExecutor(tools.Config{})
		Expect(exec.Register(&echoTool{name: "echo"})).To(Succeed())
		ctx = context.Background()
	})

	Describe("Register", func() {
		It("rejects duplicate names", func() {
			err := exec.Register(&echoTool{name: "echo"})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("already registered"))
		})

		It("lists the catalog sorted by name", func() {
			Expect(exec.Register(&echoTool{name: "alpha"})).To(Succeed())

			catalog := exec.Catalog()
			Expect(catalog).To(HaveLen(2))
			Expect(catalog[0].Name()).To(Equal("alpha"))
			Expect(catalog[1].Name()).To(Equal("echo"))
		})
	})

	Describe("Execute", func() {
		It("runs a valid call", func() {
			observation, err := exec.Execute(ctx, "echo", map[string]any{"text": "hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(observation).To(Equal("hello"))
		})

		It("classifies unknown tools as validation failures", func() {
			_, err := exec.Execute(ctx, "nope", nil)
			Expect(failureKind(err)).To(Equal(tools.FailureValidation))
		})

		It("classifies schema violations as validation failures", func() {
			_, err := exec.Execute(ctx, "echo", map[string]any{"text": 42})
			Expect(failureKind(err)).To(Equal(tools.FailureValidation))

			_, err = exec.Execute(ctx, "echo", map[string]any{})
			Expect(failureKind(err)).To(Equal(tools.FailureValidation))
		})

		It("classifies refused calls as permission failures", func() {
			gated := tools.NewExecutor(tools.Config{
				Authorizer: tools.Allowlist{"something_else": true},
			})
			Expect(gated.Register(&echoTool{name: "echo"})).To(Succeed())

			_, err := gated.Execute(ctx, "echo", map[string]any{"text": "hi"})
			Expect(failureKind(err)).To(Equal(tools.FailurePermission))
		})

		It("classifies tool errors as execution failures", func() {
			Expect(exec.Register(&echoTool{
				name: "broken",
				fail: errors.New("backend exploded"),
			})).To(Succeed())

			_, err := exec.Execute(ctx, "broken", map[string]any{"text": "hi"})
			Expect(failureKind(err)).To(Equal(tools.FailureExecution))
			Expect(err.Error()).To(ContainSubstring("backend exploded"))
		})

		It("classifies slow tools as timeout failures", func() {
			strict := tools.NewExecutor(tools.Config{Timeout: 20 * time.Millisecond})
			Expect(strict.Register(&echoTool{
				name:  "slow",
				stall: time.Second,
			})).To(Succeed())

			_, err := strict.Execute(ctx, "slow", map[string]any{"text": "hi"})
			Expect(failureKind(err)).To(Equal(tools.FailureTimeout))
		})

		It("tracks per-tool statistics", func() {
			_, err := exec.Execute(ctx, "echo", map[string]any{"text": "one"})
			Expect(err).NotTo(HaveOccurred())
			_, err = exec.Execute(ctx, "echo", map[string]any{})
			Expect(err).To(HaveOccurred())

			stats := exec.Stats("echo")
			Expect(stats.Calls).To(Equal(2))
			Expect(stats.Failures).To(Equal(1))
		})
	})
})
