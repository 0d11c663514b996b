package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/completion"
	"github.com/papercomputeco/strata/pkg/completion/ollama"
)

// chatServer fakes /api/chat, always answering with the given message body.
func chatServer(message string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Expect(r.URL.Path).To(Equal("/api/chat"))

		var req map[string]any
		Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
		Expect(req["messages"]).NotTo(BeEmpty())

		resp := map[string]any{
			"message": map[string]any{"role": "assistant", "content": message},
			"done":    true,
		}
		Expect(json.NewEncoder(w).Encode(resp)).To(Succeed())
	}))
}

var _ = Describe("Provider", func() {
	ctx := context.Background()

	It("parses a tool invocation envelope", func() {
		srv := chatServer(`{"thought": "need the time", "decision": "invoke_tool", "tool": "clock", "args": {"tz": "UTC"}}`)
		defer srv.Close()

		p, err := ollama.NewProvider(ollama.Config{BaseURL: srv.URL})
		Expect(err).NotTo(HaveOccurred())

		res, err := p.Complete(ctx, completion.Request{Prompt: "what time is it"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Decision).To(Equal(completion.DecisionInvokeTool))
		Expect(res.ToolName).To(Equal("clock"))
		Expect(res.Args).To(HaveKeyWithValue("tz", "UTC"))
		Expect(res.Thought).To(Equal("need the time"))
	})

	It("treats a plain-text answer as a respond decision", func() {
		srv := chatServer("the capital of France is Paris")
		defer srv.Close()

		p, err := ollama.NewProvider(ollama.Config{BaseURL: srv.URL})
		Expect(err).NotTo(HaveOccurred())

		res, err := p.Complete(ctx, completion.Request{Prompt: "capital of France?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Decision).To(Equal(completion.DecisionRespond))
		Expect(res.Text).To(ContainSubstring("Paris"))
	})

	It("surfaces upstream errors", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}))
		defer srv.Close()

		p, err := ollama.NewProvider(ollama.Config{BaseURL: srv.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = p.Complete(ctx, completion.Request{Prompt: "anything"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("404"))
	})
})
