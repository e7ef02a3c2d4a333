package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		ollama *Ollama
		req    Request
		resp   *Response
		err    error
		sent   map[string]any
	)

	captureAndRespond := func(status int, body string) http.HandlerFunc {
		return ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
			ghttp.VerifyContentType("application/json"),
			func(w http.ResponseWriter, r *http.Request) {
				data, readErr := io.ReadAll(r.Body)
				Expect(readErr).NotTo(HaveOccurred())
				Expect(json.Unmarshal(data, &sent)).To(Succeed())
			},
			ghttp.RespondWith(status, body),
		)
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		ollama, err = NewOllama(server.URL(), "qwen2.5vl")
		Expect(err).NotTo(HaveOccurred())
		sent = nil
		req = Request{
			System:    "system prompt",
			Prompt:    "read this",
			Image:     []byte{0xff, 0xd8, 0xff},
			ImageMIME: "image/jpeg",
		}
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		resp, err = ollama.Generate(context.Background(), req)
	})

	When("asked for schema output", func() {
		BeforeEach(func() {
			req.Mode = ModeSchema
			req.Schema = recordSchema()
			server.AppendHandlers(captureAndRespond(http.StatusOK,
				`{"message":{"role":"assistant","content":"{\"sender_name\":\"John Doe\"}"},"done":true}`))
		})

		It("should return the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(KindObject))
			Expect(string(resp.Object)).To(Equal(`{"sender_name":"John Doe"}`))
		})

		It("should send the schema as the format", func() {
			format := sent["format"].(map[string]any)
			Expect(format["type"]).To(Equal("object"))
			Expect(format["properties"]).To(HaveKey("amount"))
		})

		It("should attach the image to the user message", func() {
			messages := sent["messages"].([]any)
			Expect(messages).To(HaveLen(2))
			user := messages[1].(map[string]any)
			Expect(user["images"]).To(ConsistOf("/9j/"))
		})

		It("should request deterministic output", func() {
			Expect(sent["options"]).To(HaveKeyWithValue("temperature", BeNumerically("==", 0)))
			Expect(sent["stream"]).To(BeFalse())
		})
	})

	When("asked for a tool call", func() {
		BeforeEach(func() {
			req.Mode = ModeTool
			req.Tool = &Tool{Name: "extract_receipt_data", Description: "extract", Parameters: recordSchema()}
			server.AppendHandlers(captureAndRespond(http.StatusOK,
				`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"extract_receipt_data","arguments":{"amount":150}}}]},"done":true}`))
		})

		It("should return the call", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Kind).To(Equal(KindToolCall))
			Expect(resp.ToolName).To(Equal("extract_receipt_data"))
			Expect(string(resp.ToolArgs)).To(MatchJSON(`{"amount":150}`))
		})

		It("should declare the tool", func() {
			tools := sent["tools"].([]any)
			Expect(tools).To(HaveLen(1))
			fn := tools[0].(map[string]any)["function"].(map[string]any)
			Expect(fn["name"]).To(Equal("extract_receipt_data"))
		})
	})

	When("the model answers without calling the tool", func() {
		BeforeEach(func() {
			req.Mode = ModeTool
			req.Tool = &Tool{Name: "create_search_query", Parameters: recordSchema()}
			server.AppendHandlers(captureAndRespond(http.StatusOK,
				`{"message":{"role":"assistant","content":"Here's a joke"},"done":true}`))
		})

		It("should return a declined call", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ToolName).To(BeEmpty())
			Expect(resp.Text).To(Equal("Here's a joke"))
		})
	})

	When("the model does not support tools", func() {
		BeforeEach(func() {
			req.Mode = ModeTool
			req.Tool = &Tool{Name: "extract_receipt_data", Parameters: recordSchema()}
			server.AppendHandlers(captureAndRespond(http.StatusBadRequest,
				`{"error":"registry.ollama.ai/library/llava:latest does not support tools"}`))
		})

		It("should report the mode as unsupported", func() {
			Expect(errors.Is(err, ErrUnsupported)).To(BeTrue())
		})
	})

	When("asked for freeform text", func() {
		BeforeEach(func() {
			req.Mode = ModeFreeform
			server.AppendHandlers(captureAndRespond(http.StatusOK,
				`{"message":{"role":"assistant","content":"  {\"amount\": 1}  "},"done":true}`))
		})

		It("should return the trimmed text", func() {
			Expect(resp.Kind).To(Equal(KindText))
			Expect(resp.Text).To(Equal(`{"amount": 1}`))
		})

		It("should not send a format", func() {
			Expect(sent).NotTo(HaveKey("format"))
			Expect(sent).NotTo(HaveKey("tools"))
		})
	})

	When("the server is overloaded", func() {
		BeforeEach(func() {
			req.Mode = ModeFreeform
			server.AppendHandlers(captureAndRespond(http.StatusServiceUnavailable, `server busy`))
		})

		It("should return a throttled provider error", func() {
			Expect(IsThrottled(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("status 503"))
		})
	})

	When("the server fails", func() {
		BeforeEach(func() {
			req.Mode = ModeFreeform
			server.AppendHandlers(captureAndRespond(http.StatusInternalServerError, `boom`))
		})

		It("should return a provider error", func() {
			Expect(IsProviderError(err)).To(BeTrue())
			Expect(IsThrottled(err)).To(BeFalse())
		})
	})
})
