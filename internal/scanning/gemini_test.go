package scanning

import (
	"github.com/google/generative-ai-go/genai"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

var _ = Describe("geminiSchema", func() {
	It("should mark enumerations with the enum format", func() {
		out := geminiSchema(querySchema(ledger.DefaultLayout()))

		Expect(out.Type).To(Equal(genai.TypeObject))
		column := out.Properties["column_to_search"]
		Expect(column.Type).To(Equal(genai.TypeString))
		Expect(column.Format).To(Equal("enum"))
		Expect(column.Enum).To(Equal(ledger.DefaultLayout().Columns()))
		Expect(out.Properties["search_value"].Format).To(BeEmpty())
		Expect(out.Required).To(Equal([]string{"column_to_search", "search_value"}))
	})

	It("should convert nested properties and their types", func() {
		out := geminiSchema(recordSchema())

		Expect(out.Properties).To(HaveLen(5))
		Expect(out.Properties[ledger.ColumnAmount].Type).To(Equal(genai.TypeNumber))
		Expect(out.Properties[ledger.ColumnDateSent].Type).To(Equal(genai.TypeString))
		Expect(out.Properties[ledger.ColumnDateSent].Description).To(ContainSubstring("YYYY-MM-DD"))
	})

	It("should pass a nil schema through", func() {
		Expect(geminiSchema(nil)).To(BeNil())
	})
})

var _ = Describe("emptyResponse", func() {
	It("should keep the tool kind for tool calls", func() {
		resp := emptyResponse(ModeTool, "I'd rather not")
		Expect(resp.Kind).To(Equal(KindToolCall))
		Expect(resp.ToolName).To(BeEmpty())
		Expect(resp.Text).To(Equal("I'd rather not"))
	})

	It("should be text for other modes", func() {
		Expect(emptyResponse(ModeSchema, "").Kind).To(Equal(KindText))
		Expect(emptyResponse(ModeFreeform, "hi").Text).To(Equal("hi"))
	})
})
