package scanning

import (
	"errors"
	"fmt"

	"google.golang.org/genai"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

var _ = Describe("vertexSchema", func() {
	It("should keep enumerations and property order", func() {
		out := vertexSchema(querySchema(ledger.DefaultLayout()))

		Expect(out.Type).To(Equal(genai.TypeObject))
		Expect(out.PropertyOrdering).To(Equal([]string{"column_to_search", "search_value"}))
		Expect(out.Properties["column_to_search"].Enum).To(HaveLen(6))
		Expect(out.Properties["column_to_search"].Type).To(Equal(genai.TypeString))
	})

	It("should convert nested properties and their types", func() {
		out := vertexSchema(recordSchema())

		Expect(out.Properties).To(HaveLen(5))
		Expect(out.Properties[ledger.ColumnAmount].Type).To(Equal(genai.TypeNumber))
		Expect(out.Properties[ledger.ColumnSenderName].Type).To(Equal(genai.TypeString))
		Expect(out.Required).To(HaveLen(5))
	})

	It("should pass a nil schema through", func() {
		Expect(vertexSchema(nil)).To(BeNil())
	})
})

var _ = Describe("vertexThrottled", func() {
	It("should detect a 429 API error", func() {
		err := fmt.Errorf("generating content: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"})
		Expect(vertexThrottled(err)).To(BeTrue())
	})

	It("should detect a 429 API error behind a pointer", func() {
		err := fmt.Errorf("generating content: %w", &genai.APIError{Code: 429})
		Expect(vertexThrottled(err)).To(BeTrue())
	})

	It("should not treat other API errors as throttling", func() {
		Expect(vertexThrottled(genai.APIError{Code: 500})).To(BeFalse())
	})

	It("should not treat plain errors as throttling", func() {
		Expect(vertexThrottled(errors.New("connection reset"))).To(BeFalse())
	})
})
