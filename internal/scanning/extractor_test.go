package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

const scenarioJSON = `{"date_sent":"2025-03-01","sender_name":"John Doe","receiver_name":"Jane Smith","account_number":"0123456789","amount":150.00}`

func pngBytes() []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Extractor", func() {
	var (
		model     *fakeModel
		extractor *Extractor
		photo     []byte
		rec       ledger.Record
		err       error
	)

	BeforeEach(func() {
		model = newFakeModel()
		extractor = NewExtractor(model)
		photo = pngBytes()
	})

	JustBeforeEach(func() {
		rec, err = extractor.Extract(context.Background(), photo)
	})

	expectScenarioRecord := func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.DateSent).To(Equal("2025-03-01"))
		Expect(rec.SenderName).To(Equal("John Doe"))
		Expect(rec.ReceiverName).To(Equal("Jane Smith"))
		Expect(rec.AccountNumber).To(Equal("0123456789"))
		Expect(rec.AmountText()).To(Equal("150.00"))
	}

	When("the schema tier answers", func() {
		BeforeEach(func() {
			model.responses[ModeSchema] = &Response{Kind: KindObject, Object: []byte(scenarioJSON)}
		})

		It("should return the record", func() {
			expectScenarioRecord()
		})

		It("should only call the schema tier", func() {
			Expect(model.modesCalled()).To(Equal([]Mode{ModeSchema}))
		})

		It("should send the image bytes unchanged with the sniffed type", func() {
			Expect(model.calls[0].Image).To(Equal(photo))
			Expect(model.calls[0].ImageMIME).To(Equal("image/png"))
		})

		It("should pass the record schema", func() {
			Expect(model.calls[0].Schema.Required).To(ConsistOf("date_sent", "sender_name", "receiver_name", "account_number", "amount"))
		})
	})

	When("the schema tier is unsupported", func() {
		BeforeEach(func() {
			model.responses[ModeTool] = &Response{Kind: KindToolCall, ToolName: "extract_receipt_data", ToolArgs: []byte(scenarioJSON)}
		})

		It("should use the tool tier", func() {
			expectScenarioRecord()
			Expect(model.modesCalled()).To(Equal([]Mode{ModeSchema, ModeTool}))
		})

		It("should force the extraction function", func() {
			Expect(model.calls[1].Tool.Name).To(Equal("extract_receipt_data"))
		})
	})

	When("the schema tier errors", func() {
		BeforeEach(func() {
			model.errs[ModeSchema] = &ProviderError{Provider: "fake", Message: "schema rejected"}
			model.responses[ModeTool] = &Response{Kind: KindToolCall, ToolName: "extract_receipt_data", ToolArgs: []byte(scenarioJSON)}
		})

		It("should fall back to the tool tier", func() {
			expectScenarioRecord()
		})
	})

	When("only freeform text is available", func() {
		BeforeEach(func() {
			model.responses[ModeFreeform] = &Response{Kind: KindText, Text: "Sure!\n```json\n" + scenarioJSON + "\n```"}
		})

		It("should slice the JSON out of the text", func() {
			expectScenarioRecord()
			Expect(model.modesCalled()).To(Equal([]Mode{ModeSchema, ModeTool, ModeFreeform}))
		})

		It("should ask for JSON only", func() {
			Expect(model.calls[2].Prompt).To(ContainSubstring("Return ONLY valid JSON"))
		})
	})

	When("the model declines to call the function", func() {
		BeforeEach(func() {
			model.responses[ModeTool] = &Response{Kind: KindToolCall, Text: "This is not a receipt."}
			model.responses[ModeFreeform] = &Response{Kind: KindText, Text: scenarioJSON}
		})

		It("should continue to the next tier", func() {
			expectScenarioRecord()
		})
	})

	When("the tool tier returns an invalid date", func() {
		BeforeEach(func() {
			model.responses[ModeTool] = &Response{Kind: KindToolCall, ToolName: "extract_receipt_data", ToolArgs: []byte(
				`{"date_sent":"01/03/2025","sender_name":"John Doe","receiver_name":"Jane Smith","account_number":"1","amount":150}`)}
		})

		It("should fail with the validation error preserved", func() {
			Expect(err).To(HaveOccurred())
			var ee *ExtractionError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Kind).To(Equal(KindNoParseableOutput))
			Expect(ee.Tier).To(Equal(ModeTool))
			Expect(ledger.IsValidationError(err)).To(BeTrue())
			Expect(ee.Raw).To(ContainSubstring("01/03/2025"))
		})
	})

	When("the image is illegible", func() {
		BeforeEach(func() {
			model.responses[ModeSchema] = &Response{Kind: KindObject, Object: []byte(
				`{"date_sent":"Unknown","sender_name":"Unknown","receiver_name":"Unknown","account_number":"N/A","amount":0.0}`)}
			model.responses[ModeTool] = &Response{Kind: KindToolCall, Text: "I can't read this."}
			model.responses[ModeFreeform] = &Response{Kind: KindText, Text: "The image is too blurry to read."}
		})

		It("should fail with no parseable output", func() {
			Expect(errors.Is(err, ErrNoParseableOutput)).To(BeTrue())
			Expect(IsProviderError(err)).To(BeFalse())
		})

		It("should report the last tier and its raw text", func() {
			var ee *ExtractionError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Tier).To(Equal(ModeFreeform))
			Expect(ee.Raw).To(Equal("The image is too blurry to read."))
		})

		It("should try every tier", func() {
			Expect(model.modesCalled()).To(HaveLen(3))
		})
	})

	When("the provider is rate limited on the last tier", func() {
		BeforeEach(func() {
			extractor = NewExtractor(model, WithTiers(ModeSchema))
			model.errs[ModeSchema] = &ProviderError{Provider: "fake", Message: "quota exceeded", Throttled: true}
		})

		It("should surface a provider error", func() {
			var ee *ExtractionError
			Expect(errors.As(err, &ee)).To(BeTrue())
			Expect(ee.Kind).To(Equal(KindProvider))
			Expect(IsThrottled(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("quota exceeded"))
		})
	})

	When("the provider fails with a plain error", func() {
		BeforeEach(func() {
			extractor = NewExtractor(model, WithTiers(ModeFreeform))
			model.errs[ModeFreeform] = errors.New("connection reset")
		})

		It("should wrap it as a provider error", func() {
			Expect(IsProviderError(err)).To(BeTrue())
			Expect(IsThrottled(err)).To(BeFalse())
		})
	})

	When("the model supports none of the tiers", func() {
		It("should fail with no parseable output", func() {
			Expect(errors.Is(err, ErrNoParseableOutput)).To(BeTrue())
		})
	})

	When("the image is empty", func() {
		BeforeEach(func() {
			photo = nil
		})

		It("should not call the model", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(BeEmpty())
		})
	})

	When("called twice on the same image with a deterministic model", func() {
		BeforeEach(func() {
			model.responses[ModeSchema] = &Response{Kind: KindObject, Object: []byte(scenarioJSON)}
		})

		It("should return equal records", func() {
			again, err2 := extractor.Extract(context.Background(), photo)
			Expect(err2).NotTo(HaveOccurred())
			Expect(again.DateSent).To(Equal(rec.DateSent))
			Expect(again.SenderName).To(Equal(rec.SenderName))
			Expect(again.ReceiverName).To(Equal(rec.ReceiverName))
			Expect(again.AccountNumber).To(Equal(rec.AccountNumber))
			Expect(again.Amount.Equal(rec.Amount)).To(BeTrue())
		})
	})
})
