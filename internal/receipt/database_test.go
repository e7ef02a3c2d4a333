package receipt

import (
	"context"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ledger/internal/ledger"
)

var _ = Describe("BoltStore", func() {
	var (
		ctx    context.Context
		dbPath string
		clock  *mockTimeSource
		db     *BoltStore
	)

	record := func(receiver, amount string) ledger.Record {
		return ledger.Record{
			DateSent:      "2025-03-01",
			SenderName:    "John Doe",
			ReceiverName:  receiver,
			AccountNumber: "0123456789",
			Amount:        decimal.RequireFromString(amount),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		clock = &mockTimeSource{now: time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)}
		var err error
		db, err = NewBoltDBWithClock(dbPath, ledger.DefaultLayout(), clock)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("Append", func() {
		It("should stamp the row with the insertion time", func() {
			Expect(db.Append(ctx, record("Jane Smith", "150"))).To(Succeed())

			results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnReceiverName, SearchValue: "Jane"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(Equal([]ledger.SearchResult{{
				DateSent:      "2025-03-01",
				SenderName:    "John Doe",
				ReceiverName:  "Jane Smith",
				AccountNumber: "0123456789",
				Amount:        "150.00",
				Timestamp:     "2025-03-02 09:30:00",
			}}))
		})

		When("the context is cancelled", func() {
			It("should not write", func() {
				cancelled, cancel := context.WithCancel(ctx)
				cancel()
				Expect(db.Append(cancelled, record("Jane Smith", "150"))).NotTo(Succeed())

				results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnAmount, SearchValue: "150"})
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(BeEmpty())
			})
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(db.Append(ctx, record("Jane Smith", "150"))).To(Succeed())
			Expect(db.Append(ctx, record("Bob Stone", "20.5"))).To(Succeed())
			Expect(db.Append(ctx, record("jane smith", "75"))).To(Succeed())
		})

		It("should return matches in insertion order", func() {
			results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnReceiverName, SearchValue: "JANE"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Amount).To(Equal("150.00"))
			Expect(results[1].Amount).To(Equal("75.00"))
		})

		It("should compare amounts numerically", func() {
			results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnAmount, SearchValue: "20.50"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ReceiverName).To(Equal("Bob Stone"))
		})

		It("should return an empty, non-nil slice when nothing matches", func() {
			results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnSenderName, SearchValue: "Nobody"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).NotTo(BeNil())
			Expect(results).To(BeEmpty())
		})

		It("should survive a reopen", func() {
			Expect(db.Close()).To(Succeed())
			var err error
			db, err = NewBoltDB(dbPath, ledger.DefaultLayout())
			Expect(err).NotTo(HaveOccurred())

			results, err := db.Search(ctx, ledger.Query{ColumnToSearch: ledger.ColumnSenderName, SearchValue: "john"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
		})
	})

	When("reopened with a different column order", func() {
		It("should refuse to open", func() {
			Expect(db.Close()).To(Succeed())
			layout, err := ledger.NewLayout("amount", "date_sent", "sender_name", "receiver_name", "account_number", "timestamp")
			Expect(err).NotTo(HaveOccurred())

			db, err = NewBoltDB(dbPath, layout)
			Expect(err).To(MatchError(ContainSubstring("do not match layout")))
			Expect(db).To(BeNil())
		})
	})
})
